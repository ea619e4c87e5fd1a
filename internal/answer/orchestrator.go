package answer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/fridahub/retrieval-go/internal/errors"
	"github.com/fridahub/retrieval-go/internal/logger"
	"github.com/fridahub/retrieval-go/internal/metrics"
	"github.com/fridahub/retrieval-go/internal/retry"
)

// Orchestrator 按优先顺序尝试多个后端，失败时顺延
type Orchestrator struct {
	backends    []Backend // 默认尝试顺序
	maxAttempts int
	backoff     time.Duration
}

// NewOrchestrator 创建编排器，backends为默认尝试顺序
func NewOrchestrator(backends []Backend, maxAttempts int, backoff time.Duration) *Orchestrator {
	return &Orchestrator{
		backends:    backends,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// Backends 当前注册的后端名称列表
func (o *Orchestrator) Backends() []string {
	names := make([]string, 0, len(o.backends))
	for _, b := range o.backends {
		names = append(names, b.Name())
	}
	return names
}

// Answer 按默认顺序尝试所有后端
func (o *Orchestrator) Answer(ctx context.Context, req Request) (string, error) {
	return o.answer(ctx, req, "")
}

// AnswerWith 优先尝试preferred后端，失败后顺延其余后端。
// 最终由非preferred后端回答时，在回答前加替换提示。
func (o *Orchestrator) AnswerWith(ctx context.Context, req Request, preferred string) (string, error) {
	return o.answer(ctx, req, preferred)
}

func (o *Orchestrator) answer(ctx context.Context, req Request, preferred string) (string, error) {
	order, err := o.orderFor(preferred)
	if err != nil {
		return "", err
	}

	var lastErr error
	for _, backend := range order {
		text, err := o.tryBackend(ctx, backend, req)
		if err != nil {
			lastErr = err
			metrics.BackendRequests.WithLabelValues(backend.Name(), "error").Inc()
			logger.Error("Ошибка при работе с моделью",
				zap.String("backend", backend.Name()), zap.Error(err))
			continue
		}

		metrics.BackendRequests.WithLabelValues(backend.Name(), "success").Inc()
		if preferred != "" && backend.Name() != preferred {
			metrics.BackendFallbacks.Inc()
			return fmt.Sprintf("<i>⚠️ Используется модель %s, так как %s недоступна</i>\n\n%s",
				backend.Name(), preferred, text), nil
		}
		return text, nil
	}

	return "", apperrors.NewAllBackendsUnavailable(lastErr)
}

// orderFor 返回本次请求的后端尝试顺序：preferred提前且不重复尝试
func (o *Orchestrator) orderFor(preferred string) ([]Backend, error) {
	if preferred == "" {
		return o.backends, nil
	}

	var head Backend
	rest := make([]Backend, 0, len(o.backends))
	for _, b := range o.backends {
		if b.Name() == preferred {
			head = b
			continue
		}
		rest = append(rest, b)
	}
	if head == nil {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("Модель '%s' не поддерживается", preferred))
	}
	return append([]Backend{head}, rest...), nil
}

// tryBackend 对单个后端做有界重试，仅瞬时错误触发重试
func (o *Orchestrator) tryBackend(ctx context.Context, backend Backend, req Request) (string, error) {
	var text string
	err := retry.Do(ctx, func() error {
		result, err := backend.Complete(ctx, req)
		if err != nil {
			return err
		}
		text = result
		return nil
	}, retry.Options{
		MaxAttempts: o.maxAttempts,
		Backoff:     o.backoff,
		RetryIf:     apperrors.IsTransient,
		Name:        backend.Name(),
	})
	if err != nil {
		return "", err
	}
	return text, nil
}
