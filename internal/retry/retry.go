package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/fridahub/retrieval-go/internal/logger"
)

// Options 有界重试策略：固定间隔、固定次数、可重试错误判定
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	RetryIf     func(error) bool
	Name        string // 日志用途
}

// Do 以固定间隔重试fn，仅对RetryIf判定为真的错误重试
// 瞬时错误以外的失败立即终止并返回原始错误
func Do(ctx context.Context, fn func() error, opts Options) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	if opts.RetryIf == nil {
		opts.RetryIf = func(error) bool { return true }
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(opts.Backoff), uint64(opts.MaxAttempts-1)),
		ctx,
	)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !opts.RetryIf(err) {
			return backoff.Permanent(err)
		}
		logger.Info("Retrying after transient error",
			zap.String("op", opts.Name), zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, policy)
}
