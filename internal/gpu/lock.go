package gpu

import (
	"context"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	apperrors "github.com/fridahub/retrieval-go/internal/errors"
	"github.com/fridahub/retrieval-go/internal/logger"
)

// pollInterval 文件锁轮询间隔
const pollInterval = time.Second

// Lock GPU独占锁
// 同一主机上的多个进程共享一块GPU，推理前必须通过文件锁串行化，
// 因此互斥基于操作系统级的advisory文件锁而不是进程内mutex
type Lock struct {
	lockPath string
	fileLock *flock.Flock
}

// NewLock 创建GPU锁
func NewLock(lockPath string) *Lock {
	if lockPath == "" {
		lockPath = "/shared/gpu.lock"
	}
	return &Lock{
		lockPath: lockPath,
		fileLock: flock.New(lockPath),
	}
}

// Acquire 尝试获取锁，每秒轮询一次直到成功或超时
// timeout为0表示无限等待
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	locked, err := l.fileLock.TryLockContext(ctx, pollInterval)
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("Таймаут ожидания GPU истек", zap.String("lock_path", l.lockPath))
			return false, nil
		}
		return false, err
	}
	if locked {
		logger.Info("Блокировка GPU установлена", zap.String("lock_path", l.lockPath))
	}
	return locked, nil
}

// Release 释放锁，未持有时调用是安全的
func (l *Lock) Release() {
	if l.fileLock == nil || !l.fileLock.Locked() {
		return
	}
	if err := l.fileLock.Unlock(); err != nil {
		logger.Error("Failed to release GPU lock", zap.Error(err))
		return
	}
	logger.Info("Блокировка GPU снята")
}

// WithLock 在持有GPU锁的情况下执行fn，所有退出路径都会释放锁
// 超时未获取到锁时返回RESOURCE_UNAVAILABLE，fn不会被执行
func WithLock(ctx context.Context, lock *Lock, timeout time.Duration, fn func() error) error {
	acquired, err := lock.Acquire(ctx, timeout)
	if err != nil {
		return apperrors.NewInternal("failed to acquire GPU lock", err)
	}
	if !acquired {
		return apperrors.NewResourceUnavailable("не удалось захватить GPU")
	}
	defer lock.Release()

	return fn()
}
