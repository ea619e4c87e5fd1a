package gpu

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fridahub/retrieval-go/internal/errors"
)

func TestAcquireRelease(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "gpu.lock")
	lock := NewLock(lockPath)

	acquired, err := lock.Acquire(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, acquired)

	lock.Release()

	// 释放后可以再次获取
	acquired, err = lock.Acquire(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, acquired)
	lock.Release()
}

func TestReleaseWithoutAcquire(t *testing.T) {
	lock := NewLock(filepath.Join(t.TempDir(), "gpu.lock"))
	// 未持有时释放不应panic
	lock.Release()
}

func TestWithLockTimeout(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "gpu.lock")

	holder := NewLock(lockPath)
	acquired, err := holder.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, acquired)
	defer holder.Release()

	// 锁被占用时，超时后返回RESOURCE_UNAVAILABLE且保护区不执行
	entered := false
	err = WithLock(context.Background(), NewLock(lockPath), 100*time.Millisecond, func() error {
		entered = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeResourceUnavailable))
	assert.False(t, entered)
}

func TestMutualExclusion(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "gpu.lock")

	const workers = 8
	var inCritical int32
	var maxObserved int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(context.Background(), NewLock(lockPath), 30*time.Second, func() error {
				current := atomic.AddInt32(&inCritical, 1)
				for {
					observed := atomic.LoadInt32(&maxObserved)
					if current <= observed || atomic.CompareAndSwapInt32(&maxObserved, observed, current) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inCritical, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 临界区内同时最多只能有一个持有者
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxObserved))
}
