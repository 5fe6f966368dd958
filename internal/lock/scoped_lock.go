package lock

import (
	"context"
	"time"

	"github.com/Wei-Shaw/evaldepot/internal/pkg/logger"
)

// ScopedLock wraps a DistributedLock so callers cannot forget to release:
// Do acquires, runs fn, and always releases before returning, regardless of
// whether fn panics or returns an error.
type ScopedLock struct {
	lock *DistributedLock
}

// NewScoped wraps lock in a ScopedLock.
func NewScoped(lock *DistributedLock) *ScopedLock {
	return &ScopedLock{lock: lock}
}

// Do acquires resourceID, runs fn, and releases the lock before returning,
// including when fn panics, in which case Do releases and re-panics.
func (s *ScopedLock) Do(ctx context.Context, resourceID string, leaseTTL, waitBudget time.Duration, fn func(ctx context.Context) error) error {
	h, err := s.lock.Acquire(ctx, resourceID, leaseTTL, waitBudget)
	if err != nil {
		return err
	}
	if !h.Acquired() {
		return ErrNotAcquired
	}

	defer func() {
		releaseCtx := context.WithoutCancel(ctx)
		if _, releaseErr := s.lock.Release(releaseCtx, h); releaseErr != nil {
			logger.LegacyPrintf("lock.scoped_lock", "[ScopedLock] release failed resource_id=%s err=%v", resourceID, releaseErr)
		}
	}()

	return fn(ctx)
}
