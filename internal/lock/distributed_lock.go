package lock

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	infraerrors "github.com/Wei-Shaw/evaldepot/internal/pkg/errors"
	"github.com/Wei-Shaw/evaldepot/internal/pkg/logger"
)

// Config tunes DistributedLock's retry and backoff behaviour.
type Config struct {
	// AcquireStoreRetry bounds transient-store retries inside a single
	// Acquire/TryAcquire call before the error is propagated.
	AcquireStoreRetry int
	// PollBase and PollCap parametrize the exponential-backoff-with-jitter
	// polling schedule used by Acquire.
	PollBase time.Duration
	PollCap  time.Duration
}

func (c Config) normalized() Config {
	out := c
	if out.AcquireStoreRetry <= 0 {
		out.AcquireStoreRetry = 3
	}
	if out.PollBase <= 0 {
		out.PollBase = 500 * time.Millisecond
	}
	if out.PollCap <= 0 {
		out.PollCap = 2 * time.Second
	}
	return out
}

// DistributedLock provides mutual exclusion over opaque resource_id strings
// across processes that share a Store. It never holds in-process state
// beyond one call: every decision is reconfirmed against the store.
type DistributedLock struct {
	store     Store
	cfg       Config
	peekCache *PeekCache
}

// New builds a DistributedLock over the given Store.
func New(store Store, cfg Config) *DistributedLock {
	return &DistributedLock{store: store, cfg: cfg.normalized()}
}

// SetPeekCache installs an optional Redis-backed fast path in front of
// Peek. Nil disables it (the zero value already behaves this way).
func (l *DistributedLock) SetPeekCache(c *PeekCache) {
	l.peekCache = c
}

// Handle is the result of an acquisition attempt. Acquired is false when
// the resource could not be obtained within the caller's budget; in that
// case Release is a no-op.
type Handle struct {
	resourceID string
	ownerToken string
	acquired   bool
}

func (h *Handle) Acquired() bool {
	return h != nil && h.acquired
}

func (h *Handle) ResourceID() string {
	if h == nil {
		return ""
	}
	return h.resourceID
}

func (h *Handle) OwnerToken() string {
	if h == nil {
		return ""
	}
	return h.ownerToken
}

func notAcquired(resourceID string) *Handle {
	return &Handle{resourceID: resourceID}
}

// Peek reports whether the store contains a non-expired record for
// resourceID. It never mutates the store except for an opportunistic
// expired-sweep, which is itself idempotent.
func (l *DistributedLock) Peek(ctx context.Context, resourceID string) (bool, error) {
	if held, found := l.peekCache.get(ctx, resourceID); found {
		return held, nil
	}

	rec, err := l.withRetry(ctx, func(ctx context.Context) (any, error) {
		return l.store.Read(ctx, resourceID)
	})
	if err != nil {
		return false, err
	}
	record, _ := rec.(*Record)
	if record == nil {
		l.peekCache.set(ctx, resourceID, false)
		return false, nil
	}
	if record.Expired(time.Now()) {
		_, _ = l.store.SweepExpired(ctx, time.Now())
		l.peekCache.set(ctx, resourceID, false)
		return false, nil
	}
	l.peekCache.set(ctx, resourceID, true)
	return true, nil
}

// TryAcquire makes a single attempt to acquire resourceID with the given
// lease. On conflict with an expired record it sweeps and retries exactly
// once, per spec.
func (l *DistributedLock) TryAcquire(ctx context.Context, resourceID string, leaseTTL time.Duration) (*Handle, error) {
	if resourceID == "" {
		return nil, ErrResourceIDRequired
	}
	return l.tryAcquireOnce(ctx, resourceID, leaseTTL, true)
}

func (l *DistributedLock) tryAcquireOnce(ctx context.Context, resourceID string, leaseTTL time.Duration, allowSweepRetry bool) (*Handle, error) {
	ownerToken := uuid.NewString()

	result, err := l.withRetry(ctx, func(ctx context.Context) (any, error) {
		inserted, existing, err := l.store.TryInsert(ctx, resourceID, ownerToken, leaseTTL)
		if err != nil {
			return nil, err
		}
		return tryInsertOutcome{inserted: inserted, existing: existing}, nil
	})
	if err != nil {
		return nil, err
	}
	outcome := result.(tryInsertOutcome)

	if outcome.inserted {
		if ctx.Err() != nil {
			// Cancellation observed right after a successful insert: release
			// immediately rather than leak an acquired lock with no handle
			// returned, per the cancellation policy.
			cleanupCtx := context.WithoutCancel(ctx)
			_, _ = l.store.DeleteIfOwner(cleanupCtx, resourceID, ownerToken)
			return nil, ErrCancelled
		}
		return &Handle{resourceID: resourceID, ownerToken: ownerToken, acquired: true}, nil
	}

	existing := outcome.existing
	if existing != nil && existing.Expired(time.Now()) && allowSweepRetry {
		_, sweepErr := l.withRetry(ctx, func(ctx context.Context) (any, error) {
			return l.store.SweepExpired(ctx, time.Now())
		})
		if sweepErr != nil {
			return nil, sweepErr
		}
		return l.tryAcquireOnce(ctx, resourceID, leaseTTL, false)
	}

	return notAcquired(resourceID), nil
}

type tryInsertOutcome struct {
	inserted bool
	existing *Record
}

// Acquire blocks, polling with randomised exponential backoff, until
// resourceID is acquired or waitBudget elapses. waitBudget == 0 behaves
// exactly like TryAcquire.
func (l *DistributedLock) Acquire(ctx context.Context, resourceID string, leaseTTL, waitBudget time.Duration) (*Handle, error) {
	if resourceID == "" {
		return nil, ErrResourceIDRequired
	}
	if waitBudget <= 0 {
		return l.TryAcquire(ctx, resourceID, leaseTTL)
	}

	deadline := time.Now().Add(waitBudget)
	for attempt := 0; ; attempt++ {
		h, err := l.TryAcquire(ctx, resourceID, leaseTTL)
		if err != nil {
			return nil, err
		}
		if h.Acquired() {
			return h, nil
		}
		if time.Now().After(deadline) {
			return notAcquired(resourceID), nil
		}

		sleep := backoffWithJitter(l.cfg.PollBase, l.cfg.PollCap, attempt)
		remaining := time.Until(deadline)
		if sleep > remaining {
			sleep = remaining
		}
		if sleep <= 0 {
			return notAcquired(resourceID), nil
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ErrCancelled
		case <-timer.C:
		}
	}
}

// backoffWithJitter computes min(base*2^attempt, pollCap) * (1 + U[-0.2,0.2]).
func backoffWithJitter(base, pollCap time.Duration, attempt int) time.Duration {
	mult := math.Pow(2, float64(attempt))
	raw := float64(base) * mult
	if raw > float64(pollCap) || raw <= 0 {
		raw = float64(pollCap)
	}
	jitter := 1 + (rand.Float64()*0.4 - 0.2)
	return time.Duration(raw * jitter)
}

// Release deletes the record for handle's resource_id only if the handle's
// owner_token still owns it. Idempotent: a second release on the same
// handle returns false.
func (l *DistributedLock) Release(ctx context.Context, h *Handle) (bool, error) {
	if h == nil || !h.acquired {
		return false, nil
	}
	result, err := l.withRetry(ctx, func(ctx context.Context) (any, error) {
		return l.store.DeleteIfOwner(ctx, h.resourceID, h.ownerToken)
	})
	if err != nil {
		return false, err
	}
	deleted := result.(bool)
	h.acquired = false
	return deleted, nil
}

// withRetry absorbs ErrTransientStore up to cfg.AcquireStoreRetry times
// with exponential backoff before propagating.
func (l *DistributedLock) withRetry(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	var lastErr error
	for attempt := 0; attempt <= l.cfg.AcquireStoreRetry; attempt++ {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !infraerrors.Is(err, ErrTransientStore.Code) {
			return nil, err
		}
		if attempt < l.cfg.AcquireStoreRetry {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 50 * time.Millisecond
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ErrCancelled
			case <-timer.C:
			}
			logger.LegacyPrintf("lock.distributed_lock", "[DistributedLock] transient store error, retrying attempt=%d err=%v", attempt+1, err)
		}
	}
	return nil, lastErr
}
