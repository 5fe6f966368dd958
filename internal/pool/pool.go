package pool

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Wei-Shaw/evaldepot/internal/lock"
	"github.com/Wei-Shaw/evaldepot/internal/orchestrator"
	infraerrors "github.com/Wei-Shaw/evaldepot/internal/pkg/errors"
	"github.com/Wei-Shaw/evaldepot/internal/pkg/logger"
)

// maxConsecutiveFailures is the failure_count threshold at which a record
// is retired instead of left FAILED for a future allocate to retry.
const maxConsecutiveFailures = 2

// Config tunes a DeploymentPool's provisioning and retry behaviour.
type Config struct {
	PoolName             string
	DeploymentNamePrefix string
	TargetSize           int
	HardCap              int
	AllocationTTL        time.Duration
	PoolLockTTL          time.Duration
	OrchestratorRetry    int
	IdleKeepalive        time.Duration
	WakeRetryAttempts    int
}

func (c Config) normalized() Config {
	out := c
	if out.HardCap <= 0 {
		out.HardCap = 1
	}
	if out.AllocationTTL <= 0 {
		out.AllocationTTL = 10 * time.Minute
	}
	if out.PoolLockTTL <= 0 {
		out.PoolLockTTL = 10 * time.Second
	}
	if out.OrchestratorRetry <= 0 {
		out.OrchestratorRetry = 2
	}
	if out.WakeRetryAttempts <= 0 {
		out.WakeRetryAttempts = 2
	}
	if out.DeploymentNamePrefix == "" {
		out.DeploymentNamePrefix = out.PoolName
	}
	return out
}

// DeploymentPool provides ready-to-use deployment handles while keeping
// provisioning cost amortised across an evaluation run.
type DeploymentPool struct {
	store        Store
	orchestrator orchestrator.Client
	lock         *lock.DistributedLock
	cfg          Config
}

// New builds a DeploymentPool over store, client and a shared
// DistributedLock (the pool lock is one named resource per pool, so the
// same DistributedLock instance is reused across every pool in a process).
func New(store Store, client orchestrator.Client, distLock *lock.DistributedLock, cfg Config) *DeploymentPool {
	return &DeploymentPool{store: store, orchestrator: client, lock: distLock, cfg: cfg.normalized()}
}

func (p *DeploymentPool) lockResourceID() string {
	return "pool:" + p.cfg.PoolName
}

// Handle is returned by allocate: the minimal information a caller needs
// to run a test task against the deployment and later release it.
type Handle struct {
	DeploymentID    string
	DeploymentName  string
	AllocatorToken  string
}

// Allocate obtains a ready (woken) deployment for exclusive use, provisioning
// one if the pool has spare hard-cap headroom and none is hibernated. A
// wake failure retries the whole procedure against a different deployment;
// a pool at hard cap backs off and retries until maxWait elapses.
func (p *DeploymentPool) Allocate(ctx context.Context, maxWait time.Duration) (*Handle, error) {
	deadline := time.Now().Add(maxWait)
	return p.allocateAttempt(ctx, deadline, 0)
}

func (p *DeploymentPool) allocateAttempt(ctx context.Context, deadline time.Time, wakeRetries int) (*Handle, error) {
	waitBudget := time.Until(deadline)
	if waitBudget < 0 {
		waitBudget = 0
	}

	h, err := p.lock.Acquire(ctx, p.lockResourceID(), p.cfg.PoolLockTTL, waitBudget)
	if err != nil {
		return nil, err
	}
	if !h.Acquired() {
		return nil, ErrPoolBusy
	}

	if _, err := p.store.ReclaimOverdue(ctx, p.cfg.PoolName, time.Now()); err != nil {
		_, _ = p.lock.Release(ctx, h)
		return nil, err
	}

	allocatorToken := uuid.NewString()
	rec, err := p.store.ClaimOneHibernated(ctx, p.cfg.PoolName, allocatorToken, time.Now().Add(p.cfg.AllocationTTL))
	if err != nil {
		_, _ = p.lock.Release(ctx, h)
		return nil, err
	}

	if rec != nil {
		// Release the pool lock before the (potentially slow) wake call:
		// wake only touches this one record, it does not need pool-wide
		// serialisation.
		_, _ = p.lock.Release(ctx, h)

		if wakeErr := p.wakeWithRetry(ctx, rec.DeploymentID); wakeErr != nil {
			p.markFailed(ctx, rec.DeploymentID, wakeErr)
			logger.LegacyPrintf("pool.pool", "[DeploymentPool] wake failed deployment_id=%s pool=%s err=%v", rec.DeploymentID, p.cfg.PoolName, wakeErr)

			if wakeRetries >= p.cfg.WakeRetryAttempts {
				return nil, wakeErr
			}
			return p.allocateAttempt(ctx, deadline, wakeRetries+1)
		}

		return &Handle{DeploymentID: rec.DeploymentID, DeploymentName: rec.DeploymentName, AllocatorToken: allocatorToken}, nil
	}

	// No hibernated record: decide whether to provision, still holding the
	// lock.
	activeCount, err := p.countActive(ctx)
	if err != nil {
		_, _ = p.lock.Release(ctx, h)
		return nil, err
	}

	if activeCount >= p.cfg.HardCap {
		_, _ = p.lock.Release(ctx, h)
		if time.Now().After(deadline) {
			return nil, ErrPoolBusy
		}
		select {
		case <-ctx.Done():
			return nil, ErrCancelled
		case <-time.After(provisionBackoff):
		}
		return p.allocateAttempt(ctx, deadline, wakeRetries)
	}

	deploymentID, deploymentName, createErr := p.createWithRetry(ctx)
	if createErr != nil {
		_, _ = p.lock.Release(ctx, h)
		return nil, createErr
	}

	now := time.Now()
	waking := &Record{
		DeploymentID:   deploymentID,
		PoolName:       p.cfg.PoolName,
		DeploymentName: deploymentName,
		State:          StateWaking,
		CreatedAt:      now,
		LastUsedAt:     now,
	}
	if err := p.store.Upsert(ctx, waking); err != nil {
		_, _ = p.lock.Release(ctx, h)
		return nil, err
	}
	_, _ = p.lock.Release(ctx, h)

	if wakeErr := p.wakeWithRetry(ctx, deploymentID); wakeErr != nil {
		p.markFailed(ctx, deploymentID, wakeErr)
		return nil, wakeErr
	}

	allocated := &Record{
		DeploymentID:       deploymentID,
		PoolName:           p.cfg.PoolName,
		DeploymentName:     deploymentName,
		State:              StateAllocated,
		AllocatedTo:        allocatorToken,
		AllocationDeadline: deadlinePtr(time.Now().Add(p.cfg.AllocationTTL)),
		CreatedAt:          now,
		LastUsedAt:         time.Now(),
	}
	if err := p.store.Upsert(ctx, allocated); err != nil {
		return nil, err
	}

	return &Handle{DeploymentID: deploymentID, DeploymentName: deploymentName, AllocatorToken: allocatorToken}, nil
}

const provisionBackoff = 250 * time.Millisecond

func deadlinePtr(t time.Time) *time.Time { return &t }

func (p *DeploymentPool) countActive(ctx context.Context) (int, error) {
	total := 0
	for state := range activeStates {
		recs, err := p.store.ListByState(ctx, p.cfg.PoolName, state)
		if err != nil {
			return 0, err
		}
		total += len(recs)
	}
	return total, nil
}

// markFailed increments deploymentID's failure_count and retires the
// record once it is no longer worth keeping around: either a permanent
// orchestrator error (the deployment itself is gone or will never recover)
// or failure_count reaching maxConsecutiveFailures on repeated transient
// errors. Destroy/Retire failures are logged and swallowed: the next sweep
// or drain cycle gets another chance at a record stuck mid-retire.
func (p *DeploymentPool) markFailed(ctx context.Context, deploymentID string, cause error) {
	failureCount, err := p.store.SetState(ctx, deploymentID, StateFailed, true)
	if err != nil {
		logger.LegacyPrintf("pool.pool", "[DeploymentPool] mark failed update error deployment_id=%s err=%v", deploymentID, err)
		return
	}

	permanent := infraerrors.Is(cause, ErrOrchestratorPermanent.Code) || infraerrors.Is(cause, orchestrator.ErrPermanent.Code)
	if !permanent && failureCount < maxConsecutiveFailures {
		return
	}

	logger.LegacyPrintf("pool.pool", "[DeploymentPool] retiring deployment_id=%s failure_count=%d permanent=%v last_err=%v", deploymentID, failureCount, permanent, cause)
	if err := p.orchestrator.Destroy(ctx, deploymentID); err != nil {
		logger.LegacyPrintf("pool.pool", "[DeploymentPool] retire destroy failed deployment_id=%s err=%v", deploymentID, err)
	}
	if err := p.store.Retire(ctx, deploymentID); err != nil {
		logger.LegacyPrintf("pool.pool", "[DeploymentPool] retire store update failed deployment_id=%s err=%v", deploymentID, err)
	}
}

// wakeWithRetry retries a wake call up to cfg.OrchestratorRetry times, but
// only on a transient orchestrator error. A permanent error (deployment
// gone, malformed response) fails fast instead of burning the retry budget.
func (p *DeploymentPool) wakeWithRetry(ctx context.Context, deploymentID string) error {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.OrchestratorRetry; attempt++ {
		err := p.orchestrator.Wake(ctx, deploymentID)
		if err == nil {
			return nil
		}
		if infraerrors.Is(err, orchestrator.ErrPermanent.Code) {
			return ErrOrchestratorPermanent.WithCause(err)
		}
		lastErr = ErrOrchestratorTransient.WithCause(err)
		if attempt < p.cfg.OrchestratorRetry {
			time.Sleep(backoffFor(attempt))
			continue
		}
		return lastErr
	}
	return lastErr
}

// createWithRetry mirrors wakeWithRetry's transient/permanent split for
// provisioning a new deployment.
func (p *DeploymentPool) createWithRetry(ctx context.Context) (string, string, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.OrchestratorRetry; attempt++ {
		id, name, err := p.orchestrator.Create(ctx, orchestrator.CreateConfig{
			PoolName:             p.cfg.PoolName,
			DeploymentNamePrefix: p.cfg.DeploymentNamePrefix,
		})
		if err == nil {
			return id, name, nil
		}
		if infraerrors.Is(err, orchestrator.ErrPermanent.Code) {
			return "", "", ErrOrchestratorPermanent.WithCause(err)
		}
		lastErr = ErrOrchestratorTransient.WithCause(err)
		if attempt < p.cfg.OrchestratorRetry {
			time.Sleep(backoffFor(attempt))
		}
	}
	return "", "", lastErr
}

func backoffFor(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}

// Release returns an allocated deployment to the pool: hibernate then mark
// HIBERNATED under the pool lock.
func (p *DeploymentPool) Release(ctx context.Context, h *Handle) error {
	releaseCtx := context.WithoutCancel(ctx)

	l, err := p.lock.Acquire(releaseCtx, p.lockResourceID(), p.cfg.PoolLockTTL, p.cfg.PoolLockTTL)
	if err != nil {
		return err
	}
	if !l.Acquired() {
		return ErrPoolBusy
	}
	defer func() { _, _ = p.lock.Release(releaseCtx, l) }()

	if err := p.orchestrator.Hibernate(releaseCtx, h.DeploymentID); err != nil {
		p.markFailed(releaseCtx, h.DeploymentID, err)
		return err
	}

	released, err := p.store.Release(releaseCtx, h.DeploymentID, h.AllocatorToken)
	if err != nil {
		return err
	}
	if !released {
		return ErrInvariant.WithMetadata(map[string]string{"deployment_id": h.DeploymentID})
	}
	return nil
}

// Warm provisions up to pool_target_size HIBERNATED records up front, an
// optimisation rather than a correctness requirement (Allocate still
// provisions on starvation): warm once per evaluation session rather than
// paying cold-start cost on every allocate.
func (p *DeploymentPool) Warm(ctx context.Context) error {
	if p.cfg.TargetSize <= 0 {
		return nil
	}

	active, err := p.countActive(ctx)
	if err != nil {
		return err
	}

	for active < p.cfg.TargetSize && active < p.cfg.HardCap {
		id, name, err := p.createWithRetry(ctx)
		if err != nil {
			return err
		}
		now := time.Now()
		if err := p.store.Upsert(ctx, &Record{
			DeploymentID:   id,
			PoolName:       p.cfg.PoolName,
			DeploymentName: name,
			State:          StateHibernated,
			CreatedAt:      now,
			LastUsedAt:     now,
		}); err != nil {
			return err
		}
		active++
		logger.LegacyPrintf("pool.pool", "[DeploymentPool] warmed deployment_id=%s pool=%s", id, p.cfg.PoolName)
	}
	return nil
}

// Drain is called at the end of an evaluation session: every HIBERNATED or
// FAILED record idle longer than idleKeepalive is destroyed through the
// orchestrator and then retired; a record whose destroy call fails is left
// as it is.
func (p *DeploymentPool) Drain(ctx context.Context) error {
	cutoff := time.Now().Add(-p.cfg.IdleKeepalive)

	for _, state := range []State{StateHibernated, StateFailed} {
		recs, err := p.store.ListByState(ctx, p.cfg.PoolName, state)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if rec.LastUsedAt.After(cutoff) {
				continue
			}
			if err := p.orchestrator.Destroy(ctx, rec.DeploymentID); err != nil {
				logger.LegacyPrintf("pool.pool", "[DeploymentPool] destroy failed deployment_id=%s err=%v", rec.DeploymentID, err)
				continue
			}
			if err := p.store.Retire(ctx, rec.DeploymentID); err != nil {
				return err
			}
		}
	}
	return nil
}
