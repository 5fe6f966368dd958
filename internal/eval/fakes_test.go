package eval

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Wei-Shaw/evaldepot/internal/lock"
	"github.com/Wei-Shaw/evaldepot/internal/pool"
)

// fakeLockStore is a minimal in-memory lock.Store for driver tests that
// need a real lock.DistributedLock behind the pool they exercise.
type fakeLockStore struct {
	mu      sync.Mutex
	records map[string]*lock.Record
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{records: make(map[string]*lock.Record)}
}

func (s *fakeLockStore) TryInsert(ctx context.Context, resourceID, ownerToken string, leaseTTL time.Duration) (bool, *lock.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[resourceID]; ok {
		cp := *existing
		return false, &cp, nil
	}
	now := time.Now()
	rec := &lock.Record{ResourceID: resourceID, OwnerToken: ownerToken, AcquiredAt: now, ExpiresAt: now.Add(leaseTTL)}
	s.records[resourceID] = rec
	cp := *rec
	return true, &cp, nil
}

func (s *fakeLockStore) DeleteIfOwner(ctx context.Context, resourceID, ownerToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[resourceID]
	if !ok || existing.OwnerToken != ownerToken {
		return false, nil
	}
	delete(s.records, resourceID)
	return true, nil
}

func (s *fakeLockStore) Read(ctx context.Context, resourceID string) (*lock.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[resourceID]
	if !ok {
		return nil, nil
	}
	cp := *existing
	return &cp, nil
}

func (s *fakeLockStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, rec := range s.records {
		if !rec.ExpiresAt.After(now) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// fakePoolStore is a minimal in-memory pool.Store for driver tests.
type fakePoolStore struct {
	mu      sync.Mutex
	records map[string]*pool.Record
}

func newFakePoolStore() *fakePoolStore {
	return &fakePoolStore{records: make(map[string]*pool.Record)}
}

func (s *fakePoolStore) ListByState(ctx context.Context, poolName string, state pool.State) ([]*pool.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*pool.Record
	for _, rec := range s.records {
		if rec.PoolName == poolName && rec.State == state {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeploymentID < out[j].DeploymentID })
	return out, nil
}

func (s *fakePoolStore) ClaimOneHibernated(ctx context.Context, poolName, allocatorToken string, deadline time.Time) (*pool.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *pool.Record
	for _, rec := range s.records {
		if rec.PoolName != poolName || rec.State != pool.StateHibernated {
			continue
		}
		if best == nil || rec.LastUsedAt.Before(best.LastUsedAt) {
			best = rec
		}
	}
	if best == nil {
		return nil, nil
	}

	best.State = pool.StateAllocated
	best.AllocatedTo = allocatorToken
	d := deadline
	best.AllocationDeadline = &d
	best.LastUsedAt = time.Now()
	best.FailureCount = 0

	cp := *best
	return &cp, nil
}

func (s *fakePoolStore) Release(ctx context.Context, deploymentID, allocatorToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[deploymentID]
	if !ok || rec.State != pool.StateAllocated || rec.AllocatedTo != allocatorToken {
		return false, nil
	}
	rec.State = pool.StateHibernated
	rec.AllocatedTo = ""
	rec.AllocationDeadline = nil
	rec.LastUsedAt = time.Now()
	rec.FailureCount = 0
	return true, nil
}

func (s *fakePoolStore) Upsert(ctx context.Context, rec *pool.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.DeploymentID] = &cp
	return nil
}

func (s *fakePoolStore) SetState(ctx context.Context, deploymentID string, state pool.State, incrementFailureCount bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[deploymentID]
	if !ok {
		return 0, nil
	}
	rec.State = state
	if incrementFailureCount {
		rec.FailureCount++
	}
	rec.LastUsedAt = time.Now()
	return rec.FailureCount, nil
}

func (s *fakePoolStore) Retire(ctx context.Context, deploymentID string) error {
	_, err := s.SetState(ctx, deploymentID, pool.StateRetired, false)
	return err
}

func (s *fakePoolStore) ReclaimOverdue(ctx context.Context, poolName string, now time.Time) ([]*pool.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*pool.Record
	for _, rec := range s.records {
		if rec.PoolName != poolName || rec.State != pool.StateAllocated {
			continue
		}
		if rec.AllocationDeadline != nil && !rec.AllocationDeadline.After(now) {
			rec.State = pool.StateHibernated
			rec.AllocatedTo = ""
			rec.AllocationDeadline = nil
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func seedHibernated(store *fakePoolStore, poolName, id string) {
	now := time.Now()
	store.records[id] = &pool.Record{
		DeploymentID:   id,
		PoolName:       poolName,
		DeploymentName: id + "-name",
		State:          pool.StateHibernated,
		CreatedAt:      now,
		LastUsedAt:     now,
	}
}
