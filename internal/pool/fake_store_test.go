package pool

import (
	"context"
	"sort"
	"sync"
	"time"
)

// fakeStore is an in-memory Store used by unit tests, mirroring the
// serialisability contract claim_one_hibernated requires.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*Record)}
}

func (s *fakeStore) ListByState(ctx context.Context, poolName string, state State) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Record
	for _, rec := range s.records {
		if rec.PoolName == poolName && rec.State == state {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeploymentID < out[j].DeploymentID })
	return out, nil
}

func (s *fakeStore) ClaimOneHibernated(ctx context.Context, poolName, allocatorToken string, deadline time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Record
	for _, rec := range s.records {
		if rec.PoolName != poolName || rec.State != StateHibernated {
			continue
		}
		if best == nil || rec.LastUsedAt.Before(best.LastUsedAt) {
			best = rec
		}
	}
	if best == nil {
		return nil, nil
	}

	best.State = StateAllocated
	best.AllocatedTo = allocatorToken
	d := deadline
	best.AllocationDeadline = &d
	best.LastUsedAt = time.Now()
	best.FailureCount = 0

	cp := *best
	return &cp, nil
}

func (s *fakeStore) Release(ctx context.Context, deploymentID, allocatorToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[deploymentID]
	if !ok || rec.State != StateAllocated || rec.AllocatedTo != allocatorToken {
		return false, nil
	}
	rec.State = StateHibernated
	rec.AllocatedTo = ""
	rec.AllocationDeadline = nil
	rec.LastUsedAt = time.Now()
	rec.FailureCount = 0
	return true, nil
}

func (s *fakeStore) Upsert(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.DeploymentID] = &cp
	return nil
}

func (s *fakeStore) SetState(ctx context.Context, deploymentID string, state State, incrementFailureCount bool) (int, error) {
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

func (s *fakeStore) Retire(ctx context.Context, deploymentID string) error {
	_, err := s.SetState(ctx, deploymentID, StateRetired, false)
	return err
}

func (s *fakeStore) ReclaimOverdue(ctx context.Context, poolName string, now time.Time) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Record
	for _, rec := range s.records {
		if rec.PoolName != poolName || rec.State != StateAllocated {
			continue
		}
		if rec.AllocationDeadline != nil && !rec.AllocationDeadline.After(now) {
			rec.State = StateHibernated
			rec.AllocatedTo = ""
			rec.AllocationDeadline = nil
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) get(deploymentID string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[deploymentID]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}
