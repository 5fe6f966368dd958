package pool

import (
	"context"
	"sync"
	"time"

	"github.com/Wei-Shaw/evaldepot/internal/lock"
)

// fakeLockStore is a minimal in-memory lock.Store, letting pool tests build
// a real lock.DistributedLock without a live Postgres connection.
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

func testLock() *lock.DistributedLock {
	return lock.New(newFakeLockStore(), lock.Config{
		AcquireStoreRetry: 2,
		PollBase:          5 * time.Millisecond,
		PollCap:           20 * time.Millisecond,
	})
}
