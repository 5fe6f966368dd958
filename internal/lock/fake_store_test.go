package lock

import (
	"context"
	"sync"
	"time"
)

// fakeStore is an in-memory Store used by unit tests. It mirrors the
// conditional-insert/conditional-delete contract exactly, including the
// expired-record-visible-until-swept behaviour PostgresStore exhibits.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*Record

	failNextN int // when > 0, the next N operations return ErrTransientStore
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*Record)}
}

func (s *fakeStore) failNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextN = n
}

func (s *fakeStore) maybeFail() error {
	if s.failNextN > 0 {
		s.failNextN--
		return ErrTransientStore
	}
	return nil
}

func (s *fakeStore) TryInsert(ctx context.Context, resourceID, ownerToken string, leaseTTL time.Duration) (bool, *Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail(); err != nil {
		return false, nil, err
	}

	if existing, ok := s.records[resourceID]; ok {
		cp := *existing
		return false, &cp, nil
	}

	now := time.Now()
	rec := &Record{
		ResourceID: resourceID,
		OwnerToken: ownerToken,
		AcquiredAt: now,
		ExpiresAt:  now.Add(leaseTTL),
	}
	s.records[resourceID] = rec
	cp := *rec
	return true, &cp, nil
}

func (s *fakeStore) DeleteIfOwner(ctx context.Context, resourceID, ownerToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail(); err != nil {
		return false, err
	}

	existing, ok := s.records[resourceID]
	if !ok || existing.OwnerToken != ownerToken {
		return false, nil
	}
	delete(s.records, resourceID)
	return true, nil
}

func (s *fakeStore) Read(ctx context.Context, resourceID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail(); err != nil {
		return nil, err
	}

	existing, ok := s.records[resourceID]
	if !ok {
		return nil, nil
	}
	cp := *existing
	return &cp, nil
}

func (s *fakeStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail(); err != nil {
		return 0, err
	}

	n := 0
	for id, rec := range s.records {
		if !rec.ExpiresAt.After(now) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}
