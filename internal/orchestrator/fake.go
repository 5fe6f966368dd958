package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Fake is a deterministic in-memory Client used by tests in place of a live
// control plane, the same way a fake collaborator stands in for the real
// transport in other unit tests here (e.g. sqlmock standing in for a live
// Postgres connection).
type Fake struct {
	mu       sync.Mutex
	statuses map[string]Status
	seq      int64

	// FailCreate/FailWake/FailHibernate/FailDestroy let tests force a
	// transient failure on the next N calls of the given kind.
	FailCreate    int32
	FailWake      int32
	FailHibernate int32
	FailDestroy   int32

	// FailWakePermanent, when true, makes every Wake call return
	// ErrPermanent instead of retrying transiently.
	FailWakePermanent bool
}

// NewFake builds an empty Fake.
func NewFake() *Fake {
	return &Fake{statuses: make(map[string]Status)}
}

func (f *Fake) Create(ctx context.Context, cfg CreateConfig) (string, string, error) {
	if decrementIfPositive(&f.FailCreate) {
		return "", "", ErrTransient
	}
	id := fmt.Sprintf("dep-%d", atomic.AddInt64(&f.seq, 1))
	name := cfg.DeploymentNamePrefix + "-" + id

	f.mu.Lock()
	f.statuses[id] = StatusHibernated
	f.mu.Unlock()

	return id, name, nil
}

func (f *Fake) Wake(ctx context.Context, deploymentID string) error {
	if f.FailWakePermanent {
		return ErrPermanent
	}
	if decrementIfPositive(&f.FailWake) {
		return ErrTransient
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[deploymentID] = StatusRunning
	return nil
}

func (f *Fake) Hibernate(ctx context.Context, deploymentID string) error {
	if decrementIfPositive(&f.FailHibernate) {
		return ErrTransient
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[deploymentID] = StatusHibernated
	return nil
}

func (f *Fake) Destroy(ctx context.Context, deploymentID string) error {
	if decrementIfPositive(&f.FailDestroy) {
		return ErrTransient
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.statuses, deploymentID)
	return nil
}

func (f *Fake) Status(ctx context.Context, deploymentID string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.statuses[deploymentID]
	if !ok {
		return StatusUnknown, nil
	}
	return s, nil
}

func decrementIfPositive(counter *int32) bool {
	for {
		cur := atomic.LoadInt32(counter)
		if cur <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(counter, cur, cur-1) {
			return true
		}
	}
}
