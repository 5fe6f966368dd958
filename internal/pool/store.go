package pool

import (
	"context"
	"time"
)

// Store is the persistence contract for DeploymentRecords, spec'd against
// any backing store offering a serialisable conditional claim over a given
// pool_name. The reference implementation (Postgres) is in
// postgres_store.go.
type Store interface {
	// ListByState returns every record in poolName with the given state.
	ListByState(ctx context.Context, poolName string, state State) ([]*Record, error)

	// ClaimOneHibernated atomically selects one HIBERNATED record in
	// poolName (least-recently-used first), transitions it to ALLOCATED
	// with allocated_to = allocatorToken and allocation_deadline =
	// deadline, and returns it. Returns nil (no error) if none available.
	// Must be serialisable with respect to concurrent callers on the same
	// pool_name.
	ClaimOneHibernated(ctx context.Context, poolName, allocatorToken string, deadline time.Time) (*Record, error)

	// Release transitions ALLOCATED -> HIBERNATED only when allocatorToken
	// matches the stored allocated_to.
	Release(ctx context.Context, deploymentID, allocatorToken string) (bool, error)

	// Upsert inserts or fully replaces a record by deployment_id.
	Upsert(ctx context.Context, rec *Record) error

	// SetState updates a record's state (and, for FAILED, increments
	// failure_count) without touching allocation fields. Returns the
	// record's failure_count after the update.
	SetState(ctx context.Context, deploymentID string, state State, incrementFailureCount bool) (failureCount int, err error)

	// Retire transitions a record to RETIRED unconditionally.
	Retire(ctx context.Context, deploymentID string) error

	// ReclaimOverdue transitions every ALLOCATED record in poolName whose
	// allocation_deadline <= now back to HIBERNATED (allocated_to = null)
	// and returns the reclaimed records for logging.
	ReclaimOverdue(ctx context.Context, poolName string, now time.Time) ([]*Record, error)
}
