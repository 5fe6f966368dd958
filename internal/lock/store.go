package lock

import (
	"context"
	"time"
)

// Store is the persistence contract spec'd for named locks: any backing
// store providing conditional insert and conditional delete on a primary
// key suffices. The reference implementation (Postgres) is in
// postgres_store.go.
type Store interface {
	// TryInsert attempts to create a Record for resourceID owned by
	// ownerToken with the given lease. On a uniqueness conflict it reads
	// and returns the existing record without modifying it; inserted is
	// false in that case. It never returns an error for the conflict
	// itself; that is the normal "already held" path.
	TryInsert(ctx context.Context, resourceID, ownerToken string, leaseTTL time.Duration) (inserted bool, existing *Record, err error)

	// DeleteIfOwner deletes the record for resourceID only if its stored
	// owner_token equals ownerToken. Returns false (no error) when no
	// record exists or the tokens differ.
	DeleteIfOwner(ctx context.Context, resourceID, ownerToken string) (deleted bool, err error)

	// Read is a non-locking read used by peek.
	Read(ctx context.Context, resourceID string) (*Record, error)

	// SweepExpired deletes every record with expires_at <= now and
	// returns the count removed. Idempotent; safe to call from any
	// process at any time.
	SweepExpired(ctx context.Context, now time.Time) (count int, err error)
}
