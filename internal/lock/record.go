// Package lock implements the distributed, database-backed named-lock
// service: LockStore persistence, DistributedLock acquisition semantics,
// and the ScopedLock guaranteed-release wrapper.
package lock

import "time"

// Record is one row of the distributed_locks table: a single named
// resource currently (or formerly) locked.
type Record struct {
	ResourceID string
	OwnerToken string
	AcquiredAt time.Time
	ExpiresAt  time.Time
	HolderHint string
}

// Expired reports whether the record is logically released as of now.
func (r *Record) Expired(now time.Time) bool {
	if r == nil {
		return true
	}
	return !r.ExpiresAt.After(now)
}
