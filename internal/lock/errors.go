package lock

import infraerrors "github.com/Wei-Shaw/evaldepot/internal/pkg/errors"

var (
	// ErrTransientStore marks a store failure the caller may retry
	// (network blip, timeout, deadlock abort).
	ErrTransientStore = infraerrors.ServiceUnavailable("LOCK_TRANSIENT_STORE", "lock store returned a retryable failure")

	// ErrPermanentStore marks a store failure that will not resolve on
	// retry (schema mismatch, constraint violation other than the
	// expected uniqueness conflict).
	ErrPermanentStore = infraerrors.InternalServer("LOCK_PERMANENT_STORE", "lock store rejected the operation")

	// ErrCancelled marks a deadline elapsing or an external cancellation
	// being observed mid-operation.
	ErrCancelled = infraerrors.ServiceUnavailable("LOCK_CANCELLED", "lock operation was cancelled")

	// ErrInvariant marks a detected invariant violation. It is a
	// programmer error and is surfaced, never recovered from.
	ErrInvariant = infraerrors.InternalServer("LOCK_INVARIANT_VIOLATION", "distributed lock invariant violated")

	// ErrResourceIDRequired guards against an empty resource_id, which
	// would otherwise collide across unrelated callers.
	ErrResourceIDRequired = infraerrors.BadRequest("LOCK_RESOURCE_ID_REQUIRED", "resource id is required")

	// ErrNotAcquired marks a ScopedLock.Do call whose wait budget elapsed
	// before the resource became available. Not an invariant violation,
	// just an expected, retryable outcome of contention.
	ErrNotAcquired = infraerrors.Conflict("LOCK_NOT_ACQUIRED", "resource could not be acquired within the wait budget")
)
