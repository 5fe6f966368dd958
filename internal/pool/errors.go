package pool

import infraerrors "github.com/Wei-Shaw/evaldepot/internal/pkg/errors"

var (
	// ErrTransientStore marks a retryable pool-store failure.
	ErrTransientStore = infraerrors.ServiceUnavailable("POOL_TRANSIENT_STORE", "pool store returned a retryable failure")

	// ErrPoolBusy marks allocate failing to obtain a deployment within its
	// wait budget. A normal outcome, not an exception.
	ErrPoolBusy = infraerrors.Conflict("POOL_BUSY", "no deployment became available within the wait budget")

	// ErrOrchestratorTransient marks a retryable orchestrator call failure.
	ErrOrchestratorTransient = infraerrors.ServiceUnavailable("POOL_ORCHESTRATOR_TRANSIENT", "orchestrator call failed transiently")

	// ErrOrchestratorPermanent marks a non-retryable orchestrator call
	// failure.
	ErrOrchestratorPermanent = infraerrors.InternalServer("POOL_ORCHESTRATOR_PERMANENT", "orchestrator call failed permanently")

	// ErrCancelled marks a deadline elapsing or cancellation observed
	// mid-operation.
	ErrCancelled = infraerrors.ServiceUnavailable("POOL_CANCELLED", "pool operation was cancelled")

	// ErrInvariant marks a detected invariant violation.
	ErrInvariant = infraerrors.InternalServer("POOL_INVARIANT_VIOLATION", "deployment pool invariant violated")

	// ErrPoolNameRequired guards against an empty pool_name.
	ErrPoolNameRequired = infraerrors.BadRequest("POOL_NAME_REQUIRED", "pool name is required")
)
