package orchestrator

import infraerrors "github.com/Wei-Shaw/evaldepot/internal/pkg/errors"

var (
	// ErrTransient marks a control-plane call the caller should retry
	// (timeout, 5xx, connection reset).
	ErrTransient = infraerrors.ServiceUnavailable("ORCHESTRATOR_TRANSIENT", "orchestrator call failed transiently")

	// ErrPermanent marks a control-plane call that will not succeed on
	// retry (4xx other than 429, malformed response, unknown deployment).
	ErrPermanent = infraerrors.InternalServer("ORCHESTRATOR_PERMANENT", "orchestrator call failed permanently")
)
