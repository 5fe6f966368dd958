// Package orchestrator defines the OrchestratorClient contract
// DeploymentPool consumes, an HTTP implementation over the control plane,
// and a deterministic in-memory fake for tests.
package orchestrator

import "context"

// Status is a deployment's observed state per the remote control plane.
type Status string

const (
	StatusRunning    Status = "running"
	StatusHibernated Status = "hibernated"
	StatusUnknown    Status = "unknown"
	StatusError      Status = "error"
)

// CreateConfig parametrizes a new deployment. PoolName and
// DeploymentNamePrefix are used to name/tag the created resource;
// BuildFingerprint is opaque and passed through unchanged. Distinct
// fingerprints are partitioned by using distinct pool names upstream, not
// by this client.
type CreateConfig struct {
	PoolName             string
	DeploymentNamePrefix string
	BuildFingerprint     string
}

// Client is the control-plane contract DeploymentPool depends on. Wake,
// Hibernate, and Destroy must be idempotent: a retry or a call against an
// already-transitioned deployment is not an error.
type Client interface {
	Create(ctx context.Context, cfg CreateConfig) (deploymentID string, deploymentName string, err error)
	Wake(ctx context.Context, deploymentID string) error
	Hibernate(ctx context.Context, deploymentID string) error
	Destroy(ctx context.Context, deploymentID string) error
	Status(ctx context.Context, deploymentID string) (Status, error)
}
