package pool

import (
	"github.com/google/wire"

	"github.com/Wei-Shaw/evaldepot/internal/config"
)

// ProvideConfig adapts the generic pool and orchestrator config blocks into
// the Config shape DeploymentPool actually consumes.
func ProvideConfig(poolCfg config.PoolConfig, orchCfg config.OrchestratorConfig) Config {
	return Config{
		PoolName:          poolCfg.Name,
		TargetSize:        poolCfg.TargetSize,
		HardCap:           poolCfg.HardCap,
		AllocationTTL:     poolCfg.AllocationTTL(),
		PoolLockTTL:       poolCfg.PoolLockTTL(),
		OrchestratorRetry: orchCfg.Retry,
		IdleKeepalive:     poolCfg.IdleKeepalive(),
		WakeRetryAttempts: poolCfg.MaxWakeRetries,
	}
}

// ProviderSet is the Wire provider set for the deployment pool: a
// Postgres-backed Store bound to the Store interface, and the
// DeploymentPool built over it, the orchestrator client and the shared
// DistributedLock.
var ProviderSet = wire.NewSet(
	NewPostgresStore,
	wire.Bind(new(Store), new(*PostgresStore)),
	ProvideConfig,
	New,
)
