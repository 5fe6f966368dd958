package lock

import (
	"time"

	"github.com/google/wire"

	"github.com/Wei-Shaw/evaldepot/internal/config"
)

// ProvideConfig adapts the generic lock config block into the Config shape
// DistributedLock actually consumes.
func ProvideConfig(cfg config.LockConfig) Config {
	return Config{
		AcquireStoreRetry: cfg.AcquireStoreRetry,
		PollBase:          cfg.PollBase(),
		PollCap:           cfg.PollCap(),
	}
}

// ProvidePeekCacheTTL reads the peek cache TTL from RedisConfig; zero lets
// NewPeekCache fall back to its own default.
func ProvidePeekCacheTTL(cfg config.RedisConfig) time.Duration {
	return time.Duration(cfg.PeekCacheTTLMillis) * time.Millisecond
}

// ProviderSet is the Wire provider set for the distributed lock: a
// Postgres-backed Store bound to the Store interface, the DistributedLock
// built over it, and the optional Redis peek cache.
var ProviderSet = wire.NewSet(
	NewPostgresStore,
	wire.Bind(new(Store), new(*PostgresStore)),
	ProvideConfig,
	New,
	ProvidePeekCacheTTL,
	NewPeekCache,
)
