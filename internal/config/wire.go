package config

import "github.com/google/wire"

// ProvideServerConfig extracts ServerConfig so it can be injected on its
// own rather than forcing every consumer to depend on the whole Config.
func ProvideServerConfig(cfg *Config) ServerConfig { return cfg.Server }

func ProvideLogConfig(cfg *Config) LogConfig { return cfg.Log }

func ProvideDatabaseConfig(cfg *Config) DatabaseConfig { return cfg.Database }

func ProvideRedisConfig(cfg *Config) RedisConfig { return cfg.Redis }

func ProvideLockConfig(cfg *Config) LockConfig { return cfg.Lock }

func ProvidePoolConfig(cfg *Config) PoolConfig { return cfg.Pool }

func ProvideOrchestratorConfig(cfg *Config) OrchestratorConfig { return cfg.Orchestrator }

func ProvideEvalConfig(cfg *Config) EvalConfig { return cfg.Eval }

// ProviderSet is the Wire provider set for configuration: one Load call
// feeding a set of narrow per-concern extractors.
var ProviderSet = wire.NewSet(
	Load,
	ProvideServerConfig,
	ProvideLogConfig,
	ProvideDatabaseConfig,
	ProvideRedisConfig,
	ProvideLockConfig,
	ProvidePoolConfig,
	ProvideOrchestratorConfig,
	ProvideEvalConfig,
)
