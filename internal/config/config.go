// Package config provides configuration loading, defaults, and validation
// for the lock/pool coordination core.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Lock         LockConfig         `mapstructure:"lock"`
	Pool         PoolConfig         `mapstructure:"pool"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Eval         EvalConfig         `mapstructure:"eval"`
}

type ServerConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	Mode              string `mapstructure:"mode"` // debug/release
	ReadHeaderTimeout int    `mapstructure:"read_header_timeout"`
	IdleTimeout       int    `mapstructure:"idle_timeout"`
}

type LogConfig struct {
	Level           string            `mapstructure:"level"`
	Format          string            `mapstructure:"format"`
	ServiceName     string            `mapstructure:"service_name"`
	Environment     string            `mapstructure:"env"`
	Caller          bool              `mapstructure:"caller"`
	StacktraceLevel string            `mapstructure:"stacktrace_level"`
	Output          LogOutputConfig   `mapstructure:"output"`
	Rotation        LogRotationConfig `mapstructure:"rotation"`
	Sampling        LogSamplingConfig `mapstructure:"sampling"`
}

type LogOutputConfig struct {
	ToStdout bool   `mapstructure:"to_stdout"`
	ToFile   bool   `mapstructure:"to_file"`
	FilePath string `mapstructure:"file_path"`
}

type LogRotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
	LocalTime  bool `mapstructure:"local_time"`
}

type LogSamplingConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Initial    int  `mapstructure:"initial"`
	Thereafter int  `mapstructure:"thereafter"`
}

// DatabaseConfig configures the Postgres-backed LockStore/PoolStore.
type DatabaseConfig struct {
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	User                   string `mapstructure:"user"`
	Password               string `mapstructure:"password"`
	DBName                 string `mapstructure:"dbname"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
	ConnMaxIdleTimeMinutes int    `mapstructure:"conn_max_idle_time_minutes"`
}

func (d *DatabaseConfig) DSN() string {
	if d.Password == "" {
		return fmt.Sprintf(
			"host=%s port=%d user=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.DBName, d.SSLMode,
		)
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

func (d *DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(d.ConnMaxLifetimeMinutes) * time.Minute
}

func (d *DatabaseConfig) ConnMaxIdleTime() time.Duration {
	return time.Duration(d.ConnMaxIdleTimeMinutes) * time.Minute
}

// RedisConfig backs the optional lock-peek cache; it is never the store of
// record.
type RedisConfig struct {
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	Password            string `mapstructure:"password"`
	DB                  int    `mapstructure:"db"`
	DialTimeoutSeconds  int    `mapstructure:"dial_timeout_seconds"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	PoolSize            int    `mapstructure:"pool_size"`
	MinIdleConns        int    `mapstructure:"min_idle_conns"`
	// PeekCacheTTLMillis sizes the optional fast path in front of
	// DistributedLock.Peek; zero falls back to PeekCache's own default.
	PeekCacheTTLMillis int `mapstructure:"peek_cache_ttl_millis"`
}

func (r *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LockConfig tunes DistributedLock's retry, backoff and maintenance
// cadence.
type LockConfig struct {
	LeaseTTLDefaultSeconds int `mapstructure:"lease_ttl_default_seconds"`
	PollBaseMillis         int `mapstructure:"poll_base_millis"`
	PollCapMillis          int `mapstructure:"poll_cap_millis"`
	AcquireStoreRetry      int `mapstructure:"acquire_store_retry"`
	// SweepIntervalSeconds is the cadence of the standalone sweep_expired
	// cron job, an operator knob with no single correct default.
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
}

func (l LockConfig) LeaseTTLDefault() time.Duration {
	return time.Duration(l.LeaseTTLDefaultSeconds) * time.Second
}

func (l LockConfig) PollBase() time.Duration {
	return time.Duration(l.PollBaseMillis) * time.Millisecond
}

func (l LockConfig) PollCap() time.Duration {
	return time.Duration(l.PollCapMillis) * time.Millisecond
}

func (l LockConfig) SweepInterval() time.Duration {
	return time.Duration(l.SweepIntervalSeconds) * time.Second
}

// PoolConfig tunes DeploymentPool's provisioning, allocation and
// maintenance cadence.
type PoolConfig struct {
	Name                   string `mapstructure:"name"`
	TargetSize             int    `mapstructure:"target_size"`
	HardCap                int    `mapstructure:"hard_cap"`
	AllocationTTLSeconds   int    `mapstructure:"allocation_ttl_seconds"`
	PoolLockTTLSeconds     int    `mapstructure:"pool_lock_ttl_seconds"`
	IdleKeepaliveSeconds   int    `mapstructure:"idle_keepalive_seconds"`
	ReclaimIntervalSeconds int    `mapstructure:"reclaim_interval_seconds"`
	MaxWakeRetries         int    `mapstructure:"max_wake_retries"`
}

func (p PoolConfig) AllocationTTL() time.Duration {
	return time.Duration(p.AllocationTTLSeconds) * time.Second
}

func (p PoolConfig) PoolLockTTL() time.Duration {
	return time.Duration(p.PoolLockTTLSeconds) * time.Second
}

func (p PoolConfig) IdleKeepalive() time.Duration {
	return time.Duration(p.IdleKeepaliveSeconds) * time.Second
}

func (p PoolConfig) ReclaimInterval() time.Duration {
	return time.Duration(p.ReclaimIntervalSeconds) * time.Second
}

// OrchestratorConfig points at the remote deployment control plane.
type OrchestratorConfig struct {
	BaseURL               string `mapstructure:"base_url"`
	Token                 string `mapstructure:"token"`
	Retry                 int    `mapstructure:"retry"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

func (o OrchestratorConfig) RequestTimeout() time.Duration {
	return time.Duration(o.RequestTimeoutSeconds) * time.Second
}

// EvalConfig tunes the evaluation driver's fan-out.
type EvalConfig struct {
	SessionName         string `mapstructure:"session_name"`
	MaxConcurrentTasks  int    `mapstructure:"max_concurrent_tasks"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		viper.AddConfigPath(dataDir)
	}
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/evaldepot")

	viper.SetEnvPrefix("EVALDEPOT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config error: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config error: %w", err)
	}

	cfg.Server.Mode = strings.ToLower(strings.TrimSpace(cfg.Server.Mode))
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	cfg.Pool.Name = strings.TrimSpace(cfg.Pool.Name)
	cfg.Orchestrator.BaseURL = strings.TrimSpace(cfg.Orchestrator.BaseURL)
	cfg.Orchestrator.Token = strings.TrimSpace(cfg.Orchestrator.Token)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config error: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Pool.Name == "" {
		return fmt.Errorf("pool.name is required")
	}
	if c.Pool.HardCap < c.Pool.TargetSize {
		return fmt.Errorf("pool.hard_cap (%d) must be >= pool.target_size (%d)", c.Pool.HardCap, c.Pool.TargetSize)
	}
	if c.Lock.PollCapMillis < c.Lock.PollBaseMillis {
		return fmt.Errorf("lock.poll_cap_millis (%d) must be >= lock.poll_base_millis (%d)", c.Lock.PollCapMillis, c.Lock.PollBaseMillis)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_header_timeout", 10)
	viper.SetDefault("server.idle_timeout", 60)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.service_name", "evaldepot")
	viper.SetDefault("log.env", "production")
	viper.SetDefault("log.caller", true)
	viper.SetDefault("log.stacktrace_level", "error")
	viper.SetDefault("log.output.to_stdout", true)
	viper.SetDefault("log.output.to_file", false)
	viper.SetDefault("log.rotation.max_size_mb", 100)
	viper.SetDefault("log.rotation.max_backups", 10)
	viper.SetDefault("log.rotation.max_age_days", 7)
	viper.SetDefault("log.rotation.compress", true)
	viper.SetDefault("log.rotation.local_time", true)
	viper.SetDefault("log.sampling.enabled", false)
	viper.SetDefault("log.sampling.initial", 100)
	viper.SetDefault("log.sampling.thereafter", 100)

	viper.SetDefault("database.host", "127.0.0.1")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "evaldepot")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "evaldepot")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 20)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime_minutes", 30)
	viper.SetDefault("database.conn_max_idle_time_minutes", 5)

	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.dial_timeout_seconds", 2)
	viper.SetDefault("redis.read_timeout_seconds", 1)
	viper.SetDefault("redis.write_timeout_seconds", 1)
	viper.SetDefault("redis.pool_size", 20)
	viper.SetDefault("redis.min_idle_conns", 2)
	viper.SetDefault("redis.peek_cache_ttl_millis", 300)

	viper.SetDefault("lock.lease_ttl_default_seconds", 30)
	viper.SetDefault("lock.poll_base_millis", 500)
	viper.SetDefault("lock.poll_cap_millis", 2000)
	viper.SetDefault("lock.acquire_store_retry", 3)
	viper.SetDefault("lock.sweep_interval_seconds", 30)

	viper.SetDefault("pool.name", "default")
	viper.SetDefault("pool.target_size", 2)
	viper.SetDefault("pool.hard_cap", 4)
	viper.SetDefault("pool.allocation_ttl_seconds", 900)
	viper.SetDefault("pool.pool_lock_ttl_seconds", 30)
	viper.SetDefault("pool.idle_keepalive_seconds", 3600)
	viper.SetDefault("pool.reclaim_interval_seconds", 20)
	viper.SetDefault("pool.max_wake_retries", 2)

	viper.SetDefault("orchestrator.base_url", "")
	viper.SetDefault("orchestrator.token", "")
	viper.SetDefault("orchestrator.retry", 3)
	viper.SetDefault("orchestrator.request_timeout_seconds", 30)

	viper.SetDefault("eval.session_name", "default")
	viper.SetDefault("eval.max_concurrent_tasks", 4)
}
