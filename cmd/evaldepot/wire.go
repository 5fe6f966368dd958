//go:build wireinject
// +build wireinject

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/Wei-Shaw/evaldepot/internal/config"
	"github.com/Wei-Shaw/evaldepot/internal/eval"
	"github.com/Wei-Shaw/evaldepot/internal/lock"
	"github.com/Wei-Shaw/evaldepot/internal/orchestrator"
	"github.com/Wei-Shaw/evaldepot/internal/pool"
	"github.com/Wei-Shaw/evaldepot/internal/server"
)

// Application bundles everything main needs to run and shut down the
// process: the status API server, the evaluation driver, the cron
// scheduler running the sweep/reclaim jobs, and
// a single Cleanup closing every resource in reverse dependency order.
type Application struct {
	Server     *http.Server
	EvalDriver *eval.Driver
	Cron       *cron.Cron
	Cleanup    func()
}

func initializeApplication(cfg *config.Config) (*Application, error) {
	wire.Build(
		// Per-concern config extractors (cfg itself is the injector argument)
		config.ProvideServerConfig,
		config.ProvideDatabaseConfig,
		config.ProvideRedisConfig,
		config.ProvideLockConfig,
		config.ProvidePoolConfig,
		config.ProvideOrchestratorConfig,
		config.ProvideEvalConfig,

		// Infrastructure providers
		provideDB,
		provideRedis,

		// Business layer ProviderSets
		lock.ProviderSet,
		pool.ProviderSet,
		orchestrator.ProviderSet,
		eval.ProviderSet,

		// Server layer ProviderSet
		server.ProviderSet,

		// Scheduler and HTTP server providers
		provideCronScheduler,
		provideHTTPServer,

		// Cleanup function provider
		provideCleanup,

		// Application struct
		wire.Struct(new(Application), "Server", "EvalDriver", "Cron", "Cleanup"),
	)
	return nil, nil
}

func provideDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime())
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime())
	return db, nil
}

func provideRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})
}

func provideHTTPServer(cfg config.ServerConfig, engine *gin.Engine) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeout) * time.Second,
		IdleTimeout:       time.Duration(cfg.IdleTimeout) * time.Second,
	}
}

// provideCronScheduler registers the standalone sweep_expired and
// reclaim_overdue maintenance jobs, at the cadence each package's own
// config block carries.
func provideCronScheduler(
	lockStore lock.Store,
	poolStore pool.Store,
	lockCfg config.LockConfig,
	poolCfg config.PoolConfig,
) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", lockCfg.SweepInterval()), func() {
		_, _ = lockStore.SweepExpired(context.Background(), time.Now())
	}); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", poolCfg.ReclaimInterval()), func() {
		_, _ = poolStore.ReclaimOverdue(context.Background(), poolCfg.Name, time.Now())
	}); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

func provideCleanup(db *sql.DB, rdb *redis.Client, scheduler *cron.Cron) func() {
	return func() {
		cleanupSteps := []struct {
			name string
			fn   func() error
		}{
			{"Cron", func() error { <-scheduler.Stop().Done(); return nil }},
			{"Redis", rdb.Close},
			{"Database", db.Close},
		}
		for _, step := range cleanupSteps {
			if err := step.fn(); err != nil {
				log.Printf("[Cleanup] %s failed: %v", step.name, err)
			} else {
				log.Printf("[Cleanup] %s succeeded", step.name)
			}
		}
	}
}
