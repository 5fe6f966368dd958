// Hand-written counterpart of wire.go's injector (see initializeApplication).

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/Wei-Shaw/evaldepot/internal/config"
	"github.com/Wei-Shaw/evaldepot/internal/eval"
	"github.com/Wei-Shaw/evaldepot/internal/lock"
	"github.com/Wei-Shaw/evaldepot/internal/orchestrator"
	"github.com/Wei-Shaw/evaldepot/internal/pool"
	"github.com/Wei-Shaw/evaldepot/internal/server"
)

// initializeApplication mirrors what wire.go's wire.Build call would
// generate: it is hand-written here in lieu of running the wire binary,
// but follows the exact same provider graph, constructed in dependency
// order.
func initializeApplication(cfg *config.Config) (*Application, error) {
	db, err := provideDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	rdb := provideRedis(cfg.Redis)

	lockStore := lock.NewPostgresStore(db)
	distLock := lock.New(lockStore, lock.ProvideConfig(cfg.Lock))
	distLock.SetPeekCache(lock.NewPeekCache(rdb, lock.ProvidePeekCacheTTL(cfg.Redis)))

	poolStore := pool.NewPostgresStore(db)
	orchestratorClient := orchestrator.ProvideHTTPClient(cfg.Orchestrator)
	deploymentPool := pool.New(poolStore, orchestratorClient, distLock, pool.ProvideConfig(cfg.Pool, cfg.Orchestrator))

	evalDriver := eval.New(deploymentPool, eval.ProvideConfig(cfg.Eval))

	engine := server.ProvideEngine(cfg.Server)
	handlers := server.NewHandlers(distLock, poolStore, server.ProvidePoolName(cfg.Pool))
	routedEngine := server.SetupRouter(engine, handlers)
	httpServer := provideHTTPServer(cfg.Server, routedEngine)

	scheduler, err := provideCronScheduler(lockStore, poolStore, cfg.Lock, cfg.Pool)
	if err != nil {
		_ = db.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("start cron scheduler: %w", err)
	}

	cleanup := provideCleanup(db, rdb, scheduler)

	return &Application{
		Server:     httpServer,
		EvalDriver: evalDriver,
		Cron:       scheduler,
		Cleanup:    cleanup,
	}, nil
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
	if err := db.Ping(); err != nil {
		return nil, err
	}
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
		if n, err := lockStore.SweepExpired(context.Background(), time.Now()); err != nil {
			log.Printf("[sweep_expired] failed: %v", err)
		} else if n > 0 {
			log.Printf("[sweep_expired] removed %d expired lock record(s)", n)
		}
	}); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", poolCfg.ReclaimInterval()), func() {
		reclaimed, err := poolStore.ReclaimOverdue(context.Background(), poolCfg.Name, time.Now())
		if err != nil {
			log.Printf("[reclaim_overdue] pool=%s failed: %v", poolCfg.Name, err)
			return
		}
		if len(reclaimed) > 0 {
			log.Printf("[reclaim_overdue] pool=%s reclaimed %d overdue allocation(s)", poolCfg.Name, len(reclaimed))
		}
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
