// Command evaldepot runs the lock/pool coordination core: the read-only
// status API and the sweep_expired and reclaim_overdue maintenance jobs. It
// also constructs the evaluation driver (Application.EvalDriver) but does not
// call Driver.Run itself.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wei-Shaw/evaldepot/internal/config"
	"github.com/Wei-Shaw/evaldepot/internal/pkg/logger"
)

func main() {
	logger.InitBootstrap()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := logger.Init(logger.OptionsFromConfig(cfg.Log)); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	app, err := initializeApplication(cfg)
	if err != nil {
		logger.LegacyPrintf("main", "[main] failed to initialize application: %v", err)
		os.Exit(1)
	}
	defer app.Cleanup()

	go func() {
		logger.LegacyPrintf("main", "[main] status API listening addr=%s pool=%s", app.Server.Addr, cfg.Pool.Name)
		if err := app.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LegacyPrintf("main", "[main] status API stopped unexpectedly: %v", err)
		}
	}()

	waitForShutdownSignal()

	logger.LegacyPrintf("main", "[main] shutdown signal received, draining status API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		logger.LegacyPrintf("main", "[main] status API shutdown error: %v", err)
	}
}

func waitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
