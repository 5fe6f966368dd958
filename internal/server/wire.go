package server

import (
	"github.com/gin-gonic/gin"
	"github.com/google/wire"

	"github.com/Wei-Shaw/evaldepot/internal/config"
)

// ProvidePoolName extracts the configured pool name stored on Handlers;
// PoolStatus reports on whichever pool_name the request path names.
func ProvidePoolName(cfg config.PoolConfig) string { return cfg.Name }

// ProvideEngine builds the gin.Engine in the mode ServerConfig asks for.
func ProvideEngine(cfg config.ServerConfig) *gin.Engine {
	gin.SetMode(cfg.Mode)
	return gin.New()
}

// ProviderSet is the Wire provider set for the status API: the gin engine,
// the Handlers and the routed Engine.
var ProviderSet = wire.NewSet(
	ProvideEngine,
	ProvidePoolName,
	NewHandlers,
	SetupRouter,
)
