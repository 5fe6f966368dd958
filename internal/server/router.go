package server

import (
	"github.com/gin-gonic/gin"

	"github.com/Wei-Shaw/evaldepot/internal/server/middleware"
)

// SetupRouter wires the status API's middleware and routes.
func SetupRouter(r *gin.Engine, h *Handlers) *gin.Engine {
	r.Use(middleware.RequestLogger())
	r.Use(middleware.Logger())

	registerRoutes(r, h)

	return r
}

func registerRoutes(r *gin.Engine, h *Handlers) {
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	v1.GET("/locks/:resource_id", h.PeekLock)
	v1.GET("/pools/:pool_name", h.PoolStatus)
}
