package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wei-Shaw/evaldepot/internal/lock"
	"github.com/Wei-Shaw/evaldepot/internal/pool"
)

// Handlers exposes narrow, read-only operational visibility over the
// lock/pool coordination core. It never mutates a lock or pool through
// HTTP and never returns an owner_token in a response body.
type Handlers struct {
	lock      *lock.DistributedLock
	poolStore pool.Store
	poolName  string
}

func NewHandlers(l *lock.DistributedLock, poolStore pool.Store, poolName string) *Handlers {
	return &Handlers{lock: l, poolStore: poolStore, poolName: poolName}
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// PeekLock reports whether resource_id is currently held, for debugging
// stuck evaluation runs. It deliberately omits owner_token.
func (h *Handlers) PeekLock(c *gin.Context) {
	resourceID := c.Param("resource_id")
	if resourceID == "" {
		h.errorResponse(c, http.StatusBadRequest, "invalid_request", "resource_id is required")
		return
	}

	held, err := h.lock.Peek(c.Request.Context(), resourceID)
	if err != nil {
		h.errorResponse(c, http.StatusInternalServerError, "lock_peek_failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"resource_id": resourceID,
		"held":        held,
	})
}

var allPoolStates = []pool.State{
	pool.StateHibernated,
	pool.StateAllocated,
	pool.StateWaking,
	pool.StateHibernating,
	pool.StateFailed,
	pool.StateRetired,
}

// PoolStatus reports per-state deployment counts for poolName, for
// operational visibility into a running pool.
func (h *Handlers) PoolStatus(c *gin.Context) {
	poolName := c.Param("pool_name")
	if poolName == "" {
		h.errorResponse(c, http.StatusBadRequest, "invalid_request", "pool_name is required")
		return
	}

	counts := make(gin.H, len(allPoolStates))
	total := 0
	for _, state := range allPoolStates {
		records, err := h.poolStore.ListByState(c.Request.Context(), poolName, state)
		if err != nil {
			h.errorResponse(c, http.StatusInternalServerError, "pool_status_failed", err.Error())
			return
		}
		counts[string(state)] = len(records)
		total += len(records)
	}

	c.JSON(http.StatusOK, gin.H{
		"pool_name": poolName,
		"counts":    counts,
		"total":     total,
	})
}

func (h *Handlers) errorResponse(c *gin.Context, status int, errType, message string) {
	c.JSON(status, gin.H{
		"type": "error",
		"error": gin.H{
			"type":    errType,
			"message": message,
		},
	})
}
