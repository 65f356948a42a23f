package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pollyhq/ratekeeper/internal/domain/service"
	"github.com/pollyhq/ratekeeper/pkg/logger"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	store service.CounterStore
	log   logger.Logger
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(store service.CounterStore, log logger.Logger) *HealthHandler {
	return &HealthHandler{store: store, log: log.WithComponent("health_handler")}
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// Ready handles GET /health/ready. Readiness requires the counter store;
// fail-open keeps serving traffic through a store outage, but a pod that
// cannot reach the store should not receive new traffic.
func (h *HealthHandler) Ready(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.log.Warn(c.Request.Context(), "readiness check failed",
			logger.String("error", err.Error()),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  "counter store unreachable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
