// internal/api/handlers/health.handler.go
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/sentinel-gate/internal/health"
	"github.com/platformbuilds/sentinel-gate/internal/models"
	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

// HealthHandler exposes system health and endpoint statistics.
type HealthHandler struct {
	monitor *health.Monitor
	logger  logger.Logger
}

func NewHealthHandler(monitor *health.Monitor, log logger.Logger) *HealthHandler {
	return &HealthHandler{monitor: monitor, logger: log}
}

// GetHealth is the liveness probe.
// GET /health
func (h *HealthHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetReady reports readiness: a system in critical health is shedding load
// and must drop out of the load balancer rotation.
// GET /ready
func (h *HealthHandler) GetReady(c *gin.Context) {
	snapshot := h.monitor.Snapshot()
	if snapshot.Status == models.HealthCritical {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"health": snapshot,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"health": snapshot,
	})
}

// GetSystemHealth returns the full health snapshot.
// GET /api/v1/gateway/health
func (h *HealthHandler) GetSystemHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   h.monitor.Snapshot(),
	})
}

// GetEndpoints returns the rolling per-endpoint statistics.
// GET /api/v1/gateway/endpoints
func (h *HealthHandler) GetEndpoints(c *gin.Context) {
	endpoints := h.monitor.EndpointMetrics()
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"endpoints": endpoints,
			"count":     len(endpoints),
		},
	})
}
