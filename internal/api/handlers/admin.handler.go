// internal/api/handlers/admin.handler.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/sentinel-gate/internal/audit"
	"github.com/platformbuilds/sentinel-gate/internal/models"
	"github.com/platformbuilds/sentinel-gate/internal/quota"
	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

// AdminHandler exposes client quota administration: tier reassignment,
// quota reset, and usage inspection.
type AdminHandler struct {
	limiter *quota.Limiter
	audit   audit.Sink
	logger  logger.Logger
}

func NewAdminHandler(limiter *quota.Limiter, sink audit.Sink, log logger.Logger) *AdminHandler {
	return &AdminHandler{limiter: limiter, audit: sink, logger: log}
}

// GetClientUsage returns one client's live quota state.
// GET /api/v1/clients/:id
func (h *AdminHandler) GetClientUsage(c *gin.Context) {
	clientID := c.Param("id")

	usage, ok := h.limiter.ClientUsage(clientID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"status": "error",
			"error":  "client not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   usage,
	})
}

// SetClientTier reassigns a client's tier. The new limits apply from the
// next admission check.
// POST /api/v1/clients/:id/tier
func (h *AdminHandler) SetClientTier(c *gin.Context) {
	clientID := c.Param("id")

	var req struct {
		Tier string `json:"tier" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "invalid tier payload",
			"detail": err.Error(),
		})
		return
	}

	tier := models.Tier(req.Tier)
	if !tier.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "unknown tier",
			"tiers":  models.AllTiers,
		})
		return
	}

	if !h.limiter.SetTier(clientID, tier) {
		c.JSON(http.StatusNotFound, gin.H{
			"status": "error",
			"error":  "client not found",
		})
		return
	}

	h.audit.Record("client_tier_changed", "success", c.GetString("tenant_id"), clientID, map[string]interface{}{
		"tier":  req.Tier,
		"actor": c.GetString("client_id"),
	})
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// ResetClient clears a client's windows, counters, and burst tokens.
// POST /api/v1/clients/:id/reset
func (h *AdminHandler) ResetClient(c *gin.Context) {
	clientID := c.Param("id")

	if !h.limiter.ResetClient(clientID) {
		c.JSON(http.StatusNotFound, gin.H{
			"status": "error",
			"error":  "client not found",
		})
		return
	}

	h.audit.Record("client_quota_reset", "success", c.GetString("tenant_id"), clientID, map[string]interface{}{
		"actor": c.GetString("client_id"),
	})
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
