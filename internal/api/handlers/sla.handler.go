// internal/api/handlers/sla.handler.go
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/sentinel-gate/internal/models"
	"github.com/platformbuilds/sentinel-gate/internal/sla"
	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

// SLAHandler exposes contract management and compliance reporting.
type SLAHandler struct {
	engine *sla.Engine
	logger logger.Logger
}

func NewSLAHandler(engine *sla.Engine, log logger.Logger) *SLAHandler {
	return &SLAHandler{engine: engine, logger: log}
}

// CreateSLA registers a tenant contract.
// POST /api/v1/sla
func (h *SLAHandler) CreateSLA(c *gin.Context) {
	var req models.ServiceLevelAgreement
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "invalid SLA payload",
			"detail": err.Error(),
		})
		return
	}

	if err := h.engine.CreateSLA(c.Request.Context(), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"data":   req,
	})
}

// GetSLA returns a tenant's active contract and live compliance snapshot.
// GET /api/v1/sla/:tenant
func (h *SLAHandler) GetSLA(c *gin.Context) {
	tenantID := c.Param("tenant")

	agreement, ok := h.engine.GetSLA(c.Request.Context(), tenantID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"status": "error",
			"error":  "no SLA found for tenant",
		})
		return
	}

	body := gin.H{
		"sla":             agreement,
		"open_violations": h.engine.OpenViolations(tenantID),
	}
	if snapshot, ok := h.engine.Snapshot(tenantID); ok {
		body["snapshot"] = snapshot
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   body,
	})
}

// GetReport aggregates a tenant's violations over a date range.
// GET /api/v1/sla/:tenant/report?from=2025-06-01&to=2025-06-30
func (h *SLAHandler) GetReport(c *gin.Context) {
	tenantID := c.Param("tenant")

	from, to, err := parseReportRange(c.Query("from"), c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}

	report, err := h.engine.Report(c.Request.Context(), tenantID, from, to)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   report,
	})
}

// RecordDowntime registers an outage interval for uptime accounting.
// POST /api/v1/sla/:tenant/downtime
func (h *SLAHandler) RecordDowntime(c *gin.Context) {
	tenantID := c.Param("tenant")

	var req struct {
		StartedAt time.Time `json:"started_at" binding:"required"`
		EndedAt   time.Time `json:"ended_at" binding:"required"`
		Reason    string    `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "invalid downtime payload",
			"detail": err.Error(),
		})
		return
	}
	if !req.EndedAt.After(req.StartedAt) {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "ended_at must be after started_at",
		})
		return
	}

	h.engine.RecordDowntime(tenantID, req.StartedAt, req.EndedAt, req.Reason)
	c.JSON(http.StatusAccepted, gin.H{"status": "success"})
}

func parseReportRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, -1, 0)
	to := now

	var err error
	if fromRaw != "" {
		if from, err = parseDate(fromRaw); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if toRaw != "" {
		if to, err = parseDate(toRaw); err != nil {
			return time.Time{}, time.Time{}, err
		}
		// Inclusive date ranges: "to=2025-06-30" covers that whole day.
		if len(toRaw) == 10 {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid range: to must not precede from")
	}
	return from, to, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
