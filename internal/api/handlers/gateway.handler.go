// internal/api/handlers/gateway.handler.go
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/sentinel-gate/internal/api/middleware"
	"github.com/platformbuilds/sentinel-gate/internal/gateway"
	"github.com/platformbuilds/sentinel-gate/internal/models"
	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

// Upstream is the protected operation the gate forwards admitted requests
// to. Wire the real backend dispatch here; the default echoes the request
// so the pipeline is exercisable end to end.
type Upstream func(ctx context.Context, c *gin.Context) (*models.HandlerResponse, error)

// GatewayHandler fronts the admission pipeline over HTTP.
type GatewayHandler struct {
	orchestrator *gateway.Orchestrator
	upstream     Upstream
	logger       logger.Logger
}

func NewGatewayHandler(orch *gateway.Orchestrator, upstream Upstream, log logger.Logger) *GatewayHandler {
	if upstream == nil {
		upstream = echoUpstream
	}
	return &GatewayHandler{
		orchestrator: orch,
		upstream:     upstream,
		logger:       log,
	}
}

func echoUpstream(ctx context.Context, c *gin.Context) (*models.HandlerResponse, error) {
	return &models.HandlerResponse{
		StatusCode: http.StatusOK,
		Bytes:      c.Request.ContentLength,
	}, nil
}

// Gate runs one request through resolve, health gate, admission, dispatch
// and maps the tagged outcome onto HTTP semantics.
func (h *GatewayHandler) Gate(c *gin.Context) {
	bytes := c.Request.ContentLength
	if bytes < 0 {
		bytes = 0
	}

	req := models.InboundRequest{
		Method:        c.Request.Method,
		Path:          c.Param("path"),
		Bytes:         bytes,
		CorrelationID: middleware.CorrelationID(c),
		ReceivedAt:    time.Now(),
	}

	result := h.orchestrator.Handle(c.Request.Context(), req, middleware.Identity(c), func(ctx context.Context) (*models.HandlerResponse, error) {
		return h.upstream(ctx, c)
	})

	switch result.Status {
	case models.StatusAdmitted:
		c.JSON(result.Response.StatusCode, gin.H{
			"status":         "ok",
			"correlation_id": result.CorrelationID,
		})

	case models.StatusDenied:
		h.writeDenial(c, result.Denial)

	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":         "error",
			"error":          "internal_error",
			"correlation_id": result.CorrelationID,
		})
	}
}

// writeDenial maps a denial verdict onto the HTTP surface: quota denials
// are 429 with retry hints, health shedding is 503, resolution failures
// are 401.
func (h *GatewayHandler) writeDenial(c *gin.Context, denial *models.Denial) {
	body := gin.H{
		"status":         "denied",
		"reason":         denial.Reason,
		"correlation_id": denial.CorrelationID,
	}

	switch denial.Reason {
	case models.ReasonRateLimitExceeded:
		body["dimension"] = denial.Dimension
		body["limit"] = denial.Limit
		body["current"] = denial.Current
		if denial.RetryAfter > 0 {
			seconds := int(denial.RetryAfter.Seconds() + 0.999)
			c.Header("Retry-After", strconv.Itoa(seconds))
			body["retry_after_seconds"] = seconds
		}
		c.Header("X-Rate-Limit-Limit", strconv.FormatInt(denial.Limit, 10))
		c.JSON(http.StatusTooManyRequests, body)

	case models.ReasonHealthUnavailable:
		c.Header("Retry-After", "30")
		c.JSON(http.StatusServiceUnavailable, body)

	case models.ReasonHTTPError:
		c.JSON(http.StatusUnauthorized, body)

	default:
		c.JSON(http.StatusInternalServerError, body)
	}
}

// GetMetrics returns the global pipeline metrics snapshot.
// GET /api/v1/gateway/metrics
func (h *GatewayHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   h.orchestrator.MetricsSnapshot(),
	})
}

// GetTenantReport returns one tenant's combined usage and SLA standing.
// GET /api/v1/gateway/tenants/:id
func (h *GatewayHandler) GetTenantReport(c *gin.Context) {
	tenantID := c.Param("id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "tenant id is required",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   h.orchestrator.TenantReport(c.Request.Context(), tenantID),
	})
}
