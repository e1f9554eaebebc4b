// internal/api/handlers/alerts.handler.go
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/platformbuilds/sentinel-gate/internal/health"
	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

// AlertsHandler exposes active alerts, alert history, and the live stream.
type AlertsHandler struct {
	monitor  *health.Monitor
	logger   logger.Logger
	upgrader websocket.Upgrader
}

func NewAlertsHandler(monitor *health.Monitor, log logger.Logger) *AlertsHandler {
	return &AlertsHandler{
		monitor: monitor,
		logger:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin enforcement happens in the CORS middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// GetAlerts returns currently open alerts.
// GET /api/v1/alerts
func (h *AlertsHandler) GetAlerts(c *gin.Context) {
	alerts := h.monitor.ActiveAlerts()
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"alerts": alerts,
			"count":  len(alerts),
		},
	})
}

// GetAlertHistory returns resolved alerts, most recent last.
// GET /api/v1/alerts/history?limit=100
func (h *AlertsHandler) GetAlertHistory(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"status": "error",
				"error":  "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	history := h.monitor.AlertHistory(limit)
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"alerts": history,
			"count":  len(history),
		},
	})
}

// StreamAlerts upgrades to a WebSocket and pushes alert transitions as
// they happen. Slow consumers miss events rather than backing up the
// monitor.
// GET /api/v1/alerts/stream
func (h *AlertsHandler) StreamAlerts(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	feed, cancel := h.monitor.Subscribe()
	defer cancel()

	// Reader goroutine notices client disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case alert, ok := <-feed:
			if !ok {
				return
			}
			if err := conn.WriteJSON(alert); err != nil {
				h.logger.Warn("Alert stream write failed", "error", err)
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
