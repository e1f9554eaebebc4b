package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationMiddleware attaches a correlation ID to every request so the
// admission pipeline, the audit trail, and the response all carry the same
// identifier. An incoming X-Correlation-ID is honored for cross-service
// tracing.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set("correlation_id", correlationID)
		c.Header("X-Correlation-ID", correlationID)

		c.Next()
	}
}

// CorrelationID reads the request's correlation ID from the gin context.
func CorrelationID(c *gin.Context) string {
	return c.GetString("correlation_id")
}
