// internal/api/middleware/request_logger.middleware.go
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

// RequestLogger logs HTTP requests for gateway observability
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		correlationID := ""
		clientID := ""
		if param.Keys != nil {
			if v, exists := param.Keys["correlation_id"]; exists {
				if s, ok := v.(string); ok {
					correlationID = s
				}
			}
			if v, exists := param.Keys["client_id"]; exists {
				if s, ok := v.(string); ok {
					clientID = s
				}
			}
		}

		fields := []interface{}{
			"method", param.Method,
			"path", param.Path,
			"status", param.StatusCode,
			"latency", param.Latency,
			"client_ip", param.ClientIP,
			"client_id", clientID,
			"correlation_id", correlationID,
			"content_length", param.Request.ContentLength,
		}

		if param.ErrorMessage != "" {
			fields = append(fields, "error", param.ErrorMessage)
		}

		switch {
		case param.StatusCode >= 500:
			log.Error("HTTP Request", fields...)
		case param.StatusCode >= 400:
			log.Warn("HTTP Request", fields...)
		default:
			log.Info("HTTP Request", fields...)
		}

		return ""
	})
}
