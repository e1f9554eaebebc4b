package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ErrorHandler provides centralized error handling middleware
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			statusCode := determineStatusCode(err.Err)

			errorResp := ErrorResponse{
				Error: err.Err.Error(),
				Code:  errorCodeFromStatus(statusCode),
			}

			fields := []interface{}{
				"status", statusCode,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
				"correlation_id", c.GetString("correlation_id"),
				"error", err.Err.Error(),
			}
			if statusCode >= 500 {
				log.Error("HTTP Error", fields...)
			} else {
				log.Warn("HTTP Error", fields...)
			}

			c.JSON(statusCode, errorResp)
			return
		}

		if c.Writer.Status() >= 400 && !c.Writer.Written() {
			statusCode := c.Writer.Status()
			c.JSON(statusCode, ErrorResponse{
				Error: http.StatusText(statusCode),
				Code:  errorCodeFromStatus(statusCode),
			})
		}
	}
}

// determineStatusCode determines HTTP status code from error type
func determineStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	errMsg := strings.ToLower(err.Error())

	switch {
	case containsAny(errMsg, "invalid", "required", "must be", "malformed"):
		return http.StatusBadRequest
	case containsAny(errMsg, "not found", "does not exist"):
		return http.StatusNotFound
	case containsAny(errMsg, "forbidden", "unauthorized"):
		return http.StatusForbidden
	case containsAny(errMsg, "already exists", "conflict"):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorCodeFromStatus creates a machine-readable code from HTTP status
func errorCodeFromStatus(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "ACCESS_DENIED"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

// containsAny checks if the string contains any of the substrings
func containsAny(s string, substrings ...string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
