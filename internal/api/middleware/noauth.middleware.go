package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/sentinel-gate/internal/models"
)

// NoAuthMiddleware injects a default identity when auth is disabled. It
// honors X-Tenant-ID / X-Client-ID / X-Tier headers if provided, otherwise
// falls back to an anonymous Basic-tier client.
func NoAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.GetHeader("X-Tenant-ID")
		if strings.TrimSpace(tenant) == "" {
			tenant = DefaultTenantID
		}
		client := c.GetHeader("X-Client-ID")
		if strings.TrimSpace(client) == "" {
			client = "anonymous"
		}
		tier := c.GetHeader("X-Tier")
		if strings.TrimSpace(tier) == "" {
			tier = string(models.TierBasic)
		}

		c.Set("tenant_id", tenant)
		c.Set("client_id", client)
		c.Set("tier", tier)
		c.Set("identity_resolved", true)
		c.Next()
	}
}
