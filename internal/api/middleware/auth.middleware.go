// internal/api/middleware/auth.middleware.go
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/platformbuilds/sentinel-gate/internal/config"
	"github.com/platformbuilds/sentinel-gate/internal/models"
)

const (
	// DefaultTenantID is the fallback tenant ID when none is specified
	DefaultTenantID = "default"
)

// AuthMiddleware resolves the calling identity from a bearer JWT: the
// subject claim is the client ID, "tenant" scopes it, "tier" selects the
// limit table. The resolved identity is what the gateway admits against.
func AuthMiddleware(authConfig config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isPublicEndpoint(c.Request.URL.Path) {
			c.Next()
			return
		}

		token := extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status": "error",
				"error":  "Authentication required",
			})
			c.Abort()
			return
		}

		identity, err := resolveIdentity(token, authConfig)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status": "error",
				"error":  "Invalid authentication token",
				"detail": err.Error(),
			})
			c.Abort()
			return
		}

		c.Set("client_id", identity.ClientID)
		c.Set("tenant_id", identity.TenantID)
		c.Set("tier", string(identity.Tier))
		c.Set("identity_resolved", true)

		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")

		c.Next()
	}
}

// Identity reads the resolved request identity out of the gin context.
func Identity(c *gin.Context) models.RequestContext {
	return models.RequestContext{
		TenantID: c.GetString("tenant_id"),
		ClientID: c.GetString("client_id"),
		Tier:     models.Tier(c.GetString("tier")),
		Resolved: c.GetBool("identity_resolved"),
	}
}

// extractToken gets the bearer token from various sources
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}

	// Query parameter fallback for WebSocket upgrades
	if queryToken := c.Query("token"); queryToken != "" {
		return queryToken
	}

	return ""
}

// resolveIdentity validates the JWT and maps its claims onto the admission
// identity. Unknown tiers are kept as-is; the limiter clamps them to Basic.
func resolveIdentity(tokenString string, authConfig config.AuthConfig) (models.RequestContext, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(authConfig.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return models.RequestContext{}, fmt.Errorf("invalid JWT token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.RequestContext{}, fmt.Errorf("invalid token claims")
	}

	clientID, ok := claims["sub"].(string)
	if !ok || clientID == "" {
		return models.RequestContext{}, fmt.Errorf("missing client ID in token")
	}

	tenantID, ok := claims["tenant"].(string)
	if !ok || tenantID == "" {
		tenantID = DefaultTenantID
	}

	tier := models.TierBasic
	if claimed, ok := claims["tier"].(string); ok && claimed != "" {
		tier = models.Tier(claimed)
	}

	return models.RequestContext{
		TenantID: tenantID,
		ClientID: clientID,
		Tier:     tier,
		Resolved: true,
	}, nil
}

// isPublicEndpoint checks if an endpoint requires authentication
func isPublicEndpoint(path string) bool {
	publicPaths := []string{
		"/health",
		"/ready",
		"/metrics",
	}

	for _, publicPath := range publicPaths {
		if strings.HasPrefix(path, publicPath) {
			return true
		}
	}

	return false
}
