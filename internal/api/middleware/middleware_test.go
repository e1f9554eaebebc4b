package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/sentinel-gate/internal/config"
	"github.com/platformbuilds/sentinel-gate/internal/models"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func identityRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	r.GET("/whoami", func(c *gin.Context) {
		id := Identity(c)
		c.JSON(200, gin.H{
			"tenant":   id.TenantID,
			"client":   id.ClientID,
			"tier":     string(id.Tier),
			"resolved": id.Resolved,
		})
	})
	r.GET("/health", func(c *gin.Context) { c.String(200, "ok") })
	return r
}

func TestNoAuthMiddleware_DefaultsAndOverride(t *testing.T) {
	r := identityRouter(NoAuthMiddleware())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", http.NoBody))
	assert.Equal(t, 200, w.Code)
	assert.JSONEq(t, `{"tenant":"default","client":"anonymous","tier":"basic","resolved":true}`, w.Body.String())

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", http.NoBody)
	req.Header.Set("X-Tenant-ID", "acme")
	req.Header.Set("X-Client-ID", "svc-1")
	req.Header.Set("X-Tier", "enterprise")
	r.ServeHTTP(w, req)
	assert.Equal(t, 200, w.Code)
	assert.JSONEq(t, `{"tenant":"acme","client":"svc-1","tier":"enterprise","resolved":true}`, w.Body.String())
}

func TestAuthMiddleware_RejectsMissingToken(t *testing.T) {
	r := identityRouter(AuthMiddleware(config.AuthConfig{Enabled: true, JWTSecret: testSecret}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", http.NoBody))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_RejectsBadSignature(t *testing.T) {
	r := identityRouter(AuthMiddleware(config.AuthConfig{Enabled: true, JWTSecret: testSecret}))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "svc-1"})
	signed, err := token.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+signed)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_ResolvesClaims(t *testing.T) {
	r := identityRouter(AuthMiddleware(config.AuthConfig{Enabled: true, JWTSecret: testSecret}))

	signed := signToken(t, jwt.MapClaims{
		"sub":    "svc-1",
		"tenant": "acme",
		"tier":   "premium",
		"exp":    time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+signed)
	r.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	assert.JSONEq(t, `{"tenant":"acme","client":"svc-1","tier":"premium","resolved":true}`, w.Body.String())
}

func TestAuthMiddleware_MissingClaimsFallBack(t *testing.T) {
	r := identityRouter(AuthMiddleware(config.AuthConfig{Enabled: true, JWTSecret: testSecret}))

	// Only a subject: tenant and tier fall back to defaults.
	signed := signToken(t, jwt.MapClaims{"sub": "svc-1"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+signed)
	r.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	assert.JSONEq(t, `{"tenant":"default","client":"svc-1","tier":"basic","resolved":true}`, w.Body.String())
}

func TestAuthMiddleware_QueryTokenForWebSockets(t *testing.T) {
	r := identityRouter(AuthMiddleware(config.AuthConfig{Enabled: true, JWTSecret: testSecret}))

	signed := signToken(t, jwt.MapClaims{"sub": "svc-1", "tenant": "acme"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami?token="+signed, http.NoBody))
	assert.Equal(t, 200, w.Code)
}

func TestAuthMiddleware_PublicEndpointsBypass(t *testing.T) {
	r := identityRouter(AuthMiddleware(config.AuthConfig{Enabled: true, JWTSecret: testSecret}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, 200, w.Code)
}

func TestCorrelationMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		c.String(200, CorrelationID(c))
	})

	// Generated when absent.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", http.NoBody))
	assert.NotEmpty(t, w.Body.String())
	assert.Equal(t, w.Body.String(), w.Header().Get("X-Correlation-ID"))

	// Honored when supplied.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", http.NoBody)
	req.Header.Set("X-Correlation-ID", "corr-123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "corr-123", w.Body.String())
	assert.Equal(t, "corr-123", w.Header().Get("X-Correlation-ID"))
}

func TestCORSMiddleware_PreflightAndWildcard(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware(config.CORSConfig{
		AllowedOrigins: []string{"*.example.com"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	r.GET("/ping", func(c *gin.Context) { c.String(200, "ok") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/ping", http.NoBody)
	req.Header.Set("Origin", "https://ops.example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ping", http.NoBody)
	req.Header.Set("Origin", "https://evil.test")
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestIdentityUnresolvedWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", func(c *gin.Context) {
		id := Identity(c)
		assert.False(t, id.Resolved)
		assert.Equal(t, models.Tier(""), id.Tier)
		c.Status(200)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", http.NoBody))
	assert.Equal(t, 200, w.Code)
}
