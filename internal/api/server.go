package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/sentinel-gate/internal/api/handlers"
	"github.com/platformbuilds/sentinel-gate/internal/api/middleware"
	"github.com/platformbuilds/sentinel-gate/internal/audit"
	"github.com/platformbuilds/sentinel-gate/internal/config"
	"github.com/platformbuilds/sentinel-gate/internal/gateway"
	"github.com/platformbuilds/sentinel-gate/internal/health"
	"github.com/platformbuilds/sentinel-gate/internal/monitoring"
	"github.com/platformbuilds/sentinel-gate/internal/quota"
	"github.com/platformbuilds/sentinel-gate/internal/sla"
	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

// Server is the HTTP surface over the admission pipeline: the gate itself
// plus the operator API for quotas, SLAs, health, and alerts.
type Server struct {
	config *config.Config
	logger logger.Logger
	router *gin.Engine

	orchestrator *gateway.Orchestrator
	limiter      *quota.Limiter
	slaEngine    *sla.Engine
	monitor      *health.Monitor
	auditSink    audit.Sink

	httpServer *http.Server
}

func NewServer(
	cfg *config.Config,
	log logger.Logger,
	orch *gateway.Orchestrator,
	limiter *quota.Limiter,
	slaEngine *sla.Engine,
	monitor *health.Monitor,
	auditSink audit.Sink,
) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	server := &Server{
		config:       cfg,
		logger:       log,
		router:       router,
		orchestrator: orch,
		limiter:      limiter,
		slaEngine:    slaEngine,
		monitor:      monitor,
		auditSink:    auditSink,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.router.Use(gin.Recovery())

	// CORS for operator UI communication
	s.router.Use(middleware.CORSMiddleware(s.config.CORS))

	// Correlation IDs before anything that logs
	s.router.Use(middleware.CorrelationMiddleware())

	// Request logging
	s.router.Use(middleware.RequestLogger(s.logger))

	// Centralized error responses
	s.router.Use(middleware.ErrorHandler(s.logger))

	// Identity resolution
	if s.config.Auth.Enabled {
		s.router.Use(middleware.AuthMiddleware(s.config.Auth))
	} else {
		s.logger.Warn("Authentication disabled; requests run under header-derived identity")
		s.router.Use(middleware.NoAuthMiddleware())
	}
}

func (s *Server) setupRoutes() {
	gatewayHandler := handlers.NewGatewayHandler(s.orchestrator, nil, s.logger)
	healthHandler := handlers.NewHealthHandler(s.monitor, s.logger)
	alertsHandler := handlers.NewAlertsHandler(s.monitor, s.logger)
	slaHandler := handlers.NewSLAHandler(s.slaEngine, s.logger)
	adminHandler := handlers.NewAdminHandler(s.limiter, s.auditSink, s.logger)

	// Probes
	s.router.GET("/health", healthHandler.GetHealth)
	s.router.GET("/ready", healthHandler.GetReady)

	// Prometheus metrics endpoint
	if s.config.Monitoring.Enabled {
		monitoring.SetupPrometheusMetrics(s.router)
	}

	// The gate: every method under /gate/* runs the admission pipeline.
	s.router.Any("/gate/*path", gatewayHandler.Gate)

	v1 := s.router.Group("/api/v1")
	{
		gw := v1.Group("/gateway")
		{
			gw.GET("/metrics", gatewayHandler.GetMetrics)
			gw.GET("/health", healthHandler.GetSystemHealth)
			gw.GET("/endpoints", healthHandler.GetEndpoints)
			gw.GET("/tenants/:id", gatewayHandler.GetTenantReport)
		}

		alerts := v1.Group("/alerts")
		{
			alerts.GET("", alertsHandler.GetAlerts)
			alerts.GET("/history", alertsHandler.GetAlertHistory)
			alerts.GET("/stream", alertsHandler.StreamAlerts)
		}

		slaGroup := v1.Group("/sla")
		{
			slaGroup.POST("", slaHandler.CreateSLA)
			slaGroup.GET("/:tenant", slaHandler.GetSLA)
			slaGroup.GET("/:tenant/report", slaHandler.GetReport)
			slaGroup.POST("/:tenant/downtime", slaHandler.RecordDowntime)
		}

		clients := v1.Group("/clients")
		{
			clients.GET("/:id", adminHandler.GetClientUsage)
			clients.POST("/:id/tier", adminHandler.SetClientTier)
			clients.POST("/:id/reset", adminHandler.ResetClient)
		}
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("sentinel-gate REST API server starting", "port", s.config.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info("Shutting down sentinel-gate gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler returns the underlying Gin engine so tests (or embedders) can mount it.
func (s *Server) Handler() http.Handler {
	return s.router
}
