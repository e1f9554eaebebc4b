package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platformbuilds/sentinel-gate/internal/api"
	"github.com/platformbuilds/sentinel-gate/internal/audit"
	"github.com/platformbuilds/sentinel-gate/internal/config"
	"github.com/platformbuilds/sentinel-gate/internal/gateway"
	"github.com/platformbuilds/sentinel-gate/internal/health"
	"github.com/platformbuilds/sentinel-gate/internal/monitoring"
	"github.com/platformbuilds/sentinel-gate/internal/quota"
	"github.com/platformbuilds/sentinel-gate/internal/sla"
	"github.com/platformbuilds/sentinel-gate/internal/tracing"
	"github.com/platformbuilds/sentinel-gate/pkg/cache"
	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

const version = "v1.4.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)
	logger.Info("Starting SENTINEL-GATE", "version", version, "environment", cfg.Environment)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	// Valkey-backed persistence for SLA contracts, violation archives, and
	// the audit trail. Without it the gateway runs fully process-local.
	store := newStore(cfg, logger)

	// Audit trail sink
	var auditSink audit.Sink
	if cfg.Cache.Enabled {
		auditSink = audit.NewValkeySink(store, logger)
	} else {
		auditSink = audit.NewLogSink(logger)
	}

	// Distributed tracing
	if cfg.Monitoring.TracingEnabled {
		tp, err := tracing.NewTracerProvider("sentinel-gate", version, cfg.Monitoring.OTLPEndpoint)
		if err != nil {
			logger.Error("Failed to initialize tracing, continuing without it", "error", err)
		} else {
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logger.Error("Tracer shutdown failed", "error", err)
				}
			}()
			tracing.InitGlobalTracer("sentinel-gate")
			logger.Info("Tracing initialized", "endpoint", cfg.Monitoring.OTLPEndpoint)
		}
	}

	// Core admission components
	limiter := quota.NewLimiter(cfg.Quota, logger)
	slaEngine := sla.NewEngine(cfg.SLA, store, auditSink, logger)
	monitor := health.NewMonitor(cfg.Health, logger)

	var metrics *monitoring.Metrics
	if cfg.Monitoring.Enabled {
		metrics = monitoring.NewMetrics()
	}

	orchestrator := gateway.NewOrchestrator(cfg.Gateway, limiter, slaEngine, monitor, metrics, auditSink, logger)

	// Hot-reloaded tier overrides
	if cfg.Quota.OverridesFile != "" {
		watcher := config.NewOverrideWatcher(cfg.Quota.OverridesFile, logger)
		watcher.RegisterWatcher(limiter.ApplyTierOverrides)
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.Error("Tier override watcher failed", "error", err)
			}
		}()
	}

	// Background loops: idle quota eviction, SLA compliance rechecks,
	// health/alerting passes.
	limiter.StartSweeper(ctx)
	slaEngine.Start(ctx)
	monitor.Start(ctx)

	// Initialize API server
	apiServer := api.NewServer(cfg, logger, orchestrator, limiter, slaEngine, monitor, auditSink)

	// Start server
	if err := apiServer.Start(ctx); err != nil {
		logger.Fatal("Server failed to start", "error", err)
	}

	logger.Info("SENTINEL-GATE shutdown complete")
}

// newStore picks the persistence backend from config: a Valkey cluster for
// multi-node deployments, a single node otherwise, and an in-process noop
// store when caching is disabled.
func newStore(cfg *config.Config, log logger.Logger) cache.ValkeyStore {
	if !cfg.Cache.Enabled || len(cfg.Cache.Nodes) == 0 {
		log.Info("Valkey persistence disabled; running process-local")
		return cache.NewNoopStore()
	}

	ttl := time.Duration(cfg.Cache.TTL) * time.Second

	if len(cfg.Cache.Nodes) > 1 {
		store, err := cache.NewValkeyCluster(cfg.Cache.Nodes, cfg.Cache.Password, ttl, log)
		if err != nil {
			log.Error("Valkey cluster unavailable, falling back to process-local store", "error", err)
			return cache.NewNoopStore()
		}
		log.Info("Valkey cluster store initialized", "nodes", len(cfg.Cache.Nodes))
		return store
	}

	store, err := cache.NewValkeySingle(cfg.Cache.Nodes[0], cfg.Cache.DB, cfg.Cache.Password, ttl, log)
	if err != nil {
		log.Error("Valkey unavailable, falling back to process-local store", "error", err)
		return cache.NewNoopStore()
	}
	log.Info("Valkey store initialized", "node", cfg.Cache.Nodes[0])
	return store
}
