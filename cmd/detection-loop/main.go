package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cybersentinel/detection-loop/internal/collaborators"
	"github.com/cybersentinel/detection-loop/internal/config"
	"github.com/cybersentinel/detection-loop/internal/coordinator"
	"github.com/cybersentinel/detection-loop/internal/engine"
	"github.com/cybersentinel/detection-loop/internal/feedback"
	"github.com/cybersentinel/detection-loop/internal/monitor"
	"github.com/cybersentinel/detection-loop/internal/observability"
)

// configOverlayEnvVar names the environment variable that, if set, gives
// the path of a YAML overlay watched for live deployment-target and
// threshold changes (see internal/config.Watcher).
const configOverlayEnvVar = "CONFIG_OVERLAY_PATH"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	deps := coordinator.Dependencies{
		Registry:       buildEngineRegistry(),
		RuleRepository: collaborators.NewInMemoryRuleRepository(nil),
		Logger:         logger,
		Metrics:        metrics,
	}

	feedbackSink, err := buildFeedbackSink(cfg.Feedback.PostgresDSN)
	if err != nil {
		logger.WithError(err).Warn("feedback durable sink unavailable, continuing in-memory only")
	}
	deps.FeedbackStore = feedback.New(feedbackSink, nil)

	healthCache, err := buildHealthCache(cfg.Feedback.RedisAddr, cfg.Feedback.RedisTTL)
	if err != nil {
		logger.WithError(err).Warn("health cache unavailable, continuing without read-through cache")
	}
	deps.Monitor = monitor.New(monitor.Thresholds{
		MinPerformanceScore:  cfg.Thresholds.MinPerformanceScore,
		MaxFalsePositiveRate: cfg.Thresholds.MaxFalsePositiveRate,
		MinTruePositiveRate:  cfg.Thresholds.MinTruePositiveRate,
		MaxAlertFrequency:    cfg.Thresholds.MaxAlertFrequency,
		MinReliabilityScore:  cfg.Thresholds.MinReliabilityScore,
		MaxVolatility:        cfg.Thresholds.MaxVolatility,
	}, healthCache, logger)

	sqliteAudit, err := buildAuditSink(cfg.Feedback.SQLiteAuditPath)
	if err != nil {
		logger.WithError(err).Warn("cycle audit sink unavailable, cycle history will not persist across restarts")
	}
	if sqliteAudit != nil {
		deps.AuditSink = sqliteAudit
		defer sqliteAudit.Close()
	}

	deps.ResourceSampler = collaborators.NewResourceSampler()

	c := coordinator.New(*cfg, deps)

	if overlayPath := os.Getenv(configOverlayEnvVar); overlayPath != "" {
		watcher, err := config.NewWatcher(overlayPath, cfg, func(merged *config.Config) {
			c.UpdateRuntimeConfig(merged.Deployment, merged.Thresholds)
		})
		if err != nil {
			logger.WithError(err).Warn("config overlay watch disabled")
		} else {
			defer watcher.Close()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Start(ctx)
	}()

	<-sigCh
	logger.Info("shutdown signal received, stopping detection loop")
	c.Stop()
	cancel()
	<-done

	logger.Info("detection loop exited")
}

// buildEngineRegistry registers every Engine Adapter this binary ships
// with. New engine types are wired here, not discovered dynamically.
func buildEngineRegistry() *engine.Registry {
	client := engine.NewClient(20)
	reg := engine.NewRegistry()
	reg.Register(engine.NewMockAdapter())
	reg.Register(engine.NewElasticsearchAdapter(client))
	reg.Register(engine.NewSplunkAdapter(client))
	return reg
}

func buildFeedbackSink(dsn string) (feedback.Sink, error) {
	if dsn == "" {
		return nil, nil
	}
	sink, err := feedback.NewPostgresSink(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

func buildHealthCache(addr string, ttl time.Duration) (monitor.Cache, error) {
	if addr == "" {
		return nil, nil
	}
	cache, err := monitor.NewRedisCache(addr, "", ttl)
	if err != nil {
		return nil, err
	}
	return cache, nil
}

func buildAuditSink(path string) (*collaborators.SQLiteAuditSink, error) {
	if path == "" {
		return nil, nil
	}
	return collaborators.NewSQLiteAuditSink(path)
}
