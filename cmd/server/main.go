package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/pollwatch/internal/analytics"
	"github.com/patrickwarner/pollwatch/internal/api"
	"github.com/patrickwarner/pollwatch/internal/config"
	"github.com/patrickwarner/pollwatch/internal/db"
	"github.com/patrickwarner/pollwatch/internal/evidence"
	"github.com/patrickwarner/pollwatch/internal/geoip"
	"github.com/patrickwarner/pollwatch/internal/incidents"
	"github.com/patrickwarner/pollwatch/internal/middleware"
	"github.com/patrickwarner/pollwatch/internal/models"
	"github.com/patrickwarner/pollwatch/internal/observability"
	"github.com/patrickwarner/pollwatch/internal/ratelimit"
)

// limiterIdle is how long an unused per-caller bucket is kept.
const limiterIdle = 30 * time.Minute

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TokenSecret == "" {
		return errors.New("TOKEN_SECRET must be set")
	}

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, observability.TracingConfig{
			ServiceName: cfg.ServiceName,
			Endpoint:    cfg.TempoEndpoint,
			SampleRate:  cfg.TracingSampleRate,
			Environment: cfg.Environment,
		})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Error("tracer shutdown", zap.Error(err))
			}
		}()
	}

	metricsRegistry := observability.NewPrometheusRegistry()

	var (
		store models.IncidentStore
		pg    *db.Postgres
	)
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		store = models.NewInMemoryIncidentStore()
		logger.Warn("using in-memory incident store; reports are lost on restart")
	case config.StoreBackendPostgres:
		var err error
		pg, err = db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
		if err != nil {
			return fmt.Errorf("failed to connect postgres: %w", err)
		}
		defer pg.Close()
		store = pg
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	svc := incidents.NewService(store, logger, metricsRegistry)

	if cfg.CacheEnabled {
		rs, err := db.InitRedis(ctx, cfg.RedisAddr, cfg.ListCacheTTL)
		if err != nil {
			logger.Warn("redis unavailable, serving without list cache", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			defer rs.Close()
			svc.SetCache(rs)
			svc.SetNotifier(rs)
			if err := rs.SubscribeChanges(ctx, logger, func(c incidents.Change) {
				logger.Debug("incident change", zap.String("incident_id", c.IncidentID), zap.String("action", c.Action))
			}); err != nil {
				logger.Warn("subscribe to incident changes", zap.Error(err))
			}
		}
	}

	analyticsSvc, closeAnalytics := openAnalytics(ctx, logger, cfg, metricsRegistry)
	defer closeAnalytics()

	geoSvc, err := geoip.Init(cfg.GeoIPDB)
	if err != nil {
		logger.Warn("geoip disabled", zap.String("path", cfg.GeoIPDB), zap.Error(err))
		geoSvc = nil
	}
	defer func() { _ = geoSvc.Close() }()

	intake, err := evidence.NewIntake(cfg.UploadDir, cfg.EvidenceMaxFiles, cfg.EvidenceMaxBytes, logger, metricsRegistry)
	if err != nil {
		return err
	}

	limiter := ratelimit.NewCallerLimiter(ratelimit.Config{
		Capacity:   cfg.RateLimitCapacity,
		RefillRate: cfg.RateLimitRefillRate,
		Enabled:    cfg.RateLimitEnabled,
	}, metricsRegistry)

	auth := middleware.NewAuthenticator([]byte(cfg.TokenSecret), cfg.TokenTTL, logger)
	srvDeps := api.NewServer(logger, svc, intake, limiter, analyticsSvc, geoSvc, pg, store, auth, metricsRegistry, cfg)
	r := api.NewRouter(srvDeps)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(r, "pollwatch"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Incident service running",
		zap.String("addr", addr),
		zap.String("store", cfg.StoreBackend),
		zap.Bool("cache", cfg.CacheEnabled),
		zap.Bool("analytics", cfg.AnalyticsEnabled))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	ticker := time.NewTicker(limiterIdle)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				hits, total, throttled := ratelimit.Totals(limiter.GetStats())
				removed := limiter.Prune(limiterIdle)
				logger.Info("submission throttle",
					zap.Int64("requests", total),
					zap.Int64("rejected", hits),
					zap.Int("throttled_callers", throttled),
					zap.Int("pruned_buckets", removed))
			case <-ctx.Done():
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// openAnalytics connects the ClickHouse event sink when enabled. A connection
// failure is logged and yields a nil Service so the API keeps serving
// without lifecycle events.
func openAnalytics(ctx context.Context, logger *zap.Logger, cfg config.Config, metrics observability.MetricsRegistry) (analytics.Service, func()) {
	if !cfg.AnalyticsEnabled {
		return nil, func() {}
	}
	a, err := analytics.InitClickHouse(ctx, cfg.ClickHouseDSN, metrics)
	if err != nil {
		logger.Warn("clickhouse unavailable, analytics disabled", zap.Error(err))
		return nil, func() {}
	}
	return a, a.Close
}
