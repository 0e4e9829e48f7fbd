// The gateway daemon hosts the out-of-band maintenance loops around the
// decision engine: the baseline refresh sweep, the daily reputation
// recovery sweep, the buffered audit drain, and the Prometheus metrics
// endpoint. It never serves access decisions itself; the engine is a
// library consumed in-process by the data services.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/learnershield/learner-data-gateway/internal/infrastructure/auditlog"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/cache"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/config"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/database"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/telemetry"
	"github.com/learnershield/learner-data-gateway/internal/metrics"
	"github.com/learnershield/learner-data-gateway/internal/service/anomaly"
	"github.com/learnershield/learner-data-gateway/internal/service/reputation"
)

const statsInterval = 15 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("gateway daemon failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting gateway maintenance daemon",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
		zap.Int("metrics_port", cfg.Server.MetricsPort))

	provider, err := telemetry.Initialize(ctx, &telemetry.Config{
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry init: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown incomplete", zap.Error(err))
		}
	}()

	pool, err := database.NewConnectionPool(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("database pool: %w", err)
	}
	defer pool.Close() //nolint:errcheck

	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis client: %w", err)
	}
	stores, err := cache.NewStores(redisClient, logger)
	if err != nil {
		return fmt.Errorf("cache stores: %w", err)
	}
	defer stores.Close() //nolint:errcheck

	registry, err := metrics.NewRegistry(telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("metrics registry: %w", err)
	}

	ledger := database.NewAccessRepository(pool.Pool())
	baselines := database.NewBaselineRepository(pool.Pool())
	reputations := database.NewReputationRepository(pool.Pool())

	sink, err := auditlog.NewBufferedSink(database.NewAuditRepository(pool), &cfg.Audit, logger)
	if err != nil {
		return fmt.Errorf("audit sink: %w", err)
	}
	defer func() {
		if err := sink.Close(cfg.Server.ShutdownTimeout); err != nil {
			logger.Warn("audit sink close incomplete", zap.Error(err))
		}
	}()

	builder, err := anomaly.NewBuilder(ledger, baselines, cfg.Baseline, logger)
	if err != nil {
		return fmt.Errorf("baseline builder: %w", err)
	}
	repStore, err := reputation.NewStore(reputations, registry, logger)
	if err != nil {
		return fmt.Errorf("reputation store: %w", err)
	}

	go newBaselineWorker(ledger, builder, sink, cfg.Workers, logger).run(ctx)
	go newRecoveryWorker(ledger, repStore, cfg.Workers, logger).run(ctx)
	go publishStats(ctx, pool, sink)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:      newMux(pool, redisHealth(stores)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down gracefully")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	return server.Shutdown(shutdownCtx)
}

// newMux wires the operational endpoints: Prometheus scrape and liveness.
func newMux(pool *database.ConnectionPool, redisPing func(context.Context) error) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		if err := redisPing(ctx); err != nil {
			http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}

func redisHealth(stores *cache.Stores) func(context.Context) error {
	return func(ctx context.Context) error {
		return stores.Client().Ping(ctx).Err()
	}
}

// publishStats mirrors pool occupancy and audit queue depth into the
// Prometheus gauges.
func publishStats(ctx context.Context, pool *database.ConnectionPool, sink *auditlog.BufferedSink) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stat := pool.Pool().Stat()
			UpdateDBPool(stat.AcquiredConns(), stat.IdleConns(), stat.TotalConns())

			stats := sink.Stats()
			UpdateAuditQueue(stats.Pending, stats.Dropped)
		}
	}
}
