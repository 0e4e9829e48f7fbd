package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/audit"
	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/config"
	"github.com/learnershield/learner-data-gateway/internal/service/anomaly"
	"github.com/learnershield/learner-data-gateway/internal/service/reputation"
)

// activityWindow bounds which tenants and clients a sweep bothers with.
// A client with no ledger activity in this window keeps its last baseline.
const activityWindow = 24 * time.Hour

// violationFreeWindow is how long a client must stay clean before the
// recovery sweep nudges its score.
const violationFreeWindow = 24 * time.Hour

// baselineWorker periodically re-learns behavioral baselines for every
// recently active client. The sweep is rate-limited so a large tenant
// population cannot starve the decision path's database budget, and each
// rebuild writes a new version copy-on-write.
type baselineWorker struct {
	ledger  access.Repository
	builder *anomaly.Builder
	sink    audit.Sink
	limiter *rate.Limiter
	cfg     config.WorkerConfig
	logger  *zap.Logger
}

func newBaselineWorker(ledger access.Repository, builder *anomaly.Builder, sink audit.Sink, cfg config.WorkerConfig, logger *zap.Logger) *baselineWorker {
	return &baselineWorker{
		ledger:  ledger,
		builder: builder,
		sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(cfg.SweepPerSec), cfg.SweepBurst),
		cfg:     cfg,
		logger:  logger.Named("baseline_worker"),
	}
}

func (w *baselineWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.BaselineRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *baselineWorker) sweep(ctx context.Context) {
	start := time.Now()
	now := start.UTC()

	tenants, err := w.ledger.ActiveTenants(ctx, now.Add(-activityWindow))
	if err != nil {
		w.logger.Error("active tenant listing failed", zap.Error(err))
		RecordSweepError("baseline")
		return
	}

	rebuilt, skipped, failed := 0, 0, 0
	for _, tenantID := range tenants {
		clients, err := w.ledger.ActiveClients(ctx, tenantID, now.Add(-activityWindow))
		if err != nil {
			w.logger.Error("active client listing failed",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err))
			RecordSweepError("baseline")
			continue
		}

		for _, clientID := range clients {
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}

			base, err := w.builder.Rebuild(ctx, tenantID, clientID, time.Now().UTC())
			switch {
			case err == nil:
				rebuilt++
				RecordBaselineOutcome("rebuilt")
				w.appendRebuiltEvent(ctx, base.TenantID, base.ClientID, base.Version, base.SampleCount)
			case errors.IsType(err, errors.ErrorTypeBusiness):
				skipped++
				RecordBaselineOutcome("skipped")
			default:
				failed++
				RecordBaselineOutcome("failed")
				w.logger.Warn("baseline rebuild failed",
					zap.String("tenant_id", tenantID.String()),
					zap.String("client_id", clientID.String()),
					zap.Error(err))
			}
		}
	}

	RecordBaselineSweep(time.Since(start))
	w.logger.Info("baseline sweep complete",
		zap.Int("tenants", len(tenants)),
		zap.Int("rebuilt", rebuilt),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Duration("took", time.Since(start)))
}

func (w *baselineWorker) appendRebuiltEvent(ctx context.Context, tenantID, clientID uuid.UUID, version, samples int) {
	event, err := audit.NewEvent(audit.EventBaselineRebuilt, tenantID, clientID, "baseline.rebuild", time.Now())
	if err != nil {
		return
	}
	event.WithMetadata("version", version).WithMetadata("samples", samples)
	_ = w.sink.Append(ctx, event)
}

// recoveryWorker applies the daily reputation recovery nudge across every
// recently active tenant.
type recoveryWorker struct {
	ledger      access.Repository
	reputations *reputation.Store
	cfg         config.WorkerConfig
	logger      *zap.Logger
}

func newRecoveryWorker(ledger access.Repository, reputations *reputation.Store, cfg config.WorkerConfig, logger *zap.Logger) *recoveryWorker {
	return &recoveryWorker{
		ledger:      ledger,
		reputations: reputations,
		cfg:         cfg,
		logger:      logger.Named("recovery_worker"),
	}
}

func (w *recoveryWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.RecoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *recoveryWorker) sweep(ctx context.Context) {
	now := time.Now().UTC()

	tenants, err := w.ledger.ActiveTenants(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		w.logger.Error("active tenant listing failed", zap.Error(err))
		RecordSweepError("recovery")
		return
	}

	total := 0
	for _, tenantID := range tenants {
		recovered, err := w.reputations.RecoverIdle(ctx, tenantID, now.Add(-violationFreeWindow), now)
		if err != nil {
			w.logger.Error("recovery sweep failed for tenant",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err))
			RecordSweepError("recovery")
			continue
		}
		total += recovered
	}

	RecordRecovered(total)
	w.logger.Info("recovery sweep complete",
		zap.Int("tenants", len(tenants)),
		zap.Int("recovered", total))
}
