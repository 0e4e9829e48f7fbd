package policy

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/audit"
	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	domainrep "github.com/learnershield/learner-data-gateway/internal/domain/reputation"
	"github.com/learnershield/learner-data-gateway/internal/domain/values"
	"github.com/learnershield/learner-data-gateway/internal/domain/violation"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/cache"
	"github.com/learnershield/learner-data-gateway/internal/metrics"
	"github.com/learnershield/learner-data-gateway/internal/service/anomaly"
	"github.com/learnershield/learner-data-gateway/internal/service/patterns"
	"github.com/learnershield/learner-data-gateway/internal/service/reputation"
)

// containmentTimeout bounds the asynchronous session-revocation sweep.
const containmentTimeout = 5 * time.Second

// Recorder turns one denial into its full consequence set: the persisted
// violation, exactly one reputation mutation, one audit event, the anomaly
// record when scoring crossed the reporting threshold, and the automated
// containment response when the situation is critical. Containment runs
// asynchronously; the denied caller never waits on it.
type Recorder struct {
	violations  violation.Repository
	reputations *reputation.Store
	sessions    cache.SessionRegistry
	sink        audit.Sink
	metrics     *metrics.Registry
	logger      *zap.Logger
}

// NewRecorder creates the violation recorder.
func NewRecorder(
	violations violation.Repository,
	reputations *reputation.Store,
	sessions cache.SessionRegistry,
	sink audit.Sink,
	registry *metrics.Registry,
	logger *zap.Logger,
) (*Recorder, error) {
	if violations == nil || reputations == nil || sessions == nil || sink == nil {
		return nil, errors.NewInternalError("recorder requires violation repository, reputation store, session registry, and audit sink")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Recorder{
		violations:  violations,
		reputations: reputations,
		sessions:    sessions,
		sink:        sink,
		metrics:     registry,
		logger:      logger,
	}, nil
}

// Record applies a denial's consequences and returns the client's updated
// reputation record. The violation write and the reputation mutation must
// both land; audit and containment are best-effort and out-of-band.
func (r *Recorder) Record(
	ctx context.Context,
	req access.Request,
	vtype violation.Type,
	reason Reason,
	detail string,
	assessment *anomaly.Assessment,
	report *patterns.Report,
) (*domainrep.Client, error) {
	v, err := violation.New(req.TenantID, req.ClientID, req.ActorID, vtype, detail, req.Now)
	if err != nil {
		return nil, err
	}
	if assessment != nil && assessment.Critical {
		v.Escalate(violation.SeverityCritical, string(ActionImmediateSuspension))
	}

	if err := r.violations.RecordViolation(ctx, v); err != nil {
		return nil, err
	}

	client, penalty, err := r.reputations.RecordViolation(ctx, req.TenantID, req.ClientID, vtype, req.Now)
	if err != nil {
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.RecordViolation(ctx, vtype.String(), string(v.Severity))
	}

	r.appendDenialEvent(ctx, req, v, reason, penalty, client)

	if assessment != nil && assessment.Anomalous {
		r.recordAnomaly(ctx, req, assessment, report)
	}

	if r.shouldContain(client, assessment) {
		go r.contain(req, client.Tier())
	}

	return client, nil
}

// appendDenialEvent emits the access.denied audit event. The sink is fire
// and forget; a failed append is the sink's problem, never the caller's.
func (r *Recorder) appendDenialEvent(ctx context.Context, req access.Request, v *violation.Violation, reason Reason, penalty float64, client *domainrep.Client) {
	event, err := audit.NewEvent(audit.EventAccessDenied, req.TenantID, req.ClientID, "access.evaluate", req.Now)
	if err != nil {
		r.logger.Error("failed to build denial audit event", zap.Error(err))
		return
	}

	event.WithActor(req.ActorID).
		WithResult("denied").
		WithMetadata("reason", string(reason)).
		WithMetadata("violation_id", v.ID.String()).
		WithMetadata("violation_type", v.Type.String()).
		WithMetadata("severity", string(v.Severity)).
		WithMetadata("data_category", req.Category.String()).
		WithMetadata("penalty", penalty).
		WithMetadata("reputation_score", client.Score.Value()).
		WithMetadata("risk_tier", client.Tier().String())

	_ = r.sink.Append(ctx, event)
}

// recordAnomaly persists the dimension snapshot for investigation.
func (r *Recorder) recordAnomaly(ctx context.Context, req access.Request, assessment *anomaly.Assessment, report *patterns.Report) {
	record, err := violation.NewAnomalyRecord(
		req.TenantID, req.ClientID, req.ActorID,
		string(ReasonBehavioralAnomaly),
		assessment.Severity,
		values.SaturatingConfidence(assessment.Composite),
		assessment.Scores,
		req.Now,
	)
	if err != nil {
		r.logger.Error("failed to build anomaly record", zap.Error(err))
		return
	}
	if report != nil {
		record.WithPatterns(report.FiredNames())
	}

	if err := r.violations.RecordAnomaly(ctx, record); err != nil {
		r.logger.Error("failed to persist anomaly record",
			zap.String("client_id", req.ClientID.String()),
			zap.Error(err))
		return
	}

	event, err := audit.NewEvent(audit.EventAnomalyDetected, req.TenantID, req.ClientID, "anomaly.record", req.Now)
	if err == nil {
		event.WithActor(req.ActorID).
			WithResult(string(assessment.Severity)).
			WithMetadata("anomaly_id", record.ID.String()).
			WithMetadata("investigation_required", record.InvestigationRequired)
		_ = r.sink.Append(ctx, event)
	}
}

// shouldContain decides whether the automated response fires: a critical
// anomaly, or a client whose updated record derives to the critical tier.
func (r *Recorder) shouldContain(client *domainrep.Client, assessment *anomaly.Assessment) bool {
	if assessment != nil && assessment.Critical {
		return true
	}
	return client.Tier() == domainrep.TierCritical
}

// contain revokes every live session for the client. Runs detached from
// the request with its own deadline; failures are logged and retried on
// the next critical denial, not propagated.
func (r *Recorder) contain(req access.Request, tier domainrep.RiskTier) {
	ctx, cancel := context.WithTimeout(context.Background(), containmentTimeout)
	defer cancel()

	revoked, err := r.sessions.RevokeAll(ctx, req.TenantID, req.ClientID)
	if err != nil {
		r.logger.Error("session containment failed",
			zap.String("tenant_id", req.TenantID.String()),
			zap.String("client_id", req.ClientID.String()),
			zap.Error(err))
		return
	}

	r.logger.Warn("sessions revoked by containment",
		zap.String("client_id", req.ClientID.String()),
		zap.String("risk_tier", tier.String()),
		zap.Int64("revoked", revoked))

	if r.metrics != nil {
		r.metrics.RecordSessionsRevoked(ctx, revoked)
	}

	event, err := audit.NewEvent(audit.EventSessionsRevoked, req.TenantID, req.ClientID, "sessions.revoke_all", time.Now())
	if err == nil {
		event.WithActor(req.ActorID).
			WithMetadata("revoked", revoked).
			WithMetadata("risk_tier", tier.String())
		_ = r.sink.Append(ctx, event)
	}
}
