package policy

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/audit"
	"github.com/learnershield/learner-data-gateway/internal/domain/baseline"
	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	domainrep "github.com/learnershield/learner-data-gateway/internal/domain/reputation"
	"github.com/learnershield/learner-data-gateway/internal/domain/violation"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/auth"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/cache"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/config"
	"github.com/learnershield/learner-data-gateway/internal/metrics"
	"github.com/learnershield/learner-data-gateway/internal/service/anomaly"
	"github.com/learnershield/learner-data-gateway/internal/service/patterns"
	"github.com/learnershield/learner-data-gateway/internal/service/ratelimit"
	"github.com/learnershield/learner-data-gateway/internal/service/reputation"
)

const (
	// untrustedScoreFloor is the reputation score at or below which the
	// final gate denies regardless of every earlier check.
	untrustedScoreFloor = 20.0

	// detectionBudget bounds the pattern and anomaly pass. A detection
	// pass that cannot finish in time fails toward denial; slow risk data
	// is unavailable risk data.
	detectionBudget = 2 * time.Second

	// unavailableRetry is the retry hint on a fail-closed denial.
	unavailableRetry = time.Minute
)

// Dependencies wires the engine's collaborators.
type Dependencies struct {
	Tracker     *ratelimit.Tracker
	Reputations *reputation.Store
	Scopes      *auth.ScopeResolver
	Analyzer    *patterns.Analyzer
	Baselines   baseline.Repository
	Scorer      *anomaly.Scorer
	Sessions    cache.SessionRegistry
	Ledger      access.Repository
	Volumes     access.VolumeRepository
	Recorder    *Recorder
	Sink        audit.Sink
	Config      config.DetectionConfig
	Metrics     *metrics.Registry
	Logger      *zap.Logger
}

// Engine is the policy decision engine: the sole externally consumed
// operation is EvaluateAccess. Checks run in a fixed order and the first
// breach decides; counters are committed only after the full decision
// allows the request, so a denied request never consumes budget.
type Engine struct {
	deps     Dependencies
	validate *validator.Validate
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewEngine creates the policy decision engine.
func NewEngine(deps Dependencies) (*Engine, error) {
	switch {
	case deps.Tracker == nil, deps.Reputations == nil, deps.Scopes == nil,
		deps.Analyzer == nil, deps.Baselines == nil, deps.Scorer == nil,
		deps.Sessions == nil, deps.Ledger == nil, deps.Volumes == nil,
		deps.Recorder == nil, deps.Sink == nil:
		return nil, errors.NewInternalError("policy engine is missing a required dependency")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Engine{
		deps:     deps,
		validate: validator.New(),
		tracer:   otel.Tracer("policy.engine"),
		logger:   deps.Logger,
	}, nil
}

// EvaluateAccess decides one access request. Denials are verdicts, not
// errors; the error return is reserved for malformed requests, which are
// rejected at ingestion before any counter or reputation state is touched.
func (e *Engine) EvaluateAccess(ctx context.Context, req access.Request) (Verdict, error) {
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "policy.EvaluateAccess",
		trace.WithAttributes(
			attribute.String("tenant_id", req.TenantID.String()),
			attribute.String("client_id", req.ClientID.String()),
			attribute.String("data_category", req.Category.String()),
		))
	defer span.End()

	if err := e.validate.Struct(req); err != nil {
		e.logger.Warn("malformed access request rejected",
			zap.String("client_id", req.ClientID.String()),
			zap.Error(err))
		return Verdict{}, errors.NewValidationError("INVALID_ACCESS_REQUEST",
			"access request failed boundary validation").WithCause(err)
	}

	rep, err := e.deps.Reputations.Get(ctx, req.TenantID, req.ClientID, req.Now)
	if err != nil {
		return e.failClosed(ctx, req, start, "reputation record unreadable", err), nil
	}
	tier := rep.Tier()
	span.SetAttributes(attribute.String("risk_tier", tier.String()))

	grant := e.resolveGrant(req)

	decision, err := e.deps.Tracker.CheckAndReserve(ctx, req, tier)
	if err != nil {
		return e.failClosed(ctx, req, start, "limit counters unreadable", err), nil
	}
	if !decision.Allowed {
		vtype := decision.Check.ViolationType()
		return e.deny(ctx, req, start, vtype, Reason(vtype), limitDetail(decision), decision.RetryAfter, nil, nil), nil
	}

	detectCtx, cancel := context.WithTimeout(ctx, detectionBudget)
	defer cancel()

	input, report, err := e.deps.Analyzer.Analyze(detectCtx, req, grant, rep)
	if err != nil {
		return e.failClosed(ctx, req, start, "pattern detection pass failed", err), nil
	}

	if report.Suspicious && report.MeanConfidence > e.deps.Config.DenyConfidence {
		return e.deny(ctx, req, start, violation.TypeSuspiciousPattern, ReasonSuspiciousPattern,
			"corroborated behavioral patterns", 0, nil, report), nil
	}
	enhanced := report.Suspicious

	assessment, failure := e.score(detectCtx, req, input)
	if failure != nil {
		return e.failClosed(ctx, req, start, "anomaly scoring failed", failure), nil
	}

	e.observeSignals(ctx, req, assessment, report)

	if assessment.Anomalous {
		return e.deny(ctx, req, start, violation.TypeSuspiciousPattern, ReasonBehavioralAnomaly,
			"composite behavioral anomaly", 0, assessment, report), nil
	}

	// Final gate: an untrusted client is denied no matter how clean this
	// particular request looks.
	if tier == domainrep.TierCritical || rep.Score.Value() <= untrustedScoreFloor {
		return e.deny(ctx, req, start, violation.TypeCompliance, ReasonClientUntrusted,
			"client reputation below trust floor", 0, assessment, report), nil
	}

	return e.allow(ctx, req, start, decision, rep, enhanced)
}

// resolveGrant turns the request's scope token into the category grant. A
// missing or invalid token degrades to the conservative default grant;
// requests outside it surface through the escalation detector rather than
// a hard reject here.
func (e *Engine) resolveGrant(req access.Request) *auth.Grant {
	if req.ScopeToken == "" {
		return e.deps.Scopes.DefaultGrant(req.TenantID, req.ClientID)
	}

	grant, err := e.deps.Scopes.Resolve(req.ScopeToken, req.Now)
	if err != nil {
		e.logger.Warn("scope token rejected, using default grant",
			zap.String("client_id", req.ClientID.String()),
			zap.Error(err))
		return e.deps.Scopes.DefaultGrant(req.TenantID, req.ClientID)
	}
	return grant
}

// score runs the anomaly dimension pass. A client still in its learning
// period has no baseline and scores clean; every other read failure is a
// risk-data failure.
func (e *Engine) score(ctx context.Context, req access.Request, input *patterns.Input) (*anomaly.Assessment, error) {
	base, err := e.deps.Baselines.Latest(ctx, req.TenantID, req.ClientID)
	if err != nil {
		if !errors.IsType(err, errors.ErrorTypeNotFound) {
			return nil, err
		}
		base = nil
	}

	var sessionDuration time.Duration
	if req.SessionID != "" {
		startAt, known, err := e.deps.Sessions.SessionStart(ctx, req.TenantID, req.ClientID, req.ActorID, req.SessionID)
		if err != nil {
			return nil, err
		}
		if known {
			sessionDuration = req.Now.Sub(startAt)
		}
	}

	sample := anomaly.Sample{
		Request:          req,
		RequestsLastHour: len(input.EntriesSince(time.Hour)),
		SessionDuration:  sessionDuration,
	}

	assessment := e.deps.Scorer.Score(sample, base)

	if e.deps.Metrics != nil {
		e.deps.Metrics.RecordAnomaly(ctx, assessment.Composite, string(assessment.Severity), assessment.Critical)
	}

	return &assessment, nil
}

// observeSignals folds this pass's behavioral estimates into the stored
// reputation signals. Failure here does not change the current decision.
func (e *Engine) observeSignals(ctx context.Context, req access.Request, assessment *anomaly.Assessment, report *patterns.Report) {
	automation := report.Confidence(patterns.NameEvasion)
	if _, err := e.deps.Reputations.ObserveSignals(ctx, req.TenantID, req.ClientID,
		assessment.Composite, automation, req.Now); err != nil {
		e.logger.Warn("behavioral signal observation failed",
			zap.String("client_id", req.ClientID.String()),
			zap.Error(err))
	}
}

// allow commits the admitted request: counters first so budget consumption
// can never be skipped, then the ledger entry, day bucket, reputation
// reward, and the audit event.
func (e *Engine) allow(ctx context.Context, req access.Request, start time.Time, decision ratelimit.Decision, rep *domainrep.Client, enhanced bool) (Verdict, error) {
	entry, err := req.ToEntry(true)
	if err != nil {
		return Verdict{}, err
	}

	if err := e.deps.Tracker.Commit(ctx, entry, decision.Limits); err != nil {
		return e.failClosed(ctx, req, start, "counter commit failed", err), nil
	}
	if err := e.deps.Ledger.Record(ctx, entry); err != nil {
		return e.failClosed(ctx, req, start, "ledger append failed", err), nil
	}
	if err := e.deps.Volumes.IncrementDay(ctx, entry); err != nil {
		e.logger.Warn("volume day bucket increment failed",
			zap.String("client_id", req.ClientID.String()),
			zap.Error(err))
	}

	client, err := e.deps.Reputations.RecordSuccess(ctx, req.TenantID, req.ClientID, req.Now)
	if err != nil {
		e.logger.Warn("success reward failed",
			zap.String("client_id", req.ClientID.String()),
			zap.Error(err))
		client = rep
	}

	reason := ReasonAllowed
	action := ActionNone
	if enhanced {
		reason = ReasonEnhancedMonitoring
		action = ActionEnhancedMonitoring
	}

	e.appendAllowEvent(ctx, req, entry, enhanced)
	e.recordEvaluation(ctx, req, start, true, reason)
	if e.deps.Metrics != nil {
		e.deps.Metrics.RecordVolume(ctx, req.Category.String(), req.EstimatedBytes)
	}

	return Verdict{
		Allowed:            true,
		Reason:             reason,
		RecommendedAction:  action,
		RiskScore:          riskScore(client),
		EnhancedMonitoring: enhanced,
	}, nil
}

// deny records the failed attempt in the ledger, hands the consequences to
// the recorder, and shapes the caller-facing verdict.
func (e *Engine) deny(
	ctx context.Context,
	req access.Request,
	start time.Time,
	vtype violation.Type,
	reason Reason,
	detail string,
	retryAfter time.Duration,
	assessment *anomaly.Assessment,
	report *patterns.Report,
) Verdict {
	if entry, err := req.ToEntry(false); err == nil {
		if err := e.deps.Ledger.Record(ctx, entry); err != nil {
			e.logger.Warn("denied-entry ledger append failed",
				zap.String("client_id", req.ClientID.String()),
				zap.Error(err))
		}
	}

	client, err := e.deps.Recorder.Record(ctx, req, vtype, reason, detail, assessment, report)
	if err != nil {
		e.logger.Error("denial consequences failed to record",
			zap.String("client_id", req.ClientID.String()),
			zap.String("violation_type", vtype.String()),
			zap.Error(err))
	}

	e.recordEvaluation(ctx, req, start, false, reason)

	tier := domainrep.TierCritical
	if client != nil {
		tier = client.Tier()
	}

	return Verdict{
		Reason:            reason,
		ViolationType:     vtype,
		RetryAfterSeconds: retrySeconds(retryAfter),
		RecommendedAction: RecommendAction(tier, vtype, reason),
		RiskScore:         riskScore(client),
	}
}

// failClosed is the DataUnavailable path: the request is denied because
// the system cannot see its risk, and the outage is escalated through the
// log rather than billed to the client as a violation.
func (e *Engine) failClosed(ctx context.Context, req access.Request, start time.Time, detail string, cause error) Verdict {
	e.logger.Error("access denied fail-closed, risk data unavailable",
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("client_id", req.ClientID.String()),
		zap.String("detail", detail),
		zap.Error(cause))

	e.recordEvaluation(ctx, req, start, false, ReasonRiskDataUnavailable)

	return Verdict{
		Reason:            ReasonRiskDataUnavailable,
		RetryAfterSeconds: retrySeconds(unavailableRetry),
		RecommendedAction: ActionRetryLater,
		RiskScore:         100,
	}
}

// appendAllowEvent emits the access.allowed audit event.
func (e *Engine) appendAllowEvent(ctx context.Context, req access.Request, entry *access.Entry, enhanced bool) {
	event, err := audit.NewEvent(audit.EventAccessAllowed, req.TenantID, req.ClientID, "access.evaluate", req.Now)
	if err != nil {
		e.logger.Error("failed to build allow audit event", zap.Error(err))
		return
	}

	event.WithActor(req.ActorID).
		WithMetadata("entry_id", entry.ID.String()).
		WithMetadata("data_category", req.Category.String()).
		WithMetadata("bytes", req.EstimatedBytes).
		WithMetadata("enhanced_monitoring", enhanced)

	_ = e.deps.Sink.Append(ctx, event)
}

func (e *Engine) recordEvaluation(ctx context.Context, req access.Request, start time.Time, allowed bool, reason Reason) {
	if e.deps.Metrics == nil {
		return
	}
	durationMS := float64(time.Since(start).Microseconds()) / 1000.0
	e.deps.Metrics.RecordEvaluation(ctx, durationMS, req.Category.String(), allowed, string(reason))
}

// limitDetail renders the breached limit for the violation record.
func limitDetail(d ratelimit.Decision) string {
	switch d.Check {
	case ratelimit.CheckVolume:
		return "24h volume window exhausted"
	case ratelimit.CheckSessions:
		return "concurrent session limit reached"
	default:
		return "sliding window request limit reached"
	}
}
