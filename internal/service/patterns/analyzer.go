package patterns

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	"github.com/learnershield/learner-data-gateway/internal/domain/reputation"
	"github.com/learnershield/learner-data-gateway/internal/domain/violation"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/auth"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/config"
	"github.com/learnershield/learner-data-gateway/internal/metrics"
)

// bulkHistoryDays is how many days of settled volume history feed the
// bulk-collection baseline.
const bulkHistoryDays = 14

// Report is the aggregated outcome of one detection pass.
type Report struct {
	Findings []Finding

	// Fired holds the findings that detected with at least the minimum
	// confidence, in detector order.
	Fired []Finding

	// Suspicious is the corroboration rule: at least two detectors
	// fired and their mean confidence clears the floor.
	Suspicious bool

	// MeanConfidence averages the fired detectors' confidence; zero
	// when nothing fired.
	MeanConfidence float64

	// MaxConfidence is the strongest single firing.
	MaxConfidence float64
}

// FiredNames lists the detectors that fired, for audit metadata and
// anomaly records.
func (r *Report) FiredNames() []string {
	names := make([]string, 0, len(r.Fired))
	for _, f := range r.Fired {
		names = append(names, f.Detector)
	}
	return names
}

// Confidence returns a named detector's confidence, fired or not.
func (r *Report) Confidence(detector string) float64 {
	for _, f := range r.Findings {
		if f.Detector == detector {
			return f.Confidence.Value()
		}
	}
	return 0
}

// Analyzer runs the detector battery over one client's recent history.
// It gathers the evidence bundle once per pass so every detector sees
// the same snapshot, then applies the corroboration rule: one heuristic
// firing is noise, two or more agreeing is a pattern.
type Analyzer struct {
	ledger     access.Repository
	volumes    access.VolumeRepository
	violations violation.Repository
	detectors  []Detector
	cfg        config.DetectionConfig
	metrics    *metrics.Registry
	logger     *zap.Logger
}

// NewAnalyzer creates the analyzer with the full detector battery.
func NewAnalyzer(
	ledger access.Repository,
	volumes access.VolumeRepository,
	violations violation.Repository,
	cfg config.DetectionConfig,
	registry *metrics.Registry,
	logger *zap.Logger,
) (*Analyzer, error) {
	if ledger == nil || volumes == nil || violations == nil {
		return nil, errors.NewInternalError("analyzer requires ledger, volume, and violation repositories")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Analyzer{
		ledger:     ledger,
		volumes:    volumes,
		violations: violations,
		detectors: []Detector{
			NewEnumerationDetector(),
			NewBulkCollectionDetector(),
			NewEscalationDetector(),
			NewCoordinatedDetector(),
			NewReconnaissanceDetector(),
			NewEvasionDetector(),
			NewOffHoursDetector(),
		},
		cfg:     cfg,
		metrics: registry,
		logger:  logger,
	}, nil
}

// Gather assembles the evidence bundle for one request. Any read failure
// is surfaced as DataUnavailable: a detector pass that cannot see the
// history must not be mistaken for a clean one.
func (a *Analyzer) Gather(ctx context.Context, req access.Request, grant *auth.Grant, rep *reputation.Client) (*Input, error) {
	now := req.Now
	lookback := time.Duration(a.cfg.LookbackHours) * time.Hour
	since := now.Add(-lookback)

	entries, err := a.ledger.ListByClient(ctx, req.TenantID, req.ClientID, since, now)
	if err != nil {
		return nil, err
	}

	actorCount, err := a.ledger.CountTenantActors(ctx, req.TenantID, since)
	if err != nil {
		return nil, err
	}

	tenantViolations, err := a.violations.ListByTenantSince(ctx, req.TenantID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}

	history, err := a.volumes.DailyTotals(ctx, req.TenantID, req.ClientID, bulkHistoryDays, now)
	if err != nil {
		return nil, err
	}

	return &Input{
		Request:          req,
		Grant:            grant,
		Reputation:       rep,
		Entries:          entries,
		TenantActorCount: actorCount,
		TenantViolations: tenantViolations,
		DailyHistory:     history,
		Config:           a.cfg,
		Now:              now,
	}, nil
}

// Run executes every detector against the gathered input and aggregates
// the findings.
func (a *Analyzer) Run(ctx context.Context, in *Input) *Report {
	start := time.Now()
	report := &Report{Findings: make([]Finding, 0, len(a.detectors))}

	for _, detector := range a.detectors {
		finding := detector.Check(ctx, in)
		report.Findings = append(report.Findings, finding)

		if finding.Confidence.Value() > report.MaxConfidence {
			report.MaxConfidence = finding.Confidence.Value()
		}
		if finding.Detected && finding.Confidence.Meets(a.cfg.MinDetectorConfidence) {
			report.Fired = append(report.Fired, finding)
			a.logger.Debug("detector fired",
				zap.String("detector", finding.Detector),
				zap.Float64("confidence", finding.Confidence.Value()),
				zap.String("client_id", in.Request.ClientID.String()),
				zap.String("evidence", finding.Evidence))
		}
	}

	if len(report.Fired) >= 2 {
		var sum float64
		for _, f := range report.Fired {
			sum += f.Confidence.Value()
		}
		report.MeanConfidence = sum / float64(len(report.Fired))
		report.Suspicious = report.MeanConfidence > a.cfg.MeanConfidenceFloor
	}

	if a.metrics != nil {
		a.metrics.RecordDetectionPass(ctx,
			float64(time.Since(start).Microseconds())/1000.0,
			report.FiredNames(), report.Suspicious)
	}

	return report
}

// Analyze gathers and runs in one call.
func (a *Analyzer) Analyze(ctx context.Context, req access.Request, grant *auth.Grant, rep *reputation.Client) (*Input, *Report, error) {
	in, err := a.Gather(ctx, req, grant, rep)
	if err != nil {
		return nil, nil, err
	}
	return in, a.Run(ctx, in), nil
}
