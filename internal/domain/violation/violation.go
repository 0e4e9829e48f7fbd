package violation

import (
	"time"

	"github.com/google/uuid"

	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	"github.com/learnershield/learner-data-gateway/internal/domain/values"
)

// Type identifies why an access request was denied. The same constants are
// used as verdict reasons, violation records, and reputation outcomes so
// the three views of one denial never drift apart.
type Type string

const (
	// TypeRateLimit is a sliding-window request rate breach.
	TypeRateLimit Type = "rate_limit_exceeded"
	// TypeVolumeLimit is a 24h cumulative byte volume breach.
	TypeVolumeLimit Type = "volume_limit_exceeded"
	// TypeSuspiciousPattern is a behavioral pattern flagged by the detectors.
	TypeSuspiciousPattern Type = "suspicious_pattern_detected"
	// TypeCompliance is a scope or cross-tenant access breach.
	TypeCompliance Type = "compliance_violation"
)

// IsValid reports whether the type is one of the known violation classes.
func (t Type) IsValid() bool {
	switch t {
	case TypeRateLimit, TypeVolumeLimit, TypeSuspiciousPattern, TypeCompliance:
		return true
	}
	return false
}

func (t Type) String() string {
	return string(t)
}

// Severity grades a violation for triage and automated response.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DefaultSeverity maps a violation type to its baseline severity. Callers
// may escalate it when the surrounding context warrants.
func DefaultSeverity(t Type) Severity {
	switch t {
	case TypeRateLimit:
		return SeverityLow
	case TypeVolumeLimit:
		return SeverityMedium
	case TypeSuspiciousPattern:
		return SeverityHigh
	case TypeCompliance:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// Violation is an immutable record of one denied request. Every violation
// produces exactly one reputation mutation and one audit write; the
// recorder service enforces that pairing.
type Violation struct {
	ID                   uuid.UUID `json:"id"`
	TenantID             uuid.UUID `json:"tenant_id"`
	ClientID             uuid.UUID `json:"client_id"`
	ActorID              uuid.UUID `json:"actor_id"`
	Type                 Type      `json:"violation_type"`
	Severity             Severity  `json:"severity"`
	Detail               string    `json:"detail"`
	AutomaticResponse    string    `json:"automatic_response,omitempty"`
	ManualReviewRequired bool      `json:"manual_review_required"`
	DetectedAt           time.Time `json:"detected_at"`
}

// New creates a validated violation record.
func New(tenantID, clientID, actorID uuid.UUID, vtype Type, detail string, detectedAt time.Time) (*Violation, error) {
	if tenantID == uuid.Nil || clientID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_IDENTITY",
			"violation requires tenant and client identifiers")
	}
	if !vtype.IsValid() {
		return nil, errors.NewValidationError("UNKNOWN_VIOLATION_TYPE",
			"violation type must be one of the known classes")
	}
	if detectedAt.IsZero() {
		return nil, errors.NewValidationError("MISSING_DETECTED_AT",
			"violation detection time is required")
	}

	severity := DefaultSeverity(vtype)
	return &Violation{
		ID:                   uuid.New(),
		TenantID:             tenantID,
		ClientID:             clientID,
		ActorID:              actorID,
		Type:                 vtype,
		Severity:             severity,
		Detail:               detail,
		ManualReviewRequired: severity == SeverityHigh || severity == SeverityCritical,
		DetectedAt:           detectedAt.UTC(),
	}, nil
}

// Escalate raises the severity and marks the violation for manual review.
func (v *Violation) Escalate(severity Severity, automaticResponse string) {
	v.Severity = severity
	v.AutomaticResponse = automaticResponse
	if severity == SeverityHigh || severity == SeverityCritical {
		v.ManualReviewRequired = true
	}
}

// AnomalyRecord captures a behavioral anomaly whose composite score crossed
// the reporting threshold. Scores carry the per-dimension snapshot for
// investigation; they are never surfaced to the denied client.
type AnomalyRecord struct {
	ID                    uuid.UUID          `json:"id"`
	TenantID              uuid.UUID          `json:"tenant_id"`
	ClientID              uuid.UUID          `json:"client_id"`
	ActorID               uuid.UUID          `json:"actor_id"`
	AnomalyType           string             `json:"anomaly_type"`
	Severity              Severity           `json:"severity"`
	Confidence            values.Confidence  `json:"confidence"`
	DetectedPatterns      []string           `json:"detected_patterns,omitempty"`
	Scores                map[string]float64 `json:"scores"`
	InvestigationRequired bool               `json:"investigation_required"`
	DetectedAt            time.Time          `json:"detected_at"`
}

// NewAnomalyRecord creates a validated anomaly record.
func NewAnomalyRecord(tenantID, clientID, actorID uuid.UUID, anomalyType string, severity Severity, confidence values.Confidence, scores map[string]float64, detectedAt time.Time) (*AnomalyRecord, error) {
	if tenantID == uuid.Nil || clientID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_IDENTITY",
			"anomaly record requires tenant and client identifiers")
	}
	if anomalyType == "" {
		return nil, errors.NewValidationError("MISSING_ANOMALY_TYPE",
			"anomaly type is required")
	}

	snapshot := make(map[string]float64, len(scores))
	for dim, score := range scores {
		snapshot[dim] = score
	}

	return &AnomalyRecord{
		ID:                    uuid.New(),
		TenantID:              tenantID,
		ClientID:              clientID,
		ActorID:               actorID,
		AnomalyType:           anomalyType,
		Severity:              severity,
		Confidence:            confidence,
		Scores:                snapshot,
		InvestigationRequired: severity == SeverityCritical,
		DetectedAt:            detectedAt.UTC(),
	}, nil
}

// WithPatterns attaches the behavioral patterns that fired alongside.
func (a *AnomalyRecord) WithPatterns(patterns []string) *AnomalyRecord {
	a.DetectedPatterns = append([]string(nil), patterns...)
	return a
}
