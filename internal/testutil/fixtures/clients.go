package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/learnershield/learner-data-gateway/internal/domain/reputation"
	"github.com/learnershield/learner-data-gateway/internal/domain/values"
	"github.com/learnershield/learner-data-gateway/internal/domain/violation"
)

// ReputationBuilder builds reputation records in arbitrary states
// without replaying the full mutation history that produced them.
type ReputationBuilder struct {
	tenantID              uuid.UUID
	clientID              uuid.UUID
	score                 float64
	totalRequests         int64
	successfulRequests    int64
	violationCount        int
	consecutiveViolations int
	suspiciousPatterns    int
	complianceViolations  int
	anomalyScore          float64
	automationProbability float64
	now                   time.Time
}

// NewReputationBuilder creates a builder for a clean client: full score,
// some successful traffic, nothing on record.
func NewReputationBuilder() *ReputationBuilder {
	return &ReputationBuilder{
		tenantID:           uuid.New(),
		clientID:           uuid.New(),
		score:              100,
		totalRequests:      500,
		successfulRequests: 500,
		now:                time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

// WithTenant sets the tenant
func (b *ReputationBuilder) WithTenant(id uuid.UUID) *ReputationBuilder {
	b.tenantID = id
	return b
}

// WithClient sets the client
func (b *ReputationBuilder) WithClient(id uuid.UUID) *ReputationBuilder {
	b.clientID = id
	return b
}

// WithScore sets the reputation score
func (b *ReputationBuilder) WithScore(score float64) *ReputationBuilder {
	b.score = score
	return b
}

// WithRequests sets the request counters
func (b *ReputationBuilder) WithRequests(total, successful int64) *ReputationBuilder {
	b.totalRequests = total
	b.successfulRequests = successful
	return b
}

// WithViolations sets the lifetime and consecutive violation counters
func (b *ReputationBuilder) WithViolations(total, consecutive int) *ReputationBuilder {
	b.violationCount = total
	b.consecutiveViolations = consecutive
	return b
}

// WithSuspiciousPatterns sets the suspicious pattern counter
func (b *ReputationBuilder) WithSuspiciousPatterns(n int) *ReputationBuilder {
	b.suspiciousPatterns = n
	return b
}

// WithComplianceViolations sets the compliance violation counter
func (b *ReputationBuilder) WithComplianceViolations(n int) *ReputationBuilder {
	b.complianceViolations = n
	return b
}

// WithBehavioralSignals sets the anomaly score and automation probability
func (b *ReputationBuilder) WithBehavioralSignals(anomaly, automation float64) *ReputationBuilder {
	b.anomalyScore = anomaly
	b.automationProbability = automation
	return b
}

// At sets the record's timestamps
func (b *ReputationBuilder) At(t time.Time) *ReputationBuilder {
	b.now = t
	return b
}

// Build creates the client record
func (b *ReputationBuilder) Build(t *testing.T) *reputation.Client {
	t.Helper()

	client, err := reputation.NewClient(b.tenantID, b.clientID, b.now)
	require.NoError(t, err)

	client.Score = values.MustNewScore(b.score)
	client.TotalRequests = b.totalRequests
	client.SuccessfulRequests = b.successfulRequests
	client.ViolationCount = b.violationCount
	client.ConsecutiveViolations = b.consecutiveViolations
	client.MaxConsecutiveViolations = b.consecutiveViolations
	client.SuspiciousPatternCount = b.suspiciousPatterns
	client.ComplianceViolationCount = b.complianceViolations
	client.BehavioralAnomalyScore = b.anomalyScore
	client.AutomationProbability = b.automationProbability
	client.UpdatedAt = b.now

	return client
}

// ClientScenarios provides pre-built reputation states that come up in
// policy tests over and over.
type ClientScenarios struct {
	t *testing.T
}

// NewClientScenarios creates a new ClientScenarios helper
func NewClientScenarios(t *testing.T) *ClientScenarios {
	return &ClientScenarios{t: t}
}

// Trusted returns a long-standing client with a spotless record.
func (s *ClientScenarios) Trusted() *reputation.Client {
	return NewReputationBuilder().WithRequests(10000, 9990).Build(s.t)
}

// Probation returns a client one violation into a streak, scored into
// the medium tier.
func (s *ClientScenarios) Probation() *reputation.Client {
	return NewReputationBuilder().
		WithScore(72).
		WithViolations(3, 1).
		WithRequests(2000, 1900).
		Build(s.t)
}

// RepeatOffender returns a client deep in a violation streak.
func (s *ClientScenarios) RepeatOffender() *reputation.Client {
	return NewReputationBuilder().
		WithScore(45).
		WithViolations(8, 3).
		WithSuspiciousPatterns(2).
		WithRequests(3000, 2400).
		Build(s.t)
}

// Critical returns a client whose score has collapsed below the lockout
// floor.
func (s *ClientScenarios) Critical() *reputation.Client {
	return NewReputationBuilder().
		WithScore(20).
		WithViolations(12, 5).
		WithSuspiciousPatterns(4).
		WithComplianceViolations(1).
		WithRequests(5000, 3000).
		Build(s.t)
}

// Scripted returns a clean-scored client whose behavioral signals point
// at automation.
func (s *ClientScenarios) Scripted() *reputation.Client {
	return NewReputationBuilder().
		WithScore(88).
		WithBehavioralSignals(0.75, 0.9).
		WithRequests(4000, 3990).
		Build(s.t)
}

// AfterViolation applies a violation of the given type and returns the
// penalty, for tests that need organically mutated state instead of a
// hand-assembled one.
func (s *ClientScenarios) AfterViolation(client *reputation.Client, vtype violation.Type, now time.Time) float64 {
	s.t.Helper()
	return client.RecordViolation(vtype, now)
}
