package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/baseline"
	"github.com/learnershield/learner-data-gateway/internal/domain/values"
)

// BaselineBuilder builds settled behavioral baselines. Defaults describe
// an integration that reads profile data steadily during business hours
// from a couple of known networks.
type BaselineBuilder struct {
	tenantID             uuid.UUID
	clientID             uuid.UUID
	version              int
	sampleCount          int
	meanRequestSize      float64
	requestSizeStdDev    float64
	meanRequestsPerHour  float64
	peakHours            []int
	categoryDistribution map[access.DataCategory]float64
	meanSessionSeconds   float64
	sessionStdDevSeconds float64
	networkRanges        []string
	agentFingerprints    []string
	confidence           float64
	createdAt            time.Time
}

// NewBaselineBuilder creates a builder with settled defaults.
func NewBaselineBuilder() *BaselineBuilder {
	return &BaselineBuilder{
		tenantID:            uuid.New(),
		clientID:            uuid.New(),
		version:             3,
		sampleCount:         200,
		meanRequestSize:     50 * 1024,
		requestSizeStdDev:   15 * 1024,
		meanRequestsPerHour: 40,
		peakHours:           []int{9, 10, 11, 12, 13, 14, 15, 16, 17},
		categoryDistribution: map[access.DataCategory]float64{
			access.CategoryProfile:    0.5,
			access.CategoryAggregated: 0.3,
			access.CategoryAssessment: 0.2,
		},
		meanSessionSeconds:   1800,
		sessionStdDevSeconds: 600,
		networkRanges:        []string{"10.42.0.0/16", "192.168.5.0/24"},
		agentFingerprints:    []string{"sdk-go-2.4", "sdk-python-1.9"},
		confidence:           1.0,
		createdAt:            time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

// WithTenant sets the tenant
func (b *BaselineBuilder) WithTenant(id uuid.UUID) *BaselineBuilder {
	b.tenantID = id
	return b
}

// WithClient sets the client
func (b *BaselineBuilder) WithClient(id uuid.UUID) *BaselineBuilder {
	b.clientID = id
	return b
}

// WithVersion sets the baseline version
func (b *BaselineBuilder) WithVersion(v int) *BaselineBuilder {
	b.version = v
	return b
}

// WithSamples sets the sample count
func (b *BaselineBuilder) WithSamples(n int) *BaselineBuilder {
	b.sampleCount = n
	return b
}

// WithRequestSize sets the request size statistics
func (b *BaselineBuilder) WithRequestSize(mean, stdDev float64) *BaselineBuilder {
	b.meanRequestSize = mean
	b.requestSizeStdDev = stdDev
	return b
}

// WithRequestRate sets the mean hourly request rate
func (b *BaselineBuilder) WithRequestRate(perHour float64) *BaselineBuilder {
	b.meanRequestsPerHour = perHour
	return b
}

// WithPeakHours sets the learned active hours
func (b *BaselineBuilder) WithPeakHours(hours ...int) *BaselineBuilder {
	b.peakHours = hours
	return b
}

// WithDistribution sets the category distribution
func (b *BaselineBuilder) WithDistribution(dist map[access.DataCategory]float64) *BaselineBuilder {
	b.categoryDistribution = dist
	return b
}

// WithSessions sets the session duration statistics
func (b *BaselineBuilder) WithSessions(meanSeconds, stdDevSeconds float64) *BaselineBuilder {
	b.meanSessionSeconds = meanSeconds
	b.sessionStdDevSeconds = stdDevSeconds
	return b
}

// WithNetworks sets the learned network ranges
func (b *BaselineBuilder) WithNetworks(ranges ...string) *BaselineBuilder {
	b.networkRanges = ranges
	return b
}

// WithAgents sets the learned agent fingerprints
func (b *BaselineBuilder) WithAgents(fingerprints ...string) *BaselineBuilder {
	b.agentFingerprints = fingerprints
	return b
}

// WithConfidence sets the baseline confidence
func (b *BaselineBuilder) WithConfidence(c float64) *BaselineBuilder {
	b.confidence = c
	return b
}

// At sets the creation time
func (b *BaselineBuilder) At(t time.Time) *BaselineBuilder {
	b.createdAt = t
	return b
}

// Build creates the baseline
func (b *BaselineBuilder) Build(t *testing.T) *baseline.Baseline {
	t.Helper()

	bl, err := baseline.New(b.tenantID, b.clientID, 7, b.createdAt)
	require.NoError(t, err)

	bl.Version = b.version
	bl.SampleCount = b.sampleCount
	bl.MeanRequestSize = b.meanRequestSize
	bl.RequestSizeStdDev = b.requestSizeStdDev
	bl.MeanRequestsPerHour = b.meanRequestsPerHour
	bl.PeakHours = b.peakHours
	bl.CategoryDistribution = b.categoryDistribution
	bl.MeanSessionSeconds = b.meanSessionSeconds
	bl.SessionStdDevSeconds = b.sessionStdDevSeconds
	bl.NetworkRanges = b.networkRanges
	bl.AgentFingerprints = b.agentFingerprints
	bl.Confidence = values.MustNewConfidence(b.confidence)

	return bl
}
