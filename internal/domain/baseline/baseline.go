package baseline

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	"github.com/learnershield/learner-data-gateway/internal/domain/values"
)

// DefaultLearningPeriodDays is the historical window a baseline is learned
// from when no tenant override applies.
const DefaultLearningPeriodDays = 7

// Baseline is a versioned statistical profile of one client's normal
// traffic. A baseline is immutable once created; refreshes write a new
// version rather than mutating in place, so in-flight evaluations always
// score against a consistent snapshot.
type Baseline struct {
	ClientID             uuid.UUID                        `json:"client_id"`
	TenantID             uuid.UUID                        `json:"tenant_id"`
	Version              int                              `json:"version"`
	LearningPeriodDays   int                              `json:"learning_period_days"`
	SampleCount          int                              `json:"sample_count"`
	MeanRequestSize      float64                          `json:"mean_request_size"`
	RequestSizeStdDev    float64                          `json:"request_size_std_dev"`
	MeanRequestsPerHour  float64                          `json:"mean_requests_per_hour"`
	PeakHours            []int                            `json:"peak_hours"`
	CategoryDistribution map[access.DataCategory]float64  `json:"data_category_distribution"`
	MeanSessionSeconds   float64                          `json:"mean_session_seconds"`
	SessionStdDevSeconds float64                          `json:"session_std_dev_seconds"`
	NetworkRanges        []string                         `json:"common_network_ranges"`
	AgentFingerprints    []string                         `json:"common_agent_fingerprints"`
	Confidence           values.Confidence                `json:"confidence_score"`
	CreatedAt            time.Time                        `json:"created_at"`
}

// New creates the first version of a client's baseline. Successor versions
// are created through NextVersion on the current one.
func New(tenantID, clientID uuid.UUID, learningPeriodDays int, createdAt time.Time) (*Baseline, error) {
	if tenantID == uuid.Nil || clientID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_IDENTITY",
			"baseline requires tenant and client identifiers")
	}
	if learningPeriodDays <= 0 {
		learningPeriodDays = DefaultLearningPeriodDays
	}
	return &Baseline{
		ClientID:             clientID,
		TenantID:             tenantID,
		Version:              1,
		LearningPeriodDays:   learningPeriodDays,
		CategoryDistribution: map[access.DataCategory]float64{},
		Confidence:           values.ZeroConfidence(),
		CreatedAt:            createdAt.UTC(),
	}, nil
}

// NextVersion returns an empty successor snapshot carrying the identity and
// an incremented version number. The builder fills in the statistics.
func (b *Baseline) NextVersion(createdAt time.Time) *Baseline {
	return &Baseline{
		ClientID:             b.ClientID,
		TenantID:             b.TenantID,
		Version:              b.Version + 1,
		LearningPeriodDays:   b.LearningPeriodDays,
		CategoryDistribution: map[access.DataCategory]float64{},
		Confidence:           values.ZeroConfidence(),
		CreatedAt:            createdAt.UTC(),
	}
}

// CategoryProbability returns how often the client historically touched the
// category, on [0, 1]. Unseen categories return 0.
func (b *Baseline) CategoryProbability(category access.DataCategory) float64 {
	return b.CategoryDistribution[category]
}

// IsPeakHour reports whether the hour-of-day is in the client's learned
// active hours.
func (b *Baseline) IsPeakHour(hour int) bool {
	i := sort.SearchInts(b.PeakHours, hour)
	return i < len(b.PeakHours) && b.PeakHours[i] == hour
}

// KnowsNetwork reports whether the source network matches one of the
// client's learned ranges by prefix.
func (b *Baseline) KnowsNetwork(sourceNetwork string) bool {
	if sourceNetwork == "" {
		return false
	}
	for _, known := range b.NetworkRanges {
		if networkPrefix(known) == networkPrefix(sourceNetwork) {
			return true
		}
	}
	return false
}

// KnowsAgent reports whether the agent fingerprint was seen during
// learning.
func (b *Baseline) KnowsAgent(fingerprint string) bool {
	if fingerprint == "" {
		return false
	}
	for _, known := range b.AgentFingerprints {
		if known == fingerprint {
			return true
		}
	}
	return false
}

// HasSessionStats reports whether the learning window contained enough
// session data to make duration scoring meaningful.
func (b *Baseline) HasSessionStats() bool {
	return b.MeanSessionSeconds > 0
}

// networkPrefix collapses an address or CIDR to its first two dot-separated
// octets, a deliberately coarse grouping that tolerates DHCP churn inside a
// customer network.
func networkPrefix(network string) string {
	addr := network
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		addr = addr[:i]
	}
	parts := strings.Split(addr, ".")
	if len(parts) < 2 {
		return addr
	}
	return parts[0] + "." + parts[1]
}
