package patterns

import (
	"context"
	"time"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/reputation"
	"github.com/learnershield/learner-data-gateway/internal/domain/values"
	"github.com/learnershield/learner-data-gateway/internal/domain/violation"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/auth"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/config"
)

// Detector names, also used as pattern labels on anomaly records and
// audit metadata.
const (
	NameEnumeration    = "systematic_enumeration"
	NameBulkCollection = "bulk_collection"
	NameEscalation     = "privilege_escalation"
	NameCoordinated    = "coordinated_attack"
	NameReconnaissance = "reconnaissance"
	NameEvasion        = "evasion"
	NameOffHours       = "off_hours_bulk"
)

// Finding is one detector's verdict over the lookback window.
type Finding struct {
	Detector   string            `json:"detector"`
	Detected   bool              `json:"detected"`
	Confidence values.Confidence `json:"confidence"`
	Evidence   string            `json:"evidence,omitempty"`
}

// Detector is one independent behavioral heuristic. Detectors are
// stateless per call: everything they look at arrives in the Input.
type Detector interface {
	Name() string
	Check(ctx context.Context, in *Input) Finding
}

// Input is the shared evidence bundle one detection pass runs against.
// The analyzer gathers it once; every detector reads from the same
// snapshot so the pass is internally consistent.
type Input struct {
	Request    access.Request
	Grant      *auth.Grant
	Reputation *reputation.Client

	// Entries is the client's ledger window ending at Request.Now,
	// oldest first, including denied attempts.
	Entries []*access.Entry

	// TenantActorCount is the tenant's distinct-actor population over
	// the lookback, the denominator for coverage ratios.
	TenantActorCount int

	// TenantViolations covers the whole tenant's last 24h, for the
	// coordinated-attack correlation.
	TenantViolations []*violation.Violation

	// DailyHistory is the client's per-day volume history, oldest
	// first, for the bulk-collection baseline.
	DailyHistory []access.DayVolume

	Config config.DetectionConfig
	Now    time.Time
}

// EntriesSince returns the suffix of the window no older than the given
// duration. Entries are ordered oldest first, so this scans backward.
func (in *Input) EntriesSince(d time.Duration) []*access.Entry {
	cutoff := in.Now.Add(-d)
	for i := len(in.Entries) - 1; i >= 0; i-- {
		if in.Entries[i].Timestamp.Before(cutoff) {
			return in.Entries[i+1:]
		}
	}
	return in.Entries
}

// windowStats aggregates one slice of entries.
type windowStats struct {
	requests      int
	uniqueActors  int
	categories    map[access.DataCategory]bool
	totalBytes    int64
	largestBytes  int64
	networks      map[string]bool
	fingerprints  map[string]bool
	firstSeen     time.Time
	lastSeen      time.Time
}

func statsOf(entries []*access.Entry) windowStats {
	st := windowStats{
		categories:   make(map[access.DataCategory]bool),
		networks:     make(map[string]bool),
		fingerprints: make(map[string]bool),
	}
	actors := make(map[string]bool)

	for _, e := range entries {
		st.requests++
		actors[e.ActorID.String()] = true
		st.categories[e.Category] = true
		st.totalBytes += e.ByteSize.Bytes()
		if e.ByteSize.Bytes() > st.largestBytes {
			st.largestBytes = e.ByteSize.Bytes()
		}
		if e.SourceNetwork != "" {
			st.networks[e.SourceNetwork] = true
		}
		if e.AgentFingerprint != "" {
			st.fingerprints[e.AgentFingerprint] = true
		}
		if st.firstSeen.IsZero() || e.Timestamp.Before(st.firstSeen) {
			st.firstSeen = e.Timestamp
		}
		if e.Timestamp.After(st.lastSeen) {
			st.lastSeen = e.Timestamp
		}
	}

	st.uniqueActors = len(actors)
	return st
}

// categoryCoverage is the fraction of all data categories the slice
// touched.
func (st windowStats) categoryCoverage() float64 {
	return float64(len(st.categories)) / float64(len(access.AllCategories()))
}

// averageBytes is the mean request size over the slice.
func (st windowStats) averageBytes() float64 {
	if st.requests == 0 {
		return 0
	}
	return float64(st.totalBytes) / float64(st.requests)
}

// scaleConfidence maps value on [threshold, saturation] to a confidence
// on [0.5, 1]. A detector that has just crossed its threshold is a coin
// flip worth corroborating; one far past it approaches certainty.
func scaleConfidence(value, threshold, saturation float64) values.Confidence {
	if value <= threshold {
		return values.ZeroConfidence()
	}
	if saturation <= threshold || value >= saturation {
		return values.SaturatingConfidence(1)
	}
	return values.SaturatingConfidence(0.5 + 0.5*(value-threshold)/(saturation-threshold))
}

// notDetected is the shared empty finding.
func notDetected(name string) Finding {
	return Finding{Detector: name, Confidence: values.ZeroConfidence()}
}
