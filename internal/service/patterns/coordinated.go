package patterns

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/learnershield/learner-data-gateway/internal/domain/values"
	"github.com/learnershield/learner-data-gateway/internal/domain/violation"
)

const (
	// coordinatedMinPeers is how many other misbehaving clients it takes
	// before this client's trouble looks orchestrated.
	coordinatedMinPeers = 2

	// coordinatedMinViolations is the per-peer violation floor inside
	// the 24h window.
	coordinatedMinViolations = 3

	// coordinatedCorrelationBucket is the granularity for temporal
	// correlation between clients' violation bursts.
	coordinatedCorrelationBucket = time.Hour
)

// coordinatedDetector flags multi-client attacks: several clients in the
// same tenant racking up violations in the same 24h window, weighted by
// how similar their violation mixes are and how tightly their bursts
// line up in time. One noisy client is a bug; five clients tripping the
// same limits in the same hours is a botnet.
type coordinatedDetector struct{}

// NewCoordinatedDetector creates the coordinated-attack detector.
func NewCoordinatedDetector() Detector {
	return coordinatedDetector{}
}

func (coordinatedDetector) Name() string { return NameCoordinated }

func (coordinatedDetector) Check(_ context.Context, in *Input) Finding {
	own := violationProfile{}
	peers := make(map[uuid.UUID]*violationProfile)

	for _, v := range in.TenantViolations {
		if v.ClientID == in.Request.ClientID {
			own.add(v)
			continue
		}
		profile, ok := peers[v.ClientID]
		if !ok {
			profile = &violationProfile{}
			peers[v.ClientID] = profile
		}
		profile.add(v)
	}

	var offenders []*violationProfile
	for _, profile := range peers {
		if profile.count >= coordinatedMinViolations {
			offenders = append(offenders, profile)
		}
	}
	if len(offenders) < coordinatedMinPeers {
		return notDetected(NameCoordinated)
	}

	// With no violations of its own yet, the client still sits inside a
	// misbehaving cohort; similarity weighting just cannot help.
	similarity := 0.0
	temporal := 0.0
	if own.count > 0 {
		for _, peer := range offenders {
			similarity += jaccard(own.types, peer.types)
			temporal += bucketOverlap(own.buckets, peer.buckets)
		}
		similarity /= float64(len(offenders))
		temporal /= float64(len(offenders))
	}

	base := 0.3 + 0.1*math.Min(3, float64(len(offenders)-coordinatedMinPeers+1))
	confidence := values.SaturatingConfidence(base + 0.25*similarity + 0.25*temporal)

	return Finding{
		Detector:   NameCoordinated,
		Detected:   true,
		Confidence: confidence,
		Evidence: fmt.Sprintf("%d peer clients with >=%d violations in 24h (similarity=%.2f, temporal=%.2f)",
			len(offenders), coordinatedMinViolations, similarity, temporal),
	}
}

// violationProfile summarizes one client's violations inside the window.
type violationProfile struct {
	count   int
	types   map[violation.Type]bool
	buckets map[int64]bool
}

func (p *violationProfile) add(v *violation.Violation) {
	if p.types == nil {
		p.types = make(map[violation.Type]bool)
		p.buckets = make(map[int64]bool)
	}
	p.count++
	p.types[v.Type] = true
	p.buckets[v.DetectedAt.Truncate(coordinatedCorrelationBucket).Unix()] = true
}

// jaccard is the similarity of two violation-type sets.
func jaccard(a, b map[violation.Type]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// bucketOverlap is the fraction of the smaller client's active hours
// that the other client was also active in.
func bucketOverlap(a, b map[int64]bool) float64 {
	smaller, larger := a, b
	if len(b) < len(a) {
		smaller, larger = b, a
	}
	if len(smaller) == 0 {
		return 0
	}
	shared := 0
	for bucket := range smaller {
		if larger[bucket] {
			shared++
		}
	}
	return float64(shared) / float64(len(smaller))
}
