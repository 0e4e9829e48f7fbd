package patterns

import (
	"context"
	"fmt"
	"time"
)

const (
	// reconWindow is how far back breadth-vs-depth is measured.
	reconWindow = 6 * time.Hour

	// reconActorDiversity is the unique-actor-to-request ratio above
	// which traffic reads as probing rather than working.
	reconActorDiversity = 0.6

	// reconMaxAverageBytes is the average request size below which the
	// probing is shallow enough to matter.
	reconMaxAverageBytes = 1024

	// reconMinRequests keeps a handful of small requests from counting
	// as a sweep.
	reconMinRequests = 10
)

// reconnaissanceDetector flags high-breadth, low-depth probing: a new
// actor on almost every request, every data category touched, and tiny
// payloads throughout. That shape is someone mapping what the API
// exposes, not someone using it.
type reconnaissanceDetector struct{}

// NewReconnaissanceDetector creates the reconnaissance detector.
func NewReconnaissanceDetector() Detector {
	return reconnaissanceDetector{}
}

func (reconnaissanceDetector) Name() string { return NameReconnaissance }

func (reconnaissanceDetector) Check(_ context.Context, in *Input) Finding {
	st := statsOf(in.EntriesSince(reconWindow))
	if st.requests < reconMinRequests {
		return notDetected(NameReconnaissance)
	}

	diversity := float64(st.uniqueActors) / float64(st.requests)
	fullCoverage := st.categoryCoverage() >= 1.0
	shallow := st.averageBytes() < reconMaxAverageBytes

	if diversity <= reconActorDiversity || !fullCoverage || !shallow {
		return notDetected(NameReconnaissance)
	}

	confidence := scaleConfidence(diversity, reconActorDiversity, 1.0)

	return Finding{
		Detector:   NameReconnaissance,
		Detected:   true,
		Confidence: confidence,
		Evidence: fmt.Sprintf("%d actors over %d requests (diversity=%.2f), all categories, avg %.0f bytes",
			st.uniqueActors, st.requests, diversity, st.averageBytes()),
	}
}
