package patterns

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/values"
)

const (
	// evasionWindow is how far back fingerprint churn and timing are
	// examined.
	evasionWindow = time.Hour

	// evasionFingerprintChurn is how many distinct agent fingerprints or
	// network origins inside the window start to look like rotation.
	evasionFingerprintChurn = 3

	// evasionMinGaps is the minimum number of inter-request gaps before
	// cadence analysis means anything.
	evasionMinGaps = 5

	// evasionCadenceCV is the coefficient of variation below which
	// request timing is too regular to be a human or a bursty batch job.
	evasionCadenceCV = 0.1

	// evasionMinGapSeconds ignores tight bursts; metronomic pacing only
	// matters when the gaps are long enough to be deliberate spacing.
	evasionMinGapSeconds = 2.0
)

// evasionDetector flags clients working to stay under the radar: rotating
// network origins or agent fingerprints mid-window, or pacing requests
// with metronomic regularity to slide between rate windows. Normal
// traffic is sloppy; evasive traffic is tidy.
type evasionDetector struct{}

// NewEvasionDetector creates the evasion detector.
func NewEvasionDetector() Detector {
	return evasionDetector{}
}

func (evasionDetector) Name() string { return NameEvasion }

func (evasionDetector) Check(_ context.Context, in *Input) Finding {
	entries := in.EntriesSince(evasionWindow)
	st := statsOf(entries)
	if st.requests == 0 {
		return notDetected(NameEvasion)
	}

	churn := len(st.fingerprints)
	if len(st.networks) > churn {
		churn = len(st.networks)
	}

	cv, meanGap, gaps := cadence(entries)
	metronomic := gaps >= evasionMinGaps && cv < evasionCadenceCV && meanGap >= evasionMinGapSeconds

	rotating := churn >= evasionFingerprintChurn

	if !rotating && !metronomic {
		return notDetected(NameEvasion)
	}

	confidence := 0.0
	evidence := ""
	if rotating {
		confidence = math.Min(1, 0.4+0.15*float64(churn-evasionFingerprintChurn+1))
		evidence = fmt.Sprintf("%d distinct fingerprints/origins in %s", churn, evasionWindow)
	}
	if metronomic {
		timed := math.Min(1, 0.5+(evasionCadenceCV-cv)*5)
		if timed > confidence {
			confidence = timed
		}
		if evidence != "" {
			evidence += "; "
		}
		evidence += fmt.Sprintf("metronomic cadence over %d gaps (cv=%.3f, mean=%.1fs)", gaps, cv, meanGap)
	}

	return Finding{
		Detector:   NameEvasion,
		Detected:   true,
		Confidence: values.SaturatingConfidence(confidence),
		Evidence:   evidence,
	}
}

// cadence returns the coefficient of variation and mean of the
// inter-request gaps in seconds, plus how many gaps there were. Entries
// arrive oldest first.
func cadence(entries []*access.Entry) (cv, mean float64, gaps int) {
	if len(entries) < 2 {
		return 0, 0, 0
	}

	intervals := make([]float64, 0, len(entries)-1)
	for i := 1; i < len(entries); i++ {
		gap := entries[i].Timestamp.Sub(entries[i-1].Timestamp).Seconds()
		if gap > 0 {
			intervals = append(intervals, gap)
		}
	}
	if len(intervals) == 0 {
		return 0, 0, 0
	}

	var sum float64
	for _, gap := range intervals {
		sum += gap
	}
	mean = sum / float64(len(intervals))

	var variance float64
	for _, gap := range intervals {
		variance += (gap - mean) * (gap - mean)
	}
	variance /= float64(len(intervals))

	if mean > 0 {
		cv = math.Sqrt(variance) / mean
	}
	return cv, mean, len(intervals)
}
