package patterns

import (
	"context"
	"fmt"
	"time"

	"github.com/learnershield/learner-data-gateway/internal/domain/values"
)

const (
	// bulkVolumeRatio is how far past the client's own daily baseline
	// today's volume must run before it reads as harvesting.
	bulkVolumeRatio = 3.0

	// bulkRatioSaturation is the ratio at which confidence maxes out.
	bulkRatioSaturation = 10.0

	// bulkHourlyRate is the sustained request rate that corroborates a
	// volume spike.
	bulkHourlyRate = 30

	// bulkSingleRequestBytes is the single-request size that
	// corroborates on its own.
	bulkSingleRequestBytes = 10 * 1024 * 1024
)

// bulkCollectionDetector flags a client pulling far more data than its
// own history says is normal, corroborated by either a hot request rate
// or an outsized single transfer. A client with no volume history cannot
// trip this detector; the anomaly scorer covers new clients instead.
type bulkCollectionDetector struct{}

// NewBulkCollectionDetector creates the bulk-collection detector.
func NewBulkCollectionDetector() Detector {
	return bulkCollectionDetector{}
}

func (bulkCollectionDetector) Name() string { return NameBulkCollection }

func (bulkCollectionDetector) Check(_ context.Context, in *Input) Finding {
	baseline := historicalDailyMean(in)
	if baseline <= 0 {
		return notDetected(NameBulkCollection)
	}

	day := statsOf(in.EntriesSince(24 * time.Hour))
	projected := float64(day.totalBytes + in.Request.EstimatedBytes)
	ratio := projected / baseline
	if ratio <= bulkVolumeRatio {
		return notDetected(NameBulkCollection)
	}

	lastHour := statsOf(in.EntriesSince(time.Hour))
	hotRate := lastHour.requests+1 > bulkHourlyRate
	largest := day.largestBytes
	if in.Request.EstimatedBytes > largest {
		largest = in.Request.EstimatedBytes
	}
	oversized := largest > bulkSingleRequestBytes

	if !hotRate && !oversized {
		return notDetected(NameBulkCollection)
	}

	// Confidence scales with the ratio and saturates at 10x baseline.
	confidence := values.SaturatingConfidence(ratio / bulkRatioSaturation)

	return Finding{
		Detector:   NameBulkCollection,
		Detected:   true,
		Confidence: confidence,
		Evidence: fmt.Sprintf("volume %.1fx daily baseline (%.0f vs %.0f bytes), rate=%d/h, largest=%d bytes",
			ratio, projected, baseline, lastHour.requests, largest),
	}
}

// historicalDailyMean averages the client's settled volume history,
// leaving out the current (still accumulating) day.
func historicalDailyMean(in *Input) float64 {
	history := in.DailyHistory
	if len(history) > 0 {
		last := history[len(history)-1]
		if !last.Day.Before(in.Now.UTC().Truncate(24 * time.Hour)) {
			history = history[:len(history)-1]
		}
	}
	if len(history) == 0 {
		return 0
	}

	var total int64
	for _, day := range history {
		total += day.TotalBytes.Bytes()
	}
	return float64(total) / float64(len(history))
}
