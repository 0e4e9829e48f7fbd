package patterns

import (
	"context"
	"fmt"
	"time"
)

const (
	// offHoursLookback is the recent-activity window an off-hours
	// request is judged against.
	offHoursLookback = 4 * time.Hour

	// offHoursElevatedCount is the request count inside the lookback
	// that turns a late-night request into a late-night harvest.
	offHoursElevatedCount = 20

	// offHoursSaturationCount is the count at which confidence maxes
	// out.
	offHoursSaturationCount = 80
)

// offHoursDetector flags bulk activity outside the tenant's business
// hours. A single 2am request is an on-call engineer; a sustained 2am
// request stream is someone who prefers working while nobody watches
// the dashboards.
type offHoursDetector struct{}

// NewOffHoursDetector creates the off-hours bulk-access detector.
func NewOffHoursDetector() Detector {
	return offHoursDetector{}
}

func (offHoursDetector) Name() string { return NameOffHours }

func (offHoursDetector) Check(_ context.Context, in *Input) Finding {
	if withinBusinessHours(in.Now, in.Config.BusinessHoursStart, in.Config.BusinessHoursEnd) {
		return notDetected(NameOffHours)
	}

	recent := statsOf(in.EntriesSince(offHoursLookback))
	if recent.requests+1 <= offHoursElevatedCount {
		return notDetected(NameOffHours)
	}

	confidence := scaleConfidence(float64(recent.requests+1),
		float64(offHoursElevatedCount), float64(offHoursSaturationCount))

	return Finding{
		Detector:   NameOffHours,
		Detected:   true,
		Confidence: confidence,
		Evidence: fmt.Sprintf("%d requests in the last %s at %s UTC, outside %02d:00-%02d:00 weekdays",
			recent.requests+1, offHoursLookback, in.Now.UTC().Format("15:04"),
			in.Config.BusinessHoursStart, in.Config.BusinessHoursEnd),
	}
}

// withinBusinessHours reports whether t falls inside the weekday business
// window. Weekends are off-hours in their entirety.
func withinBusinessHours(t time.Time, startHour, endHour int) bool {
	t = t.UTC()
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	hour := t.Hour()
	return hour >= startHour && hour < endHour
}
