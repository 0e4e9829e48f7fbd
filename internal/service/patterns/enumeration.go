package patterns

import (
	"context"
	"fmt"
	"time"
)

const (
	// enumerationWindow bounds how quickly the actor sweep must have
	// happened to look systematic rather than organic.
	enumerationWindow = 6 * time.Hour

	// enumerationActorCoverage is the minimum fraction of the tenant's
	// actor population the client must have touched.
	enumerationActorCoverage = 0.20

	// enumerationCategoryCoverage is the minimum fraction of data
	// categories swept alongside.
	enumerationCategoryCoverage = 0.80
)

// enumerationDetector flags a client walking the tenant's learner
// population: a large share of distinct actors combined with
// near-complete category coverage inside a short window. Legitimate
// integrations read deep on few learners; enumeration reads shallow on
// many.
type enumerationDetector struct{}

// NewEnumerationDetector creates the systematic-enumeration detector.
func NewEnumerationDetector() Detector {
	return enumerationDetector{}
}

func (enumerationDetector) Name() string { return NameEnumeration }

func (enumerationDetector) Check(_ context.Context, in *Input) Finding {
	if in.TenantActorCount <= 0 {
		return notDetected(NameEnumeration)
	}

	st := statsOf(in.EntriesSince(enumerationWindow))
	if st.requests == 0 {
		return notDetected(NameEnumeration)
	}

	actorCoverage := float64(st.uniqueActors) / float64(in.TenantActorCount)
	categoryCoverage := st.categoryCoverage()

	if actorCoverage <= enumerationActorCoverage || categoryCoverage < enumerationCategoryCoverage {
		return notDetected(NameEnumeration)
	}

	// Confidence rides the actor sweep: covering half the population is
	// damning in a way that barely clearing 20% is not.
	confidence := scaleConfidence(actorCoverage, enumerationActorCoverage, 0.5)

	return Finding{
		Detector:   NameEnumeration,
		Detected:   true,
		Confidence: confidence,
		Evidence: fmt.Sprintf("%d of %d tenant actors (%.0f%%) across %d categories in %s",
			st.uniqueActors, in.TenantActorCount, actorCoverage*100,
			len(st.categories), enumerationWindow),
	}
}
