package access

import (
	"fmt"

	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
)

// DataCategory classifies learner data by sensitivity. Every access request
// names exactly one category; limits, baselines, and scope checks are all
// keyed by it.
type DataCategory string

const (
	CategoryProfile    DataCategory = "profile"
	CategoryBehavioral DataCategory = "behavioral"
	CategoryAssessment DataCategory = "assessment"
	CategoryRealTime   DataCategory = "real_time"
	CategoryAggregated DataCategory = "aggregated"
)

// AllCategories returns every known data category in a stable order.
func AllCategories() []DataCategory {
	return []DataCategory{
		CategoryProfile,
		CategoryBehavioral,
		CategoryAssessment,
		CategoryRealTime,
		CategoryAggregated,
	}
}

// ParseDataCategory validates a raw category string.
func ParseDataCategory(raw string) (DataCategory, error) {
	c := DataCategory(raw)
	if !c.IsValid() {
		return "", errors.NewValidationError("UNKNOWN_DATA_CATEGORY",
			fmt.Sprintf("unknown learner data category %q", raw))
	}
	return c, nil
}

// IsValid reports whether the category is one of the known classes.
func (c DataCategory) IsValid() bool {
	switch c {
	case CategoryProfile, CategoryBehavioral, CategoryAssessment, CategoryRealTime, CategoryAggregated:
		return true
	}
	return false
}

func (c DataCategory) String() string {
	return string(c)
}
