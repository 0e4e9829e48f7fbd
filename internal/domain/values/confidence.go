package values

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"

	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
)

// Confidence represents a detector or baseline confidence on the unit
// interval [0, 1].
type Confidence struct {
	value float64
}

// NewConfidence creates a Confidence value object with validation.
func NewConfidence(value float64) (Confidence, error) {
	if math.IsNaN(value) {
		return Confidence{}, errors.NewValidationError("CONFIDENCE_NAN",
			"confidence cannot be NaN")
	}
	if math.IsInf(value, 0) {
		return Confidence{}, errors.NewValidationError("CONFIDENCE_INFINITE",
			"confidence cannot be infinite")
	}
	if value < 0.0 || value > 1.0 {
		return Confidence{}, errors.NewValidationError("CONFIDENCE_OUT_OF_RANGE",
			fmt.Sprintf("confidence %.3f must be between 0 and 1", value))
	}
	return Confidence{value: value}, nil
}

// MustNewConfidence creates a Confidence and panics on error (for constants/tests).
func MustNewConfidence(value float64) Confidence {
	c, err := NewConfidence(value)
	if err != nil {
		panic(err)
	}
	return c
}

// ZeroConfidence returns a confidence of 0.
func ZeroConfidence() Confidence {
	return Confidence{value: 0}
}

// SaturatingConfidence maps an unbounded ratio onto the unit interval,
// capping at 1.
func SaturatingConfidence(value float64) Confidence {
	if math.IsNaN(value) || value < 0 {
		return Confidence{value: 0}
	}
	if value > 1 {
		return Confidence{value: 1}
	}
	return Confidence{value: value}
}

// Value returns the numeric confidence.
func (c Confidence) Value() float64 {
	return c.value
}

// Meets checks the confidence against an inclusive threshold.
func (c Confidence) Meets(threshold float64) bool {
	return c.value >= threshold
}

// Exceeds checks the confidence against a strict threshold.
func (c Confidence) Exceeds(threshold float64) bool {
	return c.value > threshold
}

// Equal checks if two Confidence values are equal.
func (c Confidence) Equal(other Confidence) bool {
	return c.value == other.value
}

// String returns a string representation of the confidence.
func (c Confidence) String() string {
	return fmt.Sprintf("%.3f", c.value)
}

// MarshalJSON implements JSON marshaling
func (c Confidence) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.value)
}

// UnmarshalJSON implements JSON unmarshaling
func (c *Confidence) UnmarshalJSON(data []byte) error {
	var value float64
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}

	conf, err := NewConfidence(value)
	if err != nil {
		return err
	}

	*c = conf
	return nil
}

// Scan implements sql.Scanner for database retrieval
func (c *Confidence) Scan(value interface{}) error {
	if value == nil {
		*c = ZeroConfidence()
		return nil
	}

	var val float64
	switch v := value.(type) {
	case float64:
		val = v
	case int64:
		val = float64(v)
	case []byte:
		if _, err := fmt.Sscanf(string(v), "%f", &val); err != nil {
			return fmt.Errorf("cannot parse confidence from %q: %w", string(v), err)
		}
	default:
		return fmt.Errorf("cannot scan %T into Confidence", value)
	}

	conf, err := NewConfidence(val)
	if err != nil {
		return err
	}

	*c = conf
	return nil
}

// DatabaseValue implements driver.Valuer for database storage
func (c Confidence) DatabaseValue() (driver.Value, error) {
	return c.value, nil
}
