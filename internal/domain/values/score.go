package values

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"

	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
)

// Score represents a bounded trust or reputation score on a 0-100 scale.
// Arithmetic on a Score clamps at the boundaries instead of overflowing;
// a score can never leave [0, 100].
type Score struct {
	value float64
}

const (
	// MinScore is the floor of the score scale.
	MinScore = 0.0
	// MaxScore is the ceiling of the score scale. New clients start here.
	MaxScore = 100.0
)

// NewScore creates a Score value object with validation.
func NewScore(value float64) (Score, error) {
	if math.IsNaN(value) {
		return Score{}, errors.NewValidationError("SCORE_NAN",
			"score cannot be NaN")
	}
	if math.IsInf(value, 0) {
		return Score{}, errors.NewValidationError("SCORE_INFINITE",
			"score cannot be infinite")
	}
	if value < MinScore || value > MaxScore {
		return Score{}, errors.NewValidationError("SCORE_OUT_OF_RANGE",
			fmt.Sprintf("score %.2f must be between %.0f and %.0f", value, MinScore, MaxScore))
	}
	return Score{value: value}, nil
}

// MustNewScore creates a Score and panics on error (for constants/tests).
func MustNewScore(value float64) Score {
	s, err := NewScore(value)
	if err != nil {
		panic(err)
	}
	return s
}

// PerfectScore returns the starting score for a client with no history.
func PerfectScore() Score {
	return Score{value: MaxScore}
}

// ClampedScore builds a Score from an unbounded computation result,
// saturating at the scale boundaries. NaN collapses to the floor.
func ClampedScore(value float64) Score {
	if math.IsNaN(value) {
		return Score{value: MinScore}
	}
	if value < MinScore {
		return Score{value: MinScore}
	}
	if value > MaxScore {
		return Score{value: MaxScore}
	}
	return Score{value: value}
}

// Value returns the numeric score.
func (s Score) Value() float64 {
	return s.value
}

// Add returns a new Score raised by delta, saturating at the ceiling.
func (s Score) Add(delta float64) Score {
	return ClampedScore(s.value + delta)
}

// Subtract returns a new Score lowered by delta, saturating at the floor.
func (s Score) Subtract(delta float64) Score {
	return ClampedScore(s.value - delta)
}

// LessThan checks if this score is strictly below other.
func (s Score) LessThan(other Score) bool {
	return s.value < other.value
}

// Below checks the score against a raw threshold.
func (s Score) Below(threshold float64) bool {
	return s.value < threshold
}

// Equal checks if two Scores are equal.
func (s Score) Equal(other Score) bool {
	return s.value == other.value
}

// String returns a string representation of the score.
func (s Score) String() string {
	return fmt.Sprintf("%.1f", s.value)
}

// MarshalJSON implements JSON marshaling
func (s Score) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.value)
}

// UnmarshalJSON implements JSON unmarshaling
func (s *Score) UnmarshalJSON(data []byte) error {
	var value float64
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}

	score, err := NewScore(value)
	if err != nil {
		return err
	}

	*s = score
	return nil
}

// Scan implements sql.Scanner for database retrieval
func (s *Score) Scan(value interface{}) error {
	if value == nil {
		*s = PerfectScore()
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
			return fmt.Errorf("cannot parse score from %q: %w", string(v), err)
		}
	default:
		return fmt.Errorf("cannot scan %T into Score", value)
	}

	score, err := NewScore(val)
	if err != nil {
		return err
	}

	*s = score
	return nil
}

// DatabaseValue implements driver.Valuer for database storage
func (s Score) DatabaseValue() (driver.Value, error) {
	return s.value, nil
}
