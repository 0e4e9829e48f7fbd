package values

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
)

// ByteSize represents a non-negative payload size in bytes. Negative sizes
// are an integrity violation and never enter the domain.
type ByteSize struct {
	value int64
}

const bytesPerMegabyte = int64(1024 * 1024)

// NewByteSize creates a ByteSize value object with validation.
func NewByteSize(value int64) (ByteSize, error) {
	if value < 0 {
		return ByteSize{}, errors.NewIntegrityError("byte_size",
			fmt.Sprintf("byte size cannot be negative: %d", value))
	}
	return ByteSize{value: value}, nil
}

// MustNewByteSize creates a ByteSize and panics on error (for constants/tests).
func MustNewByteSize(value int64) ByteSize {
	b, err := NewByteSize(value)
	if err != nil {
		panic(err)
	}
	return b
}

// Megabytes builds a ByteSize from a whole megabyte count.
func Megabytes(mb int64) ByteSize {
	if mb < 0 {
		return ByteSize{}
	}
	return ByteSize{value: mb * bytesPerMegabyte}
}

// Bytes returns the size in bytes.
func (b ByteSize) Bytes() int64 {
	return b.value
}

// IsZero checks if the size is zero.
func (b ByteSize) IsZero() bool {
	return b.value == 0
}

// Add returns the sum of two sizes.
func (b ByteSize) Add(other ByteSize) ByteSize {
	return ByteSize{value: b.value + other.value}
}

// Exceeds checks if the size is strictly greater than a limit.
func (b ByteSize) Exceeds(limit ByteSize) bool {
	return b.value > limit.value
}

// Scale returns the size multiplied by a non-negative factor, truncated to
// whole bytes.
func (b ByteSize) Scale(factor float64) ByteSize {
	if factor <= 0 {
		return ByteSize{}
	}
	return ByteSize{value: int64(float64(b.value) * factor)}
}

// Equal checks if two ByteSize values are equal.
func (b ByteSize) Equal(other ByteSize) bool {
	return b.value == other.value
}

// String returns a human-readable representation.
func (b ByteSize) String() string {
	switch {
	case b.value >= bytesPerMegabyte:
		return fmt.Sprintf("%.1fMB", float64(b.value)/float64(bytesPerMegabyte))
	case b.value >= 1024:
		return fmt.Sprintf("%.1fKB", float64(b.value)/1024)
	default:
		return fmt.Sprintf("%dB", b.value)
	}
}

// MarshalJSON implements JSON marshaling
func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.value)
}

// UnmarshalJSON implements JSON unmarshaling
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var value int64
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}

	size, err := NewByteSize(value)
	if err != nil {
		return err
	}

	*b = size
	return nil
}

// Scan implements sql.Scanner for database retrieval
func (b *ByteSize) Scan(value interface{}) error {
	if value == nil {
		*b = ByteSize{}
		return nil
	}

	var val int64
	switch v := value.(type) {
	case int64:
		val = v
	case int:
		val = int64(v)
	default:
		return fmt.Errorf("cannot scan %T into ByteSize", value)
	}

	size, err := NewByteSize(val)
	if err != nil {
		return err
	}

	*b = size
	return nil
}

// DatabaseValue implements driver.Valuer for database storage
func (b ByteSize) DatabaseValue() (driver.Value, error) {
	return b.value, nil
}
