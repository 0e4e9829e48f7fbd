package values

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
)

func TestNewConfidence(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		wantErr bool
		errCode string
	}{
		{
			name:  "valid confidence",
			value: 0.42,
		},
		{
			name:  "zero",
			value: 0,
		},
		{
			name:  "one",
			value: 1,
		},
		{
			name:    "above one",
			value:   1.01,
			wantErr: true,
			errCode: "CONFIDENCE_OUT_OF_RANGE",
		},
		{
			name:    "negative",
			value:   -0.1,
			wantErr: true,
			errCode: "CONFIDENCE_OUT_OF_RANGE",
		},
		{
			name:    "NaN",
			value:   math.NaN(),
			wantErr: true,
			errCode: "CONFIDENCE_NAN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf, err := NewConfidence(tt.value)

			if tt.wantErr {
				require.Error(t, err)
				var appErr *errors.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, tt.errCode, appErr.Code)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.value, conf.Value())
			}
		})
	}
}

func TestSaturatingConfidence(t *testing.T) {
	assert.Equal(t, 1.0, SaturatingConfidence(4.2).Value())
	assert.Equal(t, 0.0, SaturatingConfidence(-0.5).Value())
	assert.Equal(t, 0.0, SaturatingConfidence(math.NaN()).Value())
	assert.Equal(t, 0.35, SaturatingConfidence(0.35).Value())
}

func TestConfidenceThresholds(t *testing.T) {
	c := MustNewConfidence(0.4)

	assert.True(t, c.Meets(0.4), "Meets is inclusive")
	assert.False(t, c.Exceeds(0.4), "Exceeds is strict")
	assert.True(t, c.Exceeds(0.39))
	assert.False(t, c.Meets(0.41))
}
