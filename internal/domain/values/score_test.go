package values

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
)

func TestNewScore(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		wantErr bool
		errCode string
	}{
		{
			name:  "valid mid-range score",
			value: 57.3,
		},
		{
			name:  "floor boundary",
			value: 0,
		},
		{
			name:  "ceiling boundary",
			value: 100,
		},
		{
			name:    "above ceiling",
			value:   100.1,
			wantErr: true,
			errCode: "SCORE_OUT_OF_RANGE",
		},
		{
			name:    "negative",
			value:   -1,
			wantErr: true,
			errCode: "SCORE_OUT_OF_RANGE",
		},
		{
			name:    "NaN",
			value:   math.NaN(),
			wantErr: true,
			errCode: "SCORE_NAN",
		},
		{
			name:    "positive infinity",
			value:   math.Inf(1),
			wantErr: true,
			errCode: "SCORE_INFINITE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := NewScore(tt.value)

			if tt.wantErr {
				require.Error(t, err)
				var appErr *errors.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, tt.errCode, appErr.Code)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.value, score.Value())
			}
		})
	}
}

func TestScoreArithmeticClamps(t *testing.T) {
	s := MustNewScore(99.5)
	assert.Equal(t, 100.0, s.Add(3).Value(), "additions saturate at the ceiling")

	s = MustNewScore(2)
	assert.Equal(t, 0.0, s.Subtract(15).Value(), "subtractions saturate at the floor")

	s = MustNewScore(50)
	assert.Equal(t, 50.1, s.Add(0.1).Value())
}

func TestClampedScore(t *testing.T) {
	assert.Equal(t, 0.0, ClampedScore(-42.7).Value())
	assert.Equal(t, 100.0, ClampedScore(240).Value())
	assert.Equal(t, 66.6, ClampedScore(66.6).Value())
	assert.Equal(t, 0.0, ClampedScore(math.NaN()).Value())
}

func TestPerfectScore(t *testing.T) {
	assert.Equal(t, 100.0, PerfectScore().Value())
}

func TestScoreComparisons(t *testing.T) {
	low := MustNewScore(29.9)
	high := MustNewScore(80)

	assert.True(t, low.LessThan(high))
	assert.False(t, high.LessThan(low))
	assert.True(t, low.Below(30))
	assert.False(t, high.Below(80))
	assert.True(t, high.Equal(MustNewScore(80)))
}

func TestScoreJSONRoundTrip(t *testing.T) {
	original := MustNewScore(73.25)

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Score
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, original.Equal(decoded))

	var invalid Score
	assert.Error(t, json.Unmarshal([]byte("101"), &invalid))
}

func TestScoreScan(t *testing.T) {
	var s Score
	require.NoError(t, s.Scan(float64(42.5)))
	assert.Equal(t, 42.5, s.Value())

	require.NoError(t, s.Scan(nil))
	assert.Equal(t, 100.0, s.Value(), "missing score defaults to the starting score")

	assert.Error(t, s.Scan(true))
}
