package baseline

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
)

func TestNewBaseline(t *testing.T) {
	b, err := New(uuid.New(), uuid.New(), 0, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, b.Version)
	assert.Equal(t, DefaultLearningPeriodDays, b.LearningPeriodDays)
	assert.Equal(t, 0.0, b.Confidence.Value())

	_, err = New(uuid.Nil, uuid.New(), 7, time.Now())
	assert.Error(t, err)
}

func TestNextVersionIsMonotonic(t *testing.T) {
	b, err := New(uuid.New(), uuid.New(), 14, time.Now())
	require.NoError(t, err)
	b.SampleCount = 500
	b.MeanRequestSize = 2048

	next := b.NextVersion(time.Now())

	assert.Equal(t, 2, next.Version)
	assert.Equal(t, b.ClientID, next.ClientID)
	assert.Equal(t, 14, next.LearningPeriodDays)
	assert.Zero(t, next.SampleCount, "successor starts empty")
	assert.Equal(t, 500, b.SampleCount, "predecessor is untouched")
}

func TestCategoryProbability(t *testing.T) {
	b, err := New(uuid.New(), uuid.New(), 7, time.Now())
	require.NoError(t, err)
	b.CategoryDistribution = map[access.DataCategory]float64{
		access.CategoryProfile:    0.7,
		access.CategoryBehavioral: 0.3,
	}

	assert.Equal(t, 0.7, b.CategoryProbability(access.CategoryProfile))
	assert.Equal(t, 0.0, b.CategoryProbability(access.CategoryRealTime), "unseen categories have zero probability")
}

func TestIsPeakHour(t *testing.T) {
	b, err := New(uuid.New(), uuid.New(), 7, time.Now())
	require.NoError(t, err)
	b.PeakHours = []int{8, 9, 10, 14, 15}

	assert.True(t, b.IsPeakHour(9))
	assert.True(t, b.IsPeakHour(15))
	assert.False(t, b.IsPeakHour(3))
	assert.False(t, b.IsPeakHour(23))
}

func TestKnowsNetwork(t *testing.T) {
	b, err := New(uuid.New(), uuid.New(), 7, time.Now())
	require.NoError(t, err)
	b.NetworkRanges = []string{"10.20.0.0/16", "192.168.4.0/24"}

	assert.True(t, b.KnowsNetwork("10.20.33.7"), "addresses inside a learned range match by prefix")
	assert.True(t, b.KnowsNetwork("192.168.99.1"), "prefix grouping is two octets wide")
	assert.False(t, b.KnowsNetwork("172.16.0.1"))
	assert.False(t, b.KnowsNetwork(""))
}

func TestKnowsAgent(t *testing.T) {
	b, err := New(uuid.New(), uuid.New(), 7, time.Now())
	require.NoError(t, err)
	b.AgentFingerprints = []string{"agent-aa01", "agent-bb02"}

	assert.True(t, b.KnowsAgent("agent-bb02"))
	assert.False(t, b.KnowsAgent("agent-zz99"))
	assert.False(t, b.KnowsAgent(""))
}
