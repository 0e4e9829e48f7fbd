package patterns

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	"github.com/learnershield/learner-data-gateway/internal/domain/values"
	"github.com/learnershield/learner-data-gateway/internal/domain/violation"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/auth"
	"github.com/learnershield/learner-data-gateway/internal/testutil/fixtures"
	"github.com/learnershield/learner-data-gateway/internal/testutil/mocks"
)

func newTestAnalyzer(t *testing.T) (*Analyzer, *mocks.AccessRepository, *mocks.VolumeRepository, *mocks.ViolationRepository) {
	t.Helper()

	ledger := &mocks.AccessRepository{}
	volumes := &mocks.VolumeRepository{}
	violations := &mocks.ViolationRepository{}

	analyzer, err := NewAnalyzer(ledger, volumes, violations,
		detectionConfig(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	return analyzer, ledger, volumes, violations
}

// probingEntries builds a late-night probing sweep: a fresh actor on
// every request, every category touched, tiny payloads, with enough
// jitter in the pacing that only breadth and timing stand out.
func probingEntries(t *testing.T, in *Input, n int) []*access.Entry {
	t.Helper()

	entries := make([]*access.Entry, 0, n)
	offset := time.Duration(0)
	for i := 0; i < n; i++ {
		offset += time.Duration(150+((i*97)%140)) * time.Second
		entries = append(entries, fixtures.NewEntryBuilder().
			WithTenant(in.Request.TenantID).
			WithClient(in.Request.ClientID).
			WithCategory(access.AllCategories()[i%5]).
			WithBytes(400).
			At(in.Now.Add(-2*time.Hour).Add(offset)).
			Build(t))
	}
	return entries
}

func TestAnalyzer_Run(t *testing.T) {
	t.Run("corroborated detectors mark the pass suspicious", func(t *testing.T) {
		analyzer, _, _, _ := newTestAnalyzer(t)

		in := newInput(offHoursNow)
		in.TenantActorCount = 100
		in.Entries = probingEntries(t, in, 30)

		report := analyzer.Run(context.Background(), in)

		names := report.FiredNames()
		assert.Contains(t, names, NameReconnaissance)
		assert.Contains(t, names, NameOffHours)
		assert.Contains(t, names, NameEnumeration)

		assert.True(t, report.Suspicious)
		assert.Greater(t, report.MeanConfidence, 0.6)
		assert.GreaterOrEqual(t, report.MaxConfidence, report.MeanConfidence)
	})

	t.Run("one firing alone is noise", func(t *testing.T) {
		analyzer, _, _, _ := newTestAnalyzer(t)

		in := newInput(businessHoursNow)
		in.Request.Category = access.CategoryBehavioral
		in.Grant = &auth.Grant{Categories: []access.DataCategory{access.CategoryProfile}}

		report := analyzer.Run(context.Background(), in)

		require.Len(t, report.Fired, 1)
		assert.Equal(t, NameEscalation, report.Fired[0].Detector)
		assert.False(t, report.Suspicious)
		assert.Zero(t, report.MeanConfidence)
	})

	t.Run("detections under the confidence floor never fire", func(t *testing.T) {
		analyzer, _, _, _ := newTestAnalyzer(t)

		// A 3.5x volume spike detects at confidence 0.35, below the
		// 0.4 firing floor.
		in := newInput(businessHoursNow)
		day := in.Now.UTC().Truncate(24 * time.Hour)
		for i := 7; i >= 1; i-- {
			in.DailyHistory = append(in.DailyHistory, access.DayVolume{
				Day:        day.Add(-time.Duration(i) * 24 * time.Hour),
				TotalBytes: values.MustNewByteSize(10 * 1024 * 1024),
				Requests:   100,
			})
		}
		in.Request.EstimatedBytes = 15 * 1024 * 1024
		in.Entries = []*access.Entry{
			fixtures.NewEntryBuilder().
				WithTenant(in.Request.TenantID).
				WithClient(in.Request.ClientID).
				WithBytes(20 * 1024 * 1024).
				At(in.Now.Add(-2 * time.Hour)).
				Build(t),
		}

		report := analyzer.Run(context.Background(), in)

		var bulk *Finding
		for i := range report.Findings {
			if report.Findings[i].Detector == NameBulkCollection {
				bulk = &report.Findings[i]
			}
		}
		require.NotNil(t, bulk)
		assert.True(t, bulk.Detected)
		assert.Empty(t, report.Fired)
		assert.False(t, report.Suspicious)
	})

	t.Run("a quiet client produces an empty report", func(t *testing.T) {
		analyzer, _, _, _ := newTestAnalyzer(t)

		in := newInput(businessHoursNow)
		in.TenantActorCount = 1000
		in.Grant = &auth.Grant{Categories: access.AllCategories()}
		in.Entries = fixtures.NewEntryBuilder().
			WithTenant(in.Request.TenantID).
			WithClient(in.Request.ClientID).
			At(in.Now.Add(-3 * time.Hour)).
			BuildSeries(t, 4, 41*time.Minute)

		report := analyzer.Run(context.Background(), in)

		assert.Empty(t, report.Fired)
		assert.False(t, report.Suspicious)
		assert.Len(t, report.Findings, 7)
	})
}

func TestAnalyzer_Gather(t *testing.T) {
	req := newInput(businessHoursNow).Request

	t.Run("assembles one consistent snapshot", func(t *testing.T) {
		analyzer, ledger, volumes, violations := newTestAnalyzer(t)

		entries := fixtures.NewEntryBuilder().
			WithTenant(req.TenantID).WithClient(req.ClientID).
			At(businessHoursNow.Add(-2 * time.Hour)).
			BuildSeries(t, 3, time.Minute)

		ledger.On("ListByClient", mocks.AnyContext(), req.TenantID, req.ClientID,
			mock.Anything, mock.Anything).Return(entries, nil).Once()
		ledger.On("CountTenantActors", mocks.AnyContext(), req.TenantID, mock.Anything).
			Return(240, nil).Once()
		violations.On("ListByTenantSince", mocks.AnyContext(), req.TenantID, mock.Anything).
			Return([]*violation.Violation{}, nil).Once()
		volumes.On("DailyTotals", mocks.AnyContext(), req.TenantID, req.ClientID,
			bulkHistoryDays, mock.Anything).Return([]access.DayVolume{}, nil).Once()

		in, err := analyzer.Gather(context.Background(), req, nil, nil)
		require.NoError(t, err)

		assert.Len(t, in.Entries, 3)
		assert.Equal(t, 240, in.TenantActorCount)
		assert.Equal(t, req.Now, in.Now)
		ledger.AssertExpectations(t)
	})

	t.Run("an unreadable ledger fails the pass", func(t *testing.T) {
		analyzer, ledger, _, _ := newTestAnalyzer(t)

		ledger.On("ListByClient", mocks.AnyContext(), req.TenantID, req.ClientID,
			mock.Anything, mock.Anything).
			Return(nil, errors.NewDataUnavailableError("access_ledger", "query timeout")).Once()

		_, _, err := analyzer.Analyze(context.Background(), req, nil, nil)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeDataUnavailable))
	})
}
