package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/audit"
	"github.com/learnershield/learner-data-gateway/internal/domain/baseline"
	"github.com/learnershield/learner-data-gateway/internal/domain/consent"
	"github.com/learnershield/learner-data-gateway/internal/domain/limits"
	"github.com/learnershield/learner-data-gateway/internal/domain/reputation"
	"github.com/learnershield/learner-data-gateway/internal/domain/violation"
)

// AccessRepository mock
type AccessRepository struct {
	mock.Mock
}

func (m *AccessRepository) Record(ctx context.Context, entry *access.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *AccessRepository) ListByClient(ctx context.Context, tenantID, clientID uuid.UUID, from, to time.Time) ([]*access.Entry, error) {
	args := m.Called(ctx, tenantID, clientID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*access.Entry), args.Error(1)
}

func (m *AccessRepository) CountTenantActors(ctx context.Context, tenantID uuid.UUID, since time.Time) (int, error) {
	args := m.Called(ctx, tenantID, since)
	return args.Int(0), args.Error(1)
}

func (m *AccessRepository) ActiveClients(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, tenantID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *AccessRepository) ActiveTenants(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// VolumeRepository mock
type VolumeRepository struct {
	mock.Mock
}

func (m *VolumeRepository) IncrementDay(ctx context.Context, entry *access.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *VolumeRepository) DailyTotals(ctx context.Context, tenantID, clientID uuid.UUID, days int, now time.Time) ([]access.DayVolume, error) {
	args := m.Called(ctx, tenantID, clientID, days, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]access.DayVolume), args.Error(1)
}

// ReputationRepository mock
type ReputationRepository struct {
	mock.Mock
}

func (m *ReputationRepository) Get(ctx context.Context, tenantID, clientID uuid.UUID) (*reputation.Client, error) {
	args := m.Called(ctx, tenantID, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reputation.Client), args.Error(1)
}

func (m *ReputationRepository) Save(ctx context.Context, client *reputation.Client) error {
	args := m.Called(ctx, client)
	return args.Error(0)
}

func (m *ReputationRepository) ListViolationFree(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]*reputation.Client, error) {
	args := m.Called(ctx, tenantID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reputation.Client), args.Error(1)
}

// BaselineRepository mock
type BaselineRepository struct {
	mock.Mock
}

func (m *BaselineRepository) Latest(ctx context.Context, tenantID, clientID uuid.UUID) (*baseline.Baseline, error) {
	args := m.Called(ctx, tenantID, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*baseline.Baseline), args.Error(1)
}

func (m *BaselineRepository) Save(ctx context.Context, b *baseline.Baseline) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

// ViolationRepository mock
type ViolationRepository struct {
	mock.Mock
}

func (m *ViolationRepository) RecordViolation(ctx context.Context, v *violation.Violation) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *ViolationRepository) RecordAnomaly(ctx context.Context, record *violation.AnomalyRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *ViolationRepository) CountByClientSince(ctx context.Context, tenantID, clientID uuid.UUID, since time.Time) (int, error) {
	args := m.Called(ctx, tenantID, clientID, since)
	return args.Int(0), args.Error(1)
}

func (m *ViolationRepository) ListByTenantSince(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]*violation.Violation, error) {
	args := m.Called(ctx, tenantID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*violation.Violation), args.Error(1)
}

// LimitsRepository mock
type LimitsRepository struct {
	mock.Mock
}

func (m *LimitsRepository) Override(ctx context.Context, tenantID uuid.UUID, category access.DataCategory, tier reputation.RiskTier) (*limits.Limits, error) {
	args := m.Called(ctx, tenantID, category, tier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*limits.Limits), args.Error(1)
}

// ConsentOracle mock
type ConsentOracle struct {
	mock.Mock
}

func (m *ConsentOracle) HasConsent(ctx context.Context, tenantID, actorID uuid.UUID, purpose consent.Purpose) (bool, error) {
	args := m.Called(ctx, tenantID, actorID, purpose)
	return args.Bool(0), args.Error(1)
}

// AuditSink mock
type AuditSink struct {
	mock.Mock
}

func (m *AuditSink) Append(ctx context.Context, event *audit.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
