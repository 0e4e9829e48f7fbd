package reputation

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	domain "github.com/learnershield/learner-data-gateway/internal/domain/reputation"
	"github.com/learnershield/learner-data-gateway/internal/domain/violation"
	"github.com/learnershield/learner-data-gateway/internal/metrics"
)

// lockStripes is the size of the per-client mutex pool. Requests for the
// same client hash to the same stripe, so their read-modify-write cycles
// serialize instead of losing updates to each other.
const lockStripes = 128

// Store is the reputation store service: it owns the load-mutate-save
// cycle around the domain entity so callers never race on the shared
// score. Different clients proceed in parallel; the same client is
// serialized through a striped lock.
type Store struct {
	repo    domain.Repository
	metrics *metrics.Registry
	logger  *zap.Logger
	stripes [lockStripes]sync.Mutex
}

// NewStore creates the reputation store service.
func NewStore(repo domain.Repository, registry *metrics.Registry, logger *zap.Logger) (*Store, error) {
	if repo == nil {
		return nil, errors.NewInternalError("reputation repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		repo:    repo,
		metrics: registry,
		logger:  logger,
	}, nil
}

// Get loads the client's reputation record, creating and persisting a
// fresh full-score record the first time a client is seen.
func (s *Store) Get(ctx context.Context, tenantID, clientID uuid.UUID, now time.Time) (*domain.Client, error) {
	client, err := s.repo.Get(ctx, tenantID, clientID)
	if err == nil {
		return client, nil
	}
	if !errors.IsType(err, errors.ErrorTypeNotFound) {
		return nil, err
	}

	unlock := s.lock(clientID)
	defer unlock()

	// Another request may have created the record while we waited.
	client, err = s.repo.Get(ctx, tenantID, clientID)
	if err == nil {
		return client, nil
	}
	if !errors.IsType(err, errors.ErrorTypeNotFound) {
		return nil, err
	}

	client, err = domain.NewClient(tenantID, clientID, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, client); err != nil {
		return nil, err
	}

	s.logger.Info("new client reputation record created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("client_id", clientID.String()))

	return client, nil
}

// RecordSuccess applies one successful request to the client's record.
func (s *Store) RecordSuccess(ctx context.Context, tenantID, clientID uuid.UUID, now time.Time) (*domain.Client, error) {
	return s.mutate(ctx, tenantID, clientID, now, func(client *domain.Client) {
		client.RecordSuccess(now)
	})
}

// RecordViolation applies one violation to the client's record and
// returns the updated record plus the penalty that was applied.
func (s *Store) RecordViolation(ctx context.Context, tenantID, clientID uuid.UUID, vtype violation.Type, now time.Time) (*domain.Client, float64, error) {
	var penalty float64
	client, err := s.mutate(ctx, tenantID, clientID, now, func(client *domain.Client) {
		penalty = client.RecordViolation(vtype, now)
	})
	if err != nil {
		return nil, 0, err
	}

	s.logger.Warn("violation recorded against client",
		zap.String("client_id", clientID.String()),
		zap.String("violation_type", vtype.String()),
		zap.Float64("penalty", penalty),
		zap.Float64("score", client.Score.Value()),
		zap.String("tier", client.Tier().String()))

	return client, penalty, nil
}

// ObserveSignals folds fresh behavioral signals into the client's record.
func (s *Store) ObserveSignals(ctx context.Context, tenantID, clientID uuid.UUID, anomalyScore, automationProbability float64, now time.Time) (*domain.Client, error) {
	return s.mutate(ctx, tenantID, clientID, now, func(client *domain.Client) {
		client.ObserveBehavioralSignals(anomalyScore, automationProbability, now)
	})
}

// RecoverIdle applies the daily recovery nudge to every client in the
// tenant whose last violation is older than since. Returns how many
// records were nudged.
func (s *Store) RecoverIdle(ctx context.Context, tenantID uuid.UUID, since, now time.Time) (int, error) {
	clients, err := s.repo.ListViolationFree(ctx, tenantID, since)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, candidate := range clients {
		if candidate.Score.Value() >= 100 {
			continue
		}

		client, err := s.mutate(ctx, tenantID, candidate.ClientID, now, func(client *domain.Client) {
			client.RecoverDaily(now)
		})
		if err != nil {
			s.logger.Warn("recovery nudge failed",
				zap.String("client_id", candidate.ClientID.String()),
				zap.Error(err))
			continue
		}
		recovered++

		s.logger.Debug("client score recovered",
			zap.String("client_id", client.ClientID.String()),
			zap.Float64("score", client.Score.Value()))
	}

	return recovered, nil
}

// mutate runs one serialized load-mutate-save cycle for the client.
func (s *Store) mutate(ctx context.Context, tenantID, clientID uuid.UUID, now time.Time, fn func(*domain.Client)) (*domain.Client, error) {
	unlock := s.lock(clientID)
	defer unlock()

	client, err := s.repo.Get(ctx, tenantID, clientID)
	if err != nil {
		if !errors.IsType(err, errors.ErrorTypeNotFound) {
			return nil, err
		}
		client, err = domain.NewClient(tenantID, clientID, now)
		if err != nil {
			return nil, err
		}
	}

	fn(client)

	if err := s.repo.Save(ctx, client); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordReputation(ctx, client.Score.Value(), client.Tier().String())
	}

	return client, nil
}

// lock acquires the client's stripe and returns its release func.
func (s *Store) lock(clientID uuid.UUID) func() {
	h := fnv.New32a()
	h.Write(clientID[:])
	stripe := &s.stripes[h.Sum32()%lockStripes]
	stripe.Lock()
	return stripe.Unlock
}
