package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	"github.com/learnershield/learner-data-gateway/internal/domain/limits"
	"github.com/learnershield/learner-data-gateway/internal/domain/reputation"
	"github.com/learnershield/learner-data-gateway/internal/domain/values"
	"github.com/learnershield/learner-data-gateway/internal/domain/violation"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/cache"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/config"
)

const (
	// VolumeWindow is the rolling window for cumulative byte limits.
	VolumeWindow = 24 * time.Hour

	// minRateRetry is the floor on the retry hint after a rate denial.
	minRateRetry = time.Minute

	// minVolumeRetry is the floor on the retry hint after a volume
	// denial.
	minVolumeRetry = time.Hour
)

// Conservative fallbacks for a category that has no configured limits.
// Missing configuration narrows the envelope, it never opens it.
const (
	fallbackRequestsPerMinute = 10
	fallbackDailyVolumeMB     = 10
)

// Check names which limit a decision was made against.
type Check string

const (
	CheckRate     Check = "rate"
	CheckVolume   Check = "volume"
	CheckSessions Check = "sessions"
)

// ViolationType maps the failed check to the violation class recorded
// against the client. A concurrent-session breach is a rate violation;
// it is the same "too much at once" offense measured differently.
func (c Check) ViolationType() violation.Type {
	if c == CheckVolume {
		return violation.TypeVolumeLimit
	}
	return violation.TypeRateLimit
}

// Decision is the outcome of one rate/volume/session evaluation. Nothing
// is reserved by a check; the caller commits explicitly once the full
// policy decision allows the request.
type Decision struct {
	Allowed      bool
	Check        Check
	CurrentCount int64
	Limit        int64
	RetryAfter   time.Duration
	Limits       limits.Limits
}

// Tracker evaluates the request-rate, byte-volume, and concurrent-session
// envelope for one access request. Limits derive deterministically from
// the category base rates scaled by the client's risk tier, unless the
// tenant has pinned an explicit override.
type Tracker struct {
	rates     cache.RateCounter
	volumes   cache.VolumeTracker
	sessions  cache.SessionRegistry
	overrides limits.Repository
	cfg       *config.LimitsConfig
	logger    *zap.Logger
}

// NewTracker creates the tracker with its counter stores and override
// source.
func NewTracker(
	rates cache.RateCounter,
	volumes cache.VolumeTracker,
	sessions cache.SessionRegistry,
	overrides limits.Repository,
	cfg *config.LimitsConfig,
	logger *zap.Logger,
) (*Tracker, error) {
	if rates == nil || volumes == nil || sessions == nil {
		return nil, errors.NewInternalError("tracker requires rate, volume, and session stores")
	}
	if cfg == nil {
		return nil, errors.NewInternalError("tracker requires limits configuration")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Tracker{
		rates:     rates,
		volumes:   volumes,
		sessions:  sessions,
		overrides: overrides,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Resolve returns the effective limits for one (tenant, category, tier)
// combination. Resolution order: tenant override row, then configured
// base limits scaled by the tier multiplier, then the conservative
// built-in fallback. An unreachable override store degrades to the
// critical-tier envelope rather than the client's own tier.
func (t *Tracker) Resolve(ctx context.Context, req access.Request, tier reputation.RiskTier) limits.Limits {
	if t.overrides != nil {
		override, err := t.overrides.Override(ctx, req.TenantID, req.Category, tier)
		if err == nil {
			return *override
		}
		if !errors.IsType(err, errors.ErrorTypeNotFound) {
			t.logger.Warn("limit override lookup failed, applying critical-tier envelope",
				zap.String("tenant_id", req.TenantID.String()),
				zap.String("category", req.Category.String()),
				zap.Error(err))
			tier = reputation.TierCritical
		}
	}

	return t.derive(req.Category, tier)
}

// derive computes the deterministic default limits for a (category, tier)
// pair.
func (t *Tracker) derive(category access.DataCategory, tier reputation.RiskTier) limits.Limits {
	rpm, ok := t.cfg.RequestsPerMinute[category.String()]
	if !ok || rpm <= 0 {
		t.logger.Warn("no base rate configured for category, using conservative fallback",
			zap.String("category", category.String()))
		rpm = fallbackRequestsPerMinute
	}

	volumeMB, ok := t.cfg.DailyVolumeMB[category.String()]
	if !ok || volumeMB <= 0 {
		t.logger.Warn("no daily volume configured for category, using conservative fallback",
			zap.String("category", category.String()))
		volumeMB = fallbackDailyVolumeMB
	}

	multiplier := tier.LimitMultiplier()

	scaledRPM := int(float64(rpm) * multiplier)
	if scaledRPM < 1 {
		scaledRPM = 1
	}
	scaledBurst := int(float64(t.cfg.BurstAllowance) * multiplier)

	sessions := t.cfg.MaxConcurrentSessions
	if tier.AtLeast(reputation.TierHigh) && sessions > 1 {
		sessions = 1 + sessions/4
	}

	return limits.Limits{
		Category:              category,
		Tier:                  tier,
		RequestsPerMinute:     scaledRPM,
		WindowMinutes:         t.cfg.WindowMinutes,
		BurstAllowance:        scaledBurst,
		MaxConcurrentSessions: sessions,
		DailyVolume:           values.Megabytes(int64(volumeMB)).Scale(multiplier),
	}
}

// CheckAndReserve evaluates the request against its effective limits in
// order: sliding-window rate, concurrent sessions, then 24h volume. The
// first breach decides. No counter is mutated; errors mean the counter
// state was unreadable, which the caller must treat as risk data being
// unavailable, never as headroom.
func (t *Tracker) CheckAndReserve(ctx context.Context, req access.Request, tier reputation.RiskTier) (Decision, error) {
	lims := t.Resolve(ctx, req, tier)
	key := cache.RateKey(req.TenantID, req.ClientID, req.Category.String())
	now := req.Now

	window, err := t.rates.Check(ctx, key, lims.Window(), now)
	if err != nil {
		return Decision{}, errors.NewDataUnavailableError("rate_counter", "rate window unreadable").WithCause(err)
	}

	maxRequests := int64(lims.MaxRequests())
	if window.Count >= maxRequests {
		return Decision{
			Check:        CheckRate,
			CurrentCount: window.Count,
			Limit:        maxRequests,
			RetryAfter:   retryAfter(window.OldestAt, lims.Window(), now, minRateRetry),
			Limits:       lims,
		}, nil
	}

	if req.SessionID != "" {
		decision, err := t.checkSessions(ctx, req, lims)
		if err != nil {
			return Decision{}, err
		}
		if decision != nil {
			return *decision, nil
		}
	}

	volume, err := t.volumes.Current(ctx, key, VolumeWindow, now)
	if err != nil {
		return Decision{}, errors.NewDataUnavailableError("volume_tracker", "volume window unreadable").WithCause(err)
	}

	projected := volume.TotalBytes + req.EstimatedBytes
	if projected > lims.DailyVolume.Bytes() {
		return Decision{
			Check:        CheckVolume,
			CurrentCount: volume.TotalBytes,
			Limit:        lims.DailyVolume.Bytes(),
			RetryAfter:   retryAfter(volume.OldestAt, VolumeWindow, now, minVolumeRetry),
			Limits:       lims,
		}, nil
	}

	return Decision{
		Allowed:      true,
		CurrentCount: window.Count,
		Limit:        maxRequests,
		Limits:       lims,
	}, nil
}

// checkSessions denies when the actor already runs the maximum number of
// concurrent sessions and this request would open another one. Activity
// on an already-registered session always passes.
func (t *Tracker) checkSessions(ctx context.Context, req access.Request, lims limits.Limits) (*Decision, error) {
	_, known, err := t.sessions.SessionStart(ctx, req.TenantID, req.ClientID, req.ActorID, req.SessionID)
	if err != nil {
		return nil, errors.NewDataUnavailableError("session_registry", "session lookup failed").WithCause(err)
	}
	if known {
		return nil, nil
	}

	active, err := t.sessions.ActiveCount(ctx, req.TenantID, req.ClientID, req.ActorID, req.Now)
	if err != nil {
		return nil, errors.NewDataUnavailableError("session_registry", "session count failed").WithCause(err)
	}

	if active >= int64(lims.MaxConcurrentSessions) {
		return &Decision{
			Check:        CheckSessions,
			CurrentCount: active,
			Limit:        int64(lims.MaxConcurrentSessions),
			RetryAfter:   minRateRetry,
			Limits:       lims,
		}, nil
	}

	return nil, nil
}

// Commit folds an admitted request into the live counters: one rate
// window member, one volume window member, and a session touch. Called
// only after the full policy decision allows the request.
func (t *Tracker) Commit(ctx context.Context, entry *access.Entry, lims limits.Limits) error {
	key := cache.RateKey(entry.TenantID, entry.ClientID, entry.Category.String())

	if err := t.rates.Commit(ctx, key, lims.Window(), entry.Timestamp); err != nil {
		return err
	}
	if err := t.volumes.Commit(ctx, key, entry.ID, entry.ByteSize.Bytes(), VolumeWindow, entry.Timestamp); err != nil {
		return err
	}
	if entry.SessionID != "" {
		if err := t.sessions.Touch(ctx, entry.TenantID, entry.ClientID, entry.ActorID, entry.SessionID, entry.Timestamp); err != nil {
			return err
		}
	}

	return nil
}

// retryAfter computes when the oldest in-window item ages out, floored so
// a denied caller never gets told to hammer the gateway immediately.
func retryAfter(oldest time.Time, window time.Duration, now time.Time, floor time.Duration) time.Duration {
	if oldest.IsZero() {
		return floor
	}
	wait := oldest.Add(window).Sub(now)
	if wait < floor {
		return floor
	}
	return wait
}
