package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/config"
)

// ScopeClaims is the payload of a scope token. The issuing control plane
// binds a client to the data categories its integration contract allows.
type ScopeClaims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	ClientID string   `json:"client_id"`
	Scopes   []string `json:"scopes"`
}

// Grant is the resolved authorization: which categories this client may
// request. Requests outside the grant are the privilege escalation
// signal, not a hard parse failure.
type Grant struct {
	TenantID   uuid.UUID
	ClientID   uuid.UUID
	Categories []access.DataCategory
	ExpiresAt  time.Time
	Degraded   bool
}

// Covers reports whether the grant includes the category.
func (g *Grant) Covers(category access.DataCategory) bool {
	for _, c := range g.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// ScopeResolver validates scope tokens and falls back to the configured
// default scopes when a request arrives without one.
type ScopeResolver struct {
	secret        []byte
	leeway        time.Duration
	defaultScopes []access.DataCategory
	logger        *zap.Logger
}

// NewScopeResolver creates a scope resolver from the auth configuration.
func NewScopeResolver(cfg *config.AuthConfig, logger *zap.Logger) (*ScopeResolver, error) {
	if cfg == nil {
		return nil, fmt.Errorf("auth config is required")
	}
	if cfg.ScopeTokenSecret == "" {
		return nil, fmt.Errorf("scope token secret is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	defaults := make([]access.DataCategory, 0, len(cfg.DefaultScopes))
	for _, raw := range cfg.DefaultScopes {
		category, err := access.ParseDataCategory(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid default scope %q: %w", raw, err)
		}
		defaults = append(defaults, category)
	}

	return &ScopeResolver{
		secret:        []byte(cfg.ScopeTokenSecret),
		leeway:        cfg.TokenLeeway,
		defaultScopes: defaults,
		logger:        logger,
	}, nil
}

// Resolve parses and validates a scope token. Unknown scope strings in a
// valid token are dropped with a warning; a token whose scopes are all
// unknown yields an empty grant, which covers nothing.
func (r *ScopeResolver) Resolve(tokenString string, now time.Time) (*Grant, error) {
	if tokenString == "" {
		return nil, errors.NewUnauthorizedError("scope token is required")
	}

	claims := &ScopeClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithLeeway(r.leeway), jwt.WithTimeFunc(func() time.Time { return now }))

	if err != nil {
		return nil, errors.NewUnauthorizedError("invalid scope token").WithCause(err)
	}
	if !token.Valid {
		return nil, errors.NewUnauthorizedError("invalid scope token")
	}

	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		return nil, errors.NewUnauthorizedError("scope token has no usable tenant identity").WithCause(err)
	}
	clientID, err := uuid.Parse(claims.ClientID)
	if err != nil {
		return nil, errors.NewUnauthorizedError("scope token has no usable client identity").WithCause(err)
	}

	categories := make([]access.DataCategory, 0, len(claims.Scopes))
	for _, raw := range claims.Scopes {
		category, err := access.ParseDataCategory(raw)
		if err != nil {
			r.logger.Warn("dropping unknown scope from token",
				zap.String("scope", raw),
				zap.String("client_id", clientID.String()))
			continue
		}
		categories = append(categories, category)
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return &Grant{
		TenantID:   tenantID,
		ClientID:   clientID,
		Categories: categories,
		ExpiresAt:  expiresAt,
	}, nil
}

// DefaultGrant returns the conservative grant used when a request
// carries no scope token. It is marked degraded so the decision path can
// surface that scope enforcement ran on defaults.
func (r *ScopeResolver) DefaultGrant(tenantID, clientID uuid.UUID) *Grant {
	categories := make([]access.DataCategory, len(r.defaultScopes))
	copy(categories, r.defaultScopes)

	return &Grant{
		TenantID:   tenantID,
		ClientID:   clientID,
		Categories: categories,
		Degraded:   true,
	}
}

// IssueToken signs a scope token. Production tokens come from the
// control plane; this is for provisioning tools and tests.
func (r *ScopeResolver) IssueToken(tenantID, clientID uuid.UUID, scopes []access.DataCategory, ttl time.Duration, now time.Time) (string, error) {
	raw := make([]string, len(scopes))
	for i, s := range scopes {
		raw[i] = string(s)
	}

	claims := ScopeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		TenantID: tenantID.String(),
		ClientID: clientID.String(),
		Scopes:   raw,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign scope token: %w", err)
	}

	return signed, nil
}
