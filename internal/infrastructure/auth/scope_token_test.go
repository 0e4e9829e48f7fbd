package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/config"
)

func newTestResolver(t *testing.T) *ScopeResolver {
	t.Helper()

	resolver, err := NewScopeResolver(&config.AuthConfig{
		ScopeTokenSecret: "test-secret-which-is-long-enough",
		TokenLeeway:      30 * time.Second,
		DefaultScopes:    []string{"profile", "aggregated"},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	return resolver
}

func TestNewScopeResolver_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := NewScopeResolver(nil, logger)
	assert.Error(t, err)

	_, err = NewScopeResolver(&config.AuthConfig{}, logger)
	assert.ErrorContains(t, err, "secret")

	_, err = NewScopeResolver(&config.AuthConfig{
		ScopeTokenSecret: "secret",
		DefaultScopes:    []string{"everything"},
	}, logger)
	assert.ErrorContains(t, err, "invalid default scope")
}

func TestScopeResolver_RoundTrip(t *testing.T) {
	resolver := newTestResolver(t)
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	tenantID := uuid.New()
	clientID := uuid.New()
	scopes := []access.DataCategory{access.CategoryProfile, access.CategoryBehavioral}

	token, err := resolver.IssueToken(tenantID, clientID, scopes, time.Hour, now)
	require.NoError(t, err)

	grant, err := resolver.Resolve(token, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, tenantID, grant.TenantID)
	assert.Equal(t, clientID, grant.ClientID)
	assert.Equal(t, scopes, grant.Categories)
	assert.False(t, grant.Degraded)
	assert.True(t, grant.ExpiresAt.Equal(now.Add(time.Hour)))

	assert.True(t, grant.Covers(access.CategoryProfile))
	assert.True(t, grant.Covers(access.CategoryBehavioral))
	assert.False(t, grant.Covers(access.CategoryRealTime))
}

func TestScopeResolver_Expiry(t *testing.T) {
	resolver := newTestResolver(t)
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	token, err := resolver.IssueToken(uuid.New(), uuid.New(),
		[]access.DataCategory{access.CategoryProfile}, time.Hour, now)
	require.NoError(t, err)

	// Within leeway of expiry the token still resolves.
	_, err = resolver.Resolve(token, now.Add(time.Hour+20*time.Second))
	assert.NoError(t, err)

	_, err = resolver.Resolve(token, now.Add(2*time.Hour))
	assert.Error(t, err)
}

func TestScopeResolver_RejectsForgedTokens(t *testing.T) {
	resolver := newTestResolver(t)
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	t.Run("empty token", func(t *testing.T) {
		_, err := resolver.Resolve("", now)
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewScopeResolver(&config.AuthConfig{
			ScopeTokenSecret: "a-different-secret-entirely",
		}, zaptest.NewLogger(t))
		require.NoError(t, err)

		token, err := other.IssueToken(uuid.New(), uuid.New(),
			[]access.DataCategory{access.CategoryProfile}, time.Hour, now)
		require.NoError(t, err)

		_, err = resolver.Resolve(token, now)
		assert.Error(t, err)
	})

	t.Run("alg none", func(t *testing.T) {
		claims := ScopeClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
			TenantID: uuid.New().String(),
			ClientID: uuid.New().String(),
			Scopes:   []string{"profile"},
		}
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
		token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = resolver.Resolve(token, now)
		assert.Error(t, err)
	})

	t.Run("missing identity", func(t *testing.T) {
		claims := ScopeClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
			Scopes: []string{"profile"},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
			SignedString([]byte("test-secret-which-is-long-enough"))
		require.NoError(t, err)

		_, err = resolver.Resolve(signed, now)
		assert.Error(t, err)
	})
}

func TestScopeResolver_DropsUnknownScopes(t *testing.T) {
	resolver := newTestResolver(t)
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	claims := ScopeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		TenantID: uuid.New().String(),
		ClientID: uuid.New().String(),
		Scopes:   []string{"profile", "firehose", "assessment"},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("test-secret-which-is-long-enough"))
	require.NoError(t, err)

	grant, err := resolver.Resolve(signed, now)
	require.NoError(t, err)
	assert.Equal(t, []access.DataCategory{
		access.CategoryProfile,
		access.CategoryAssessment,
	}, grant.Categories)
}

func TestScopeResolver_DefaultGrant(t *testing.T) {
	resolver := newTestResolver(t)

	tenantID := uuid.New()
	clientID := uuid.New()
	grant := resolver.DefaultGrant(tenantID, clientID)

	assert.True(t, grant.Degraded)
	assert.Equal(t, tenantID, grant.TenantID)
	assert.Equal(t, clientID, grant.ClientID)
	assert.True(t, grant.Covers(access.CategoryProfile))
	assert.True(t, grant.Covers(access.CategoryAggregated))
	assert.False(t, grant.Covers(access.CategoryBehavioral))

	// Mutating one grant's categories must not leak into the next.
	grant.Categories[0] = access.CategoryRealTime
	fresh := resolver.DefaultGrant(tenantID, clientID)
	assert.True(t, fresh.Covers(access.CategoryProfile))
}
