package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/client-portal-api/internal/models"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
)

const (
	platformSecret = "platform-secret"
	subjectID      = "9b2f6c1e-3d4a-4c5b-8e7f-1a2b3c4d5e6f"
)

type stubAuthority struct {
	claims     *models.JWTClaims
	validErr   error
	refreshed  *models.LoginResponse
	refreshErr error
	refreshes  int
}

func (s *stubAuthority) ValidateToken(string) (*models.JWTClaims, error) {
	return s.claims, s.validErr
}

func (s *stubAuthority) RefreshToken(context.Context, models.RefreshTokenRequest) (*models.LoginResponse, error) {
	s.refreshes++
	return s.refreshed, s.refreshErr
}

type countingProvider struct {
	calls    int
	identity *Identity
}

func (p *countingProvider) Source() models.IdentitySource { return models.SourcePlatformSession }

func (p *countingProvider) Resolve(_ context.Context, creds Credentials) (*Identity, error) {
	p.calls++
	if creds.PlatformToken == "" {
		return nil, ErrNoCredentials
	}
	return p.identity, nil
}

type stubProfileStore struct {
	mu        sync.Mutex
	profiles  map[string]*models.Profile
	failures  []error
	finds     int
	created   []*models.Profile
	createErr error
}

func (s *stubProfileStore) FindByID(_ context.Context, id string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return nil, err
	}
	profile, ok := s.profiles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *profile
	return &copied, nil
}

func (s *stubProfileStore) Create(_ context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, profile)
	if s.profiles == nil {
		s.profiles = map[string]*models.Profile{}
	}
	copied := *profile
	s.profiles[profile.ID] = &copied
	return nil
}

func platformToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	claims := PlatformClaims{
		Email:    "Dana@Example.com",
		FullName: "Dana Client",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(exp.Add(-time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(platformSecret))
	require.NoError(t, err)
	return signed
}

func newPlatform(t *testing.T, store *stubProfileStore) *PlatformProvider {
	t.Helper()
	provider, err := NewPlatformProvider(store, PlatformConfig{
		Secret:         platformSecret,
		ProfileRetries: 3,
		RetryBackoff:   time.Millisecond,
		LoadTimeout:    time.Second,
	}, nil)
	require.NoError(t, err)
	return provider
}

func clientID() *string {
	id := "c-1"
	return &id
}

func TestValidAccessTokenSkipsPlatformSession(t *testing.T) {
	auth := &stubAuthority{claims: &models.JWTClaims{UserID: "u-1", Role: models.RoleUser, ClientID: "c-1"}}
	platform := &countingProvider{}
	chain := Chain{NewTokenProvider(auth), platform}

	res, err := chain.Resolve(context.Background(), Credentials{AccessToken: "access", PlatformToken: "platform"})
	require.NoError(t, err)
	assert.Equal(t, "u-1", res.Identity.Actor.ID)
	assert.Equal(t, models.SourceAppToken, res.Identity.Source)
	assert.Zero(t, platform.calls)
	assert.Zero(t, auth.refreshes)
}

func TestExpiredAccessTokenIsRefreshedWithoutPlatformLookup(t *testing.T) {
	exp := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	auth := &stubAuthority{
		validErr: appErrors.Wrap(jwt.ErrTokenExpired, appErrors.ErrSessionExpired.Code, appErrors.ErrSessionExpired.Status, "expired"),
		refreshed: &models.LoginResponse{
			TokenPair: models.TokenPair{AccessToken: "new-access", RefreshToken: "new-refresh", AccessExpiresAt: exp},
			User:      models.Actor{ID: "u-1", Role: models.RoleClient, ClientID: "c-1"},
		},
	}
	platform := &countingProvider{}
	chain := Chain{NewTokenProvider(auth), platform}

	res, err := chain.Resolve(context.Background(), Credentials{AccessToken: "old", RefreshToken: "refresh", PlatformToken: "platform"})
	require.NoError(t, err)
	require.NotNil(t, res.Identity.Refreshed)
	assert.Equal(t, "new-access", res.Identity.Refreshed.AccessToken)
	assert.Equal(t, exp, *res.Identity.ExpiresAt)
	assert.Equal(t, models.RoleClient, res.Identity.Actor.Role)
	assert.Zero(t, platform.calls)
	assert.False(t, res.ClearAppTokens)
}

func TestFailedRefreshDiscardsTokensAndFallsThrough(t *testing.T) {
	auth := &stubAuthority{
		validErr:   appErrors.ErrSessionExpired,
		refreshErr: appErrors.Clone(appErrors.ErrSessionExpired, "refresh token is expired or revoked"),
	}
	platform := &countingProvider{identity: &Identity{Actor: models.Actor{ID: "u-2"}, Source: models.SourcePlatformSession}}
	chain := Chain{NewTokenProvider(auth), platform}

	res, err := chain.Resolve(context.Background(), Credentials{AccessToken: "old", RefreshToken: "stale", PlatformToken: "platform"})
	require.NoError(t, err)
	assert.True(t, res.ClearAppTokens)
	assert.False(t, res.ClearPlatform)
	assert.Equal(t, "u-2", res.Identity.Actor.ID)
	assert.Equal(t, 1, platform.calls)
}

func TestExpiredTokenWithoutRefreshEndsSession(t *testing.T) {
	auth := &stubAuthority{validErr: appErrors.ErrSessionExpired}
	chain := Chain{NewTokenProvider(auth), &countingProvider{}}

	res, err := chain.Resolve(context.Background(), Credentials{AccessToken: "old"})
	assert.ErrorIs(t, err, appErrors.ErrSessionExpired)
	assert.Nil(t, res.Identity)
	assert.True(t, res.ClearAppTokens)
	assert.Zero(t, auth.refreshes)
}

func TestEmptyCredentialsRequireAuthentication(t *testing.T) {
	chain := Chain{NewTokenProvider(&stubAuthority{}), &countingProvider{}}
	_, err := chain.Resolve(context.Background(), Credentials{})
	assert.ErrorIs(t, err, appErrors.ErrAuthRequired)
}

func TestPlatformSessionLoadsProfile(t *testing.T) {
	store := &stubProfileStore{profiles: map[string]*models.Profile{
		subjectID: {ID: subjectID, Email: "dana@example.com", Role: models.RoleClient, ClientID: clientID(), Active: true},
	}}
	provider := newPlatform(t, store)

	identity, err := provider.Resolve(context.Background(), Credentials{PlatformToken: platformToken(t, subjectID, time.Now().Add(time.Hour))})
	require.NoError(t, err)
	assert.Equal(t, models.RoleClient, identity.Actor.Role)
	assert.Equal(t, "c-1", identity.Actor.ClientID)
	assert.Equal(t, models.SourcePlatformSession, identity.Source)
	assert.NotNil(t, identity.ExpiresAt)
}

func TestPlatformSessionProvisionsMissingProfile(t *testing.T) {
	store := &stubProfileStore{}
	provider := newPlatform(t, store)

	identity, err := provider.Resolve(context.Background(), Credentials{PlatformToken: platformToken(t, subjectID, time.Now().Add(time.Hour))})
	require.NoError(t, err)
	require.Len(t, store.created, 1)
	created := store.created[0]
	assert.Equal(t, models.RoleUser, created.Role)
	assert.False(t, created.Active)
	assert.True(t, created.Pending)
	assert.Nil(t, created.ClientID)
	assert.Equal(t, "dana@example.com", created.Email)
	assert.Equal(t, subjectID, identity.Actor.ID)
	assert.Equal(t, models.RoleUser, identity.Actor.Role)
	assert.Equal(t, 2, store.finds)
}

func TestPlatformSessionProvisionConflictIsIgnored(t *testing.T) {
	store := &stubProfileStore{createErr: &pq.Error{Code: "23505"}}
	provider := newPlatform(t, store)

	_, err := provider.Resolve(context.Background(), Credentials{PlatformToken: platformToken(t, subjectID, time.Now().Add(time.Hour))})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
	assert.Equal(t, 2, store.finds)
}

func TestPlatformProfileLoadRetriesTransientFailures(t *testing.T) {
	store := &stubProfileStore{
		profiles: map[string]*models.Profile{subjectID: {ID: subjectID, Role: models.RoleUser, ClientID: clientID(), Active: true}},
		failures: []error{driver.ErrBadConn, driver.ErrBadConn},
	}
	provider := newPlatform(t, store)

	identity, err := provider.Resolve(context.Background(), Credentials{PlatformToken: platformToken(t, subjectID, time.Now().Add(time.Hour))})
	require.NoError(t, err)
	assert.Equal(t, subjectID, identity.Actor.ID)
	assert.Equal(t, 3, store.finds)
}

func TestPlatformProfileLoadDoesNotRetryPermissionDenial(t *testing.T) {
	store := &stubProfileStore{failures: []error{&pq.Error{Code: "42501", Message: "permission denied"}}}
	provider := newPlatform(t, store)

	_, err := provider.Resolve(context.Background(), Credentials{PlatformToken: platformToken(t, subjectID, time.Now().Add(time.Hour))})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Equal(t, 1, store.finds)
}

func TestPlatformProfileLoadExhaustionFailsClosed(t *testing.T) {
	store := &stubProfileStore{failures: []error{driver.ErrBadConn, driver.ErrBadConn, driver.ErrBadConn}}
	chain := Chain{NewTokenProvider(&stubAuthority{}), newPlatform(t, store)}

	res, err := chain.Resolve(context.Background(), Credentials{PlatformToken: platformToken(t, subjectID, time.Now().Add(time.Hour))})
	assert.ErrorIs(t, err, appErrors.ErrMaxRetriesExceeded)
	assert.Nil(t, res.Identity)
	assert.False(t, res.ClearPlatform)
	assert.Equal(t, 3, store.finds)
}

func TestPlatformSessionRejectsInactiveBoundProfile(t *testing.T) {
	store := &stubProfileStore{profiles: map[string]*models.Profile{
		subjectID: {ID: subjectID, Role: models.RoleUser, ClientID: clientID(), Active: false},
	}}
	chain := Chain{newPlatform(t, store)}

	res, err := chain.Resolve(context.Background(), Credentials{PlatformToken: platformToken(t, subjectID, time.Now().Add(time.Hour))})
	assert.ErrorIs(t, err, appErrors.ErrInactiveAccount)
	assert.True(t, res.ClearPlatform)
}

func TestPlatformSessionRejectsExpiredToken(t *testing.T) {
	store := &stubProfileStore{}
	chain := Chain{newPlatform(t, store)}

	res, err := chain.Resolve(context.Background(), Credentials{PlatformToken: platformToken(t, subjectID, time.Now().Add(-time.Minute))})
	assert.ErrorIs(t, err, appErrors.ErrSessionExpired)
	assert.True(t, res.ClearPlatform)
	assert.Zero(t, store.finds)
}

func TestPlatformSessionVerifiedThroughJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jwks, err := json.Marshal(map[string]any{"keys": []map[string]any{{
		"kty": "RSA",
		"kid": "platform-1",
		"use": "sig",
		"alg": "RS256",
		"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}}})
	require.NoError(t, err)
	kf, err := keyfunc.NewJWKSetJSON(jwks)
	require.NoError(t, err)

	store := &stubProfileStore{profiles: map[string]*models.Profile{
		subjectID: {ID: subjectID, Role: models.RoleAdmin, Active: true},
	}}
	provider, err := NewPlatformProvider(store, PlatformConfig{Keyfunc: kf, Issuer: "https://platform.test", RetryBackoff: time.Millisecond}, nil)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, PlatformClaims{
		Email: "admin@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    "https://platform.test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token.Header["kid"] = "platform-1"
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	identity, err := provider.Resolve(context.Background(), Credentials{PlatformToken: signed})
	require.NoError(t, err)
	assert.True(t, identity.Actor.IsAdmin())

	forged := platformToken(t, subjectID, time.Now().Add(time.Hour))
	_, err = provider.Resolve(context.Background(), Credentials{PlatformToken: forged})
	var rejection *Rejection
	assert.ErrorAs(t, err, &rejection)
}

func TestNewPlatformProviderRequiresVerificationKey(t *testing.T) {
	_, err := NewPlatformProvider(&stubProfileStore{}, PlatformConfig{}, nil)
	assert.Error(t, err)
}
