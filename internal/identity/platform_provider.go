package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/client-portal-api/internal/models"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
	"github.com/noah-isme/client-portal-api/pkg/middleware/requestid"
	"github.com/noah-isme/client-portal-api/pkg/retry"
)

type platformProfiles interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	Create(ctx context.Context, profile *models.Profile) error
}

// PlatformConfig configures platform session verification and profile loading.
// Keyfunc takes precedence over Secret.
type PlatformConfig struct {
	Keyfunc        keyfunc.Keyfunc
	Secret         string
	Issuer         string
	Audience       string
	ProfileRetries int
	RetryBackoff   time.Duration
	LoadTimeout    time.Duration
}

// PlatformClaims is the payload of a platform session token.
type PlatformClaims struct {
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Name     string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func (c *PlatformClaims) displayName() string {
	if c.FullName != "" {
		return c.FullName
	}
	return c.Name
}

// PlatformProvider resolves a platform session by loading the profile named by its subject.
type PlatformProvider struct {
	profiles platformProfiles
	config   PlatformConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewPlatformProvider builds the provider. Either a keyfunc or a secret is required.
func NewPlatformProvider(profiles platformProfiles, config PlatformConfig, logger *zap.Logger) (*PlatformProvider, error) {
	if config.Keyfunc == nil && config.Secret == "" {
		return nil, errors.New("platform provider requires a jwks url or a shared secret")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ProfileRetries <= 0 {
		config.ProfileRetries = 3
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 200 * time.Millisecond
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = 5 * time.Second
	}
	return &PlatformProvider{profiles: profiles, config: config, logger: logger, now: time.Now}, nil
}

// Source implements Provider.
func (p *PlatformProvider) Source() models.IdentitySource { return models.SourcePlatformSession }

// Resolve verifies the platform token and synthesizes the identity from the profile row,
// provisioning a pending profile the first time a subject is seen.
func (p *PlatformProvider) Resolve(ctx context.Context, creds Credentials) (*Identity, error) {
	if creds.PlatformToken == "" {
		return nil, ErrNoCredentials
	}
	claims, err := p.parse(ctx, creds.PlatformToken)
	if err != nil {
		return nil, reject(models.SourcePlatformSession, err)
	}

	profile, err := p.load(ctx, claims.Subject)
	if errors.Is(err, sql.ErrNoRows) {
		if err := p.provision(ctx, claims); err != nil {
			return nil, err
		}
		profile, err = p.load(ctx, claims.Subject)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "profile could not be loaded")
		}
		p.logger.Warn("platform profile load failed", zap.String("request_id", requestid.FromContext(ctx)), zap.String("subject", claims.Subject), zap.Error(err))
		return nil, appErrors.Normalize(err)
	}
	if !profile.Active && !profile.Pending {
		return nil, reject(models.SourcePlatformSession, appErrors.ErrInactiveAccount)
	}

	identity := &Identity{Actor: profile.Actor(), Source: models.SourcePlatformSession}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		identity.ExpiresAt = &exp
	}
	return identity, nil
}

func (p *PlatformProvider) parse(ctx context.Context, raw string) (*PlatformClaims, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(p.now), jwt.WithExpirationRequired()}
	if p.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.config.Issuer))
	}
	if p.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(p.config.Audience))
	}

	var keys jwt.Keyfunc
	if p.config.Keyfunc != nil {
		opts = append(opts, jwt.WithValidMethods([]string{"RS256", "ES256", "EdDSA"}))
		keys = p.config.Keyfunc.KeyfuncCtx(ctx)
	} else {
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		secret := []byte(p.config.Secret)
		keys = func(*jwt.Token) (interface{}, error) { return secret, nil }
	}

	claims := &PlatformClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, keys, opts...); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErrors.Wrap(err, appErrors.ErrSessionExpired.Code, appErrors.ErrSessionExpired.Status, appErrors.ErrSessionExpired.Message)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid platform session")
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "platform session subject is not a profile id")
	}
	return claims, nil
}

// load retries transient failures only; not-found and permission errors return at once.
func (p *PlatformProvider) load(ctx context.Context, id string) (*models.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.LoadTimeout)
	defer cancel()

	var profile *models.Profile
	policy := retry.Policy{
		MaxAttempts:     p.config.ProfileRetries,
		InitialInterval: p.config.RetryBackoff,
		MaxInterval:     4 * p.config.RetryBackoff,
	}
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		found, err := p.profiles.FindByID(ctx, id)
		if err != nil {
			return err
		}
		profile = found
		return nil
	})
	return profile, err
}

func (p *PlatformProvider) provision(ctx context.Context, claims *PlatformClaims) error {
	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return appErrors.Clone(appErrors.ErrUnauthorized, "platform session carries no email")
	}
	now := p.now().UTC()
	profile := &models.Profile{
		ID:        claims.Subject,
		Email:     email,
		FullName:  claims.displayName(),
		Role:      models.RoleUser,
		Active:    false,
		Pending:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := p.profiles.Create(ctx, profile)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		// provisioned concurrently by another request
		return nil
	}
	if err != nil {
		p.logger.Error("auto-provision profile failed", zap.String("request_id", requestid.FromContext(ctx)), zap.String("subject", claims.Subject), zap.Error(err))
		return appErrors.Internal(err, "failed to provision profile")
	}
	p.logger.Info("auto-provisioned pending profile", zap.String("request_id", requestid.FromContext(ctx)), zap.String("actor_id", profile.ID))
	return nil
}
