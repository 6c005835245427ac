package identity

import (
	"context"

	"github.com/noah-isme/client-portal-api/internal/models"
)

type tokenAuthority interface {
	ValidateToken(token string) (*models.JWTClaims, error)
	RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.LoginResponse, error)
}

// TokenProvider resolves the portal's own access/refresh token pair.
type TokenProvider struct {
	auth tokenAuthority
}

// NewTokenProvider builds a provider backed by the auth service.
func NewTokenProvider(auth tokenAuthority) *TokenProvider {
	return &TokenProvider{auth: auth}
}

// Source implements Provider.
func (p *TokenProvider) Source() models.IdentitySource { return models.SourceAppToken }

// Resolve trusts a valid access token outright. Otherwise the refresh token is rotated
// and the identity comes from the new pair. A failed rotation rejects both tokens.
func (p *TokenProvider) Resolve(ctx context.Context, creds Credentials) (*Identity, error) {
	if creds.AccessToken == "" && creds.RefreshToken == "" {
		return nil, ErrNoCredentials
	}

	var accessErr error
	if creds.AccessToken != "" {
		claims, err := p.auth.ValidateToken(creds.AccessToken)
		if err == nil {
			identity := &Identity{Actor: claims.Actor(), Source: models.SourceAppToken}
			if claims.ExpiresAt != nil {
				exp := claims.ExpiresAt.Time
				identity.ExpiresAt = &exp
			}
			return identity, nil
		}
		accessErr = err
	}

	if creds.RefreshToken == "" {
		return nil, reject(models.SourceAppToken, accessErr)
	}
	refreshed, err := p.auth.RefreshToken(ctx, models.RefreshTokenRequest{RefreshToken: creds.RefreshToken})
	if err != nil {
		return nil, reject(models.SourceAppToken, err)
	}
	exp := refreshed.AccessExpiresAt
	pair := refreshed.TokenPair
	return &Identity{
		Actor:     refreshed.User,
		Source:    models.SourceAppToken,
		ExpiresAt: &exp,
		Refreshed: &pair,
	}, nil
}
