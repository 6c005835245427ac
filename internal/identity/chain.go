package identity

import (
	"context"
	"errors"

	"github.com/noah-isme/client-portal-api/internal/models"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
)

// Resolution is the outcome of running the provider chain.
type Resolution struct {
	Identity       *Identity
	ClearAppTokens bool
	ClearPlatform  bool
	// Rejected is the last rejection seen while falling through.
	Rejected error
}

func (r *Resolution) markCleared(source models.IdentitySource) {
	switch source {
	case models.SourceAppToken:
		r.ClearAppTokens = true
	case models.SourcePlatformSession:
		r.ClearPlatform = true
	}
}

// Chain tries providers in priority order. The first provider that resolves wins;
// later providers are never consulted.
type Chain []Provider

// Resolve runs the chain. Missing or rejected credentials fall through to the next
// provider. Any other failure stops the chain and leaves the request unauthenticated.
func (c Chain) Resolve(ctx context.Context, creds Credentials) (Resolution, error) {
	var res Resolution
	for _, provider := range c {
		identity, err := provider.Resolve(ctx, creds)
		if err == nil {
			res.Identity = identity
			return res, nil
		}
		if errors.Is(err, ErrNoCredentials) {
			continue
		}
		var rejection *Rejection
		if errors.As(err, &rejection) {
			res.markCleared(rejection.Source)
			res.Rejected = rejection
			continue
		}
		return res, err
	}
	if res.Rejected != nil {
		var rejection *Rejection
		if errors.As(res.Rejected, &rejection) {
			if appErr := appErrors.Normalize(rejection.Err); appErr != nil && appErr.Status < 500 {
				return res, appErr
			}
		}
		return res, appErrors.Clone(appErrors.ErrSessionExpired, "")
	}
	return res, appErrors.ErrAuthRequired
}
