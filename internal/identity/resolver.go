package identity

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/client-portal-api/internal/models"
	"github.com/noah-isme/client-portal-api/internal/repository"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
	"github.com/noah-isme/client-portal-api/pkg/middleware/requestid"
)

type sessionRevoker interface {
	Logout(ctx context.Context, refreshToken string) error
}

type sessionCache interface {
	Invalidate(ctx context.Context, pattern string) (int, error)
}

type identityMetrics interface {
	RecordIdentity(source, outcome string)
}

// Resolver runs the provider chain for requests and owns sign-out.
type Resolver struct {
	chain   Chain
	auth    sessionRevoker
	cache   sessionCache
	metrics identityMetrics
	logger  *zap.Logger
}

// NewResolver builds a resolver over the given chain.
func NewResolver(chain Chain, auth sessionRevoker, cache sessionCache, metrics identityMetrics, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{chain: chain, auth: auth, cache: cache, metrics: metrics, logger: logger}
}

// Resolve produces the authoritative identity for a request.
func (r *Resolver) Resolve(ctx context.Context, creds Credentials) (Resolution, error) {
	if creds.Empty() {
		r.record("none", "anonymous")
		return Resolution{}, appErrors.ErrAuthRequired
	}
	res, err := r.chain.Resolve(ctx, creds)
	switch {
	case err == nil && res.Identity.Refreshed != nil:
		r.record(string(res.Identity.Source), "refreshed")
	case err == nil:
		r.record(string(res.Identity.Source), "resolved")
	case res.Rejected != nil:
		r.record(rejectedSource(res.Rejected), "rejected")
	default:
		r.record("chain", "failed")
		r.logger.Warn("identity resolution failed", zap.String("request_id", requestid.FromContext(ctx)), zap.Error(err))
	}
	return res, err
}

// Revalidate re-runs the chain for a session check: a still-valid app token wins, then a
// refresh, then the platform session. Anything else ends the session.
func (r *Resolver) Revalidate(ctx context.Context, creds Credentials) (*models.SessionInfo, Resolution, error) {
	res, err := r.Resolve(ctx, creds)
	if err != nil {
		return nil, res, err
	}
	return res.Identity.Session(), res, nil
}

// SignOut revokes the refresh token and drops every cached entry of the actor. Both token
// stores are always cleared, whichever was in use.
func (r *Resolver) SignOut(ctx context.Context, actorID string, creds Credentials) Resolution {
	res := Resolution{ClearAppTokens: true, ClearPlatform: true}
	if r.auth != nil && creds.RefreshToken != "" {
		if err := r.auth.Logout(ctx, creds.RefreshToken); err != nil {
			r.logger.Warn("refresh token revoke failed during sign-out", zap.Error(err))
		}
	}
	if r.cache != nil && actorID != "" {
		if _, err := r.cache.Invalidate(ctx, repository.SessionPattern(actorID)); err != nil {
			r.logger.Warn("session cache purge failed", zap.String("actor_id", actorID), zap.Error(err))
		}
	}
	return res
}

func (r *Resolver) record(source, outcome string) {
	if r.metrics != nil {
		r.metrics.RecordIdentity(source, outcome)
	}
}

func rejectedSource(err error) string {
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return string(rejection.Source)
	}
	return "unknown"
}
