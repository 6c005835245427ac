package identity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"go.uber.org/zap"
)

const jwksClientTimeout = 10 * time.Second

// NewJWKSKeyfunc builds a keyfunc over the platform's JWKS endpoint, refreshed in the
// background until ctx is cancelled. Startup does not fail when the endpoint is down.
func NewJWKSKeyfunc(ctx context.Context, url string, refreshInterval time.Duration, logger *zap.Logger) (keyfunc.Keyfunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if refreshInterval <= 0 {
		refreshInterval = time.Hour
	}
	storage, err := jwkset.NewStorageFromHTTP(url, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: jwksClientTimeout},
		Ctx:                       ctx,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("jwks refresh failed", zap.String("url", url), zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create jwks storage: %w", err)
	}
	kf, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("create keyfunc: %w", err)
	}
	return kf, nil
}
