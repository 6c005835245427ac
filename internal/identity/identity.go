// Package identity resolves the actor behind a request from the portal's own token pair
// or, failing that, from a session token minted by the hosted identity platform.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/client-portal-api/internal/models"
)

// ErrNoCredentials is returned by a provider whose token store is empty.
var ErrNoCredentials = errors.New("identity: no credentials")

// Credentials are the raw tokens a request carried.
type Credentials struct {
	AccessToken   string
	RefreshToken  string
	PlatformToken string
}

// Empty reports whether no token store is populated.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == "" && c.PlatformToken == ""
}

// Identity is a resolved actor.
type Identity struct {
	Actor     models.Actor
	Source    models.IdentitySource
	ExpiresAt *time.Time
	// Refreshed carries a rotated app token pair that must be handed back to the browser.
	Refreshed *models.TokenPair
}

// Session converts the identity into the session payload.
func (i *Identity) Session() *models.SessionInfo {
	return &models.SessionInfo{
		Actor:     i.Actor,
		Source:    i.Source,
		ExpiresAt: i.ExpiresAt,
		Refreshed: i.Refreshed != nil,
	}
}

// Rejection reports credentials that were present but unusable. The chain falls through
// to the next provider and the store the credentials came from is cleared.
type Rejection struct {
	Source models.IdentitySource
	Err    error
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("identity: %s credentials rejected: %v", r.Source, r.Err)
}

func (r *Rejection) Unwrap() error { return r.Err }

func reject(source models.IdentitySource, err error) error {
	return &Rejection{Source: source, Err: err}
}

// Provider resolves an identity from one token store.
type Provider interface {
	Source() models.IdentitySource
	Resolve(ctx context.Context, creds Credentials) (*Identity, error)
}
