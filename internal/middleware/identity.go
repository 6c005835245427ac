package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/client-portal-api/internal/identity"
	"github.com/noah-isme/client-portal-api/pkg/response"
)

// PlatformHeader carries a platform session token for non-browser clients.
const PlatformHeader = "X-Platform-Session"

// RefreshHeader carries an app refresh token for non-browser clients.
const RefreshHeader = "X-Refresh-Token"

type identityResolver interface {
	Resolve(ctx context.Context, creds identity.Credentials) (identity.Resolution, error)
}

// CredentialsFromRequest collects tokens from the Authorization header, the token cookies
// and the platform session header.
func CredentialsFromRequest(c *gin.Context) identity.Credentials {
	var creds identity.Credentials
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			creds.AccessToken = strings.TrimSpace(parts[1])
		}
	}
	if creds.AccessToken == "" {
		creds.AccessToken, _ = c.Cookie(AccessCookie)
	}
	creds.RefreshToken = c.GetHeader(RefreshHeader)
	if creds.RefreshToken == "" {
		creds.RefreshToken, _ = c.Cookie(RefreshCookie)
	}
	creds.PlatformToken = c.GetHeader(PlatformHeader)
	if creds.PlatformToken == "" {
		creds.PlatformToken, _ = c.Cookie(PlatformCookie)
	}
	c.Set(ContextCredentialsKey, creds)
	return creds
}

// RequestCredentials returns credentials already collected for this request, or collects them.
func RequestCredentials(c *gin.Context) identity.Credentials {
	if value, exists := c.Get(ContextCredentialsKey); exists {
		if creds, ok := value.(identity.Credentials); ok {
			return creds
		}
	}
	return CredentialsFromRequest(c)
}

// Identity protects routes by requiring a resolved identity. Rotated tokens are written
// back as cookies and rejected stores are cleared even when the request fails.
func Identity(resolver identityResolver, cookies CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := resolver.Resolve(c.Request.Context(), CredentialsFromRequest(c))
		cookies.Apply(c, res)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if res.Identity.Refreshed != nil {
			c.Header("X-Session-Refreshed", "true")
		}
		SetIdentity(c, res.Identity)
		c.Next()
	}
}
