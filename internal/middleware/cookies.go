package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/client-portal-api/internal/identity"
	"github.com/noah-isme/client-portal-api/internal/models"
)

// Cookie names of the two token stores.
const (
	AccessCookie   = "portal_access"
	RefreshCookie  = "portal_refresh"
	PlatformCookie = "platform_session"
)

// CookieConfig scopes the token cookies.
type CookieConfig struct {
	Domain string
	Secure bool
}

// SetTokenCookies hands an app token pair to the browser.
func (cfg CookieConfig) SetTokenCookies(c *gin.Context, pair *models.TokenPair) {
	if pair == nil {
		return
	}
	now := time.Now()
	cfg.set(c, AccessCookie, pair.AccessToken, maxAge(pair.AccessExpiresAt, now))
	cfg.set(c, RefreshCookie, pair.RefreshToken, maxAge(pair.RefreshExpiresAt, now))
}

// ClearAppTokens expires both app token cookies.
func (cfg CookieConfig) ClearAppTokens(c *gin.Context) {
	cfg.set(c, AccessCookie, "", -1)
	cfg.set(c, RefreshCookie, "", -1)
}

// ClearPlatform expires the platform session cookie.
func (cfg CookieConfig) ClearPlatform(c *gin.Context) {
	cfg.set(c, PlatformCookie, "", -1)
}

// Apply writes the cookie side effects of a resolution.
func (cfg CookieConfig) Apply(c *gin.Context, res identity.Resolution) {
	if res.ClearAppTokens {
		cfg.ClearAppTokens(c)
	}
	if res.ClearPlatform {
		cfg.ClearPlatform(c)
	}
	if res.Identity != nil && res.Identity.Refreshed != nil {
		cfg.SetTokenCookies(c, res.Identity.Refreshed)
	}
}

func (cfg CookieConfig) set(c *gin.Context, name, value string, age int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, age, "/", cfg.Domain, cfg.Secure, true)
}

func maxAge(expiresAt, now time.Time) int {
	age := int(expiresAt.Sub(now).Seconds())
	if age <= 0 {
		return -1
	}
	return age
}
