package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a profile.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenPair is an issued access/refresh token pair.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresIn        int64     `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	IssuedAt         time.Time `json:"issued_at"`
}

// LoginResponse returns the issued tokens and profile info.
type LoginResponse struct {
	TokenPair
	User Actor `json:"user"`
}

// RefreshTokenRequest exchanges a refresh token for a new pair.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// JWTClaims represents the payload of app-issued access tokens.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Role     Role   `json:"role"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	ClientID string `json:"client_id,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts the claims into the request identity.
func (c *JWTClaims) Actor() Actor {
	return Actor{ID: c.UserID, Email: c.Email, FullName: c.FullName, Role: c.Role, ClientID: c.ClientID}
}

// IdentitySource names where a resolved identity came from.
type IdentitySource string

const (
	SourceAppToken        IdentitySource = "app_token"
	SourcePlatformSession IdentitySource = "platform_session"
)

// SessionInfo describes the resolved session returned by the session endpoint.
type SessionInfo struct {
	Actor     Actor          `json:"actor"`
	Source    IdentitySource `json:"source"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Refreshed bool           `json:"refreshed"`
}
