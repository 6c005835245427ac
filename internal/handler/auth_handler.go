package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/client-portal-api/internal/identity"
	"github.com/noah-isme/client-portal-api/internal/middleware"
	"github.com/noah-isme/client-portal-api/internal/models"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
	"github.com/noah-isme/client-portal-api/pkg/response"
)

type authService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.LoginResponse, error)
	ChangePassword(ctx context.Context, profileID string, req models.ChangePasswordRequest) error
}

type sessionResolver interface {
	Revalidate(ctx context.Context, creds identity.Credentials) (*models.SessionInfo, identity.Resolution, error)
	SignOut(ctx context.Context, actorID string, creds identity.Credentials) identity.Resolution
	Resolve(ctx context.Context, creds identity.Credentials) (identity.Resolution, error)
}

// AuthHandler wires HTTP endpoints to the auth service and the identity resolver.
type AuthHandler struct {
	service  authService
	sessions sessionResolver
	cookies  middleware.CookieConfig
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService, sessions sessionResolver, cookies middleware.CookieConfig) *AuthHandler {
	return &AuthHandler{service: svc, sessions: sessions, cookies: cookies}
}

// Login godoc
// @Summary Authenticate profile
// @Description Authenticate by email and password. Tokens are returned and set as cookies.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(c, &req, "invalid login payload") {
		return
	}

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.cookies.SetTokenCookies(c, &res.TokenPair)
	response.JSON(c, http.StatusOK, res, nil)
}

// Refresh godoc
// @Summary Refresh access token
// @Description Exchange a refresh token (body or cookie) for a new pair
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RefreshTokenRequest false "Refresh payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshTokenRequest
	// an empty body falls back to the refresh cookie
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid refresh payload"))
		return
	}
	if req.RefreshToken == "" {
		req.RefreshToken = middleware.RequestCredentials(c).RefreshToken
	}
	if req.RefreshToken == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "refresh token required"))
		return
	}

	res, err := h.service.RefreshToken(c.Request.Context(), req)
	if err != nil {
		h.cookies.ClearAppTokens(c)
		response.Error(c, err)
		return
	}
	h.cookies.SetTokenCookies(c, &res.TokenPair)
	response.JSON(c, http.StatusOK, res, nil)
}

// Session godoc
// @Summary Revalidate the current session
// @Description Re-runs identity resolution: valid app token, then refresh, then platform session
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/session [get]
func (h *AuthHandler) Session(c *gin.Context) {
	info, res, err := h.sessions.Revalidate(c.Request.Context(), middleware.CredentialsFromRequest(c))
	h.cookies.Apply(c, res)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}

// Logout godoc
// @Summary Sign out
// @Description Revokes the refresh token, clears both token stores and the session cache
// @Tags Authentication
// @Success 204
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	creds := middleware.CredentialsFromRequest(c)
	actorID := ""
	if res, err := h.sessions.Resolve(c.Request.Context(), creds); err == nil && res.Identity != nil {
		actorID = res.Identity.Actor.ID
		if res.Identity.Refreshed != nil {
			// the rotated token replaced the presented one
			creds.RefreshToken = res.Identity.Refreshed.RefreshToken
		}
	}
	h.cookies.Apply(c, h.sessions.SignOut(c.Request.Context(), actorID, creds))
	response.NoContent(c)
}

// ChangePassword godoc
// @Summary Change password
// @Tags Authentication
// @Accept json
// @Param payload body models.ChangePasswordRequest true "Password payload"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Router /auth/password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req models.ChangePasswordRequest
	if !bindJSON(c, &req, "invalid change password payload") {
		return
	}
	if err := h.service.ChangePassword(c.Request.Context(), actor.ID, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
