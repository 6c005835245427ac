package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/client-portal-api/internal/models"
	"github.com/noah-isme/client-portal-api/internal/policy"
	"github.com/noah-isme/client-portal-api/internal/service"
	"github.com/noah-isme/client-portal-api/pkg/response"
)

type profileService interface {
	Me(ctx context.Context, actor models.Actor) (*models.Profile, error)
	UpdateName(ctx context.Context, actor models.Actor, req service.UpdateNameRequest) (*models.Profile, error)
	List(ctx context.Context, actor models.Actor, filter models.ProfileFilter) ([]models.Profile, *models.Pagination, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.Profile, error)
	Create(ctx context.Context, actor models.Actor, req service.CreateProfileRequest) (*models.Profile, error)
	Update(ctx context.Context, actor models.Actor, id string, req service.UpdateProfileRequest) (*models.Profile, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
	ClientUsers(ctx context.Context, actor models.Actor) ([]models.Profile, error)
	CreateClientUser(ctx context.Context, actor models.Actor, req service.CreateClientUserRequest) (*models.Profile, error)
	Peers(ctx context.Context, actor models.Actor) ([]models.Profile, error)
}

// ProfileHandler exposes self-service and administrative profile endpoints.
type ProfileHandler struct {
	service profileService
}

// NewProfileHandler constructs the handler.
func NewProfileHandler(svc profileService) *ProfileHandler {
	return &ProfileHandler{service: svc}
}

// Me godoc
// @Summary Current profile
// @Tags Profiles
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me [get]
func (h *ProfileHandler) Me(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	profile, err := h.service.Me(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// UpdateMe renames the current profile.
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.UpdateNameRequest
	if !bindJSON(c, &req, "invalid profile payload") {
		return
	}
	profile, err := h.service.UpdateName(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Permissions godoc
// @Summary Permission hints for the current actor
// @Description Derived from the same rule table the server enforces
// @Tags Profiles
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/permissions [get]
func (h *ProfileHandler) Permissions(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, policy.Hints(actor), nil)
}

// List returns profiles for admins, filtered by role, client, active flag and search.
func (h *ProfileHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	filter := models.ProfileFilter{Search: strings.TrimSpace(c.Query("search"))}
	filter.Page, filter.PageSize = pageQuery(c)
	if role := c.Query("role"); role != "" {
		r := models.Role(role)
		filter.Role = &r
	}
	if clientID := c.Query("client_id"); clientID != "" {
		filter.ClientID = &clientID
	}
	active, err := optionalBool(c.Query("active"))
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.Active = active

	profiles, pagination, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profiles, pagination)
}

// Get returns one profile.
func (h *ProfileHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	profile, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Create adds a profile with any role.
func (h *ProfileHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.CreateProfileRequest
	if !bindJSON(c, &req, "invalid profile payload") {
		return
	}
	profile, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, profile)
}

// Update changes a profile.
func (h *ProfileHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.UpdateProfileRequest
	if !bindJSON(c, &req, "invalid profile payload") {
		return
	}
	profile, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Delete removes a profile.
func (h *ProfileHandler) Delete(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ClientUsers lists the members of the manager's own client.
func (h *ProfileHandler) ClientUsers(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	users, err := h.service.ClientUsers(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, nil)
}

// CreateClientUser adds a user under the manager's own client.
func (h *ProfileHandler) CreateClientUser(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.CreateClientUserRequest
	if !bindJSON(c, &req, "invalid user payload") {
		return
	}
	profile, err := h.service.CreateClientUser(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, profile)
}

// Peers lists who the actor may message.
func (h *ProfileHandler) Peers(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	peers, err := h.service.Peers(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, peers, nil)
}
