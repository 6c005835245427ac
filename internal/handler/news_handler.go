package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/client-portal-api/internal/models"
	"github.com/noah-isme/client-portal-api/internal/service"
	"github.com/noah-isme/client-portal-api/pkg/response"
)

type newsService interface {
	List(ctx context.Context, actor models.Actor, filter models.NewsFilter) ([]models.News, *models.Pagination, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.News, error)
	Create(ctx context.Context, actor models.Actor, req service.NewsRequest) (*models.News, error)
	Update(ctx context.Context, actor models.Actor, id string, req service.NewsRequest) (*models.News, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
	Assign(ctx context.Context, actor models.Actor, newsID string, target models.AssignmentTarget) (*models.NewsAssignment, error)
	Assignments(ctx context.Context, actor models.Actor, newsID string) ([]models.NewsAssignment, error)
	Unassign(ctx context.Context, actor models.Actor, newsID, assignmentID string) error
}

// NewsHandler exposes announcements.
type NewsHandler struct {
	service newsService
}

// NewNewsHandler constructs the handler.
func NewNewsHandler(svc newsService) *NewsHandler {
	return &NewsHandler{service: svc}
}

// List godoc
// @Summary List visible news
// @Tags News
// @Produce json
// @Param search query string false "Title or content"
// @Success 200 {object} response.Envelope
// @Router /news [get]
func (h *NewsHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	filter := models.NewsFilter{Search: strings.TrimSpace(c.Query("search"))}
	filter.Page, filter.PageSize = pageQuery(c)
	items, pagination, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

func (h *NewsHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	item, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

func (h *NewsHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.NewsRequest
	if !bindJSON(c, &req, "invalid news payload") {
		return
	}
	item, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

func (h *NewsHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.NewsRequest
	if !bindJSON(c, &req, "invalid news payload") {
		return
	}
	item, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

func (h *NewsHandler) Delete(c *gin.Context) {
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

// Assign targets a news item at a user, a client or everyone.
func (h *NewsHandler) Assign(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var target models.AssignmentTarget
	if !bindJSON(c, &target, "invalid assignment target") {
		return
	}
	assignment, err := h.service.Assign(c.Request.Context(), actor, c.Param("id"), target)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

func (h *NewsHandler) Assignments(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	assignments, err := h.service.Assignments(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

func (h *NewsHandler) Unassign(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if err := h.service.Unassign(c.Request.Context(), actor, c.Param("id"), c.Param("assignmentID")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
