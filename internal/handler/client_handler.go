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

type clientService interface {
	List(ctx context.Context, actor models.Actor, filter models.ClientFilter) ([]models.Client, *models.Pagination, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.Client, error)
	Create(ctx context.Context, actor models.Actor, req service.CreateClientRequest) (*models.Client, error)
	Update(ctx context.Context, actor models.Actor, id string, req service.UpdateClientRequest) (*models.Client, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
}

// ClientHandler manages tenant organizations.
type ClientHandler struct {
	service clientService
}

// NewClientHandler constructs the handler.
func NewClientHandler(svc clientService) *ClientHandler {
	return &ClientHandler{service: svc}
}

// List godoc
// @Summary List clients
// @Tags Clients
// @Produce json
// @Param status query string false "active or inactive"
// @Param search query string false "Company name or contact email"
// @Success 200 {object} response.Envelope
// @Router /clients [get]
func (h *ClientHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	filter := models.ClientFilter{Search: strings.TrimSpace(c.Query("search"))}
	filter.Page, filter.PageSize = pageQuery(c)
	if status := c.Query("status"); status != "" {
		s := models.ClientStatus(status)
		filter.Status = &s
	}
	clients, pagination, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, clients, pagination)
}

func (h *ClientHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	client, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, client, nil)
}

func (h *ClientHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.CreateClientRequest
	if !bindJSON(c, &req, "invalid client payload") {
		return
	}
	client, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, client)
}

func (h *ClientHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.UpdateClientRequest
	if !bindJSON(c, &req, "invalid client payload") {
		return
	}
	client, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, client, nil)
}

func (h *ClientHandler) Delete(c *gin.Context) {
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
