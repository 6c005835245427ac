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

type messageService interface {
	List(ctx context.Context, actor models.Actor, filter models.MessageFilter) ([]models.Message, *models.Pagination, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.Message, error)
	Send(ctx context.Context, actor models.Actor, req service.SendMessageRequest) (*models.Message, error)
	Broadcast(ctx context.Context, actor models.Actor, req service.BroadcastMessageRequest) (*models.BulkResult, error)
	MarkRead(ctx context.Context, actor models.Actor, id string) (*models.Message, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
	UnreadCount(ctx context.Context, actor models.Actor) (int, error)
}

// MessageHandler exposes direct messaging.
type MessageHandler struct {
	service messageService
}

// NewMessageHandler constructs the handler.
func NewMessageHandler(svc messageService) *MessageHandler {
	return &MessageHandler{service: svc}
}

// List godoc
// @Summary List messages
// @Description Always restricted to messages the actor sent or received
// @Tags Messages
// @Produce json
// @Param folder query string false "inbox, sent or all"
// @Param type query string false "general, support, announcement or system"
// @Param read query string false "read or unread"
// @Param search query string false "Subject or content"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /messages [get]
func (h *MessageHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	from, to, ok := dateRange(c)
	if !ok {
		return
	}
	filter := models.MessageFilter{
		Folder:   models.MessageFolder(c.DefaultQuery("folder", string(models.FolderAll))),
		Type:     models.MessageType(c.Query("type")),
		Search:   strings.TrimSpace(c.Query("search")),
		DateFrom: from,
		DateTo:   to,
	}
	switch strings.ToLower(c.Query("read")) {
	case "read", "true":
		read := true
		filter.Read = &read
	case "unread", "false":
		unread := false
		filter.Read = &unread
	}
	filter.Page, filter.PageSize = pageQuery(c)

	messages, pagination, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, messages, pagination)
}

// Get returns one message of the actor.
func (h *MessageHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	msg, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, msg, nil)
}

// Send delivers a message to one messageable profile.
func (h *MessageHandler) Send(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.SendMessageRequest
	if !bindJSON(c, &req, "invalid message payload") {
		return
	}
	msg, err := h.service.Send(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// Broadcast messages every active member of the manager's client.
func (h *MessageHandler) Broadcast(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.BroadcastMessageRequest
	if !bindJSON(c, &req, "invalid broadcast payload") {
		return
	}
	result, err := h.service.Broadcast(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Batch(c, result)
}

// MarkRead stamps read_at once; repeated calls return the message unchanged.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	msg, err := h.service.MarkRead(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, msg, nil)
}

// Delete removes a message.
func (h *MessageHandler) Delete(c *gin.Context) {
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

// UnreadCount returns the number of unread messages in the inbox.
func (h *MessageHandler) UnreadCount(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	count, err := h.service.UnreadCount(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"unread": count}, nil)
}
