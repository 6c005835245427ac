package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/client-portal-api/internal/realtime"
	"github.com/noah-isme/client-portal-api/internal/service"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
	"github.com/noah-isme/client-portal-api/pkg/response"
)

const streamHeartbeat = 25 * time.Second

var streamTopics = map[string]struct{}{
	service.TopicFiles:    {},
	service.TopicMessages: {},
	service.TopicNews:     {},
}

// StreamHandler pushes refetch signals to list views over server-sent events.
type StreamHandler struct {
	hub       realtime.Hub
	debounce  time.Duration
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewStreamHandler constructs the handler.
func NewStreamHandler(hub realtime.Hub, debounce time.Duration, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{hub: hub, debounce: debounce, heartbeat: streamHeartbeat, logger: logger}
}

// Stream godoc
// @Summary Change feed for a list view
// @Description Emits one "refetch" event per burst of changes; bursts within the debounce window are coalesced
// @Tags Realtime
// @Produce text/event-stream
// @Param topic path string true "files, messages or news"
// @Router /stream/{topic} [get]
func (h *StreamHandler) Stream(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	topic := c.Param("topic")
	if _, known := streamTopics[topic]; !known {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "unknown topic"))
		return
	}
	if h.hub == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNetwork, "realtime updates are disabled"))
		return
	}

	ctx := c.Request.Context()
	events, err := h.hub.Subscribe(ctx, topic)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrNetwork.Code, appErrors.ErrNetwork.Status, "realtime updates are unavailable"))
		return
	}
	bursts := realtime.Coalesce(ctx, events, h.debounce)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent("ready", gin.H{"topic": topic})
	c.Writer.Flush()

	h.logger.Debug("stream subscribed", zap.String("topic", topic), zap.String("actor_id", actor.ID))
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case burst, ok := <-bursts:
			if !ok {
				return
			}
			c.SSEvent("refetch", gin.H{"topic": burst.Topic, "changes": burst.Count})
			c.Writer.Flush()
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}
