package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/client-portal-api/pkg/errlog"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
	"github.com/noah-isme/client-portal-api/pkg/middleware/requestid"
	"github.com/noah-isme/client-portal-api/pkg/response"
)

// ErrorCapture records every error response in the ring and logs server failures.
func ErrorCapture(ring *errlog.Ring, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		c.Next()

		value, exists := c.Get(response.ErrorKey)
		if !exists {
			return
		}
		appErr, ok := value.(*appErrors.Error)
		if !ok || appErr == nil {
			return
		}
		entry := errlog.Entry{
			Operation: operationName(c),
			RequestID: requestid.Value(c),
			Code:      appErr.Code,
			Status:    appErr.Status,
			Message:   appErr.Message,
		}
		if actor, ok := ActorFromContext(c); ok {
			entry.ActorID = actor.ID
		}
		if appErr.Err != nil {
			entry.Detail = appErr.Err.Error()
		}
		ring.Record(entry)

		if appErr.Status >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("operation", entry.Operation),
				zap.String("code", entry.Code),
				zap.String("request_id", entry.RequestID),
				zap.String("actor_id", entry.ActorID),
				zap.Error(appErr),
			)
		}
	}
}

func operationName(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return c.Request.Method + " " + path
}
