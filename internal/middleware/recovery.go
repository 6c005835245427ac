package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/client-portal-api/pkg/errlog"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
	"github.com/noah-isme/client-portal-api/pkg/middleware/requestid"
	"github.com/noah-isme/client-portal-api/pkg/response"
)

// RecoveryActions are the choices offered to the user after an unexpected failure.
var RecoveryActions = []string{"retry", "home", "report"}

// Recovery turns a panic into a 500 envelope and keeps the server alive.
func Recovery(ring *errlog.Ring, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		operation := operationName(c)
		logger.Error("panic recovered",
			zap.String("operation", operation),
			zap.String("request_id", requestid.Value(c)),
			zap.Any("panic", recovered),
			zap.Stack("stack"),
		)
		entry := errlog.Entry{
			Operation: operation,
			RequestID: requestid.Value(c),
			Code:      appErrors.ErrInternal.Code,
			Status:    appErrors.ErrInternal.Status,
			Message:   "unexpected failure",
			Detail:    fmt.Sprint(recovered),
		}
		if actor, ok := ActorFromContext(c); ok {
			entry.ActorID = actor.ID
		}
		ring.Record(entry)

		err := appErrors.Clone(appErrors.ErrInternal, "something went wrong, please try again")
		response.Error(c, err, map[string]interface{}{"actions": RecoveryActions, "request_id": entry.RequestID})
		c.Abort()
	})
}
