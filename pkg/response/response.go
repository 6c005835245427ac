package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/client-portal-api/internal/models"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
)

// ErrorKey is the gin context key holding the last error sent to the client.
const ErrorKey = "response_error"

// Envelope represents the common response contract.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// JSON sends a success response with optional pagination metadata.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	envelope := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	c.JSON(status, envelope)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Error sends an error response converting the error to the common structure.
// Infrastructure errors are normalised first so clients only ever see translated text.
func Error(c *gin.Context, err error, meta ...map[string]interface{}) {
	appErr := appErrors.Normalize(err)
	if appErr == nil {
		appErr = appErrors.ErrInternal
	}
	c.Set(ErrorKey, appErr)
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	envelope := Envelope{Error: appErr}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	c.JSON(appErr.Status, envelope)
}

// Batch sends the outcome of a best-effort batch: 200 when every item went through,
// 207 when some failed and 422 BATCH_FAILED when none succeeded. Per-item results are
// always returned in data.
func Batch(c *gin.Context, result *models.BulkResult) {
	status := http.StatusOK
	var appErr *appErrors.Error
	switch {
	case len(result.Failed) == 0:
	case len(result.Succeeded) > 0:
		status = http.StatusMultiStatus
	default:
		appErr = appErrors.ErrBatchFailed
		status = appErr.Status
		c.Set(ErrorKey, appErr)
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(status, Envelope{Data: result, Error: appErr})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
