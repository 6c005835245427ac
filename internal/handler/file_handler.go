package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/client-portal-api/internal/models"
	"github.com/noah-isme/client-portal-api/internal/service"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
	"github.com/noah-isme/client-portal-api/pkg/response"
	"github.com/noah-isme/client-portal-api/pkg/storage"
)

// multipart framing and form fields on top of the file itself
const uploadOverhead = 1 << 20

type fileService interface {
	List(ctx context.Context, actor models.Actor, filter models.FileFilter) ([]models.File, *models.Pagination, error)
	Get(ctx context.Context, actor models.Actor, fileID string) (*models.File, error)
	Upload(ctx context.Context, actor models.Actor, req service.UploadRequest) (*models.File, error)
	Assign(ctx context.Context, actor models.Actor, fileID string, target models.AssignmentTarget) (*models.FileAssignment, error)
	BulkAssign(ctx context.Context, actor models.Actor, fileIDs []string, target models.AssignmentTarget) (*models.BulkResult, error)
	Unassign(ctx context.Context, actor models.Actor, fileID, assignmentID string) error
	Assignments(ctx context.Context, actor models.Actor, fileID string) ([]models.FileAssignment, error)
	Delete(ctx context.Context, actor models.Actor, fileID string) error
	AccessURL(ctx context.Context, actor models.Actor, fileID string, accessType models.AccessType) (*models.SignedFileURL, error)
	Stats(ctx context.Context, actor models.Actor, fileID string) (*models.FileAccessStats, error)
}

type blobRedeemer interface {
	Redeem(token string) (*storage.Blob, error)
}

// BulkAssignRequest assigns several files to one target.
type BulkAssignRequest struct {
	FileIDs []string                `json:"file_ids" binding:"required,min=1,max=100"`
	Target  models.AssignmentTarget `json:"target" binding:"required"`
}

// FileHandler exposes file listing, upload, assignment and download endpoints.
type FileHandler struct {
	service   fileService
	blobs     blobRedeemer
	maxUpload int64
}

// NewFileHandler constructs the handler. blobs is nil unless the local storage backend is used.
func NewFileHandler(svc fileService, blobs blobRedeemer, maxUpload int64) *FileHandler {
	return &FileHandler{service: svc, blobs: blobs, maxUpload: maxUpload}
}

// List godoc
// @Summary List visible files
// @Description Admins see every file; others see their own uploads plus files assigned to them or their client
// @Tags Files
// @Produce json
// @Param search query string false "Filename or description"
// @Param file_type query string false "MIME type, or an allowed extension such as pdf"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /files [get]
func (h *FileHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	from, to, ok := dateRange(c)
	if !ok {
		return
	}
	filter := models.FileFilter{
		Search:   strings.TrimSpace(c.Query("search")),
		FileType: strings.TrimSpace(c.Query("file_type")),
		DateFrom: from,
		DateTo:   to,
	}
	filter.Page, filter.PageSize = pageQuery(c)

	files, pagination, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, files, pagination)
}

// Get returns one visible file.
func (h *FileHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	file, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, file, nil)
}

// Upload godoc
// @Summary Upload a file
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File"
// @Param description formData string false "Description"
// @Success 201 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /files [post]
func (h *FileHandler) Upload(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+uploadOverhead)
	}
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.ErrFileTooLarge)
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "a file is required"))
		return
	}
	body, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to read upload"))
		return
	}
	defer body.Close()

	file, err := h.service.Upload(c.Request.Context(), actor, service.UploadRequest{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Description: strings.TrimSpace(c.PostForm("description")),
		Body:        body,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, file)
}

// Assign grants a user or a client visibility of a file.
func (h *FileHandler) Assign(c *gin.Context) {
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

// BulkAssign assigns many files at once and reports per-file outcomes.
func (h *FileHandler) BulkAssign(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req BulkAssignRequest
	if !bindJSON(c, &req, "invalid bulk assignment payload") {
		return
	}
	result, err := h.service.BulkAssign(c.Request.Context(), actor, req.FileIDs, req.Target)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Batch(c, result)
}

// Unassign removes one assignment.
func (h *FileHandler) Unassign(c *gin.Context) {
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

// Assignments lists who a file is assigned to.
func (h *FileHandler) Assignments(c *gin.Context) {
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

// Delete removes a file and its stored object.
func (h *FileHandler) Delete(c *gin.Context) {
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

// AccessURL godoc
// @Summary Signed URL for a file
// @Description type=download sets an attachment disposition; preview and view open inline
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Param type query string false "view, preview or download"
// @Success 200 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /files/{id}/url [get]
func (h *FileHandler) AccessURL(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	accessType := models.AccessType(c.DefaultQuery("type", string(models.AccessPreview)))
	if !accessType.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "type must be view, preview or download"))
		return
	}
	signed, err := h.service.AccessURL(c.Request.Context(), actor, c.Param("id"), accessType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, signed, nil)
}

// Stats returns access counts per type for one file.
func (h *FileHandler) Stats(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	stats, err := h.service.Stats(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Blob serves an object of the local backend. The signed token is the only credential.
func (h *FileHandler) Blob(c *gin.Context) {
	if h.blobs == nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	blob, err := h.blobs.Redeem(c.Query("token"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "download link is invalid or expired"))
		return
	}
	defer blob.Content.Close()

	name := blob.Key
	if blob.DownloadName != "" {
		name = blob.DownloadName
		c.Header("Content-Disposition", storage.AttachmentDisposition(blob.DownloadName))
	}
	c.Header("Cache-Control", "private, no-store")
	c.Header("X-Content-Type-Options", "nosniff")
	http.ServeContent(c.Writer, c.Request, name, time.Time{}, blob.Content)
}
