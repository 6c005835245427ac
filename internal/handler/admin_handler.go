package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/client-portal-api/internal/models"
	"github.com/noah-isme/client-portal-api/pkg/errlog"
	"github.com/noah-isme/client-portal-api/pkg/export"
	"github.com/noah-isme/client-portal-api/pkg/response"
	"github.com/noah-isme/client-portal-api/pkg/storage"
)

type statsService interface {
	System(ctx context.Context, actor models.Actor) (*models.SystemStats, error)
	RecentErrors(actor models.Actor, limit int) ([]errlog.Entry, error)
}

type reportService interface {
	FileAccess(ctx context.Context, actor models.Actor, format string, from, to *time.Time) (*export.Document, error)
}

// AdminHandler serves the admin dashboard, the error log and access reports.
type AdminHandler struct {
	stats   statsService
	reports reportService
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(stats statsService, reports reportService) *AdminHandler {
	return &AdminHandler{stats: stats, reports: reports}
}

// Stats godoc
// @Summary Portal-wide counts
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	stats, err := h.stats.System(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Errors godoc
// @Summary Recently captured errors, newest first
// @Tags Admin
// @Produce json
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Router /admin/errors [get]
func (h *AdminHandler) Errors(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.stats.RecentErrors(actor, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// FileAccessReport godoc
// @Summary Export file access statistics
// @Tags Admin
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Success 200 {file} file
// @Router /admin/reports/file-access [get]
func (h *AdminHandler) FileAccessReport(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	from, to, ok := dateRange(c)
	if !ok {
		return
	}
	doc, err := h.reports.FileAccess(c.Request.Context(), actor, c.Query("format"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", storage.AttachmentDisposition(doc.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}
