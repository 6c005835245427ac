package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/client-portal-api/internal/models"
	"github.com/noah-isme/client-portal-api/pkg/errlog"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
	"github.com/noah-isme/client-portal-api/pkg/export"
)

type fakeStats struct {
	limit int
}

func (f *fakeStats) System(context.Context, models.Actor) (*models.SystemStats, error) {
	return &models.SystemStats{}, nil
}

func (f *fakeStats) RecentErrors(actor models.Actor, limit int) ([]errlog.Entry, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	f.limit = limit
	return []errlog.Entry{{Code: "INTERNAL_ERROR", Status: 500}}, nil
}

type fakeReports struct {
	format   string
	from, to *time.Time
}

func (f *fakeReports) FileAccess(_ context.Context, _ models.Actor, format string, from, to *time.Time) (*export.Document, error) {
	f.format, f.from, f.to = format, from, to
	return &export.Document{Filename: "file-access.csv", ContentType: "text/csv", Body: []byte("file,views\n")}, nil
}

func TestAdminHandlerErrorsLimit(t *testing.T) {
	stats := &fakeStats{}
	handler := NewAdminHandler(stats, &fakeReports{})

	c, rec := newTestContext(http.MethodGet, "/admin/errors?limit=5", nil)
	asActor(c, adminActor)
	handler.Errors(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, stats.limit)
}

func TestAdminHandlerErrorsForbiddenForClients(t *testing.T) {
	handler := NewAdminHandler(&fakeStats{}, &fakeReports{})

	c, rec := newTestContext(http.MethodGet, "/admin/errors", nil)
	asActor(c, clientActor)
	handler.Errors(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminHandlerFileAccessReport(t *testing.T) {
	reports := &fakeReports{}
	handler := NewAdminHandler(&fakeStats{}, reports)

	c, rec := newTestContext(http.MethodGet, "/admin/reports/file-access?format=csv&date_from=2024-01-01&date_to=2024-01-31", nil)
	asActor(c, adminActor)
	handler.FileAccessReport(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "csv", reports.format)
	require.NotNil(t, reports.from)
	require.NotNil(t, reports.to)
	assert.True(t, reports.to.After(*reports.from))
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "file-access.csv")
	assert.Equal(t, "file,views\n", rec.Body.String())
}
