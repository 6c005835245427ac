package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/client-portal-api/internal/models"
	"github.com/noah-isme/client-portal-api/internal/service"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
	"github.com/noah-isme/client-portal-api/pkg/storage"
)

type fakeFileService struct {
	lastFilter     models.FileFilter
	lastAccessType models.AccessType
	uploaded       *service.UploadRequest
	uploadedBody   string
	bulk           *models.BulkResult
	err            error
}

func (f *fakeFileService) List(_ context.Context, _ models.Actor, filter models.FileFilter) ([]models.File, *models.Pagination, error) {
	f.lastFilter = filter
	return []models.File{{ID: "file-1", Filename: "report.pdf"}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, f.err
}

func (f *fakeFileService) Get(context.Context, models.Actor, string) (*models.File, error) {
	return nil, f.err
}

func (f *fakeFileService) Upload(_ context.Context, _ models.Actor, req service.UploadRequest) (*models.File, error) {
	f.uploaded = &req
	body, _ := io.ReadAll(req.Body)
	f.uploadedBody = string(body)
	return &models.File{ID: "file-2", Filename: req.Filename}, f.err
}

func (f *fakeFileService) Assign(context.Context, models.Actor, string, models.AssignmentTarget) (*models.FileAssignment, error) {
	return &models.FileAssignment{ID: "assignment-1"}, f.err
}

func (f *fakeFileService) BulkAssign(context.Context, models.Actor, []string, models.AssignmentTarget) (*models.BulkResult, error) {
	return f.bulk, f.err
}

func (f *fakeFileService) Unassign(context.Context, models.Actor, string, string) error {
	return f.err
}

func (f *fakeFileService) Assignments(context.Context, models.Actor, string) ([]models.FileAssignment, error) {
	return nil, f.err
}

func (f *fakeFileService) Delete(context.Context, models.Actor, string) error {
	return f.err
}

func (f *fakeFileService) AccessURL(_ context.Context, _ models.Actor, fileID string, accessType models.AccessType) (*models.SignedFileURL, error) {
	f.lastAccessType = accessType
	return &models.SignedFileURL{FileID: fileID, URL: "https://files.test/" + fileID, ExpiresAt: time.Now().Add(time.Hour)}, f.err
}

func (f *fakeFileService) Stats(context.Context, models.Actor, string) (*models.FileAccessStats, error) {
	return nil, f.err
}

type readSeekNopCloser struct {
	*strings.Reader
}

func (readSeekNopCloser) Close() error { return nil }

type fakeRedeemer struct {
	blob *storage.Blob
}

func (f fakeRedeemer) Redeem(string) (*storage.Blob, error) {
	return f.blob, nil
}

func TestFileHandlerListParsesFilters(t *testing.T) {
	svc := &fakeFileService{}
	handler := NewFileHandler(svc, nil, 0)

	c, rec := newTestContext(http.MethodGet, "/files?search=+report+&file_type=pdf&date_from=2024-03-01&date_to=2024-03-31&page=2&page_size=10", nil)
	asActor(c, clientActor)
	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "report", svc.lastFilter.Search)
	assert.Equal(t, "pdf", svc.lastFilter.FileType)
	assert.Equal(t, 2, svc.lastFilter.Page)
	assert.Equal(t, 10, svc.lastFilter.PageSize)
	require.NotNil(t, svc.lastFilter.DateTo)
	assert.Equal(t, 23, svc.lastFilter.DateTo.Hour())
	assert.Equal(t, 31, svc.lastFilter.DateTo.Day())
}

func TestFileHandlerListRejectsBadDate(t *testing.T) {
	handler := NewFileHandler(&fakeFileService{}, nil, 0)

	c, rec := newTestContext(http.MethodGet, "/files?date_from=yesterday", nil)
	asActor(c, userActor)
	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFileHandlerRequiresActor(t *testing.T) {
	handler := NewFileHandler(&fakeFileService{}, nil, 0)

	c, rec := newTestContext(http.MethodGet, "/files", nil)
	handler.List(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, appErrors.ErrAuthRequired.Code, decodeEnvelope(t, rec).Error.Code)
}

func TestFileHandlerAccessURLDefaultsToPreview(t *testing.T) {
	svc := &fakeFileService{}
	handler := NewFileHandler(svc, nil, 0)

	c, rec := newTestContext(http.MethodGet, "/files/file-1/url", nil)
	c.AddParam("id", "file-1")
	asActor(c, userActor)
	handler.AccessURL(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.AccessPreview, svc.lastAccessType)
}

func TestFileHandlerAccessURLRejectsUnknownType(t *testing.T) {
	handler := NewFileHandler(&fakeFileService{}, nil, 0)

	c, rec := newTestContext(http.MethodGet, "/files/file-1/url?type=stream", nil)
	c.AddParam("id", "file-1")
	asActor(c, userActor)
	handler.AccessURL(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFileHandlerAccessURLSurfacesRateLimit(t *testing.T) {
	handler := NewFileHandler(&fakeFileService{err: appErrors.Clone(appErrors.ErrRateLimited, "try again later")}, nil, 0)

	c, rec := newTestContext(http.MethodGet, "/files/file-1/url?type=download", nil)
	c.AddParam("id", "file-1")
	asActor(c, userActor)
	handler.AccessURL(c)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestFileHandlerBulkAssignPartialSuccess(t *testing.T) {
	result := &models.BulkResult{}
	result.Succeed("file-1")
	result.Fail("file-2", appErrors.ErrNotFound.Code, "file not found")
	handler := NewFileHandler(&fakeFileService{bulk: result}, nil, 0)

	c, rec := newTestContext(http.MethodPost, "/files/bulk-assign",
		jsonBody(`{"file_ids":["file-1","file-2"],"target":{"kind":"client","id":"acme"}}`))
	asActor(c, adminActor)
	handler.BulkAssign(c)

	assert.Equal(t, http.StatusMultiStatus, rec.Code)
}

func TestFileHandlerBulkAssignAllFailedIsUnprocessable(t *testing.T) {
	result := &models.BulkResult{}
	result.Fail("file-1", appErrors.ErrNotFound.Code, "file not found")
	result.Fail("file-2", appErrors.ErrNotFound.Code, "file not found")
	handler := NewFileHandler(&fakeFileService{bulk: result}, nil, 0)

	c, rec := newTestContext(http.MethodPost, "/files/bulk-assign",
		jsonBody(`{"file_ids":["file-1","file-2"],"target":{"kind":"client","id":"acme"}}`))
	asActor(c, adminActor)
	handler.BulkAssign(c)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	envelope := decodeEnvelope(t, rec)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrBatchFailed.Code, envelope.Error.Code)
	var data models.BulkResult
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Len(t, data.Failed, 2)
	assert.Empty(t, data.Succeeded)
}

func TestFileHandlerBulkAssignRequiresFiles(t *testing.T) {
	handler := NewFileHandler(&fakeFileService{}, nil, 0)

	c, rec := newTestContext(http.MethodPost, "/files/bulk-assign", jsonBody(`{"file_ids":[],"target":{"kind":"client","id":"acme"}}`))
	asActor(c, adminActor)
	handler.BulkAssign(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func multipartUpload(t *testing.T, filename, content, description string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("description", description))
	require.NoError(t, writer.Close())
	return buf, writer.FormDataContentType()
}

func TestFileHandlerUpload(t *testing.T) {
	svc := &fakeFileService{}
	handler := NewFileHandler(svc, nil, 1<<20)

	body, contentType := multipartUpload(t, "notes.txt", "hello portal", " quarterly notes ")
	c, rec := newTestContext(http.MethodPost, "/files", body)
	c.Request.Header.Set("Content-Type", contentType)
	asActor(c, clientActor)
	handler.Upload(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.uploaded)
	assert.Equal(t, "notes.txt", svc.uploaded.Filename)
	assert.Equal(t, "quarterly notes", svc.uploaded.Description)
	assert.Equal(t, int64(len("hello portal")), svc.uploaded.Size)
	assert.Equal(t, "hello portal", svc.uploadedBody)
}

func TestFileHandlerUploadTooLarge(t *testing.T) {
	svc := &fakeFileService{}
	handler := NewFileHandler(svc, nil, 16)

	body, contentType := multipartUpload(t, "big.bin", strings.Repeat("x", 2<<20), "")
	c, rec := newTestContext(http.MethodPost, "/files", body)
	c.Request.Header.Set("Content-Type", contentType)
	asActor(c, clientActor)
	handler.Upload(c)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Nil(t, svc.uploaded)
}

func TestFileHandlerUploadMissingFile(t *testing.T) {
	handler := NewFileHandler(&fakeFileService{}, nil, 0)

	c, rec := newTestContext(http.MethodPost, "/files", jsonBody(`{}`))
	asActor(c, clientActor)
	handler.Upload(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFileHandlerBlobServesAttachment(t *testing.T) {
	blob := &storage.Blob{
		Key:          "acme/report.pdf",
		DownloadName: "Q1 report.pdf",
		Content:      readSeekNopCloser{strings.NewReader("%PDF-1.4")},
	}
	handler := NewFileHandler(&fakeFileService{}, fakeRedeemer{blob: blob}, 0)

	c, rec := newTestContext(http.MethodGet, "/files/blob?token=abc", nil)
	handler.Blob(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestFileHandlerBlobRejectsBadToken(t *testing.T) {
	store := storage.NewLocalObjectStore(nil, storage.NewSignedURLSigner("blob-secret", time.Minute), "/files/blob")
	handler := NewFileHandler(&fakeFileService{}, store, 0)

	c, rec := newTestContext(http.MethodGet, "/files/blob?token=forged", nil)
	handler.Blob(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFileHandlerBlobWithoutLocalBackend(t *testing.T) {
	handler := NewFileHandler(&fakeFileService{}, nil, 0)

	c, rec := newTestContext(http.MethodGet, "/files/blob?token=abc", nil)
	handler.Blob(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
