package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/client-portal-api/internal/models"
	"github.com/noah-isme/client-portal-api/internal/policy"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
	"github.com/noah-isme/client-portal-api/pkg/middleware/requestid"
	"github.com/noah-isme/client-portal-api/pkg/retry"
	"github.com/noah-isme/client-portal-api/pkg/storage"
)

type fileRepository interface {
	Create(ctx context.Context, file *models.File) error
	FindByID(ctx context.Context, id string) (*models.File, error)
	Delete(ctx context.Context, id string) error
	ListVisible(ctx context.Context, actor models.Actor, filter models.FileFilter) ([]models.File, int, error)
	CreateAssignment(ctx context.Context, a *models.FileAssignment) error
	ListAssignments(ctx context.Context, fileID string) ([]models.FileAssignment, error)
	FindAssignment(ctx context.Context, id string) (*models.FileAssignment, error)
	DeleteAssignment(ctx context.Context, id string) error
}

type profileFinder interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

type accessStatsReader interface {
	StatsForFile(ctx context.Context, fileID string) (*models.FileAccessStats, error)
}

// FileServiceConfig holds tunables for file operations.
type FileServiceConfig struct {
	URLTTL time.Duration
	Retry  retry.Policy
}

// UploadRequest carries an incoming file. Body is read at most once.
type UploadRequest struct {
	Filename    string
	ContentType string
	Size        int64
	Description string
	Body        io.Reader
}

// FileService implements listing, upload, assignment, download and audit of files.
type FileService struct {
	files     fileRepository
	profiles  profileFinder
	stats     accessStatsReader
	store     storage.ObjectStore
	validator *FileValidator
	urls      *URLCache
	recorder  *AccessRecorder
	limits    *RateGuard
	publisher ChangePublisher
	metrics   *MetricsService
	logger    *zap.Logger
	config    FileServiceConfig
	now       func() time.Time
}

// NewFileService wires the file service.
func NewFileService(
	files fileRepository,
	profiles profileFinder,
	stats accessStatsReader,
	store storage.ObjectStore,
	validator *FileValidator,
	urls *URLCache,
	recorder *AccessRecorder,
	limits *RateGuard,
	publisher ChangePublisher,
	metrics *MetricsService,
	logger *zap.Logger,
	config FileServiceConfig,
) *FileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validator == nil {
		validator = NewFileValidator(0, nil)
	}
	if urls == nil {
		urls = NewURLCache(URLCacheConfig{Skew: 5 * time.Minute}, nil)
	}
	if config.URLTTL <= 0 {
		config.URLTTL = time.Hour
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = retry.DefaultPolicy()
	}
	return &FileService{
		files:     files,
		profiles:  profiles,
		stats:     stats,
		store:     store,
		validator: validator,
		urls:      urls,
		recorder:  recorder,
		limits:    limits,
		publisher: publisherOrNoop(publisher),
		metrics:   metrics,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// List returns the files visible to actor.
func (s *FileService) List(ctx context.Context, actor models.Actor, filter models.FileFilter) ([]models.File, *models.Pagination, error) {
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateFrom.After(*filter.DateTo) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "date_from must not be after date_to")
	}
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	filter.FileType = s.validator.FilterType(filter.FileType)

	var (
		files []models.File
		total int
	)
	err := retry.Do(ctx, s.config.Retry, func(ctx context.Context) error {
		var err error
		files, total, err = s.files.ListVisible(ctx, actor, filter)
		return err
	})
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list files")
	}
	if files == nil {
		files = []models.File{}
	}
	return files, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a single file when actor may see it.
func (s *FileService) Get(ctx context.Context, actor models.Actor, fileID string) (*models.File, error) {
	file, _, err := s.loadVisible(ctx, actor, fileID)
	return file, err
}

// Upload validates, stores and records a new file. The stored object is removed again when the
// metadata row cannot be written.
func (s *FileService) Upload(ctx context.Context, actor models.Actor, req UploadRequest) (file *models.File, err error) {
	defer func() { s.metrics.RecordFileOperation("upload", err) }()

	if !policy.Has(actor.Role, policy.UploadFiles) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you are not allowed to upload files")
	}
	if req.Body == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if err := s.limits.Check(ctx, actor.ID, RateUpload); err != nil {
		return nil, err
	}

	head, err := s.readHead(req)
	if err != nil {
		return nil, err
	}
	validated, err := s.validator.Validate(UploadCandidate{
		Filename:     req.Filename,
		DeclaredMIME: req.ContentType,
		Size:         req.Size,
		Head:         head,
	})
	if err != nil {
		return nil, err
	}

	storedName, err := s.randomName(validated.Extension)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to name upload")
	}
	key := fmt.Sprintf("uploads/%s/%s", actor.ID, storedName)
	body := io.MultiReader(bytes.NewReader(head), req.Body)
	if err := s.store.Put(ctx, key, body, req.Size, validated.MIME); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to store file")
	}

	file = &models.File{
		Filename:         storedName,
		OriginalFilename: validated.Filename,
		StoragePath:      key,
		FileSize:         req.Size,
		FileType:         validated.MIME,
		UploadedBy:       actor.ID,
		Description:      strings.TrimSpace(req.Description),
		CreatedAt:        s.now().UTC(),
	}
	if err := s.files.Create(ctx, file); err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if delErr := s.store.Delete(cleanupCtx, key); delErr != nil {
			s.logger.Error("orphaned upload", zap.String("request_id", requestid.FromContext(ctx)), zap.String("key", key), zap.Error(delErr))
		}
		return nil, appErrors.Internal(err, "failed to save file metadata")
	}

	s.metrics.AddUploadedBytes(req.Size)
	s.urls.Clear()
	s.publisher.Publish(ctx, TopicFiles, "created", file.ID)
	s.logger.Info("file uploaded", zap.String("request_id", requestid.FromContext(ctx)), zap.String("file_id", file.ID), zap.String("actor_id", actor.ID), zap.Int64("size", req.Size))
	return file, nil
}

// Assign grants target visibility of a file actor can see.
func (s *FileService) Assign(ctx context.Context, actor models.Actor, fileID string, target models.AssignmentTarget) (*models.FileAssignment, error) {
	if err := target.Validate(false); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "exactly one of user or client must be given")
	}
	if !policy.Has(actor.Role, policy.AssignFiles) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you are not allowed to assign files")
	}
	if _, _, err := s.loadVisible(ctx, actor, fileID); err != nil {
		return nil, err
	}

	var targetProfile *models.Profile
	if target.Kind == models.TargetUser {
		profile, err := s.profiles.FindByID(ctx, target.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "target profile not found")
			}
			return nil, appErrors.Internal(err, "failed to load target profile")
		}
		targetProfile = profile
	}
	if !policy.CanAssignFile(actor, target, targetProfile) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you cannot assign files to this target")
	}

	assignment := &models.FileAssignment{
		FileID:     fileID,
		Target:     target,
		AssignedBy: actor.ID,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.files.CreateAssignment(ctx, assignment); err != nil {
		normalized := appErrors.Normalize(err)
		if normalized.Code == appErrors.ErrConflict.Code {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "file is already assigned to this target")
		}
		return nil, normalized
	}
	s.publisher.Publish(ctx, TopicFiles, "assigned", fileID)
	return assignment, nil
}

// BulkAssign assigns every file to target independently and reports per-file outcomes.
func (s *FileService) BulkAssign(ctx context.Context, actor models.Actor, fileIDs []string, target models.AssignmentTarget) (*models.BulkResult, error) {
	if len(fileIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file_ids is required")
	}
	if err := target.Validate(false); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "exactly one of user or client must be given")
	}
	result := &models.BulkResult{}
	seen := make(map[string]struct{}, len(fileIDs))
	for _, id := range fileIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, err := s.Assign(ctx, actor, id, target); err != nil {
			appErr := appErrors.Normalize(err)
			result.Fail(id, appErr.Code, appErrors.Translate(err))
			continue
		}
		result.Succeed(id)
	}
	return result, nil
}

// Unassign removes an assignment made by actor, or any assignment for admins.
func (s *FileService) Unassign(ctx context.Context, actor models.Actor, fileID, assignmentID string) error {
	assignment, err := s.files.FindAssignment(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Internal(err, "failed to load assignment")
	}
	if assignment.FileID != fileID {
		return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}
	if !policy.CanUnassign(actor, assignment.AssignedBy) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the assigner or an admin may remove this assignment")
	}
	if err := s.files.DeleteAssignment(ctx, assignmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Internal(err, "failed to remove assignment")
	}
	s.publisher.Publish(ctx, TopicFiles, "unassigned", fileID)
	return nil
}

// Assignments lists a file's assignments. Admins and the uploader see all of them; client managers
// see the ones they made or that target their client.
func (s *FileService) Assignments(ctx context.Context, actor models.Actor, fileID string) ([]models.FileAssignment, error) {
	file, assignments, err := s.loadVisible(ctx, actor, fileID)
	if err != nil {
		return nil, err
	}
	if policy.Has(actor.Role, policy.ManageAllFiles) || file.UploadedBy == actor.ID {
		return assignments, nil
	}
	if !policy.Has(actor.Role, policy.AssignFiles) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you cannot view assignments of this file")
	}
	visible := make([]models.FileAssignment, 0, len(assignments))
	for _, a := range assignments {
		if a.AssignedBy == actor.ID || (a.Target.Kind == models.TargetClient && a.Target.Matches(actor)) {
			visible = append(visible, a)
		}
	}
	return visible, nil
}

// Delete removes a file. Storage deletion is best effort; the metadata row is authoritative.
func (s *FileService) Delete(ctx context.Context, actor models.Actor, fileID string) (err error) {
	defer func() { s.metrics.RecordFileOperation("delete", err) }()

	if err := s.limits.Check(ctx, actor.ID, RateDelete); err != nil {
		return err
	}
	file, err := s.findFile(ctx, fileID)
	if err != nil {
		return err
	}
	if !policy.CanDeleteFile(actor, file) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the uploader or an admin may delete this file")
	}
	if err := s.store.Delete(ctx, file.StoragePath); err != nil {
		s.logger.Warn("delete stored object", zap.String("file_id", file.ID), zap.String("key", file.StoragePath), zap.Error(err))
	}
	if err := s.files.Delete(ctx, file.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return appErrors.Internal(err, "failed to delete file")
	}
	s.urls.Forget(file.StoragePath)
	s.publisher.Publish(ctx, TopicFiles, "deleted", file.ID)
	return nil
}

// AccessURL returns a signed URL for viewing, previewing or downloading a file and records the access.
func (s *FileService) AccessURL(ctx context.Context, actor models.Actor, fileID string, accessType models.AccessType) (signed *models.SignedFileURL, err error) {
	defer func() { s.metrics.RecordFileOperation(string(accessType), err) }()

	if !accessType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown access type")
	}
	if accessType != models.AccessView {
		if err := s.limits.Check(ctx, actor.ID, RateDownload); err != nil {
			return nil, err
		}
	}
	file, _, err := s.loadVisible(ctx, actor, fileID)
	if err != nil {
		return nil, err
	}

	downloadName := ""
	if accessType == models.AccessDownload {
		downloadName = file.OriginalFilename
	}
	url, expiresAt, err := s.signedURL(ctx, file.StoragePath, downloadName)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, file.ID, actor.ID, accessType)
	return &models.SignedFileURL{FileID: file.ID, URL: url, ExpiresAt: expiresAt}, nil
}

// Stats returns per-type access counts for a file actor can see.
func (s *FileService) Stats(ctx context.Context, actor models.Actor, fileID string) (*models.FileAccessStats, error) {
	if _, _, err := s.loadVisible(ctx, actor, fileID); err != nil {
		return nil, err
	}
	var stats *models.FileAccessStats
	err := retry.Do(ctx, s.config.Retry, func(ctx context.Context) error {
		var err error
		stats, err = s.stats.StatsForFile(ctx, fileID)
		return err
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load file statistics")
	}
	stats.FileID = fileID
	return stats, nil
}

// ClearURLCache drops every cached signed URL.
func (s *FileService) ClearURLCache() {
	s.urls.Clear()
}

func (s *FileService) signedURL(ctx context.Context, key, downloadName string) (string, time.Time, error) {
	if url, expiresAt, ok := s.urls.Get(key, downloadName); ok {
		s.metrics.RecordURLCache(true)
		return url, expiresAt, nil
	}
	s.metrics.RecordURLCache(false)
	signed, err := s.store.SignedURL(ctx, key, storage.URLOptions{TTL: s.config.URLTTL, DownloadName: downloadName})
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to create download link")
	}
	s.urls.Put(key, downloadName, signed.URL, signed.ExpiresAt)
	return signed.URL, signed.ExpiresAt, nil
}

func (s *FileService) findFile(ctx context.Context, fileID string) (*models.File, error) {
	var file *models.File
	err := retry.Do(ctx, s.config.Retry, func(ctx context.Context) error {
		var err error
		file, err = s.files.FindByID(ctx, fileID)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.Internal(err, "failed to load file")
	}
	return file, nil
}

// loadVisible returns the file and its assignments, reporting invisible files as not found.
func (s *FileService) loadVisible(ctx context.Context, actor models.Actor, fileID string) (*models.File, []models.FileAssignment, error) {
	file, err := s.findFile(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	assignments, err := s.files.ListAssignments(ctx, fileID)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to load file assignments")
	}
	if !policy.CanViewFile(actor, file, assignments) {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}
	return file, assignments, nil
}

func (s *FileService) readHead(req UploadRequest) ([]byte, error) {
	limit := int64(s.validator.SniffLength())
	if s.validator.NeedsFullScan(req.ContentType, req.Size) {
		limit = req.Size
	}
	if limit > req.Size && req.Size > 0 {
		limit = req.Size
	}
	head := make([]byte, limit)
	n, err := io.ReadFull(req.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read upload")
	}
	return head[:n], nil
}

func (s *FileService) randomName(ext string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d_%s%s", s.now().UTC().UnixMilli(), hex.EncodeToString(buf), ext), nil
}
