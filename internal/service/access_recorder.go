package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/client-portal-api/internal/models"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
	"github.com/noah-isme/client-portal-api/pkg/jobs"
)

// JobTypeFileAccess is the queue job type carrying a models.FileAccessLog.
const JobTypeFileAccess = "file_access"

type accessLogWriter interface {
	Insert(ctx context.Context, entry *models.FileAccessLog) error
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

// AccessRecorder writes file access log rows off the request path.
type AccessRecorder struct {
	queue  jobEnqueuer
	writer accessLogWriter
	logger *zap.Logger
	now    func() time.Time
}

// NewAccessRecorder wires the recorder. A nil queue makes Record write inline.
func NewAccessRecorder(queue jobEnqueuer, writer accessLogWriter, logger *zap.Logger) *AccessRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessRecorder{queue: queue, writer: writer, logger: logger, now: time.Now}
}

// Record schedules an access log row. Failures are logged and never surfaced to the caller.
func (r *AccessRecorder) Record(ctx context.Context, fileID, userID string, accessType models.AccessType) {
	if r == nil || r.writer == nil {
		return
	}
	entry := &models.FileAccessLog{
		FileID:     fileID,
		UserID:     userID,
		AccessType: accessType,
		AccessedAt: r.now().UTC(),
	}
	if r.queue == nil {
		if err := r.writer.Insert(ctx, entry); err != nil {
			r.logger.Warn("record file access", zap.String("file_id", fileID), zap.Error(err))
		}
		return
	}
	if err := r.queue.TryEnqueue(jobs.Job{Type: JobTypeFileAccess, Payload: entry}); err != nil {
		r.logger.Warn("enqueue file access", zap.String("file_id", fileID), zap.Error(err))
	}
}

// Handle is the queue handler persisting a queued access log row.
func (r *AccessRecorder) Handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.FileAccessLog)
	if !ok {
		return jobs.Permanent(fmt.Errorf("unexpected payload %T for %s job", job.Payload, JobTypeFileAccess))
	}
	if err := r.writer.Insert(ctx, entry); err != nil {
		if !appErrors.IsRetryable(err) {
			return jobs.Permanent(err)
		}
		return err
	}
	return nil
}
