package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/client-portal-api/internal/models"
)

// AccessLogRepository appends and aggregates file access logs.
type AccessLogRepository struct {
	db *sqlx.DB
}

// NewAccessLogRepository constructs an AccessLogRepository.
func NewAccessLogRepository(db *sqlx.DB) *AccessLogRepository {
	return &AccessLogRepository{db: db}
}

// Insert appends an access log row.
func (r *AccessLogRepository) Insert(ctx context.Context, entry *models.FileAccessLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.AccessedAt.IsZero() {
		entry.AccessedAt = time.Now().UTC()
	}
	const query = `INSERT INTO file_access_logs (id, file_id, user_id, access_type, accessed_at) VALUES (:id, :file_id, :user_id, :access_type, :accessed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert file access log: %w", err)
	}
	return nil
}

// StatsForFile counts accesses per type for one file.
func (r *AccessLogRepository) StatsForFile(ctx context.Context, fileID string) (*models.FileAccessStats, error) {
	const query = `SELECT $1::uuid AS file_id,
		COUNT(*) FILTER (WHERE access_type = 'view') AS views,
		COUNT(*) FILTER (WHERE access_type = 'download') AS downloads,
		COUNT(*) FILTER (WHERE access_type = 'preview') AS previews,
		MAX(accessed_at) AS last_accessed_at
		FROM file_access_logs WHERE file_id = $1`
	var stats models.FileAccessStats
	if err := r.db.GetContext(ctx, &stats, query, fileID); err != nil {
		return nil, fmt.Errorf("file access stats: %w", err)
	}
	return &stats, nil
}

// Report aggregates access counts for every file, optionally bounded by access time.
func (r *AccessLogRepository) Report(ctx context.Context, from, to *time.Time) ([]models.FileAccessReportRow, error) {
	query := `SELECT f.id AS file_id, f.original_filename, COALESCE(p.email, '') AS uploader_email,
		COUNT(l.id) FILTER (WHERE l.access_type = 'view') AS views,
		COUNT(l.id) FILTER (WHERE l.access_type = 'download') AS downloads,
		COUNT(l.id) FILTER (WHERE l.access_type = 'preview') AS previews,
		MAX(l.accessed_at) AS last_accessed_at
		FROM files f
		LEFT JOIN profiles p ON p.id = f.uploaded_by
		LEFT JOIN file_access_logs l ON l.file_id = f.id`
	var args []interface{}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND l.accessed_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND l.accessed_at <= $%d", len(args))
	}
	query += ` GROUP BY f.id, f.original_filename, p.email ORDER BY f.original_filename ASC`

	var rows []models.FileAccessReportRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("file access report: %w", err)
	}
	return rows, nil
}
