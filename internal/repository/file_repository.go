package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/client-portal-api/internal/models"
)

const fileColumns = `f.id, f.filename, f.original_filename, f.storage_path, f.file_size, f.file_type, f.uploaded_by, f.description, f.created_at`

// FileRepository persists file metadata and file assignments.
type FileRepository struct {
	db *sqlx.DB
}

// NewFileRepository constructs a FileRepository.
func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

// Create inserts a file metadata row.
func (r *FileRepository) Create(ctx context.Context, file *models.File) error {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO files (id, filename, original_filename, storage_path, file_size, file_type, uploaded_by, description, created_at) VALUES (:id, :filename, :original_filename, :storage_path, :file_size, :file_type, :uploaded_by, :description, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, file); err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	return nil
}

// FindByID returns a file by id.
func (r *FileRepository) FindByID(ctx context.Context, id string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files f WHERE f.id = $1`
	var file models.File
	if err := r.db.GetContext(ctx, &file, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find file: %w", err)
	}
	return &file, nil
}

// Delete removes the metadata row; assignments and access logs cascade.
func (r *FileRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return expectAffected(res)
}

// ListVisible returns the files actor may see. Admins see everything; everyone else sees files
// assigned to them or to their client, and client managers also see their own uploads.
// A file reachable through several assignments is returned once.
func (r *FileRepository) ListVisible(ctx context.Context, actor models.Actor, filter models.FileFilter) ([]models.File, int, error) {
	var conditions []string
	var args []interface{}
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !actor.IsAdmin() {
		actorArg := next(actor.ID)
		targets := []string{"fa.assigned_to_user = " + actorArg}
		if actor.HasClient() {
			targets = append(targets, "fa.assigned_to_client = "+next(actor.ClientID))
		}
		visibility := fmt.Sprintf("EXISTS (SELECT 1 FROM file_assignments fa WHERE fa.file_id = f.id AND (%s))", strings.Join(targets, " OR "))
		if actor.Role == models.RoleClient {
			visibility = fmt.Sprintf("(%s OR f.uploaded_by = %s)", visibility, actorArg)
		}
		conditions = append(conditions, visibility)
	}
	if filter.Search != "" {
		p := next(containsPattern(filter.Search))
		conditions = append(conditions, fmt.Sprintf("(LOWER(f.original_filename) LIKE %s ESCAPE '\\' OR LOWER(f.description) LIKE %s ESCAPE '\\')", p, p))
	}
	if filter.FileType != "" {
		conditions = append(conditions, "f.file_type = "+next(filter.FileType))
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, "f.created_at >= "+next(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		conditions = append(conditions, "f.created_at <= "+next(*filter.DateTo))
	}

	baseQuery := "FROM files f"
	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}

	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY f.created_at DESC LIMIT %d OFFSET %d", fileColumns, baseQuery, pageSize, (page-1)*pageSize)

	var files []models.File
	if err := r.db.SelectContext(ctx, &files, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count files: %w", err)
	}
	return files, total, nil
}

type assignmentRow struct {
	ID               string    `db:"id"`
	ParentID         string    `db:"parent_id"`
	AssignedToUser   *string   `db:"assigned_to_user"`
	AssignedToClient *string   `db:"assigned_to_client"`
	AssignedBy       string    `db:"assigned_by"`
	CreatedAt        time.Time `db:"created_at"`
}

func (row assignmentRow) fileAssignment() (models.FileAssignment, error) {
	target, err := models.TargetFromColumns(row.AssignedToUser, row.AssignedToClient)
	if err != nil {
		return models.FileAssignment{}, fmt.Errorf("assignment %s: %w", row.ID, err)
	}
	return models.FileAssignment{ID: row.ID, FileID: row.ParentID, Target: target, AssignedBy: row.AssignedBy, CreatedAt: row.CreatedAt}, nil
}

// CreateAssignment inserts one assignment row for the single target carried by a.
func (r *FileRepository) CreateAssignment(ctx context.Context, a *models.FileAssignment) error {
	if err := a.Target.Validate(false); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	user, client := a.Target.Columns()
	const query = `INSERT INTO file_assignments (id, file_id, assigned_to_user, assigned_to_client, assigned_by, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, a.ID, a.FileID, user, client, a.AssignedBy, a.CreatedAt); err != nil {
		return fmt.Errorf("create file assignment: %w", err)
	}
	return nil
}

// ListAssignments returns every assignment of a file.
func (r *FileRepository) ListAssignments(ctx context.Context, fileID string) ([]models.FileAssignment, error) {
	const query = `SELECT id, file_id AS parent_id, assigned_to_user, assigned_to_client, assigned_by, created_at FROM file_assignments WHERE file_id = $1 ORDER BY created_at ASC`
	var rows []assignmentRow
	if err := r.db.SelectContext(ctx, &rows, query, fileID); err != nil {
		return nil, fmt.Errorf("list file assignments: %w", err)
	}
	out := make([]models.FileAssignment, 0, len(rows))
	for _, row := range rows {
		a, err := row.fileAssignment()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// FindAssignment returns one assignment by id.
func (r *FileRepository) FindAssignment(ctx context.Context, id string) (*models.FileAssignment, error) {
	const query = `SELECT id, file_id AS parent_id, assigned_to_user, assigned_to_client, assigned_by, created_at FROM file_assignments WHERE id = $1`
	var row assignmentRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find file assignment: %w", err)
	}
	a, err := row.fileAssignment()
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAssignment removes an assignment.
func (r *FileRepository) DeleteAssignment(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM file_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete file assignment: %w", err)
	}
	return expectAffected(res)
}
