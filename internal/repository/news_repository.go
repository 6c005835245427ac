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

const newsColumns = `n.id, n.title, n.content, n.created_by, n.created_at, n.updated_at`

// NewsRepository persists news items and their assignments.
type NewsRepository struct {
	db *sqlx.DB
}

// NewNewsRepository constructs a NewsRepository.
func NewNewsRepository(db *sqlx.DB) *NewsRepository {
	return &NewsRepository{db: db}
}

// Create inserts a news item together with its initial assignments in one transaction;
// a failed assignment leaves no news row behind.
func (r *NewsRepository) Create(ctx context.Context, news *models.News, assignments []*models.NewsAssignment) error {
	if news.ID == "" {
		news.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	news.CreatedAt, news.UpdatedAt = now, now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create news: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO news (id, title, content, created_by, created_at, updated_at) VALUES (:id, :title, :content, :created_by, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, news); err != nil {
		return fmt.Errorf("create news: %w", err)
	}
	for _, a := range assignments {
		a.NewsID = news.ID
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if err := insertNewsAssignment(ctx, tx, a); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create news: %w", err)
	}
	return nil
}

// Update writes title and content.
func (r *NewsRepository) Update(ctx context.Context, news *models.News) error {
	news.UpdatedAt = time.Now().UTC()
	const query = `UPDATE news SET title = :title, content = :content, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, news)
	if err != nil {
		return fmt.Errorf("update news: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a news item; assignments cascade.
func (r *NewsRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM news WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete news: %w", err)
	}
	return expectAffected(res)
}

// FindByID returns one news item.
func (r *NewsRepository) FindByID(ctx context.Context, id string) (*models.News, error) {
	var news models.News
	if err := r.db.GetContext(ctx, &news, `SELECT `+newsColumns+` FROM news n WHERE n.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find news: %w", err)
	}
	return &news, nil
}

// ListVisible returns news visible to actor: broadcast items, items assigned to the actor and,
// when the actor has a client, items assigned to that client. Admins see everything.
func (r *NewsRepository) ListVisible(ctx context.Context, actor models.Actor, filter models.NewsFilter) ([]models.News, int, error) {
	var conditions []string
	var args []interface{}
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !actor.IsAdmin() {
		targets := []string{
			"(na.assigned_to_user IS NULL AND na.assigned_to_client IS NULL)",
			"na.assigned_to_user = " + next(actor.ID),
		}
		if actor.HasClient() {
			targets = append(targets, "na.assigned_to_client = "+next(actor.ClientID))
		}
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM news_assignments na WHERE na.news_id = n.id AND (%s))", strings.Join(targets, " OR ")))
	}
	if filter.Search != "" {
		p := next(containsPattern(filter.Search))
		conditions = append(conditions, fmt.Sprintf("(LOWER(n.title) LIKE %s ESCAPE '\\' OR LOWER(n.content) LIKE %s ESCAPE '\\')", p, p))
	}

	baseQuery := "FROM news n"
	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY n.created_at DESC LIMIT %d OFFSET %d", newsColumns, baseQuery, pageSize, (page-1)*pageSize)

	var items []models.News
	if err := r.db.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list news: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count news: %w", err)
	}
	return items, total, nil
}

// CreateAssignment inserts one news assignment; a broadcast target stores two NULL columns.
func (r *NewsRepository) CreateAssignment(ctx context.Context, a *models.NewsAssignment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return insertNewsAssignment(ctx, r.db, a)
}

func insertNewsAssignment(ctx context.Context, exec sqlx.ExecerContext, a *models.NewsAssignment) error {
	if err := a.Target.Validate(true); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	user, client := a.Target.Columns()
	const query = `INSERT INTO news_assignments (id, news_id, assigned_to_user, assigned_to_client, assigned_by, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := exec.ExecContext(ctx, query, a.ID, a.NewsID, user, client, a.AssignedBy, a.CreatedAt); err != nil {
		return fmt.Errorf("create news assignment: %w", err)
	}
	return nil
}

// ListAssignments returns the assignments of a news item.
func (r *NewsRepository) ListAssignments(ctx context.Context, newsID string) ([]models.NewsAssignment, error) {
	const query = `SELECT id, news_id AS parent_id, assigned_to_user, assigned_to_client, assigned_by, created_at FROM news_assignments WHERE news_id = $1 ORDER BY created_at ASC`
	var rows []assignmentRow
	if err := r.db.SelectContext(ctx, &rows, query, newsID); err != nil {
		return nil, fmt.Errorf("list news assignments: %w", err)
	}
	out := make([]models.NewsAssignment, 0, len(rows))
	for _, row := range rows {
		target, err := models.TargetFromColumns(row.AssignedToUser, row.AssignedToClient)
		if err != nil {
			return nil, fmt.Errorf("news assignment %s: %w", row.ID, err)
		}
		out = append(out, models.NewsAssignment{ID: row.ID, NewsID: row.ParentID, Target: target, AssignedBy: row.AssignedBy, CreatedAt: row.CreatedAt})
	}
	return out, nil
}

// DeleteAssignment removes a news assignment scoped to its news item.
func (r *NewsRepository) DeleteAssignment(ctx context.Context, newsID, assignmentID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM news_assignments WHERE id = $1 AND news_id = $2`, assignmentID, newsID)
	if err != nil {
		return fmt.Errorf("delete news assignment: %w", err)
	}
	return expectAffected(res)
}
