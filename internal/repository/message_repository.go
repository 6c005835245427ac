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

const messageSelect = `SELECT m.id, m.sender_id, m.recipient_id, m.subject, m.content, m.message_type, m.read_at, m.created_at,
	COALESCE(NULLIF(s.full_name, ''), s.email, '') AS sender_name,
	COALESCE(NULLIF(rc.full_name, ''), rc.email, '') AS recipient_name
	FROM messages m
	LEFT JOIN profiles s ON s.id = m.sender_id
	LEFT JOIN profiles rc ON rc.id = m.recipient_id`

// MessageRepository persists direct messages.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs a MessageRepository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a message.
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO messages (id, sender_id, recipient_id, subject, content, message_type, read_at, created_at) VALUES (:id, :sender_id, :recipient_id, :subject, :content, :message_type, :read_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// FindByID returns a message by id.
func (r *MessageRepository) FindByID(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	if err := r.db.GetContext(ctx, &msg, messageSelect+` WHERE m.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find message: %w", err)
	}
	return &msg, nil
}

// List returns messages where actorID is the sender or the recipient, narrowed by filter.
func (r *MessageRepository) List(ctx context.Context, actorID string, filter models.MessageFilter) ([]models.Message, int, error) {
	args := []interface{}{actorID}
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	switch filter.Folder {
	case models.FolderInbox:
		conditions = append(conditions, "m.recipient_id = $1")
	case models.FolderSent:
		conditions = append(conditions, "m.sender_id = $1")
	default:
		conditions = append(conditions, "(m.sender_id = $1 OR m.recipient_id = $1)")
	}
	if filter.Type != "" {
		conditions = append(conditions, "m.message_type = "+next(filter.Type))
	}
	if filter.Read != nil {
		if *filter.Read {
			conditions = append(conditions, "m.read_at IS NOT NULL")
		} else {
			conditions = append(conditions, "m.read_at IS NULL")
		}
	}
	if filter.Search != "" {
		p := next(containsPattern(filter.Search))
		conditions = append(conditions, fmt.Sprintf("(LOWER(m.subject) LIKE %s ESCAPE '\\' OR LOWER(m.content) LIKE %s ESCAPE '\\')", p, p))
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, "m.created_at >= "+next(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		conditions = append(conditions, "m.created_at <= "+next(*filter.DateTo))
	}

	where := " WHERE " + strings.Join(conditions, " AND ")
	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("%s%s ORDER BY m.created_at DESC LIMIT %d OFFSET %d", messageSelect, where, pageSize, (page-1)*pageSize)

	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM messages m"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}
	return messages, total, nil
}

// MarkRead sets read_at once. A message that is already read keeps its original timestamp.
func (r *MessageRepository) MarkRead(ctx context.Context, id, recipientID string, at time.Time) error {
	const query = `UPDATE messages SET read_at = $3 WHERE id = $1 AND recipient_id = $2 AND read_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, recipientID, at); err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	return nil
}

// Delete removes a message.
func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return expectAffected(res)
}

// UnreadCount counts unread messages addressed to recipientID.
func (r *MessageRepository) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE recipient_id = $1 AND read_at IS NULL`, recipientID); err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return count, nil
}
