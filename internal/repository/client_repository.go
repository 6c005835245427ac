package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/client-portal-api/internal/models"
)

const clientColumns = `id, company_name, contact_email, status, client_admin_id, created_at, updated_at`

// ClientRepository provides database access for tenant organizations.
type ClientRepository struct {
	db *sqlx.DB
}

// NewClientRepository constructs a ClientRepository.
func NewClientRepository(db *sqlx.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// FindByID returns a client by identifier.
func (r *ClientRepository) FindByID(ctx context.Context, id string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1 LIMIT 1`
	var client models.Client
	if err := r.db.GetContext(ctx, &client, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find client: %w", err)
	}
	return &client, nil
}

// List returns clients matching filter with total count.
func (r *ClientRepository) List(ctx context.Context, filter models.ClientFilter) ([]models.Client, int, error) {
	baseQuery := `FROM clients WHERE 1=1`
	var args []interface{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		baseQuery += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, containsPattern(filter.Search))
		baseQuery += fmt.Sprintf(" AND (LOWER(company_name) LIKE $%d ESCAPE '\\' OR LOWER(contact_email) LIKE $%d ESCAPE '\\')", len(args), len(args))
	}

	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY company_name ASC LIMIT %d OFFSET %d", clientColumns, baseQuery, pageSize, (page-1)*pageSize)

	var clients []models.Client
	if err := r.db.SelectContext(ctx, &clients, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list clients: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count clients: %w", err)
	}
	return clients, total, nil
}

// Create inserts a client.
func (r *ClientRepository) Create(ctx context.Context, client *models.Client) error {
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	client.CreatedAt, client.UpdatedAt = now, now
	if client.Status == "" {
		client.Status = models.ClientStatusActive
	}
	const query = `INSERT INTO clients (id, company_name, contact_email, status, client_admin_id, created_at, updated_at) VALUES (:id, :company_name, :contact_email, :status, :client_admin_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, client); err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

// Update writes mutable client fields.
func (r *ClientRepository) Update(ctx context.Context, client *models.Client) error {
	client.UpdatedAt = time.Now().UTC()
	const query = `UPDATE clients SET company_name = :company_name, contact_email = :contact_email, status = :status, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, client)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	return expectAffected(res)
}

// AssignManager sets client_admin_id and binds that profile to the client as its manager in one transaction.
func (r *ClientRepository) AssignManager(ctx context.Context, clientID, profileID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assign manager: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE profiles SET role = 'client', client_id = $2, active = TRUE, pending = FALSE, updated_at = $3 WHERE id = $1 AND role <> 'admin'`, profileID, clientID, now)
	if err != nil {
		return fmt.Errorf("promote client manager: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	res, err = tx.ExecContext(ctx, `UPDATE clients SET client_admin_id = $2, updated_at = $3 WHERE id = $1`, clientID, profileID, now)
	if err != nil {
		return fmt.Errorf("set client manager: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assign manager: %w", err)
	}
	return nil
}

// Delete removes a client; member profiles lose their client binding, are deactivated
// and have their refresh tokens revoked.
func (r *ClientRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete client: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE revoked = FALSE AND profile_id IN (SELECT id FROM profiles WHERE client_id = $1)`, id); err != nil {
		return fmt.Errorf("revoke client sessions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE profiles SET active = FALSE, pending = FALSE, client_id = NULL, updated_at = $2 WHERE client_id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("detach client profiles: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete client: %w", err)
	}
	return nil
}
