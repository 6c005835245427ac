package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/client-portal-api/internal/models"
)

// StatsRepository computes admin dashboard aggregates.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository constructs a StatsRepository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// SystemStats returns portal-wide counters.
func (r *StatsRepository) SystemStats(ctx context.Context) (*models.SystemStats, error) {
	const totalsQuery = `SELECT
		(SELECT COUNT(*) FROM clients) AS clients,
		(SELECT COUNT(*) FROM clients WHERE status = 'active') AS active_clients,
		(SELECT COUNT(*) FROM profiles) AS profiles,
		(SELECT COUNT(*) FROM files) AS files,
		(SELECT COALESCE(SUM(file_size), 0) FROM files) AS storage_bytes,
		(SELECT COUNT(*) FROM messages) AS messages,
		(SELECT COUNT(*) FROM messages WHERE read_at IS NULL) AS unread_messages,
		(SELECT COUNT(*) FROM news) AS news`

	var stats models.SystemStats
	if err := r.db.GetContext(ctx, &stats, totalsQuery); err != nil {
		return nil, fmt.Errorf("system totals: %w", err)
	}

	var roles []struct {
		Role  models.Role `db:"role"`
		Count int         `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &roles, `SELECT role, COUNT(*) AS count FROM profiles GROUP BY role`); err != nil {
		return nil, fmt.Errorf("profiles by role: %w", err)
	}
	stats.ProfilesByRole = make(map[models.Role]int, len(roles))
	for _, row := range roles {
		stats.ProfilesByRole[row.Role] = row.Count
	}

	var access []struct {
		Type  string `db:"access_type"`
		Count int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &access, `SELECT access_type, COUNT(*) AS count FROM file_access_logs GROUP BY access_type`); err != nil {
		return nil, fmt.Errorf("access by type: %w", err)
	}
	stats.AccessByType = make(map[string]int, len(access))
	for _, row := range access {
		stats.AccessByType[row.Type] = row.Count
	}
	return &stats, nil
}
