//go:build integration

package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func TestMigrateAppliesSchemaConstraints(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("portal"),
		tcpostgres.WithUsername("portal"),
		tcpostgres.WithPassword("portal"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(ctx, dsn, 5, 5)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db, zap.NewNop()))
	// idempotent
	require.NoError(t, Migrate(db, zap.NewNop()))

	const (
		adminID  = "00000000-0000-0000-0000-00000000000a"
		clientID = "00000000-0000-0000-0000-0000000000c1"
		userID   = "00000000-0000-0000-0000-0000000000b1"
		fileID   = "00000000-0000-0000-0000-0000000000f1"
	)
	_, err = db.ExecContext(ctx, `INSERT INTO clients (id, company_name, contact_email) VALUES ($1, 'Acme', 'ops@acme.test')`, clientID)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO profiles (id, email, role) VALUES ($1, 'admin@portal.test', 'admin')`, adminID)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO profiles (id, email, role, client_id) VALUES ($1, 'user@acme.test', 'user', $2)`, userID, clientID)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO profiles (id, email, role, client_id) VALUES (gen_random_uuid(), 'bad-admin@portal.test', 'admin', $1)`, clientID)
	assert.Error(t, err, "admin bound to a client must be rejected")

	_, err = db.ExecContext(ctx, `INSERT INTO profiles (id, email, role, active) VALUES (gen_random_uuid(), 'pending@portal.test', 'user', FALSE)`)
	assert.NoError(t, err, "inactive auto-provisioned profile may lack a client")

	_, err = db.ExecContext(ctx, `INSERT INTO files (id, filename, original_filename, storage_path, file_size, file_type, uploaded_by)
		VALUES ($1, 'a.pdf', 'report.pdf', 'uploads/a/1_x.pdf', 10, 'application/pdf', $2)`, fileID, adminID)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO file_assignments (id, file_id, assigned_to_user, assigned_to_client, assigned_by)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)`, fileID, userID, clientID, adminID)
	assert.Error(t, err, "assignment with two targets must be rejected")

	_, err = db.ExecContext(ctx, `INSERT INTO file_assignments (id, file_id, assigned_by) VALUES (gen_random_uuid(), $1, $2)`, fileID, adminID)
	assert.Error(t, err, "assignment without a target must be rejected")
}
