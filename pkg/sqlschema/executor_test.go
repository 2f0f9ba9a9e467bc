package sqlschema

import (
	"context"
	stdsql "database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// newTestDB spins up a disposable Postgres container seeded with a small
// okta_users mirror table, independent of the operational schema in
// pkg/database — the SQL Schema View executes against a different dataset.
func newTestDB(t *testing.T) *stdsql.DB {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.PingContext(ctx))

	_, err = db.ExecContext(ctx, `
		CREATE TABLE okta_users (
			user_id text PRIMARY KEY,
			login text NOT NULL,
			status text NOT NULL
		)`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `
		INSERT INTO okta_users (user_id, login, status) VALUES
		('u1', 'alice@example.com', 'ACTIVE'),
		('u2', 'bob@example.com', 'SUSPENDED'),
		('u3', 'carol@example.com', 'ACTIVE')`)
	require.NoError(t, err)

	return db
}

func TestExecutorReturnsRowsAndColumns(t *testing.T) {
	db := newTestDB(t)
	exec := NewExecutor(db)

	res, err := exec.Execute(context.Background(),
		"SELECT user_id, login, status FROM okta_users WHERE status = 'ACTIVE' ORDER BY user_id LIMIT 100",
		5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 2, res.RowCount)
	require.Len(t, res.Columns, 3)
	assert.Equal(t, "user_id", res.Columns[0].Name)
	assert.Equal(t, "u1", res.Rows[0]["user_id"])
	assert.Equal(t, "u3", res.Rows[1]["user_id"])
}

func TestExecutorRejectsWriteInsideReadOnlyTx(t *testing.T) {
	db := newTestDB(t)
	exec := NewExecutor(db)

	// A write statement should never reach here past the validator, but the
	// executor's own read-only transaction is a second line of defense.
	_, err := exec.Execute(context.Background(),
		"DELETE FROM okta_users", 5*time.Second)
	require.Error(t, err)
}

func TestExecutorTimesOut(t *testing.T) {
	db := newTestDB(t)
	exec := NewExecutor(db)

	_, err := exec.Execute(context.Background(),
		"SELECT pg_sleep(2), user_id FROM okta_users", 50*time.Millisecond)
	require.Error(t, err)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, FailureTimeout, execErr.Kind)
}

func TestExecutorEmptyResult(t *testing.T) {
	db := newTestDB(t)
	exec := NewExecutor(db)

	res, err := exec.Execute(context.Background(),
		"SELECT user_id FROM okta_users WHERE status = 'DEPROVISIONED' LIMIT 100",
		5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, res.RowCount)
	assert.Empty(t, res.Rows)
}
