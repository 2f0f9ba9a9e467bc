package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreateGINIndexes creates full-text search GIN indexes that Ent's schema
// DSL has no builder for: one over a process's user_query.
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_processes_user_query_gin
		ON processes USING gin(to_tsvector('english', user_query))`)
	if err != nil {
		return fmt.Errorf("failed to create user_query GIN index: %w", err)
	}

	return nil
}
