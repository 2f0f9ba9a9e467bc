package database

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"github.com/oktareact/core/pkg/config"
)

// OpenMirror opens the Postgres connection pool backing the SQL Schema
// View's Okta-tenant mirror tables. It deliberately does not run Ent or the
// embedded migrations NewClient applies: the mirror schema is populated by
// whatever external sync process maintains the tenant mirror, not by this
// binary (see DESIGN.md's Open Question decision on SQL Schema View
// connection ownership).
func OpenMirror(ctx context.Context, c *config.MirrorDatabaseConfig) (*stdsql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)

	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping mirror database: %w", err)
	}

	return db, nil
}
