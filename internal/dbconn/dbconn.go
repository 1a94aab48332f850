// Package dbconn opens the process-wide database handle. It is the single
// place lib/pq is imported for its side-effecting driver registration, and
// the single place the schema migrator is invoked from the running binary.
package dbconn

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/supermarx/karl/internal/config"
	"github.com/supermarx/karl/internal/migrate"
)

// Open connects to the configured database and brings its schema up to
// migrate.Target, failing fast on either step.
func Open(cfg config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("dbconn: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbconn: ping: %w", err)
	}
	if err := migrate.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbconn: migrate: %w", err)
	}
	return db, nil
}
