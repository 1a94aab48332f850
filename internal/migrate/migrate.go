// Package migrate applies the embedded schema history to a database,
// driven by goose. Each numbered file under migrations/ is applied in its
// own transaction and bumps karlinfo's schemaversion row itself, so a crash
// mid-upgrade never leaves the recorded version ahead of the DDL that
// produced it.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var files embed.FS

// Target is the schema version the binary was built against; Up always
// drives the database to exactly this version.
const Target = 2

// Up applies every pending migration up to Target, in order.
func Up(db *sql.DB) error {
	goose.SetBaseFS(files)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrate: set dialect: %w", err)
	}
	if err := goose.UpTo(db, "migrations", Target); err != nil {
		return fmt.Errorf("migrate: up: %w", err)
	}
	return nil
}

// Version reports the schema version recorded in karlinfo, or 0 if the
// table does not exist yet (a fresh database).
func Version(db *sql.DB) (int, error) {
	var value string
	err := db.QueryRow(`select value from karlinfo where key = 'schemaversion'`).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, nil // relation does not exist yet; treat as version 0
	}
	var v int
	_, scanErr := fmt.Sscanf(value, "%d", &v)
	return v, scanErr
}
