// Package storetest boots one shared postgres testcontainer for the whole
// test binary and hands each test its own schema-isolated *sql.DB, built
// on the generic pkg/fixgres harness with this module's migrations applied
// per sandbox.
package storetest

import (
	"testing"

	"github.com/supermarx/karl/internal/migrate"
	"github.com/supermarx/karl/pkg/fixgres"
)

// BootOnce starts the shared container. Migrations are applied per-sandbox
// (see New), not once against the container's base schema, because every
// test needs its own fresh copy of the tables rather than a shared public
// schema. Call it from TestMain before running any test that needs a
// Sandbox.
func BootOnce(t *testing.T) {
	t.Helper()
	fixgres.BootOnce(t,
		fixgres.WithDBName("karl_test"),
		fixgres.WithUser("karl"),
		fixgres.WithPassword("karl"),
	)
}

// Sandbox is a dedicated Postgres schema, pre-migrated, torn down at the end
// of the owning test.
type Sandbox = fixgres.Sandbox

// New creates a schema-isolated sandbox against the shared container and
// runs every migration against it, so each call gets a fresh, empty copy of
// the full schema rather than sharing state with other tests.
func New(t *testing.T) *Sandbox {
	t.Helper()
	sbx := fixgres.NewSandbox(t)
	if err := migrate.Up(sbx.DB); err != nil {
		t.Fatalf("storetest: migrate sandbox: %v", err)
	}
	return sbx
}

// Shutdown terminates the shared container; call it from TestMain after
// m.Run returns.
func Shutdown() error {
	return fixgres.ShutdownNow()
}
