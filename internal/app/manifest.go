package app

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver for database/sql
	_ "modernc.org/sqlite" // pure Go SQLite driver, registered as "sqlite"

	"github.com/guttosm/b3lake/config"
	"github.com/guttosm/b3lake/internal/apperr"
	"github.com/guttosm/b3lake/internal/storage"
)

// sqlOpener is an indirection for unit testing; defaults to sql.Open
var sqlOpener = sql.Open

// migrate is an indirection for unit testing; defaults to storage.Migrate
var migrate = storage.Migrate

// OpenManifest connects to the configured manifest database and applies its migrations.
//
// Parameters:
//   - cfg (config.ManifestConfig): driver and DSN. An empty driver disables the manifest.
//
// Behavior:
//   - "postgres" uses lib/pq, "sqlite" uses modernc.org/sqlite.
//   - Pings the database before migrating so a bad DSN fails early.
//   - With no driver, returns a no-op repository and a nil *sql.DB.
//
// Returns:
//   - storage.PartitionsRepository: ready-to-use repository.
//   - *sql.DB: the pool to close on shutdown (nil for the no-op repository).
//   - error: ErrConfig for an unknown driver or missing DSN, ErrRuntime for
//     connection and migration failures.
func OpenManifest(cfg config.ManifestConfig) (storage.PartitionsRepository, *sql.DB, error) {
	var (
		driver  string
		dialect storage.Dialect
	)
	switch cfg.Driver {
	case "":
		return storage.NewNopRepository(), nil, nil
	case "postgres":
		driver, dialect = "postgres", storage.Postgres
	case "sqlite":
		driver, dialect = "sqlite", storage.SQLite
	default:
		return nil, nil, apperr.Errorf(apperr.ErrConfig, "unknown MANIFEST_DRIVER %q (expected postgres or sqlite)", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, nil, apperr.Errorf(apperr.ErrConfig, "MANIFEST_DSN not set for driver %s", cfg.Driver)
	}

	// Initialize database handle (does not establish a real connection yet)
	conn, err := sqlOpener(driver, cfg.DSN)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.ErrRuntime, fmt.Errorf("failed to open %s: %w", driver, err))
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, nil, apperr.Wrap(apperr.ErrRuntime, fmt.Errorf("failed to ping %s: %w", driver, err))
	}
	if err := migrate(conn, dialect); err != nil {
		_ = conn.Close()
		return nil, nil, apperr.Wrap(apperr.ErrRuntime, err)
	}
	return storage.NewPartitionsRepository(conn, dialect), conn, nil
}

// manifestOpener is an indirection used by InitializeApp; overridden in tests to avoid real connections.
var manifestOpener = OpenManifest
