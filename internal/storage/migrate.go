package storage

import (
	"database/sql"
	"fmt"

	goose "github.com/pressly/goose/v3"

	"github.com/guttosm/b3lake/db"
)

// Migrate applies the embedded manifest migrations.
func Migrate(conn *sql.DB, dialect Dialect) error {
	gooseDialect := "postgres"
	if dialect == SQLite {
		gooseDialect = "sqlite3"
	}
	goose.SetBaseFS(db.Migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(conn, db.MigrationsDir); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
