// Package db embeds the goose migrations for the ingestion manifest.
package db

import "embed"

// Migrations holds migrations/*.sql.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory name inside Migrations.
const MigrationsDir = "migrations"
