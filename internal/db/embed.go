package db

import "embed"

// EmbedMigrations contains the per-dialect SQL migration files.
//
//go:embed migrations/*/*.sql
var EmbedMigrations embed.FS
