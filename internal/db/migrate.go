package db

import (
	"database/sql"
	"fmt"
	"path"
	"sync"

	"github.com/pressly/goose/v3"
)

// goose keeps its dialect and base FS in package globals.
var gooseMu sync.Mutex

// RunMigrations executes all pending goose migrations for the dialect.
func RunMigrations(db *sql.DB, dialect Dialect) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(EmbedMigrations)
	if err := goose.SetDialect(dialect.gooseDialect()); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	if err := goose.Up(db, path.Join("migrations", string(dialect))); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
