package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

// OpenPostgres opens a pgx-backed *sql.DB pool. Postgres handles concurrent
// writers itself, so the same pool serves reads and writes.
func OpenPostgres(ctx context.Context, dsn string, maxOpen int) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("open postgres: database url is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Open opens the write and read pools for the given dialect. For Postgres
// both return values are the same pool of up to maxOpen connections.
func Open(ctx context.Context, dialect Dialect, sqlitePath, databaseURL string, maxOpen int) (writeDB, readDB *sql.DB, err error) {
	switch dialect {
	case DialectPostgres:
		pg, err := OpenPostgres(ctx, databaseURL, maxOpen)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg, nil
	case DialectSQLite:
		return OpenSQLitePair(sqlitePath, 0)
	default:
		return nil, nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
}
