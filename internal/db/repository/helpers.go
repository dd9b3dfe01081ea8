// Package repository implements the graph store and run history over
// database/sql, for both SQLite and Postgres.
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"catalog-lineage/internal/domain"
)

// maxInParams bounds the number of bind parameters in one IN list.
const maxInParams = 500

// mapDBError classifies a driver error into the domain taxonomy.
// Lock contention and dropped connections are transient; constraint
// violations are validation errors; everything else is wrapped with op.
func mapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrCancelled(err, "%s: %v", op, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound("%s: not found", op)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return domain.ErrTransient(err, "%s", op)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr:
			return domain.ErrTransient(err, "%s", op)
		case sqlite3.ErrConstraint:
			return domain.ErrValidation("%s: %v", op, err)
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			pgErr.Code == "40001", // serialization_failure
			pgErr.Code == "40P01", // deadlock_detected
			pgErr.Code == "57P01", // admin_shutdown
			pgErr.Code == "53300": // too_many_connections
			return domain.ErrTransient(err, "%s", op)
		case strings.HasPrefix(pgErr.Code, "23"): // integrity constraint violation
			return domain.ErrValidation("%s: %s", op, pgErr.Message)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

// chunk splits ids into slices of at most size elements.
func chunk(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	out := make([][]string, 0, (len(ids)+size-1)/size)
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	return append(out, ids)
}

// inClause returns "?, ?, ?" for n parameters.
func inClause(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
