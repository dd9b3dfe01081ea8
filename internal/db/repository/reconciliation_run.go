package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"catalog-lineage/internal/db"
	"catalog-lineage/internal/domain"
)

// ReconciliationRunRepo implements domain.ReconciliationRunRepository.
type ReconciliationRunRepo struct {
	db      *sql.DB
	dialect db.Dialect
}

var _ domain.ReconciliationRunRepository = (*ReconciliationRunRepo)(nil)

// NewReconciliationRunRepo creates a new ReconciliationRunRepo.
func NewReconciliationRunRepo(conn *sql.DB, dialect db.Dialect) *ReconciliationRunRepo {
	return &ReconciliationRunRepo{db: conn, dialect: dialect}
}

type runDetails struct {
	Failures     []failureJSON `json:"failures,omitempty"`
	PrunedAssets []string      `json:"pruned_assets,omitempty"`
}

type failureJSON struct {
	Kind     string `json:"kind"`
	Key      string `json:"key"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// Save records a finished reconciliation report.
func (r *ReconciliationRunRepo) Save(ctx context.Context, rep *domain.ReconciliationReport) error {
	if rep.ID == "" {
		rep.ID = domain.NewID()
	}
	details := runDetails{PrunedAssets: rep.PrunedAssets}
	for _, f := range rep.Failures {
		details.Failures = append(details.Failures, failureJSON{
			Kind: string(f.Kind), Key: f.Key, Attempts: f.Attempts, Error: f.Error,
		})
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal run details: %w", err)
	}

	_, err = r.db.ExecContext(ctx, r.dialect.Rebind(`
		INSERT INTO reconciliation_runs
			(id, workspace_id, resource_id, state, full_resync, succeeded, failed, skipped,
			 pruned_children, prune_skipped, report_json, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rep.ID, rep.WorkspaceID, rep.ResourceID, string(rep.State), rep.FullResync,
		rep.Succeeded, rep.Failed, rep.Skipped, rep.PrunedChildren, rep.PruneSkipped,
		string(payload), rep.StartedAt.UTC(), rep.FinishedAt.UTC())
	return mapDBError("save reconciliation run", err)
}

// ListByResource returns the resource's runs, newest first.
func (r *ReconciliationRunRepo) ListByResource(ctx context.Context, workspaceID, resourceID string, page domain.PageRequest) ([]domain.ReconciliationReport, int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(
		`SELECT COUNT(*) FROM reconciliation_runs WHERE workspace_id = ? AND resource_id = ?`),
		workspaceID, resourceID).Scan(&total)
	if err != nil {
		return nil, 0, mapDBError("count reconciliation runs", err)
	}

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(`
		SELECT id, workspace_id, resource_id, state, full_resync, succeeded, failed, skipped,
		       pruned_children, prune_skipped, report_json, started_at, finished_at
		FROM reconciliation_runs
		WHERE workspace_id = ? AND resource_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?`),
		workspaceID, resourceID, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, mapDBError("list reconciliation runs", err)
	}

	var out []domain.ReconciliationReport
	err = scanRows(rows, func(rows *sql.Rows) error {
		var (
			rep         domain.ReconciliationReport
			state       string
			payload     string
			start, stop time.Time
		)
		if err := rows.Scan(&rep.ID, &rep.WorkspaceID, &rep.ResourceID, &state, &rep.FullResync,
			&rep.Succeeded, &rep.Failed, &rep.Skipped, &rep.PrunedChildren, &rep.PruneSkipped,
			&payload, &start, &stop); err != nil {
			return err
		}
		rep.State = domain.BatchState(state)
		rep.StartedAt, rep.FinishedAt = start.UTC(), stop.UTC()

		var details runDetails
		if err := json.Unmarshal([]byte(payload), &details); err != nil {
			return fmt.Errorf("decode run %s details: %w", rep.ID, err)
		}
		rep.PrunedAssets = details.PrunedAssets
		for _, f := range details.Failures {
			rep.Failures = append(rep.Failures, domain.EntityFailure{
				Kind: domain.EntityKind(f.Kind), Key: f.Key, Attempts: f.Attempts, Error: f.Error,
			})
		}
		out = append(out, rep)
		return nil
	})
	if err != nil {
		return nil, 0, mapDBError("list reconciliation runs", err)
	}
	return out, total, nil
}
