package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"catalog-lineage/internal/db"
	"catalog-lineage/internal/domain"
)

// GraphRepo implements domain.GraphStore on SQLite or Postgres.
// Reads go to readDB and writes to writeDB; for Postgres both are usually
// the same pool.
type GraphRepo struct {
	write   *sql.DB
	read    *sql.DB
	dialect db.Dialect
}

var _ domain.GraphStore = (*GraphRepo)(nil)

// NewGraphRepo creates a new GraphRepo.
func NewGraphRepo(writeDB, readDB *sql.DB, dialect db.Dialect) *GraphRepo {
	if readDB == nil {
		readDB = writeDB
	}
	return &GraphRepo{write: writeDB, read: readDB, dialect: dialect}
}

func (r *GraphRepo) q(query string) string { return r.dialect.Rebind(query) }

// === Reads ===

// GetAsset returns the asset with the given id in the workspace.
func (r *GraphRepo) GetAsset(ctx context.Context, workspaceID, assetID string) (*domain.Asset, error) {
	var a domain.Asset
	var kind string
	err := r.read.QueryRowContext(ctx, r.q(
		`SELECT asset_id, workspace_id, resource_id, name, kind
		 FROM assets WHERE workspace_id = ? AND asset_id = ?`), workspaceID, assetID).
		Scan(&a.ID, &a.WorkspaceID, &a.ResourceID, &a.Name, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("asset %q not found in workspace %q", assetID, workspaceID)
	}
	if err != nil {
		return nil, mapDBError("get asset", err)
	}
	a.Kind = domain.AssetKind(kind)
	return &a, nil
}

// GetAssets returns the stored subset of assetIDs, sorted by id.
func (r *GraphRepo) GetAssets(ctx context.Context, workspaceID string, assetIDs []string) ([]domain.Asset, error) {
	var out []domain.Asset
	for _, ids := range chunk(dedupe(assetIDs), maxInParams) {
		rows, err := r.read.QueryContext(ctx, r.q(
			`SELECT asset_id, workspace_id, resource_id, name, kind
			 FROM assets WHERE workspace_id = ? AND asset_id IN (`+inClause(len(ids))+`)`),
			withWorkspace(workspaceID, ids)...)
		if err != nil {
			return nil, mapDBError("get assets", err)
		}
		err = scanRows(rows, func(rows *sql.Rows) error {
			var a domain.Asset
			var kind string
			if err := rows.Scan(&a.ID, &a.WorkspaceID, &a.ResourceID, &a.Name, &kind); err != nil {
				return err
			}
			a.Kind = domain.AssetKind(kind)
			out = append(out, a)
			return nil
		})
		if err != nil {
			return nil, mapDBError("get assets", err)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetOutgoingAssetLinks returns links from assetID to stored assets.
func (r *GraphRepo) GetOutgoingAssetLinks(ctx context.Context, workspaceID, assetID string) ([]domain.AssetLink, error) {
	return r.queryAssetLinks(ctx, "get outgoing links", `
		SELECT l.source_asset_id, l.target_asset_id
		FROM asset_links l
		JOIN assets a ON a.asset_id = l.target_asset_id AND a.workspace_id = l.workspace_id
		WHERE l.workspace_id = ? AND l.source_asset_id = ?
		ORDER BY l.target_asset_id`, workspaceID, assetID)
}

// GetIncomingAssetLinks returns links into assetID from stored assets.
func (r *GraphRepo) GetIncomingAssetLinks(ctx context.Context, workspaceID, assetID string) ([]domain.AssetLink, error) {
	return r.queryAssetLinks(ctx, "get incoming links", `
		SELECT l.source_asset_id, l.target_asset_id
		FROM asset_links l
		JOIN assets a ON a.asset_id = l.source_asset_id AND a.workspace_id = l.workspace_id
		WHERE l.workspace_id = ? AND l.target_asset_id = ?
		ORDER BY l.source_asset_id`, workspaceID, assetID)
}

// GetAssetLinksBetween returns links with both endpoints in assetIDs.
func (r *GraphRepo) GetAssetLinksBetween(ctx context.Context, workspaceID string, assetIDs []string) ([]domain.AssetLink, error) {
	ids := dedupe(assetIDs)
	members := stringSet(ids)
	var out []domain.AssetLink
	for _, part := range chunk(ids, maxInParams) {
		links, err := r.queryAssetLinks(ctx, "get links between", `
			SELECT source_asset_id, target_asset_id
			FROM asset_links
			WHERE workspace_id = ? AND source_asset_id IN (`+inClause(len(part))+`)`,
			withWorkspace(workspaceID, part)...)
		if err != nil {
			return nil, err
		}
		for _, l := range links {
			if _, ok := members[l.TargetAssetID]; ok {
				out = append(out, l)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

// GetColumnsOf returns the columns owned by the given assets, sorted by
// (asset, column).
func (r *GraphRepo) GetColumnsOf(ctx context.Context, workspaceID string, assetIDs []string) ([]domain.Column, error) {
	var out []domain.Column
	for _, part := range chunk(dedupe(assetIDs), maxInParams) {
		rows, err := r.read.QueryContext(ctx, r.q(`
			SELECT c.asset_id, c.column_id, c.name, c.data_type
			FROM asset_columns c
			JOIN assets a ON a.asset_id = c.asset_id
			WHERE a.workspace_id = ? AND c.asset_id IN (`+inClause(len(part))+`)`),
			withWorkspace(workspaceID, part)...)
		if err != nil {
			return nil, mapDBError("get columns", err)
		}
		err = scanRows(rows, func(rows *sql.Rows) error {
			var c domain.Column
			if err := rows.Scan(&c.AssetID, &c.ID, &c.Name, &c.DataType); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
		if err != nil {
			return nil, mapDBError("get columns", err)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref().Less(out[j].Ref()) })
	return out, nil
}

// GetColumnLinksBetween returns column links whose endpoint columns both
// exist and belong to assets in assetIDs.
func (r *GraphRepo) GetColumnLinksBetween(ctx context.Context, workspaceID string, assetIDs []string) ([]domain.ColumnLink, error) {
	ids := dedupe(assetIDs)
	members := stringSet(ids)
	var out []domain.ColumnLink
	for _, part := range chunk(ids, maxInParams) {
		rows, err := r.read.QueryContext(ctx, r.q(`
			SELECT cl.source_asset_id, cl.source_column_id, cl.target_asset_id, cl.target_column_id
			FROM column_links cl
			JOIN asset_columns sc ON sc.asset_id = cl.source_asset_id AND sc.column_id = cl.source_column_id
			JOIN asset_columns tc ON tc.asset_id = cl.target_asset_id AND tc.column_id = cl.target_column_id
			WHERE cl.workspace_id = ? AND cl.source_asset_id IN (`+inClause(len(part))+`)`),
			withWorkspace(workspaceID, part)...)
		if err != nil {
			return nil, mapDBError("get column links between", err)
		}
		err = scanRows(rows, func(rows *sql.Rows) error {
			var l domain.ColumnLink
			if err := rows.Scan(&l.Source.AssetID, &l.Source.ColumnID, &l.Target.AssetID, &l.Target.ColumnID); err != nil {
				return err
			}
			if _, ok := members[l.Target.AssetID]; ok {
				out = append(out, l)
			}
			return nil
		})
		if err != nil {
			return nil, mapDBError("get column links between", err)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

func (r *GraphRepo) queryAssetLinks(ctx context.Context, op, query string, args ...any) ([]domain.AssetLink, error) {
	rows, err := r.read.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, mapDBError(op, err)
	}
	var out []domain.AssetLink
	err = scanRows(rows, func(rows *sql.Rows) error {
		var l domain.AssetLink
		if err := rows.Scan(&l.SourceAssetID, &l.TargetAssetID); err != nil {
			return err
		}
		out = append(out, l)
		return nil
	})
	if err != nil {
		return nil, mapDBError(op, err)
	}
	return out, nil
}

// === Writes ===

// UpsertAsset inserts or updates an asset. Moving an existing asset to a
// different workspace is rejected with a ConflictError.
func (r *GraphRepo) UpsertAsset(ctx context.Context, a *domain.Asset) error {
	if err := domain.ValidateID("asset id", a.ID); err != nil {
		return err
	}
	if err := domain.ValidateID("workspace id", a.WorkspaceID); err != nil {
		return err
	}
	kind := a.Kind
	if kind == "" {
		kind = domain.AssetKindTable
	}
	res, err := r.write.ExecContext(ctx, r.q(`
		INSERT INTO assets (asset_id, workspace_id, resource_id, name, kind)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (asset_id) DO UPDATE SET
			resource_id = excluded.resource_id,
			name = excluded.name,
			kind = excluded.kind
		WHERE assets.workspace_id = excluded.workspace_id`),
		a.ID, a.WorkspaceID, a.ResourceID, a.Name, string(kind))
	if err != nil {
		return mapDBError("upsert asset", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapDBError("upsert asset", err)
	}
	if n == 0 {
		return domain.ErrConflict("asset %q belongs to another workspace", a.ID)
	}
	return nil
}

// UpsertColumn inserts or updates a column of a stored asset.
func (r *GraphRepo) UpsertColumn(ctx context.Context, workspaceID string, c *domain.Column) error {
	if err := domain.ValidateID("column asset id", c.AssetID); err != nil {
		return err
	}
	if err := domain.ValidateID("column id", c.ID); err != nil {
		return err
	}
	res, err := r.write.ExecContext(ctx, r.q(`
		INSERT INTO asset_columns (asset_id, column_id, name, data_type)
		SELECT CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TEXT)
		WHERE EXISTS (SELECT 1 FROM assets WHERE asset_id = ? AND workspace_id = ?)
		ON CONFLICT (asset_id, column_id) DO UPDATE SET
			name = excluded.name,
			data_type = excluded.data_type`),
		c.AssetID, c.ID, c.Name, c.DataType, c.AssetID, workspaceID)
	if err != nil {
		return mapDBError("upsert column", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapDBError("upsert column", err)
	}
	if n == 0 {
		return domain.ErrNotFound("asset %q not found in workspace %q", c.AssetID, workspaceID)
	}
	return nil
}

// UpsertAssetLink records that l.Target is derived from l.Source. The
// emitting resource becomes the link's owner.
func (r *GraphRepo) UpsertAssetLink(ctx context.Context, workspaceID, resourceID string, l domain.AssetLink) error {
	if err := domain.ValidateID("link source", l.SourceAssetID); err != nil {
		return err
	}
	if err := domain.ValidateID("link target", l.TargetAssetID); err != nil {
		return err
	}
	_, err := r.write.ExecContext(ctx, r.q(`
		INSERT INTO asset_links (workspace_id, source_asset_id, target_asset_id, resource_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (workspace_id, source_asset_id, target_asset_id) DO UPDATE SET
			resource_id = excluded.resource_id`),
		workspaceID, l.SourceAssetID, l.TargetAssetID, resourceID)
	return mapDBError("upsert asset link", err)
}

// UpsertColumnLink records a column-level derivation.
func (r *GraphRepo) UpsertColumnLink(ctx context.Context, workspaceID, resourceID string, l domain.ColumnLink) error {
	for _, f := range [...]struct{ field, id string }{
		{"column link source asset", l.Source.AssetID},
		{"column link source column", l.Source.ColumnID},
		{"column link target asset", l.Target.AssetID},
		{"column link target column", l.Target.ColumnID},
	} {
		if err := domain.ValidateID(f.field, f.id); err != nil {
			return err
		}
	}
	_, err := r.write.ExecContext(ctx, r.q(`
		INSERT INTO column_links
			(workspace_id, source_asset_id, source_column_id, target_asset_id, target_column_id, resource_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (workspace_id, source_asset_id, source_column_id, target_asset_id, target_column_id)
		DO UPDATE SET resource_id = excluded.resource_id`),
		workspaceID, l.Source.AssetID, l.Source.ColumnID, l.Target.AssetID, l.Target.ColumnID, resourceID)
	return mapDBError("upsert column link", err)
}

// === Pruning ===

// ListAssetIDs returns the ids of the resource's stored assets, sorted.
func (r *GraphRepo) ListAssetIDs(ctx context.Context, workspaceID, resourceID string) ([]string, error) {
	return listAssetIDs(ctx, r.read, r.q(
		`SELECT asset_id FROM assets WHERE workspace_id = ? AND resource_id = ? ORDER BY asset_id`),
		workspaceID, resourceID)
}

// DeleteAssetsNotIn deletes the resource's assets absent from keep and
// cascades to their columns and every link touching them, in one
// transaction.
func (r *GraphRepo) DeleteAssetsNotIn(ctx context.Context, workspaceID, resourceID string, keep []string) ([]string, error) {
	tx, err := r.write.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapDBError("prune assets", err)
	}
	defer tx.Rollback() //nolint:errcheck

	existing, err := listAssetIDs(ctx, tx, r.q(
		`SELECT asset_id FROM assets WHERE workspace_id = ? AND resource_id = ? ORDER BY asset_id`),
		workspaceID, resourceID)
	if err != nil {
		return nil, err
	}
	kept := stringSet(keep)
	var stale []string
	for _, id := range existing {
		if _, ok := kept[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}

	for _, part := range chunk(stale, maxInParams/2) {
		in := inClause(len(part))
		both := withWorkspace(workspaceID, append(append([]string{}, part...), part...))
		only := withWorkspace(workspaceID, part)
		stmts := []struct {
			query string
			args  []any
		}{
			{`DELETE FROM column_links WHERE workspace_id = ? AND (source_asset_id IN (` + in + `) OR target_asset_id IN (` + in + `))`, both},
			{`DELETE FROM asset_links WHERE workspace_id = ? AND (source_asset_id IN (` + in + `) OR target_asset_id IN (` + in + `))`, both},
			{`DELETE FROM asset_columns WHERE asset_id IN (SELECT asset_id FROM assets WHERE workspace_id = ? AND asset_id IN (` + in + `))`, only},
			{`DELETE FROM assets WHERE workspace_id = ? AND asset_id IN (` + in + `)`, only},
		}
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, r.q(s.query), s.args...); err != nil {
				return nil, mapDBError("prune assets", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapDBError("prune assets", err)
	}
	return stale, nil
}

// PruneResourceChildren deletes the resource's columns and links that are
// absent from keep. Column deletion cascades to column links touching the
// removed column.
func (r *GraphRepo) PruneResourceChildren(ctx context.Context, workspaceID, resourceID string, keep domain.ResourceChildren) (int64, error) {
	tx, err := r.write.BeginTx(ctx, nil)
	if err != nil {
		return 0, mapDBError("prune children", err)
	}
	defer tx.Rollback() //nolint:errcheck

	keepCols := make(map[domain.ColumnRef]struct{}, len(keep.Columns))
	for _, c := range keep.Columns {
		keepCols[c] = struct{}{}
	}
	keepLinks := make(map[domain.AssetLink]struct{}, len(keep.AssetLinks))
	for _, l := range keep.AssetLinks {
		keepLinks[l] = struct{}{}
	}
	keepColLinks := make(map[domain.ColumnLink]struct{}, len(keep.ColumnLinks))
	for _, l := range keep.ColumnLinks {
		keepColLinks[l] = struct{}{}
	}

	var staleCols []domain.ColumnRef
	rows, err := tx.QueryContext(ctx, r.q(`
		SELECT c.asset_id, c.column_id
		FROM asset_columns c
		JOIN assets a ON a.asset_id = c.asset_id
		WHERE a.workspace_id = ? AND a.resource_id = ?`), workspaceID, resourceID)
	if err != nil {
		return 0, mapDBError("prune children", err)
	}
	err = scanRows(rows, func(rows *sql.Rows) error {
		var ref domain.ColumnRef
		if err := rows.Scan(&ref.AssetID, &ref.ColumnID); err != nil {
			return err
		}
		if _, ok := keepCols[ref]; !ok {
			staleCols = append(staleCols, ref)
		}
		return nil
	})
	if err != nil {
		return 0, mapDBError("prune children", err)
	}

	var staleLinks []domain.AssetLink
	rows, err = tx.QueryContext(ctx, r.q(
		`SELECT source_asset_id, target_asset_id FROM asset_links WHERE workspace_id = ? AND resource_id = ?`),
		workspaceID, resourceID)
	if err != nil {
		return 0, mapDBError("prune children", err)
	}
	err = scanRows(rows, func(rows *sql.Rows) error {
		var l domain.AssetLink
		if err := rows.Scan(&l.SourceAssetID, &l.TargetAssetID); err != nil {
			return err
		}
		if _, ok := keepLinks[l]; !ok {
			staleLinks = append(staleLinks, l)
		}
		return nil
	})
	if err != nil {
		return 0, mapDBError("prune children", err)
	}

	var staleColLinks []domain.ColumnLink
	rows, err = tx.QueryContext(ctx, r.q(`
		SELECT source_asset_id, source_column_id, target_asset_id, target_column_id
		FROM column_links WHERE workspace_id = ? AND resource_id = ?`), workspaceID, resourceID)
	if err != nil {
		return 0, mapDBError("prune children", err)
	}
	err = scanRows(rows, func(rows *sql.Rows) error {
		var l domain.ColumnLink
		if err := rows.Scan(&l.Source.AssetID, &l.Source.ColumnID, &l.Target.AssetID, &l.Target.ColumnID); err != nil {
			return err
		}
		if _, ok := keepColLinks[l]; !ok {
			staleColLinks = append(staleColLinks, l)
		}
		return nil
	})
	if err != nil {
		return 0, mapDBError("prune children", err)
	}

	var removed int64
	exec := func(query string, args ...any) error {
		res, err := tx.ExecContext(ctx, r.q(query), args...)
		if err != nil {
			return mapDBError("prune children", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return mapDBError("prune children", err)
		}
		removed += n
		return nil
	}

	for _, l := range staleColLinks {
		if err := exec(`DELETE FROM column_links
			WHERE workspace_id = ? AND source_asset_id = ? AND source_column_id = ?
			AND target_asset_id = ? AND target_column_id = ?`,
			workspaceID, l.Source.AssetID, l.Source.ColumnID, l.Target.AssetID, l.Target.ColumnID); err != nil {
			return 0, err
		}
	}
	for _, c := range staleCols {
		if err := exec(`DELETE FROM column_links
			WHERE workspace_id = ? AND ((source_asset_id = ? AND source_column_id = ?)
			OR (target_asset_id = ? AND target_column_id = ?))`,
			workspaceID, c.AssetID, c.ColumnID, c.AssetID, c.ColumnID); err != nil {
			return 0, err
		}
		if err := exec(`DELETE FROM asset_columns WHERE asset_id = ? AND column_id = ?`,
			c.AssetID, c.ColumnID); err != nil {
			return 0, err
		}
	}
	for _, l := range staleLinks {
		if err := exec(`DELETE FROM asset_links
			WHERE workspace_id = ? AND source_asset_id = ? AND target_asset_id = ?`,
			workspaceID, l.SourceAssetID, l.TargetAssetID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, mapDBError("prune children", err)
	}
	return removed, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listAssetIDs(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapDBError("list asset ids", err)
	}
	var ids []string
	err = scanRows(rows, func(rows *sql.Rows) error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, mapDBError("list asset ids", err)
	}
	return ids, nil
}

// scanRows calls fn for every row and closes rows.
func scanRows(rows *sql.Rows, fn func(*sql.Rows) error) error {
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func withWorkspace(workspaceID string, ids []string) []any {
	args := make([]any, 0, len(ids)+1)
	args = append(args, workspaceID)
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
