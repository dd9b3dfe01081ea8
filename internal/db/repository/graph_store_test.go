package repository

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "catalog-lineage/internal/db"
	"catalog-lineage/internal/domain"
)

const testWS = "ws1"

func setupGraphRepo(t *testing.T) *GraphRepo {
	t.Helper()
	writeDB, readDB := internaldb.OpenTestSQLite(t)
	return NewGraphRepo(writeDB, readDB, internaldb.DialectSQLite)
}

func seedAsset(t *testing.T, repo *GraphRepo, id, resource string, columns ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.UpsertAsset(ctx, &domain.Asset{
		ID: id, WorkspaceID: testWS, ResourceID: resource, Name: id, Kind: domain.AssetKindTable,
	}))
	for _, c := range columns {
		require.NoError(t, repo.UpsertColumn(ctx, testWS, &domain.Column{AssetID: id, ID: c, Name: c, DataType: "string"}))
	}
}

func link(src, tgt string) domain.AssetLink {
	return domain.AssetLink{SourceAssetID: src, TargetAssetID: tgt}
}

func colLink(sa, sc, ta, tc string) domain.ColumnLink {
	return domain.ColumnLink{
		Source: domain.ColumnRef{AssetID: sa, ColumnID: sc},
		Target: domain.ColumnRef{AssetID: ta, ColumnID: tc},
	}
}

func TestGraphRepo_UpsertAndGetAsset(t *testing.T) {
	repo := setupGraphRepo(t)
	ctx := context.Background()

	t.Run("happy_path", func(t *testing.T) {
		seedAsset(t, repo, "urn:orders", "dbt")

		got, err := repo.GetAsset(ctx, testWS, "urn:orders")
		require.NoError(t, err)
		assert.Equal(t, "urn:orders", got.ID)
		assert.Equal(t, "dbt", got.ResourceID)
		assert.Equal(t, domain.AssetKindTable, got.Kind)
	})

	t.Run("upsert_is_idempotent_and_updates_fields", func(t *testing.T) {
		a := &domain.Asset{ID: "urn:orders", WorkspaceID: testWS, ResourceID: "dbt", Name: "orders_v2", Kind: domain.AssetKindModel}
		require.NoError(t, repo.UpsertAsset(ctx, a))
		require.NoError(t, repo.UpsertAsset(ctx, a))

		got, err := repo.GetAsset(ctx, testWS, "urn:orders")
		require.NoError(t, err)
		assert.Equal(t, "orders_v2", got.Name)
		assert.Equal(t, domain.AssetKindModel, got.Kind)
	})

	t.Run("not_found_in_other_workspace", func(t *testing.T) {
		_, err := repo.GetAsset(ctx, "ws2", "urn:orders")
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)
	})

	t.Run("workspace_move_conflicts", func(t *testing.T) {
		err := repo.UpsertAsset(ctx, &domain.Asset{ID: "urn:orders", WorkspaceID: "ws2", ResourceID: "dbt"})
		var conflict *domain.ConflictError
		require.ErrorAs(t, err, &conflict)
	})

	t.Run("empty_id_rejected", func(t *testing.T) {
		err := repo.UpsertAsset(ctx, &domain.Asset{WorkspaceID: testWS})
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
	})
}

func TestGraphRepo_UpsertColumn(t *testing.T) {
	repo := setupGraphRepo(t)
	ctx := context.Background()
	seedAsset(t, repo, "a", "r1", "id")

	t.Run("updates_existing", func(t *testing.T) {
		require.NoError(t, repo.UpsertColumn(ctx, testWS, &domain.Column{AssetID: "a", ID: "id", Name: "id", DataType: "bigint"}))
		cols, err := repo.GetColumnsOf(ctx, testWS, []string{"a"})
		require.NoError(t, err)
		require.Len(t, cols, 1)
		assert.Equal(t, "bigint", cols[0].DataType)
	})

	t.Run("missing_owner", func(t *testing.T) {
		err := repo.UpsertColumn(ctx, testWS, &domain.Column{AssetID: "ghost", ID: "id"})
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)
	})

	t.Run("owner_in_other_workspace", func(t *testing.T) {
		err := repo.UpsertColumn(ctx, "ws2", &domain.Column{AssetID: "a", ID: "x"})
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)
	})
}

func TestGraphRepo_Links(t *testing.T) {
	repo := setupGraphRepo(t)
	ctx := context.Background()
	seedAsset(t, repo, "a", "r1", "x")
	seedAsset(t, repo, "b", "r1", "x")
	seedAsset(t, repo, "c", "r1", "x")

	require.NoError(t, repo.UpsertAssetLink(ctx, testWS, "r1", link("a", "b")))
	require.NoError(t, repo.UpsertAssetLink(ctx, testWS, "r1", link("a", "b")))
	require.NoError(t, repo.UpsertAssetLink(ctx, testWS, "r1", link("b", "c")))
	// Dangling: target not yet ingested.
	require.NoError(t, repo.UpsertAssetLink(ctx, testWS, "r1", link("c", "pending")))

	t.Run("outgoing_skips_dangling", func(t *testing.T) {
		out, err := repo.GetOutgoingAssetLinks(ctx, testWS, "c")
		require.NoError(t, err)
		assert.Empty(t, out)

		out, err = repo.GetOutgoingAssetLinks(ctx, testWS, "a")
		require.NoError(t, err)
		assert.Equal(t, []domain.AssetLink{link("a", "b")}, out)
	})

	t.Run("incoming", func(t *testing.T) {
		in, err := repo.GetIncomingAssetLinks(ctx, testWS, "c")
		require.NoError(t, err)
		assert.Equal(t, []domain.AssetLink{link("b", "c")}, in)
	})

	t.Run("between", func(t *testing.T) {
		got, err := repo.GetAssetLinksBetween(ctx, testWS, []string{"c", "a", "b", "a"})
		require.NoError(t, err)
		assert.Equal(t, []domain.AssetLink{link("a", "b"), link("b", "c")}, got)

		got, err = repo.GetAssetLinksBetween(ctx, testWS, []string{"a", "c"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("workspace_scoped", func(t *testing.T) {
		out, err := repo.GetOutgoingAssetLinks(ctx, "ws2", "a")
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("column_links_between_require_columns", func(t *testing.T) {
		require.NoError(t, repo.UpsertColumnLink(ctx, testWS, "r1", colLink("a", "x", "b", "x")))
		require.NoError(t, repo.UpsertColumnLink(ctx, testWS, "r1", colLink("a", "x", "b", "missing")))

		got, err := repo.GetColumnLinksBetween(ctx, testWS, []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, []domain.ColumnLink{colLink("a", "x", "b", "x")}, got)

		got, err = repo.GetColumnLinksBetween(ctx, testWS, []string{"a"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestGraphRepo_DeleteAssetsNotIn(t *testing.T) {
	repo := setupGraphRepo(t)
	ctx := context.Background()
	seedAsset(t, repo, "keep", "r1", "x")
	seedAsset(t, repo, "drop", "r1", "x")
	seedAsset(t, repo, "other", "r2", "x")
	require.NoError(t, repo.UpsertAssetLink(ctx, testWS, "r1", link("keep", "drop")))
	require.NoError(t, repo.UpsertAssetLink(ctx, testWS, "r2", link("drop", "other")))
	require.NoError(t, repo.UpsertColumnLink(ctx, testWS, "r2", colLink("drop", "x", "other", "x")))

	removed, err := repo.DeleteAssetsNotIn(ctx, testWS, "r1", []string{"keep"})
	require.NoError(t, err)
	assert.Equal(t, []string{"drop"}, removed)

	_, err = repo.GetAsset(ctx, testWS, "drop")
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)

	ids, err := repo.ListAssetIDs(ctx, testWS, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, ids)

	links, err := repo.GetAssetLinksBetween(ctx, testWS, []string{"keep", "drop", "other"})
	require.NoError(t, err)
	assert.Empty(t, links, "links touching a pruned asset are removed regardless of owner")

	cols, err := repo.GetColumnsOf(ctx, testWS, []string{"drop"})
	require.NoError(t, err)
	assert.Empty(t, cols)

	t.Run("nothing_stale", func(t *testing.T) {
		removed, err := repo.DeleteAssetsNotIn(ctx, testWS, "r1", []string{"keep"})
		require.NoError(t, err)
		assert.Empty(t, removed)
	})
}

func TestGraphRepo_PruneResourceChildren(t *testing.T) {
	repo := setupGraphRepo(t)
	ctx := context.Background()
	seedAsset(t, repo, "a", "r1", "x", "old")
	seedAsset(t, repo, "b", "r1", "x")
	seedAsset(t, repo, "c", "r2", "x")
	require.NoError(t, repo.UpsertAssetLink(ctx, testWS, "r1", link("a", "b")))
	require.NoError(t, repo.UpsertAssetLink(ctx, testWS, "r1", link("b", "a")))
	require.NoError(t, repo.UpsertAssetLink(ctx, testWS, "r2", link("b", "c")))
	require.NoError(t, repo.UpsertColumnLink(ctx, testWS, "r1", colLink("a", "old", "b", "x")))
	require.NoError(t, repo.UpsertColumnLink(ctx, testWS, "r1", colLink("a", "x", "b", "x")))

	removed, err := repo.PruneResourceChildren(ctx, testWS, "r1", domain.ResourceChildren{
		Columns:     []domain.ColumnRef{{AssetID: "a", ColumnID: "x"}, {AssetID: "b", ColumnID: "x"}},
		AssetLinks:  []domain.AssetLink{link("a", "b")},
		ColumnLinks: []domain.ColumnLink{colLink("a", "x", "b", "x")},
	})
	require.NoError(t, err)
	// a.old, a.old -> b.x, b -> a
	assert.Equal(t, int64(3), removed)

	links, err := repo.GetAssetLinksBetween(ctx, testWS, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []domain.AssetLink{link("a", "b"), link("b", "c")}, links, "links owned by other resources survive")

	cols, err := repo.GetColumnsOf(ctx, testWS, []string{"a"})
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "x", cols[0].ID)
}
