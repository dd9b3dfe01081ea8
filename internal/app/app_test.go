package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-lineage/internal/config"
	internaldb "catalog-lineage/internal/db"
	"catalog-lineage/internal/domain"
	"catalog-lineage/internal/testutil"
)

func testConfig() *config.Config {
	return &config.Config{
		DB:        config.DBConfig{Driver: "sqlite", Path: "unused"},
		Lineage:   config.LineageConfig{MaxDepth: 10, QueryTimeout: 5 * time.Second, ReadAttempts: 2, ReadBackoff: time.Millisecond},
		Ingest:    config.IngestConfig{Workers: 4, MaxAttempts: 2, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
		RateLimit: config.RateLimitConfig{RPS: 100, Burst: 100},
		SeedDemo:  true,
		Schedules: []config.ScheduleConfig{{Name: "dbt", Cron: "@hourly", Path: "/manifests/dbt.yaml", Workspace: "ws1"}},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	writeDB, readDB := internaldb.OpenTestSQLite(t)
	a, err := New(context.Background(), Deps{
		Cfg: cfg, WriteDB: writeDB, ReadDB: readDB,
		Dialect: internaldb.DialectSQLite, Logger: testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	return a
}

func TestNew_SeedsDemoGraph(t *testing.T) {
	a := newTestApp(t, testConfig())

	res, err := a.Lineage.GetLineage(context.Background(), domain.LineageRequest{
		WorkspaceID: DemoWorkspace, AssetID: "orders", PredecessorDepth: 2, SuccessorDepth: 1,
	})
	require.NoError(t, err)

	ids := make([]string, len(res.Assets))
	for i, asset := range res.Assets {
		ids[i] = asset.ID
	}
	assert.Equal(t, []string{"orders", "raw_customers", "raw_orders", "revenue", "stg_customers", "stg_orders"}, ids)
	assert.Len(t, res.AssetLinks, 5)
	assert.Len(t, res.ColumnLinks, 9)

	runs, total, err := a.Reconciler.ListRuns(context.Background(), DemoWorkspace, DemoResource, domain.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, domain.BatchStateReconciled, runs[0].State)
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(context.Background(), Deps{})
	require.Error(t, err)
}

func TestApp_Router(t *testing.T) {
	a := newTestApp(t, testConfig())
	router := a.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/workspaces/demo/lineage?asset_id=revenue&predecessor_depth=1&successor_depth=0", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"asset_id":"revenue"`)
}

func TestApp_ManifestSources(t *testing.T) {
	a := newTestApp(t, testConfig())
	assert.Equal(t, "dbt", a.ManifestSources()[0].Name)
	assert.Equal(t, "@hourly", a.ManifestSources()[0].Schedule)
	assert.Equal(t, "ws1", a.ManifestSources()[0].Workspace)
}
