package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "catalog-lineage/internal/db"
	"catalog-lineage/internal/db/repository"
	"catalog-lineage/internal/domain"
	"catalog-lineage/internal/service/ingestion"
	"catalog-lineage/internal/service/lineage"
	"catalog-lineage/internal/testutil"
)

type mockLineage struct {
	GetLineageFn func(ctx context.Context, req domain.LineageRequest) (*domain.LineageResult, error)
}

func (m *mockLineage) GetLineage(ctx context.Context, req domain.LineageRequest) (*domain.LineageResult, error) {
	if m.GetLineageFn != nil {
		return m.GetLineageFn(ctx, req)
	}
	panic("unexpected call to mockLineage.GetLineage")
}

type mockReconciler struct {
	ReconcileResourceFn func(ctx context.Context, req domain.ReconcileRequest) (*domain.ReconciliationReport, error)
	ListRunsFn          func(ctx context.Context, ws, res string, page domain.PageRequest) ([]domain.ReconciliationReport, int64, error)
}

func (m *mockReconciler) ReconcileResource(ctx context.Context, req domain.ReconcileRequest) (*domain.ReconciliationReport, error) {
	if m.ReconcileResourceFn != nil {
		return m.ReconcileResourceFn(ctx, req)
	}
	panic("unexpected call to mockReconciler.ReconcileResource")
}

func (m *mockReconciler) ListRuns(ctx context.Context, ws, res string, page domain.PageRequest) ([]domain.ReconciliationReport, int64, error) {
	if m.ListRunsFn != nil {
		return m.ListRunsFn(ctx, ws, res, page)
	}
	panic("unexpected call to mockReconciler.ListRuns")
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func serve(t *testing.T, h *Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(h, RouterConfig{}, testutil.NewTestLogger(t))
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHTTPStatusFromDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not_found", domain.ErrNotFound("asset %q", "x"), http.StatusNotFound, CodeNotFound},
		{"validation", domain.ErrValidation("bad depth"), http.StatusBadRequest, CodeInvalidArgument},
		{"conflict", domain.ErrConflict("moved"), http.StatusConflict, CodeConflict},
		{"transient", domain.ErrTransient(errors.New("busy"), "read"), http.StatusServiceUnavailable, CodeUnavailable},
		{"cancelled", domain.ErrCancelled(context.DeadlineExceeded, "timeout"), http.StatusGatewayTimeout, CodeDeadlineExceeded},
		{"wrapped_not_found", errors.Join(errors.New("ctx"), domain.ErrNotFound("x")), http.StatusNotFound, CodeNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := httpStatusFromDomainError(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestGetLineage(t *testing.T) {
	var got domain.LineageRequest
	svc := &mockLineage{GetLineageFn: func(_ context.Context, req domain.LineageRequest) (*domain.LineageResult, error) {
		got = req
		return &domain.LineageResult{
			AssetID:    "orders",
			Assets:     []domain.Asset{{ID: "orders"}, {ID: "stg_orders"}},
			AssetLinks: []domain.AssetLink{{SourceAssetID: "stg_orders", TargetAssetID: "orders"}},
		}, nil
	}}
	h := NewHandler(svc, nil, nil, testutil.NewTestLogger(t))

	rec := serve(t, h, http.MethodGet, "/v1/workspaces/ws1/lineage?asset_id=orders&predecessor_depth=2&successor_depth=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.LineageRequest{WorkspaceID: "ws1", AssetID: "orders", PredecessorDepth: 2}, got)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	for _, field := range []string{"asset_id", "assets", "asset_links", "columns", "column_links"} {
		assert.Contains(t, body, field)
	}
	assert.JSONEq(t, `[]`, string(body["columns"]), "empty sets render as arrays")

	var res LineageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []AssetLink{{SourceAssetID: "stg_orders", TargetAssetID: "orders"}}, res.AssetLinks)

	t.Run("default_depths", func(t *testing.T) {
		rec := serve(t, h, http.MethodGet, "/v1/workspaces/ws1/lineage?asset_id=orders", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, got.PredecessorDepth)
		assert.Equal(t, 1, got.SuccessorDepth)
	})

	t.Run("non_integer_depth", func(t *testing.T) {
		rec := serve(t, h, http.MethodGet, "/v1/workspaces/ws1/lineage?asset_id=orders&successor_depth=deep", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, CodeInvalidArgument, decodeError(t, rec).Code)
	})
}

func TestGetLineage_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"not_found", domain.ErrNotFound("asset %q not found", "ghost"), http.StatusNotFound, `asset "ghost" not found`},
		{"timeout", domain.ErrCancelled(context.DeadlineExceeded, "lineage query cancelled"), http.StatusGatewayTimeout, "lineage query cancelled"},
		{"internal_hidden", errors.New("sql: secret detail"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&mockLineage{GetLineageFn: func(context.Context, domain.LineageRequest) (*domain.LineageResult, error) {
				return nil, tt.err
			}}, nil, nil, testutil.NewTestLogger(t))
			rec := serve(t, h, http.MethodGet, "/v1/workspaces/ws1/lineage?asset_id=x", nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, decodeError(t, rec).Message, tt.wantMsg)
		})
	}
}

func TestReconcile(t *testing.T) {
	var got domain.ReconcileRequest
	rec := &mockReconciler{ReconcileResourceFn: func(_ context.Context, req domain.ReconcileRequest) (*domain.ReconciliationReport, error) {
		got = req
		return &domain.ReconciliationReport{
			ID: "run-1", WorkspaceID: req.WorkspaceID, ResourceID: req.ResourceID,
			State: domain.BatchStatePartiallyFailed, Succeeded: 1, Failed: 1, PruneSkipped: true,
			Failures: []domain.EntityFailure{{Kind: domain.EntityKindColumn, Key: "a.x", Attempts: 3, Error: "boom"}},
		}, nil
	}}
	h := NewHandler(nil, rec, nil, testutil.NewTestLogger(t))

	body := `{"full_resync": true,
		"assets": [{"id": "a", "kind": "table"}],
		"columns": [{"asset_id": "a", "id": "x"}],
		"asset_links": [{"source_asset_id": "b", "target_asset_id": "a"}],
		"column_links": [{"source": {"asset_id": "b", "column_id": "y"}, "target": {"asset_id": "a", "column_id": "x"}}]}`
	resp := serve(t, h, http.MethodPost, "/v1/workspaces/ws1/resources/dbt/reconcile", []byte(body))
	require.Equal(t, http.StatusOK, resp.Code)

	assert.Equal(t, "ws1", got.WorkspaceID)
	assert.Equal(t, "dbt", got.ResourceID)
	assert.True(t, got.FullResync)
	assert.Equal(t, domain.AssetKindTable, got.Assets[0].Kind)
	assert.Equal(t, domain.ColumnRef{AssetID: "b", ColumnID: "y"}, got.ColumnLinks[0].Source)

	var report ReconciliationReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, "PARTIALLY_FAILED", report.State)
	assert.True(t, report.PruneSkipped)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "column", report.Failures[0].Kind)

	t.Run("unknown_field", func(t *testing.T) {
		resp := serve(t, h, http.MethodPost, "/v1/workspaces/ws1/resources/dbt/reconcile", []byte(`{"asets": []}`))
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("empty_body", func(t *testing.T) {
		resp := serve(t, h, http.MethodPost, "/v1/workspaces/ws1/resources/dbt/reconcile", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Contains(t, decodeError(t, resp).Message, "required")
	})

	t.Run("cancelled", func(t *testing.T) {
		h := NewHandler(nil, &mockReconciler{ReconcileResourceFn: func(context.Context, domain.ReconcileRequest) (*domain.ReconciliationReport, error) {
			return &domain.ReconciliationReport{
				ID: "run-1", State: domain.BatchStateIncomplete, Succeeded: 2, Skipped: 4,
			}, domain.ErrCancelled(context.Canceled, "cancelled")
		}}, nil, testutil.NewTestLogger(t))
		resp := serve(t, h, http.MethodPost, "/v1/workspaces/ws1/resources/dbt/reconcile", []byte(`{}`))
		assert.Equal(t, http.StatusGatewayTimeout, resp.Code)

		body := decodeError(t, resp)
		assert.Equal(t, CodeDeadlineExceeded, body.Code)
		require.NotNil(t, body.Report)
		assert.Equal(t, "run-1", body.Report.ID)
		assert.Equal(t, string(domain.BatchStateIncomplete), body.Report.State)
		assert.Equal(t, 2, body.Report.Succeeded)
		assert.Equal(t, 4, body.Report.Skipped)
	})

	t.Run("validation_has_no_report", func(t *testing.T) {
		h := NewHandler(nil, &mockReconciler{ReconcileResourceFn: func(context.Context, domain.ReconcileRequest) (*domain.ReconciliationReport, error) {
			return nil, domain.ErrValidation("asset id is required")
		}}, nil, testutil.NewTestLogger(t))
		resp := serve(t, h, http.MethodPost, "/v1/workspaces/ws1/resources/dbt/reconcile", []byte(`{}`))
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Nil(t, decodeError(t, resp).Report)
	})
}

func TestListReconciliations(t *testing.T) {
	var gotPage domain.PageRequest
	rec := &mockReconciler{ListRunsFn: func(_ context.Context, ws, res string, page domain.PageRequest) ([]domain.ReconciliationReport, int64, error) {
		gotPage = page
		assert.Equal(t, "ws1", ws)
		assert.Equal(t, "dbt", res)
		return []domain.ReconciliationReport{{ID: "r2"}, {ID: "r1"}}, 5, nil
	}}
	h := NewHandler(nil, rec, nil, testutil.NewTestLogger(t))

	resp := serve(t, h, http.MethodGet, "/v1/workspaces/ws1/resources/dbt/reconciliations?max_results=2", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 2, gotPage.MaxResults)

	var out ListReconciliationsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, int64(5), out.Total)
	require.Len(t, out.Data, 2)
	assert.Equal(t, "r2", out.Data[0].ID)
	assert.Equal(t, domain.EncodePageToken(2), out.NextPageToken)

	t.Run("bad_max_results", func(t *testing.T) {
		resp := serve(t, h, http.MethodGet, "/v1/workspaces/ws1/resources/dbt/reconciliations?max_results=-1", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestHealthz(t *testing.T) {
	h := NewHandler(nil, nil, pingFunc(func(context.Context) error { return nil }), testutil.NewTestLogger(t))
	rec := serve(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	h = NewHandler(nil, nil, pingFunc(func(context.Context) error { return errors.New("down") }), testutil.NewTestLogger(t))
	rec = serve(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_CORS(t *testing.T) {
	h := NewHandler(nil, nil, nil, testutil.NewTestLogger(t))
	router := NewRouter(h, RouterConfig{CORSOrigins: []string{"https://ui.example.com"}}, testutil.NewTestLogger(t))

	req := httptest.NewRequest(http.MethodOptions, "/v1/workspaces/ws1/lineage", nil)
	req.Header.Set("Origin", "https://ui.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://ui.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAPI_EndToEnd(t *testing.T) {
	writeDB, readDB := internaldb.OpenTestSQLite(t)
	store := repository.NewGraphRepo(writeDB, readDB, internaldb.DialectSQLite)
	runs := repository.NewReconciliationRunRepo(writeDB, internaldb.DialectSQLite)
	logger := testutil.NewTestLogger(t)
	h := NewHandler(
		lineage.NewLineageService(store, lineage.Config{}, logger),
		ingestion.NewReconciliationService(store, runs, ingestion.Config{}, logger),
		readDB,
		logger,
	)

	batch := `{"full_resync": true,
		"assets": [{"id": "raw_orders"}, {"id": "stg_orders"}, {"id": "orders"}],
		"asset_links": [
			{"source_asset_id": "raw_orders", "target_asset_id": "stg_orders"},
			{"source_asset_id": "stg_orders", "target_asset_id": "orders"}]}`
	resp := serve(t, h, http.MethodPost, "/v1/workspaces/ws1/resources/dbt/reconcile", []byte(batch))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = serve(t, h, http.MethodGet, "/v1/workspaces/ws1/lineage?asset_id=orders&predecessor_depth=1&successor_depth=0", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var res LineageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	require.Len(t, res.Assets, 2)
	assert.Equal(t, "orders", res.Assets[0].ID)
	assert.Equal(t, "stg_orders", res.Assets[1].ID)
	assert.Equal(t, []AssetLink{{SourceAssetID: "stg_orders", TargetAssetID: "orders"}}, res.AssetLinks)

	resp = serve(t, h, http.MethodGet, "/v1/workspaces/ws1/lineage?asset_id=orders&predecessor_depth=11", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code, "depth guard")

	resp = serve(t, h, http.MethodGet, "/v1/workspaces/ws2/lineage?asset_id=orders", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code, "workspace scoped")

	resp = serve(t, h, http.MethodGet, "/v1/workspaces/ws1/resources/dbt/reconciliations", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, strings.Contains(resp.Body.String(), `"state":"RECONCILED"`))
}
