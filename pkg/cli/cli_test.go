package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-lineage/internal/api"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("LINEAGE_HOST", "")
	t.Setenv("LINEAGE_WORKSPACE", "")
	t.Setenv("LINEAGE_OUTPUT", "")
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func lineageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/workspaces/analytics/lineage", r.URL.Path)
		assert.Equal(t, "urn:orders", r.URL.Query().Get("asset_id"))
		assert.Equal(t, "2", r.URL.Query().Get("predecessor_depth"))
		assert.Equal(t, "0", r.URL.Query().Get("successor_depth"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.LineageResponse{
			AssetID: "urn:orders",
			Assets: []api.Asset{
				{ID: "urn:orders", Kind: "model", ResourceID: "dbt"},
				{ID: "urn:stg_orders", Kind: "view", ResourceID: "dbt"},
			},
			AssetLinks: []api.AssetLink{{SourceAssetID: "urn:stg_orders", TargetAssetID: "urn:orders"}},
			Columns:    []api.Column{},
			ColumnLinks: []api.ColumnLink{{
				Source: api.ColumnRef{AssetID: "urn:stg_orders", ColumnID: "id"},
				Target: api.ColumnRef{AssetID: "urn:orders", ColumnID: "order_id"},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGet_Table(t *testing.T) {
	srv := lineageServer(t)

	code, out, stderr := runCLI(t, "get", "urn:orders", "--host", srv.URL, "-w", "analytics", "-u", "2", "-d", "0")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "urn:stg_orders")
	assert.Contains(t, out, "urn:stg_orders.id")
	assert.Contains(t, out, "urn:orders.order_id")
	assert.Contains(t, out, "2 assets, 0 columns, 1 asset links, 1 column links")
}

func TestGet_JSON(t *testing.T) {
	srv := lineageServer(t)

	code, out, stderr := runCLI(t, "get", "urn:orders", "--host", srv.URL+"/", "-w", "analytics", "-u", "2", "-d", "0", "-o", "json")
	require.Equal(t, 0, code, stderr)

	var res api.LineageResponse
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res.Assets, 2)
	assert.Equal(t, "urn:orders", res.AssetID)
}

func TestGet_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"NOT_FOUND","message":"asset \"urn:x\" not found"}`))
	}))
	defer srv.Close()

	t.Run("table", func(t *testing.T) {
		code, _, stderr := runCLI(t, "get", "urn:x", "--host", srv.URL)
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "API error (HTTP 404 NOT_FOUND)")
		assert.Contains(t, stderr, `asset "urn:x" not found`)
	})

	t.Run("json", func(t *testing.T) {
		code, out, _ := runCLI(t, "get", "urn:x", "--host", srv.URL, "-o", "json")
		assert.Equal(t, 1, code)
		var body map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &body))
		assert.Equal(t, float64(404), body["http_status"])
		assert.Equal(t, "NOT_FOUND", body["code"])
	})
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Do(t.Context(), http.MethodGet, "/x", nil, nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.HTTPStatus)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}

func TestClient_ConnectionError(t *testing.T) {
	err := NewClient("http://127.0.0.1:1").Do(t.Context(), http.MethodGet, "/x", nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute request")
}

const testManifest = `workspace: analytics
resource: dbt_core
assets:
  - id: urn:stg_orders
    columns:
      - {id: id, type: bigint}
  - id: urn:orders
    kind: model
    columns:
      - {id: order_id, type: bigint}
asset_links:
  - {source: urn:stg_orders, target: urn:orders}
column_links:
  - source: {asset: urn:stg_orders, column: id}
    target: {asset: urn:orders, column: order_id}
`

func TestReconcile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testManifest), 0o600))

	var got api.ReconcileRequest
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(api.ReconciliationReport{
			ID: "run-1", ResourceID: "dbt_core", State: "SUCCEEDED", Succeeded: 6,
		})
	}))
	defer srv.Close()

	t.Run("manifest_workspace", func(t *testing.T) {
		code, out, stderr := runCLI(t, "reconcile", "-f", path, "--host", srv.URL, "--full-resync")
		require.Equal(t, 0, code, stderr)
		assert.Equal(t, "/v1/workspaces/analytics/resources/dbt_core/reconcile", gotPath)
		assert.True(t, got.FullResync)
		assert.Len(t, got.Assets, 2)
		assert.Len(t, got.Columns, 2)
		assert.Equal(t, "urn:stg_orders", got.Assets[0].Name, "name defaults to id")
		require.Len(t, got.ColumnLinks, 1)
		assert.Equal(t, "order_id", got.ColumnLinks[0].Target.ColumnID)
		assert.Contains(t, out, "SUCCEEDED")
		assert.Contains(t, out, "run-1")
	})

	t.Run("flag_overrides", func(t *testing.T) {
		code, _, stderr := runCLI(t, "reconcile", "-f", path, "--host", srv.URL, "-w", "other", "--resource", "dbt v2")
		require.Equal(t, 0, code, stderr)
		assert.Equal(t, "/v1/workspaces/other/resources/dbt v2/reconcile", gotPath)
		assert.False(t, got.FullResync)
	})

	t.Run("file_required", func(t *testing.T) {
		code, _, stderr := runCLI(t, "reconcile", "--host", srv.URL)
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "file")
	})

	t.Run("invalid_manifest", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("bogus: true\n"), 0o600))
		code, _, stderr := runCLI(t, "reconcile", "-f", bad, "--host", srv.URL)
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "invalid manifest")
	})
}

func TestRuns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/workspaces/default/resources/dbt_core/reconciliations", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("max_results"))
		_ = json.NewEncoder(w).Encode(api.ListReconciliationsResponse{
			Data:          []api.ReconciliationReport{{ID: "run-2", State: "DEGRADED", Failed: 1}},
			Total:         7,
			NextPageToken: "tok",
		})
	}))
	defer srv.Close()

	code, out, stderr := runCLI(t, "runs", "dbt_core", "--host", srv.URL, "--max-results", "5")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "run-2")
	assert.Contains(t, out, "DEGRADED")
	assert.Contains(t, out, "--page-token tok")
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "lineage version dev")

	code, out, _ = runCLI(t, "version", "-o", "json")
	require.Equal(t, 0, code)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "dev", v["version"])
}

func TestFlagValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad_output", []string{"get", "x", "-o", "yaml"}, "unsupported output format"},
		{"bad_scheme", []string{"get", "x", "--host", "ftp://h"}, "scheme must be http or https"},
		{"path_in_host", []string{"get", "x", "--host", "http://h/api"}, "must not include a path"},
		{"empty_host", []string{"get", "x", "--host", " "}, "cannot be empty"},
		{"missing_arg", []string{"get"}, "accepts 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestHostFromEnv(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/workspaces/envws/lineage", r.URL.Path)
		_ = json.NewEncoder(w).Encode(api.LineageResponse{AssetID: "a", Assets: []api.Asset{{ID: "a"}}})
	}))
	defer srv.Close()

	t.Setenv("LINEAGE_HOST", srv.URL)
	t.Setenv("LINEAGE_WORKSPACE", "envws")
	var stdout, stderr bytes.Buffer
	code := run([]string{"get", "a"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "1 assets")
}
