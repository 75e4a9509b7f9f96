package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/custodia/internal/app"
	"github.com/ternarybob/custodia/internal/common"
)

// newTestServer wires a full application over temp directories. Workers are
// not started, so admitted jobs stay queued and responses are deterministic.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	base := t.TempDir()

	dataRoot := filepath.Join(base, "data")
	require.NoError(t, os.MkdirAll(dataRoot, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataRoot, "subjects.csv"),
		[]byte("subject,age\n1,34\n2,41\n3,29\n"), 0o644))
	manifest := filepath.Join(dataRoot, "manifest.json")
	require.NoError(t, os.WriteFile(manifest, []byte(`{
		"node_name": "api-test-node",
		"catalogs": [{
			"id": "cat_demo",
			"name": "Demo Study",
			"data_type": "tabular",
			"privacy_level": "restricted",
			"files": [{"name": "subjects", "path": "subjects.csv", "type": "csv"}]
		}]
	}`), 0o644))

	cfg := common.NewDefaultConfig()
	cfg.Node.NodeID = "api-test-node"
	cfg.Data.Root = dataRoot
	cfg.Data.Manifest = manifest
	cfg.Data.UploadsDir = filepath.Join(base, "uploads")
	cfg.Execution.WorkDir = filepath.Join(base, "work")
	cfg.Execution.Backend = "subprocess"
	cfg.Storage.Badger.Path = filepath.Join(base, "db")
	cfg.Limits.SubmissionsPerMinute = 0

	application, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { application.Storage.Close() })

	s := New(application)
	ts := httptest.NewServer(s.server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func postJSON(t *testing.T, ts *httptest.Server, path string, payload interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "api-test-node", body["node_id"])
}

func TestListCatalogs(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/catalogs")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	catalogs := body["catalogs"].([]interface{})
	require.Len(t, catalogs, 1)
	first := catalogs[0].(map[string]interface{})
	assert.Equal(t, "cat_demo", first["id"])
}

func TestSubmitAndFetchJob(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/v1/jobs", map[string]interface{}{
		"script_kind":    "python",
		"script_content": "from data_loader import save_results\nsave_results({'sample_size': 3})",
		"catalog_id":     "cat_demo",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	submitted := decodeBody(t, resp)
	jobID := submitted["job_id"].(string)
	require.NotEmpty(t, jobID)
	assert.Equal(t, "queued", submitted["status"])
	// The script itself never leaves the node, only its hash
	assert.NotContains(t, submitted, "script_content")

	got, err := http.Get(fmt.Sprintf("%s/api/v1/jobs/%s", ts.URL, jobID))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, got.StatusCode)
	view := decodeBody(t, got)
	assert.Equal(t, jobID, view["job_id"])
	assert.Equal(t, "queued", view["status"])
}

func TestSubmitValidation(t *testing.T) {
	ts := newTestServer(t)

	// Missing required fields
	resp := postJSON(t, ts, "/api/v1/jobs", map[string]interface{}{
		"script_kind": "python",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Unknown catalog
	resp = postJSON(t, ts, "/api/v1/jobs", map[string]interface{}{
		"script_kind":    "python",
		"script_content": "save_results({})",
		"catalog_id":     "cat_nope",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// A flagged script is still admitted; the worker fails it before
	// execution, so the submission itself is accepted
	resp = postJSON(t, ts, "/api/v1/jobs", map[string]interface{}{
		"script_kind":    "python",
		"script_content": "import os\nos.system('rm -rf /')",
		"catalog_id":     "cat_demo",
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	// Kind outside the allow-list
	resp = postJSON(t, ts, "/api/v1/jobs", map[string]interface{}{
		"script_kind":    "sql",
		"script_content": "SELECT 1",
		"catalog_id":     "cat_demo",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestCancelJobTwice(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/v1/jobs", map[string]interface{}{
		"script_kind":    "python",
		"script_content": "save_results({'sample_size': 3})",
		"catalog_id":     "cat_demo",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	jobID := decodeBody(t, resp)["job_id"].(string)

	cancel := postJSON(t, ts, "/api/v1/jobs/"+jobID+"/cancel", nil)
	assert.Equal(t, http.StatusOK, cancel.StatusCode)
	cancel.Body.Close()

	// DELETE on the job resource is the same cancel, already terminal here
	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/jobs/"+jobID, nil)
	require.NoError(t, err)
	again, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, again.StatusCode)
	again.Body.Close()
}

func TestUnknownJobReturns404(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/jobs/job_missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestDiscoveryEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/discovery")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "api-test-node", body["node_id"])
	kinds := body["allowed_kinds"].([]interface{})
	assert.Contains(t, kinds, "python")
}

func TestRequestReviewWritesAudit(t *testing.T) {
	ts := newTestServer(t)

	createRequest := func(title string) string {
		resp := postJSON(t, ts, "/api/v1/requests", map[string]interface{}{
			"title":          title,
			"requester_name": "Dr. Example",
			"catalog_id":     "cat_demo",
			"script_kind":    "python",
			"script_content": "save_results({'sample_size': 3})",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		return decodeBody(t, resp)["request_id"].(string)
	}

	approved := createRequest("mean age")
	resp := postJSON(t, ts, "/api/v1/requests/"+approved+"/approve", map[string]interface{}{"note": "looks fine"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	jobID := decodeBody(t, resp)["job_id"].(string)
	require.NotEmpty(t, jobID)

	denied := createRequest("row dump")
	resp = postJSON(t, ts, "/api/v1/requests/"+denied+"/deny", map[string]interface{}{"note": "too granular"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	audit, err := http.Get(ts.URL + "/api/v1/audit")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, audit.StatusCode)
	entries := decodeBody(t, audit)["entries"].([]interface{})

	actions := map[string]map[string]interface{}{}
	for _, raw := range entries {
		entry := raw.(map[string]interface{})
		actions[entry["action"].(string)] = entry
	}

	approvedEntry, ok := actions["request_approved"]
	require.True(t, ok, "approval must leave an audit row")
	assert.Equal(t, jobID, approvedEntry["subject_job_id"])
	assert.Equal(t, approved, approvedEntry["details"].(map[string]interface{})["request_id"])

	deniedEntry, ok := actions["request_denied"]
	require.True(t, ok, "denial must leave an audit row")
	assert.Equal(t, denied, deniedEntry["details"].(map[string]interface{})["request_id"])
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/jobs", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
