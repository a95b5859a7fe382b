package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mnohosten/laura-mtm/pkg/configstore"
	"github.com/mnohosten/laura-mtm/pkg/csn"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
	"github.com/mnohosten/laura-mtm/pkg/node"
)

type fakeHost struct {
	mu         sync.Mutex
	localTable string
}

func (h *fakeHost) PrePrepare(ctx context.Context, xid gtid.XID) error { return nil }
func (h *fakeHost) HasReplicatedWrites(xid gtid.XID) bool              { return true }
func (h *fakeHost) TouchesLocalOnlyRelation(xid gtid.XID) bool         { return false }
func (h *fakeHost) PostPrepare(ctx context.Context, xid gtid.XID, committed bool) {}
func (h *fakeHost) Commit(ctx context.Context, xid gtid.XID, finalCSN csn.CSN) error {
	return nil
}
func (h *fakeHost) Abort(ctx context.Context, xid gtid.XID) error { return nil }

func (h *fakeHost) MarkTableLocal(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.localTable = name
	return nil
}

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	store := configstore.NewMemStore()
	cfg := node.DefaultConfig(1, 3, []byte("test-secret"))
	cfg.EnableFaultInjection = true

	nc := node.New(cfg, store, &fakeHost{})
	return New(DefaultConfig(), nc)
}

func request(t *testing.T, s *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, path, reqBody)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("unmarshal response body: %v (body=%s)", err, rec.Body.String())
		}
	}
	return rec, decoded
}

func TestGetClusterState(t *testing.T) {
	s := setupTestServer(t)
	rec, decoded := request(t, s, http.MethodGet, "/v1/cluster", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", rec.Code, decoded)
	}
	if decoded["ok"] != true {
		t.Fatalf("ok = %v, want true", decoded["ok"])
	}
	result := decoded["result"].(map[string]interface{})
	if result["self_node"].(float64) != 1 {
		t.Fatalf("self_node = %v, want 1", result["self_node"])
	}
}

func TestAddAndDropNode(t *testing.T) {
	s := setupTestServer(t)

	rec, _ := request(t, s, http.MethodPost, "/v1/nodes", map[string]interface{}{"id": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("add-node status = %d", rec.Code)
	}

	rec, decoded := request(t, s, http.MethodDelete, "/v1/nodes/2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("drop-node status = %d", rec.Code)
	}
	result := decoded["result"].(map[string]interface{})
	if result["disabled"] != true {
		t.Fatalf("disabled = %v, want true", result["disabled"])
	}

	rec, decoded = request(t, s, http.MethodGet, "/v1/nodes/2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("poll-node status = %d", rec.Code)
	}
	result = decoded["result"].(map[string]interface{})
	if result["disabled"] != true {
		t.Fatalf("poll-node disabled = %v, want true", result["disabled"])
	}
}

func TestAddNodeOutOfRangeIsBadRequest(t *testing.T) {
	s := setupTestServer(t)
	rec, decoded := request(t, s, http.MethodPost, "/v1/nodes", map[string]interface{}{"id": 99})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %v", rec.Code, decoded)
	}
}

func TestMakeTableLocal(t *testing.T) {
	s := setupTestServer(t)
	rec, decoded := request(t, s, http.MethodPost, "/v1/tables/accounts/local", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, decoded)
	}
	result := decoded["result"].(map[string]interface{})
	if result["table"] != "accounts" {
		t.Fatalf("table = %v, want accounts", result["table"])
	}
}

func TestInject2PCRequiresFaultInjectionEnabled(t *testing.T) {
	store := configstore.NewMemStore()
	cfg := node.DefaultConfig(1, 3, []byte("test-secret"))
	cfg.EnableFaultInjection = false
	nc := node.New(cfg, store, &fakeHost{})
	s := New(DefaultConfig(), nc)

	rec, _ := request(t, s, http.MethodPost, "/v1/faults/2pc", map[string]interface{}{"kind": "force-abort"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (route must not be registered)", rec.Code)
	}
}

func TestInject2PCForceAbort(t *testing.T) {
	s := setupTestServer(t)
	rec, decoded := request(t, s, http.MethodPost, "/v1/faults/2pc", map[string]interface{}{
		"kind":        "force-abort",
		"probability": 1.0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, decoded)
	}
	if !s.nc.Faults.IsEnabled() {
		t.Fatalf("expected fault injection to be enabled after configuring a fault")
	}
}

func TestGetCSNAndSnapshot(t *testing.T) {
	s := setupTestServer(t)

	rec, decoded := request(t, s, http.MethodGet, "/v1/csn", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get-csn status = %d", rec.Code)
	}
	if _, ok := decoded["result"].(map[string]interface{})["csn"]; !ok {
		t.Fatalf("missing csn in response: %v", decoded)
	}

	rec, decoded = request(t, s, http.MethodGet, "/v1/snapshot", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get-snapshot status = %d", rec.Code)
	}
	result := decoded["result"].(map[string]interface{})
	if result["has_active_transaction"] != false {
		t.Fatalf("has_active_transaction = %v, want false", result["has_active_transaction"])
	}
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	s := setupTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/metrics", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct == "" {
		t.Fatalf("missing content type")
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected non-empty metrics body")
	}
}

func TestDumpLockGraphEmptyByDefault(t *testing.T) {
	s := setupTestServer(t)
	rec, decoded := request(t, s, http.MethodGet, "/v1/lock-graph", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, decoded)
	}
	result, ok := decoded["result"].([]interface{})
	if !ok {
		t.Fatalf("result is not an array: %v", decoded["result"])
	}
	if len(result) != 0 {
		t.Fatalf("expected empty lock graph, got %v", result)
	}
}
