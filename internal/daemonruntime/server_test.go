package daemonruntime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serve(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsOpen(t *testing.T) {
	t.Parallel()
	h := NewRouter(RoutesOptions{Mode: "discord", AuthToken: "token"})
	rec := serve(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["mode"] != "discord" || payload["ok"] != true {
		t.Fatalf("health payload mismatch: %v", payload)
	}
}

func TestTasksRequireToken(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore(10)
	id := store.Enqueue(TaskKindMessage, "100", "500", "7", "hello")
	h := NewRouter(RoutesOptions{AuthToken: "token", TaskReader: store})

	if rec := serve(t, h, http.MethodGet, "/tasks", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if rec := serve(t, h, http.MethodGet, "/tasks", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for wrong token, got %d", rec.Code)
	}

	rec := serve(t, h, http.MethodGet, "/tasks?status=queued", "token")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var list struct {
		Items []TaskInfo `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != id {
		t.Fatalf("items mismatch: got %#v want id %s", list.Items, id)
	}

	rec = serve(t, h, http.MethodGet, "/tasks/"+id, "token")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), id) {
		t.Fatalf("get task failed: %d %s", rec.Code, rec.Body.String())
	}
	if rec := serve(t, h, http.MethodGet, "/tasks/missing", "token"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	if rec := serve(t, h, http.MethodGet, "/tasks?status=bogus", "token"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if rec := serve(t, h, http.MethodGet, "/tasks?limit=0", "token"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for limit, got %d", rec.Code)
	}
}

func TestTasksOpenWithoutToken(t *testing.T) {
	t.Parallel()
	h := NewRouter(RoutesOptions{TaskReader: NewMemoryStore(10)})
	if rec := serve(t, h, http.MethodGet, "/tasks", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestOverviewAddsVersionAndRuntimeWhenMissing(t *testing.T) {
	t.Parallel()
	h := NewRouter(RoutesOptions{
		Mode:      "discord",
		Version:   "1.2.3",
		AuthToken: "token",
		Overview: func(context.Context) (map[string]any, error) {
			return map[string]any{"ledger_entries": 3}, nil
		},
	})
	rec := serve(t, h, http.MethodGet, "/overview", "token")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["version"] != "1.2.3" {
		t.Fatalf("expected version 1.2.3, got %v", payload["version"])
	}
	runtimePayload, ok := payload["runtime"].(map[string]any)
	if !ok || runtimePayload == nil {
		t.Fatalf("expected runtime object, got %T", payload["runtime"])
	}
	for _, key := range []string{"go_version", "goroutines", "heap_alloc_bytes", "heap_sys_bytes", "heap_objects", "gc_cycles"} {
		if _, exists := runtimePayload[key]; !exists {
			t.Fatalf("expected runtime.%s in payload", key)
		}
	}
}

func TestOverviewPreservesProvidedRuntime(t *testing.T) {
	t.Parallel()
	h := NewRouter(RoutesOptions{
		Overview: func(context.Context) (map[string]any, error) {
			return map[string]any{
				"version": "custom-version",
				"runtime": map[string]any{"go_version": "custom-go"},
			}, nil
		},
	})
	rec := serve(t, h, http.MethodGet, "/overview", "")
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["version"] != "custom-version" {
		t.Fatalf("expected version custom-version, got %v", payload["version"])
	}
	runtimePayload, _ := payload["runtime"].(map[string]any)
	if runtimePayload["go_version"] != "custom-go" {
		t.Fatalf("expected runtime.go_version custom-go, got %v", runtimePayload["go_version"])
	}
	if _, exists := runtimePayload["goroutines"]; !exists {
		t.Fatalf("expected runtime.goroutines to be backfilled")
	}
}

func TestMetricsMounted(t *testing.T) {
	t.Parallel()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("kbrelay_up 1\n"))
	})
	h := NewRouter(RoutesOptions{AuthToken: "token", Metrics: metrics})
	rec := serve(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "kbrelay_up") {
		t.Fatalf("metrics mismatch: %d %s", rec.Code, rec.Body.String())
	}
}
