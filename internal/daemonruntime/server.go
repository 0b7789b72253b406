package daemonruntime

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// TaskReader is the minimal read API required by the HTTP routes.
type TaskReader interface {
	List(status TaskStatus, limit int) []TaskInfo
	Get(id string) (*TaskInfo, bool)
}

type OverviewFunc func(ctx context.Context) (map[string]any, error)

type RoutesOptions struct {
	Mode       string
	Version    string
	AuthToken  string
	TaskReader TaskReader
	Overview   OverviewFunc
	Metrics    http.Handler
}

// NewRouter builds the status router. /health is always open; /overview and
// /tasks require the bearer token when one is configured.
func NewRouter(opts RoutesOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	mode := strings.TrimSpace(opts.Mode)
	r.MethodFunc(http.MethodGet, "/health", healthHandler(mode))
	r.MethodFunc(http.MethodHead, "/health", healthHandler(mode))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(opts.AuthToken))
		r.Get("/overview", overviewHandler(opts))
		r.Get("/tasks", listTasksHandler(opts.TaskReader))
		r.Get("/tasks/{id}", getTaskHandler(opts.TaskReader))
	})
	return r
}

func healthHandler(mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"ok":   true,
			"time": time.Now().Format(time.RFC3339Nano),
		}
		if mode != "" {
			payload["mode"] = mode
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func overviewHandler(opts RoutesOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{}
		if opts.Overview != nil {
			got, err := opts.Overview(r.Context())
			if err != nil {
				http.Error(w, strings.TrimSpace(err.Error()), http.StatusServiceUnavailable)
				return
			}
			for k, v := range got {
				payload[k] = v
			}
		}
		if v, _ := payload["version"].(string); strings.TrimSpace(v) == "" {
			version := strings.TrimSpace(opts.Version)
			if version == "" {
				version = "dev"
			}
			payload["version"] = version
		}
		payload["runtime"] = withRuntimeStats(payload["runtime"])
		writeJSON(w, payload)
	}
}

func withRuntimeStats(existing any) map[string]any {
	out, _ := existing.(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	defaults := map[string]any{
		"go_version":       runtime.Version(),
		"goroutines":       runtime.NumGoroutine(),
		"heap_alloc_bytes": mem.HeapAlloc,
		"heap_sys_bytes":   mem.HeapSys,
		"heap_objects":     mem.HeapObjects,
		"gc_cycles":        mem.NumGC,
	}
	for k, v := range defaults {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

func listTasksHandler(reader TaskReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			http.Error(w, "task reader is unavailable", http.StatusServiceUnavailable)
			return
		}
		status, ok := ParseTaskStatus(r.URL.Query().Get("status"))
		if !ok {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		limit := 20
		if rawLimit := strings.TrimSpace(r.URL.Query().Get("limit")); rawLimit != "" {
			parsed, err := strconv.Atoi(rawLimit)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}
		writeJSON(w, map[string]any{"items": reader.List(status, limit)})
	}
}

func getTaskHandler(reader TaskReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			http.Error(w, "task reader is unavailable", http.StatusServiceUnavailable)
			return
		}
		id := strings.TrimSpace(chi.URLParam(r, "id"))
		if id == "" {
			http.Error(w, "missing id", http.StatusBadRequest)
			return
		}
		info, ok := reader.Get(id)
		if !ok || info == nil {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, info)
	}
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	token = strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && !checkAuth(r, token) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkAuth(r *http.Request, token string) bool {
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	want := "Bearer " + token
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type ServerOptions struct {
	Listen string
	Routes RoutesOptions
}

// StartServer serves the router until ctx is done.
func StartServer(ctx context.Context, logger *slog.Logger, opts ServerOptions) (*http.Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	listen := strings.TrimSpace(opts.Listen)
	if listen == "" {
		return nil, errors.New("empty health listen address")
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Addr:              listen,
		Handler:           NewRouter(opts.Routes),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health_server_error", "addr", listen, "error", err.Error())
		}
	}()

	logger.Info("health_server_start",
		"addr", ln.Addr().String(),
		"mode", strings.TrimSpace(opts.Routes.Mode),
		"metrics_enabled", opts.Routes.Metrics != nil,
		"tasks_auth", strings.TrimSpace(opts.Routes.AuthToken) != "",
	)
	return srv, nil
}
