package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"taskcal/internal/config"
	"taskcal/internal/gregorian"
	appLog "taskcal/internal/log"
	"taskcal/internal/markup"
	"taskcal/internal/metrics"
	"taskcal/internal/model"
	"taskcal/internal/store"
	"taskcal/internal/sweep"
	"taskcal/internal/view"
)

// errBadRequest marks malformed client input that never reached the store.
var errBadRequest = errors.New("bad request")

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Server provides the JSON API over the task store.
type Server struct {
	cfg     *config.Config
	store   *store.Store
	cal     *gregorian.Calendar
	views   *view.Selector
	sweeper *sweep.Sweeper
	metrics *metrics.Metrics
	mux     *http.ServeMux
}

// NewServer constructs a new Server. sw and m may be nil.
func NewServer(cfg *config.Config, st *store.Store, sw *sweep.Sweeper, m *metrics.Metrics) *Server {
	var opts []view.Option
	if cfg.AutoDecorateTaskDetailsHyperlink {
		opts = append(opts, view.WithDetailsMarkup(markup.TaskDetails))
	}
	s := &Server{
		cfg:     cfg,
		store:   st,
		cal:     st.Calendar(),
		views:   view.New(st, opts...),
		sweeper: sw,
		metrics: m,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="taskcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.handle("GET /health", "health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	const task = "/api/calendars/{calendar}/tasks/{y}/{m}/{d}/{id}"
	s.handle("GET /api/calendars/{calendar}", "view", s.handleView)
	s.handle("GET /api/calendars/{calendar}/export.ics", "export", s.handleExport)
	s.handle("POST /api/calendars/{calendar}/tasks", "task_create", s.handleCreateTask)
	s.handle("GET "+task, "task_get", s.handleGetTask)
	s.handle("PUT "+task, "task_update", s.handleUpdateTask)
	s.handle("DELETE "+task, "task_delete", s.handleDeleteTask)
	s.handle("PUT "+task+"/day", "task_move", s.handleUpdateTaskDay)
	s.handle("POST "+task+"/hide", "task_hide", s.handleHideInstance)
}

// handle registers h and counts its responses per route.
func (s *Server) handle(pattern, route string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.metrics.Request(route, strconv.Itoa(rec.status))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// afterWrite records a successful task write and gives the sweep its
// chance to run.
func (s *Server) afterWrite(calendarID, op string) {
	s.metrics.TaskWrite(op)
	if s.sweeper != nil {
		s.sweeper.AfterSave(calendarID)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeEngineError maps engine errors to status codes: missing things are
// 404, bad dates, rules and input are 400, anything else is logged and 500.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidDate),
		errors.Is(err, model.ErrMalformedRule),
		errors.Is(err, view.ErrUnknownView),
		errors.Is(err, errBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("api request failed", err, "method", r.Method, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// optionalInt parses an optional query value. Empty means absent.
func optionalInt(q map[string][]string, key string) (*int, error) {
	vals := q[key]
	if len(vals) == 0 || vals[0] == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(vals[0])
	if err != nil {
		return nil, badRequest("query %s=%q is not a number", key, vals[0])
	}
	return &n, nil
}

func parseBoolDefault(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}
