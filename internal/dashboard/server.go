package dashboard

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/blikh/discord-translation-relay/internal/directory"
	"github.com/blikh/discord-translation-relay/internal/discord"
	"github.com/blikh/discord-translation-relay/internal/eventlog"
	"github.com/blikh/discord-translation-relay/internal/history"
	"github.com/blikh/discord-translation-relay/internal/metrics"
	"github.com/blikh/discord-translation-relay/internal/pipeline"
	"github.com/blikh/discord-translation-relay/internal/provider"
	"github.com/blikh/discord-translation-relay/internal/stats"
	"github.com/blikh/discord-translation-relay/internal/store"
)

// APIKeyHeader carries the shared secret on mutating requests.
const APIKeyHeader = "X-API-Key"

// maxBodyBytes bounds request bodies; images arrive base64 encoded.
const maxBodyBytes = 16 << 20

// Bot reports the messaging connection state.
type Bot interface {
	Status() discord.BotStatus
}

// AuditSource returns archived events of one kind, newest first.
type AuditSource interface {
	Events(ctx context.Context, kind eventlog.Kind, limit int) ([]eventlog.Entry, error)
}

// Deps are the components the API reads and mutates. Bot and Audit may be nil.
type Deps struct {
	Store     *store.Store
	Registry  *provider.Registry
	Directory *directory.Lookup
	Pipeline  *pipeline.Pipeline
	History   *history.Log
	Stats     *stats.Aggregator
	Events    *eventlog.Log
	Audit     AuditSource
	Bot       Bot
}

// Server serves the administrative JSON API.
type Server struct {
	Deps
	apiKey string
	listen string
	logger *slog.Logger
}

// New creates a dashboard server. An empty apiKey leaves every route open.
func New(deps Deps, listen, apiKey string, logger *slog.Logger) *Server {
	return &Server{
		Deps:   deps,
		apiKey: apiKey,
		listen: listen,
		logger: logger,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.route("status", s.handleStatus))
	mux.HandleFunc("/api/config", s.route("config", s.handleConfig))
	mux.HandleFunc("/api/settings", s.route("settings", s.requireKey(s.handleSettings)))
	mux.HandleFunc("/api/logs", s.route("logs", s.handleLogs))
	mux.HandleFunc("/api/history", s.route("history", s.handleHistory))
	mux.HandleFunc("/api/stats", s.route("stats", s.handleStats))
	mux.HandleFunc("/api/models", s.route("models", s.handleModels))
	mux.HandleFunc("/api/audit", s.route("audit", s.handleAudit))
	mux.HandleFunc("/api/admin-roles", s.route("admin-roles", s.requireKey(s.handleAdminRoles)))
	mux.HandleFunc("/api/admin-roles/", s.route("admin-roles", s.requireKey(s.handleDeleteAdminRole)))
	mux.HandleFunc("/api/channels", s.route("channels", s.requireKey(s.handleAddChannel)))
	mux.HandleFunc("/api/channels/", s.route("channels", s.requireKey(s.handleChannelRoute)))
	mux.HandleFunc("/api/roles/", s.route("roles", s.requireKey(s.roleHandler(store.AllowedRoles, "/api/roles/"))))
	mux.HandleFunc("/api/ocr-roles/", s.route("ocr-roles", s.requireKey(s.roleHandler(store.OCRRoles, "/api/ocr-roles/"))))
	mux.HandleFunc("/api/ignore/", s.route("ignore", s.requireKey(s.handleIgnore)))
	mux.HandleFunc("/api/translate", s.route("translate", s.requireKey(s.handleTranslate)))
	mux.HandleFunc("/api/ocr", s.route("ocr", s.requireKey(s.handleOCR)))
	mux.HandleFunc("/api/ocr-translate", s.route("ocr-translate", s.requireKey(s.handleOCRTranslate)))

	return mux
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 3 * time.Minute, // text extraction may take up to two minutes
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("dashboard: listen %s: %w", s.listen, err)
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.logger.Info("dashboard: server started", "listen", ln.Addr().String(), "auth", s.apiKey != "")
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: serve: %w", err)
	}
	return nil
}

// requireKey rejects requests without the configured API key. GET requests
// pass through so combined read/write routes stay readable.
func (s *Server) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
			s.logger.Debug("dashboard: rejected request", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusForbidden, "Forbidden: Invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// route counts requests per route and status code.
func (s *Server) route(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.HTTPRequests.WithLabelValues(name, strconv.Itoa(rec.code)).Inc()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
