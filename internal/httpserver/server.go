// internal/httpserver/server.go
//
// HTTP server wiring for the sea battle backend.
// Responsibilities:
//   - Router + middleware (request IDs, real IP, panic recovery; JSON, CORS
//     and timeouts on the API group only so websocket upgrades are untouched).
//   - "/": websocket upgrade when requested, else the static client bundle.
//   - "/ws": websocket endpoint.
//   - Diagnostics: /health, /stats, /results.
//   - Admin endpoints (JWT bearer) under /admin, mounted only with a secret.

package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/seabattle/internal/history"
	"github.com/robalobadob/seabattle/internal/session"
)

// Sessions is the part of the session manager the HTTP layer uses.
type Sessions interface {
	Len() int
	Sessions(ctx context.Context) []session.Info
	Abort(ctx context.Context, key string) error
}

// Sockets is the websocket hub.
type Sockets interface {
	Len() int
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Results lists finished matches.
type Results interface {
	Recent(ctx context.Context, limit int) ([]history.Result, error)
}

// Options configures a Server. Results may be nil.
type Options struct {
	Sessions     Sessions
	Sockets      Sockets
	Results      Results
	StaticDir    string
	ClientOrigin string
	AdminSecret  string
}

// Server bundles the router and its collaborators.
type Server struct {
	r      *chi.Mux
	opts   Options
	static http.Handler
}

// New constructs a Server, installs middleware, and registers routes.
func New(opts Options) *Server {
	s := &Server{r: chi.NewRouter(), opts: opts}
	if fi, err := os.Stat(opts.StaticDir); err == nil && fi.IsDir() {
		s.static = http.FileServer(http.Dir(opts.StaticDir))
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer) // recover from panics

	// --- websocket / client bundle ---
	s.r.Get("/", s.handleRoot)
	s.r.Get("/ws", opts.Sockets.ServeWS)

	// --- API ---
	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second))
		r.Use(jsonContentType)
		r.Use(s.cors)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		})
		r.Get("/stats", s.handleStats)
		r.Get("/results", s.handleResults)

		if opts.AdminSecret != "" {
			s.mountAdmin(r)
		}
	})

	if s.static != nil {
		s.r.Handle("/*", s.static)
	} else {
		// JSON 404 for easier debugging
		s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			writeError(w, http.StatusNotFound, "not_found")
		})
	}

	return s
}

// Handler exposes the router (used by main and tests).
func (s *Server) Handler() http.Handler { return s.r }

// handleRoot upgrades websocket requests; browsers get the client bundle.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.opts.Sockets.ServeWS(w, r)
		return
	}
	if s.static != nil {
		s.static.ServeHTTP(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write([]byte(`{"service":"seabattle","endpoints":["/ws","/health","/stats","/results"]}`))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]int{
		"sessions":    s.opts.Sessions.Len(),
		"connections": s.opts.Sockets.Len(),
	})
}

// handleResults returns recent finished matches (?limit=N, default 20, max 100).
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_limit")
			return
		}
		limit = min(n, 100)
	}

	out := []history.Result{}
	if s.opts.Results != nil {
		rows, err := s.opts.Results.Recent(r.Context(), limit)
		if err != nil {
			log.Error().Err(err).Msg("recent results")
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		out = rows
	}
	_ = json.NewEncoder(w).Encode(out)
}

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors allows the configured client origin (any origin when unset).
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.opts.ClientOrigin
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
