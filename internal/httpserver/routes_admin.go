// internal/httpserver/routes_admin.go
//
// Operator endpoints, gated by an HS256 bearer token whose "sub" names the
// operator:
//   - GET    /admin/sessions       → every resident session
//   - DELETE /admin/sessions/{key} → abort a session (sockets closed, record deleted)

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/seabattle/internal/session"
)

// ctxAdminKey is the context key for the authenticated operator.
type ctxAdminKey struct{}

func (s *Server) mountAdmin(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)

		r.Get("/sessions", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(s.opts.Sessions.Sessions(r.Context()))
		})

		r.Delete("/sessions/{key}", func(w http.ResponseWriter, r *http.Request) {
			key := chi.URLParam(r, "key")
			err := s.opts.Sessions.Abort(r.Context(), key)
			if errors.Is(err, session.ErrSessionNotFound) {
				writeError(w, http.StatusNotFound, "not_found")
				return
			}
			if err != nil {
				log.Error().Err(err).Str("session", key).Msg("abort session")
				writeError(w, http.StatusInternalServerError, "abort_failed")
				return
			}
			admin, _ := r.Context().Value(ctxAdminKey{}).(string)
			log.Info().Str("admin", admin).Str("session", key).Msg("session aborted by operator")
			_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		})
	})
}

// requireAdmin enforces a valid HS256 JWT and injects its subject into the
// request context.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	secret := []byte(s.opts.AdminSecret)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearer(r)
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		sub, err := token.Claims.GetSubject()
		if err != nil || sub == "" {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxAdminKey{}, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearer extracts the token from "Authorization: Bearer <token>".
func bearer(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	return ""
}
