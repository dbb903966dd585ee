package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/seabattle/internal/game"
	"github.com/robalobadob/seabattle/internal/history"
	"github.com/robalobadob/seabattle/internal/httpserver"
	"github.com/robalobadob/seabattle/internal/session"
)

type stubSessions struct {
	infos   []session.Info
	aborted []string
}

func (s *stubSessions) Len() int { return len(s.infos) }

func (s *stubSessions) Sessions(context.Context) []session.Info { return s.infos }

func (s *stubSessions) Abort(_ context.Context, key string) error {
	for _, in := range s.infos {
		if in.Key == key {
			s.aborted = append(s.aborted, key)
			return nil
		}
	}
	return session.ErrSessionNotFound
}

type stubSockets struct{ upgrades int }

func (s *stubSockets) Len() int { return 3 }

func (s *stubSockets) ServeWS(w http.ResponseWriter, _ *http.Request) {
	s.upgrades++
	w.WriteHeader(http.StatusSwitchingProtocols)
}

type stubResults struct{ limit int }

func (s *stubResults) Recent(_ context.Context, limit int) ([]history.Result, error) {
	s.limit = limit
	return []history.Result{{Key: "room", Winner: game.Player1, Shots: 7}}, nil
}

const secret = "s3cret"

func newServer(t *testing.T, mutate func(*httpserver.Options)) (*httpserver.Server, *stubSessions, *stubSockets, *stubResults) {
	t.Helper()
	sess := &stubSessions{infos: []session.Info{{Key: "room", BattleStarted: true}, {Key: "lobby"}}}
	socks := &stubSockets{}
	res := &stubResults{}
	opts := httpserver.Options{
		Sessions:  sess,
		Sockets:   socks,
		Results:   res,
		StaticDir: filepath.Join(t.TempDir(), "missing"),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return httpserver.New(opts), sess, socks, res
}

func do(t *testing.T, s *httpserver.Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func token(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return tok
}

func TestServer_Diagnostics(t *testing.T) {
	s, _, _, res := newServer(t, nil)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sessions":2,"connections":3}`, rec.Body.String())

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/results?limit=500", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, res.limit)
	var got []history.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "room", got[0].Key)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/results", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, res.limit)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/results?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RootUpgradesWebsockets(t *testing.T) {
	s, _, socks, _ := newServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	do(t, s, req)
	assert.Equal(t, 1, socks.upgrades)

	do(t, s, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, 2, socks.upgrades)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "seabattle")
	assert.Equal(t, 2, socks.upgrades)
}

func TestServer_StaticBundle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>sea battle</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.js"), []byte("console.log(1)"), 0o644))
	s, _, _, _ := newServer(t, func(o *httpserver.Options) { o.StaticDir = dir })

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sea battle")

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/main.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestServer_AdminDisabledWithoutSecret(t *testing.T) {
	s, _, _, _ := newServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, secret, jwt.MapClaims{"sub": "ops"}))
	assert.Equal(t, http.StatusNotFound, do(t, s, req).Code)
}

func TestServer_AdminAuth(t *testing.T) {
	s, _, _, _ := newServer(t, func(o *httpserver.Options) { o.AdminSecret = secret })
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong key", "Bearer " + token(t, "other", jwt.MapClaims{"sub": "ops", "exp": exp}), http.StatusUnauthorized},
		{"expired", "Bearer " + token(t, secret, jwt.MapClaims{"sub": "ops", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
		{"no subject", "Bearer " + token(t, secret, jwt.MapClaims{"exp": exp}), http.StatusUnauthorized},
		{"valid", "Bearer " + token(t, secret, jwt.MapClaims{"sub": "ops", "exp": exp}), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, do(t, s, req).Code)
		})
	}
}

func TestServer_AdminSessions(t *testing.T) {
	s, sess, _, _ := newServer(t, func(o *httpserver.Options) { o.AdminSecret = secret })
	auth := "Bearer " + token(t, secret, jwt.MapClaims{"sub": "ops"})

	req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
	req.Header.Set("Authorization", auth)
	rec := do(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []session.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.True(t, infos[0].BattleStarted)

	req = httptest.NewRequest(http.MethodDelete, "/admin/sessions/room", nil)
	req.Header.Set("Authorization", auth)
	rec = do(t, s, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"room"}, sess.aborted)

	req = httptest.NewRequest(http.MethodDelete, "/admin/sessions/ghost", nil)
	req.Header.Set("Authorization", auth)
	assert.Equal(t, http.StatusNotFound, do(t, s, req).Code)
}
