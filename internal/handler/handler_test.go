package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/keygate/keygate/internal/connector"
	"github.com/keygate/keygate/internal/files"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/server/middleware"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/store"
)

const (
	testSessionSecret = "test-secret-for-handler-tests"
	testPassword      = "supersecretpassword"
	testKey           = "ABCD-1234-EFGH-5678"
)

// testEnv holds shared state for handler integration tests. It behaves like
// a single browser: session cookies set by one response are sent with the
// next request.
type testEnv struct {
	store    *store.Store
	keys     *service.KeyService
	filesDir string
	router   chi.Router
	cookie   *http.Cookie
}

// newTestEnv creates a fresh test environment with an in-memory store, a
// temporary file root and the public and admin routes mounted.
func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithPassword(t, testPassword)
}

func newTestEnvWithPassword(t *testing.T, password string) *testEnv {
	t.Helper()

	st, err := store.Open(context.Background(), connector.ConnectionConfig{Driver: "sqlite"})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	dir := t.TempDir()
	src, err := files.NewLocal(dir)
	if err != nil {
		t.Fatalf("files.NewLocal: %v", err)
	}
	t.Cleanup(func() { src.Close() })

	auth, err := service.NewAuthService(service.AuthConfig{
		SessionSecret: testSessionSecret,
		AdminPassword: password,
	})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	journal := service.NewJournal(st, logger)
	keySvc := service.NewKeyService(st, journal)
	sessions := middleware.NewSessions(auth, false, logger)

	access := NewAccessHandler(service.NewAccessService(st, journal, src), sessions, logger)
	admin := NewAdminHandler(keySvc, auth, sessions, 0, logger)

	r := chi.NewRouter()
	r.Use(sessions.Load)
	r.Get("/", access.Home)
	r.Post("/", access.Home)
	r.Get("/get/*", access.Download)
	r.Get("/admin", admin.LoginStatus)
	r.Post("/admin", admin.Login)
	r.Get("/admin/logout", admin.Logout)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(AdminLoginPath))
		r.Get("/admin/dashboard", admin.Dashboard)
		r.Get("/admin/keys", admin.Keys)
		r.Post("/admin/key/revoke/{key}", admin.Revoke)
		r.Post("/admin/key/activate/{key}", admin.Activate)
		r.Post("/admin/key/add", admin.AddKey)
		r.Post("/admin/key/generate", admin.Generate)
	})
	r.Get("/openapi.json", NewOpenAPIHandler("test").ServeDocument)

	return &testEnv{store: st, keys: keySvc, filesDir: dir, router: r}
}

// seedKey inserts a key with the given status.
func (e *testEnv) seedKey(t *testing.T, key string, status model.KeyStatus) {
	t.Helper()
	if err := e.store.InsertKey(context.Background(), &model.Key{Key: key, Status: status}); err != nil {
		t.Fatalf("seedKey: %v", err)
	}
}

// writeFile places a file in the download root.
func (e *testEnv) writeFile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(e.filesDir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writeFile: %v", err)
	}
}

// do executes an HTTP request against the test router and returns the
// recorder, tracking the session cookie.
func (e *testEnv) do(t *testing.T, method, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	for _, c := range rr.Result().Cookies() {
		if c.Name != middleware.SessionCookie {
			continue
		}
		if c.MaxAge < 0 {
			e.cookie = nil
		} else {
			e.cookie = c
		}
	}
	return rr
}

// loginAdmin performs a successful admin login.
func (e *testEnv) loginAdmin(t *testing.T) {
	t.Helper()
	rr := e.do(t, "POST", "/admin", url.Values{"password": {testPassword}})
	assertStatus(t, rr, http.StatusOK)
}

// getKey loads a key straight from the store.
func (e *testEnv) getKey(t *testing.T, key string) *model.Key {
	t.Helper()
	k, err := e.store.GetKey(context.Background(), key)
	if err != nil {
		t.Fatalf("GetKey(%s): %v", key, err)
	}
	return k
}

// actions returns the recorded audit actions, oldest first.
func (e *testEnv) actions(t *testing.T) []model.Action {
	t.Helper()
	entries, err := e.store.RecentLogs(context.Background(), 1000)
	if err != nil {
		t.Fatalf("RecentLogs: %v", err)
	}
	out := make([]model.Action, len(entries))
	for i, entry := range entries {
		out[len(entries)-1-i] = entry.Action
	}
	return out
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp model.ErrorResponse
	decodeJSON(t, rr, &resp)
	return resp.Error.Message
}
