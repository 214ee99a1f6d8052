package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/keygate/keygate/internal/keys"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/server/middleware"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/store"
)

// Admin console paths used for redirects.
const (
	AdminLoginPath     = "/admin"
	AdminDashboardPath = "/admin/dashboard"
)

// AdminHandler serves the admin console. Every route except login and
// logout sits behind middleware.RequireAdmin.
type AdminHandler struct {
	keys     *service.KeyService
	auth     *service.AuthService
	sessions *middleware.Sessions
	logLimit int
	logger   *slog.Logger
}

// NewAdminHandler creates a new AdminHandler. logLimit is the number of
// audit entries shown on the dashboard.
func NewAdminHandler(keySvc *service.KeyService, auth *service.AuthService, sessions *middleware.Sessions, logLimit int, logger *slog.Logger) *AdminHandler {
	if logLimit <= 0 {
		logLimit = store.DefaultLogLimit
	}
	return &AdminHandler{
		keys:     keySvc,
		auth:     auth,
		sessions: sessions,
		logLimit: logLimit,
		logger:   logger,
	}
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

type adminStatusResponse struct {
	Admin   bool   `json:"admin"`
	Enabled bool   `json:"enabled"`
	Message string `json:"message,omitempty"`
}

// LoginStatus reports whether a login is needed, or redirects an admin
// session to the dashboard.
// GET /admin
func (h *AdminHandler) LoginStatus(w http.ResponseWriter, r *http.Request) {
	if middleware.SessionFrom(r.Context()).Admin {
		http.Redirect(w, r, AdminDashboardPath, http.StatusFound)
		return
	}
	resp := adminStatusResponse{Enabled: h.auth.AdminEnabled(), Message: "Admin password required."}
	if !resp.Enabled {
		resp.Message = "Admin login is disabled."
	}
	writeJSON(w, http.StatusOK, resp)
}

// Login checks the submitted password and sets the session admin flag.
// The password is only read from the request body.
// POST /admin
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.CheckAdminPassword(r.PostFormValue("password")); err != nil {
		h.logger.Warn("admin login failed",
			"remote_ip", clientIP(r),
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeError(w, http.StatusUnauthorized, "Wrong password")
		return
	}

	sess := *middleware.SessionFrom(r.Context())
	sess.Admin = true
	if err := h.sessions.Save(w, sess); err != nil {
		internalError(w, r, h.logger, "session save failed", err)
		return
	}
	h.logger.Info("admin login", "remote_ip", clientIP(r))
	writeJSON(w, http.StatusOK, adminStatusResponse{Admin: true, Enabled: true, Message: "Logged in."})
}

// Logout clears the admin flag. A key held by the same session survives.
// GET /admin/logout
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := *middleware.SessionFrom(r.Context())
	sess.Admin = false
	if err := h.sessions.Save(w, sess); err != nil {
		internalError(w, r, h.logger, "session save failed", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out."})
}

// ---------------------------------------------------------------------------
// Dashboard and listing
// ---------------------------------------------------------------------------

type dashboardResponse struct {
	Stats    *model.KeyStats  `json:"stats"`
	Logs     []model.LogEntry `json:"logs"`
	LogLimit int              `json:"log_limit"`
}

// Dashboard returns the key counters and the newest audit entries.
// GET /admin/dashboard
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.keys.Stats(r.Context())
	if err != nil {
		internalError(w, r, h.logger, "load stats failed", err)
		return
	}
	logs, err := h.keys.RecentLogs(r.Context(), h.logLimit)
	if err != nil {
		internalError(w, r, h.logger, "load logs failed", err)
		return
	}
	if logs == nil {
		logs = []model.LogEntry{}
	}
	writeJSON(w, http.StatusOK, dashboardResponse{Stats: stats, Logs: logs, LogLimit: h.logLimit})
}

// Keys lists keys filtered by q (substring, any case) and status.
// GET /admin/keys?q=&status=&limit=
func (h *AdminHandler) Keys(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(queryInt(r, "limit", store.MaxSearchResults), 1, store.MaxSearchResults)
	found, err := h.keys.Search(r.Context(), model.KeyFilter{
		Query:  queryString(r, "q"),
		Status: model.KeyStatus(queryString(r, "status")),
		Limit:  limit,
	})
	if err != nil {
		internalError(w, r, h.logger, "search keys failed", err)
		return
	}
	if found == nil {
		found = []model.Key{}
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: found,
		Meta: &model.ResponseMeta{
			Count: len(found),
			Limit: limit,
		},
	})
}

// ---------------------------------------------------------------------------
// Mutations
// ---------------------------------------------------------------------------

type keyActionResponse struct {
	Message string          `json:"message"`
	Key     string          `json:"key"`
	Status  model.KeyStatus `json:"status"`
}

// Revoke marks the path key revoked.
// POST /admin/key/revoke/{key}
func (h *AdminHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, model.KeyRevoked, h.keys.Revoke)
}

// Activate marks the path key active.
// POST /admin/key/activate/{key}
func (h *AdminHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, model.KeyActive, h.keys.Activate)
}

func (h *AdminHandler) setStatus(w http.ResponseWriter, r *http.Request, status model.KeyStatus,
	apply func(ctx context.Context, key, origin string) error) {
	raw := chi.URLParam(r, "key")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	key := keys.Normalize(raw)

	err := apply(r.Context(), key, clientIP(r))
	if errors.Is(err, service.ErrInvalidKey) {
		writeError(w, http.StatusBadRequest, "Key is required")
		return
	}
	if err != nil {
		internalError(w, r, h.logger, "update key status failed", err)
		return
	}
	writeJSON(w, http.StatusOK, keyActionResponse{
		Message: fmt.Sprintf("Key %s %s", key, statusVerb(status)),
		Key:     key,
		Status:  status,
	})
}

func statusVerb(s model.KeyStatus) string {
	if s == model.KeyRevoked {
		return "revoked"
	}
	return "activated"
}

type keyCreatedResponse struct {
	Message string     `json:"message"`
	Key     *model.Key `json:"key"`
}

// AddKey stores the submitted key, or a generated one when the field is
// empty. An existing key is a 409 and is not retried.
// POST /admin/key/add
func (h *AdminHandler) AddKey(w http.ResponseWriter, r *http.Request) {
	k, err := h.keys.Add(r.Context(), formValue(r, "key"), clientIP(r))
	switch {
	case service.IsDuplicate(err):
		writeError(w, http.StatusConflict, "Key already exists")
		return
	case errors.Is(err, service.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Key must be at most %d characters", service.MaxKeyLength))
		return
	case err != nil:
		internalError(w, r, h.logger, "add key failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, keyCreatedResponse{
		Message: "Key added: " + k.Key,
		Key:     k,
	})
}

type generateResponse struct {
	Message string `json:"message"`
	Created int    `json:"created"`
}

// Generate creates a batch of unique keys. The count defaults to 1000 and
// is clamped to [1, 100000].
// POST /admin/key/generate
func (h *AdminHandler) Generate(w http.ResponseWriter, r *http.Request) {
	count := service.ParseCount(formValue(r, "count"))
	created, err := h.keys.Generate(r.Context(), count, clientIP(r))
	if err != nil {
		internalError(w, r, h.logger, "generate keys failed", err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{
		Message: fmt.Sprintf("Generated %d keys", created),
		Created: created,
	})
}
