package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/keygate/keygate/internal/files"
	"github.com/keygate/keygate/internal/server/middleware"
	"github.com/keygate/keygate/internal/service"
)

// Prompt shown when no key was submitted.
const msgEnterKey = "Enter your access key."

// AccessHandler serves the key gate and file downloads.
type AccessHandler struct {
	access   *service.AccessService
	sessions *middleware.Sessions
	logger   *slog.Logger
}

// NewAccessHandler creates a new AccessHandler.
func NewAccessHandler(access *service.AccessService, sessions *middleware.Sessions, logger *slog.Logger) *AccessHandler {
	return &AccessHandler{access: access, sessions: sessions, logger: logger}
}

// homeResponse is the body of GET and POST /.
type homeResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	Key     string   `json:"key,omitempty"`
	Files   []string `json:"files,omitempty"`
}

// Home accepts a key from the form or the query string. A valid key is
// bound to the session and the file list returned; revoked and unknown keys
// get distinct messages and leave the session untouched. Without a key the
// client is prompted, unless its session already holds an active key.
// GET|POST /
func (h *AccessHandler) Home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := middleware.SessionFrom(ctx)

	res, err := h.access.Authenticate(ctx, formValue(r, "key"), clientIP(r))
	if err != nil {
		internalError(w, r, h.logger, "key lookup failed", err)
		return
	}

	switch res.Outcome {
	case service.LoginEmpty:
		if sess.Key != "" && h.access.Authorize(ctx, sess.Key) == nil {
			h.writeFiles(w, r, sess.Key)
			return
		}
		writeJSON(w, http.StatusOK, homeResponse{Status: "prompt", Message: msgEnterKey})

	case service.LoginGranted:
		next := *sess
		next.Key = res.Key
		if err := h.sessions.Save(w, next); err != nil {
			internalError(w, r, h.logger, "session save failed", err)
			return
		}
		h.writeFiles(w, r, res.Key)

	case service.LoginRevoked:
		writeError(w, http.StatusForbidden, res.Message)

	default:
		writeError(w, http.StatusUnauthorized, res.Message)
	}
}

func (h *AccessHandler) writeFiles(w http.ResponseWriter, r *http.Request, key string) {
	names, err := h.access.ListFiles(r.Context())
	if err != nil {
		internalError(w, r, h.logger, "list files failed", err)
		return
	}
	writeJSON(w, http.StatusOK, homeResponse{Status: "granted", Key: key, Files: names})
}

// Download streams a file as an attachment to a session holding an active
// key. Every refusal for lack of access is the same 403.
// GET /get/*
func (h *AccessHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	sess := middleware.SessionFrom(r.Context())

	obj, err := h.access.Fetch(r.Context(), sess.Key, name, clientIP(r))
	switch {
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	case errors.Is(err, files.ErrNotFound), errors.Is(err, files.ErrInvalidName):
		writeError(w, http.StatusNotFound, "File not found")
		return
	case err != nil:
		internalError(w, r, h.logger, "download failed", err)
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": path.Base(obj.Name),
	}))
	w.Header().Set("Content-Type", obj.ContentType)

	if rs, ok := obj.Body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, obj.Name, obj.ModTime, rs)
		return
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.logger.Warn("download interrupted",
			"file", obj.Name,
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
	}
}
