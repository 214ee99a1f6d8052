package mcp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"

	"github.com/keygate/keygate/internal/model"
)

// EndpointPath is where the Streamable HTTP transport is mounted.
const EndpointPath = "/mcp"

// ErrAdminDisabled is returned when HTTP mode is requested without an admin
// password to authenticate callers with.
var ErrAdminDisabled = errors.New("mcp: http transport requires an admin password")

// AdminAuth checks the bearer token presented to the HTTP transport.
type AdminAuth interface {
	AdminEnabled() bool
	CheckAdminPassword(password string) error
}

// HTTPHandler returns the Streamable HTTP transport behind a bearer check:
// every request must carry "Authorization: Bearer <admin password>".
func (s *MCPServer) HTTPHandler(auth AdminAuth) (http.Handler, error) {
	if auth == nil || !auth.AdminEnabled() {
		return nil, ErrAdminDisabled
	}

	r := chi.NewRouter()
	r.Use(s.requireBearer(auth))
	r.Handle(EndpointPath, server.NewStreamableHTTPServer(s.server))
	return r, nil
}

func (s *MCPServer) requireBearer(auth AdminAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || auth.CheckAdminPassword(strings.TrimSpace(token)) != nil {
				s.logger.Warn("mcp request rejected", "remote", r.RemoteAddr)
				w.Header().Set("WWW-Authenticate", `Bearer realm="keygate"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(model.ErrorResponse{
					Error: model.ErrorDetail{Code: http.StatusUnauthorized, Message: "Unauthorized"},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ServeHTTP serves MCP in Streamable HTTP mode on addr (e.g.
// "127.0.0.1:3001"). It refuses to start when auth has no admin password.
func (s *MCPServer) ServeHTTP(addr string, auth AdminAuth) error {
	handler, err := s.HTTPHandler(auth)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("MCP HTTP server starting", "addr", addr, "path", EndpointPath)
	return srv.ListenAndServe()
}
