package handler

import (
	"net/http"

	"github.com/keygate/keygate/internal/openapi"
)

// OpenAPIHandler serves the OpenAPI document for this server.
type OpenAPIHandler struct {
	version string
}

// NewOpenAPIHandler creates a new OpenAPIHandler reporting version.
func NewOpenAPIHandler(version string) *OpenAPIHandler {
	return &OpenAPIHandler{version: version}
}

// ServeDocument returns the document with the request's own origin as server.
// GET /openapi.json
func (h *OpenAPIHandler) ServeDocument(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, openapi.Generate(h.version, requestBaseURL(r)))
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
