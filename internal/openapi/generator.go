// Package openapi describes the keygate HTTP surface as an OpenAPI 3.1
// document.
package openapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// SessionCookie names the cookie security scheme. It must match the cookie
// the server sets.
const SessionCookie = "keygate_session"

const formContentType = "application/x-www-form-urlencoded"

// Generate builds the document. version fills info.version; baseURL, when
// set, becomes the only server entry.
func Generate(version, baseURL string) *openapi3.T {
	if version == "" {
		version = "dev"
	}
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Keygate API",
			Description: "Key-gated file downloads with an admin console for key management.",
			Version:     version,
		},
	}
	if baseURL != "" {
		doc.Servers = openapi3.Servers{{URL: baseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = componentSchemas()
	components.SecuritySchemes = openapi3.SecuritySchemes{
		"session": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:        "apiKey",
				In:          "cookie",
				Name:        SessionCookie,
				Description: "Signed session set by a successful key or admin login.",
			},
		},
	}
	doc.Components = &components

	doc.Paths = openapi3.NewPaths()
	addAccessPaths(doc)
	addAdminPaths(doc)
	addProbePaths(doc)
	return doc
}

// JSON renders the document with indentation.
func JSON(version, baseURL string) ([]byte, error) {
	return json.MarshalIndent(Generate(version, baseURL), "", "  ")
}

var sessionRequired = openapi3.SecurityRequirements{{"session": {}}}

func addAccessPaths(doc *openapi3.T) {
	homeResponses := func() *openapi3.Responses {
		return newResponses(http.StatusOK, "Prompt, or the file list for a valid key", ref("Home"),
			http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests, http.StatusInternalServerError)
	}
	doc.Paths.Set("/", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"access"},
			Summary:     "Submit a key as a query parameter",
			Description: "Without a key the response prompts for one, or lists files when the session already holds an active key.",
			OperationID: "login_query",
			Parameters: openapi3.Parameters{
				&openapi3.ParameterRef{
					Value: openapi3.NewQueryParameter("key").
						WithDescription("Access key; case and surrounding whitespace are ignored.").
						WithSchema(openapi3.NewStringSchema()),
				},
			},
			Responses: homeResponses(),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"access"},
			Summary:     "Submit a key",
			OperationID: "login",
			RequestBody: formBody("Key submission", openapi3.Schemas{
				"key": stringProp("Access key."),
			}),
			Responses: homeResponses(),
		},
	})

	download := newResponses(http.StatusForbidden, "Missing session or inactive key", ref("ErrorResponse"),
		http.StatusNotFound, http.StatusInternalServerError)
	ok := "File contents, sent as an attachment"
	download.Set("200", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &ok,
			Content: openapi3.NewContentWithSchema(
				&openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "binary"},
				[]string{"application/octet-stream"},
			),
		},
	})
	doc.Paths.Set("/get/{filename}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"access"},
			Summary:     "Download a file",
			Description: "Re-checks the session key, records the download and increments the key's usage count.",
			OperationID: "download",
			Security:    &sessionRequired,
			Parameters: openapi3.Parameters{
				&openapi3.ParameterRef{
					Value: openapi3.NewPathParameter("filename").
						WithDescription("File name relative to the file root.").
						WithSchema(openapi3.NewStringSchema()),
				},
			},
			Responses: download,
		},
	})
}

func addAdminPaths(doc *openapi3.T) {
	doc.Paths.Set("/admin", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "Admin login state",
			Description: "Redirects to the dashboard when the session is already an admin session.",
			OperationID: "admin_status",
			Responses:   withRedirect(newResponses(http.StatusOK, "Login required", ref("AdminStatus"))),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "Admin login",
			OperationID: "admin_login",
			RequestBody: formBody("Admin password", openapi3.Schemas{
				"password": stringProp(""),
			}, "password"),
			Responses: newResponses(http.StatusOK, "Logged in", ref("AdminStatus"),
				http.StatusUnauthorized, http.StatusTooManyRequests),
		},
	})

	doc.Paths.Set("/admin/dashboard", &openapi3.PathItem{
		Get: adminOperation("dashboard", "Key counters and the most recent audit entries",
			newResponses(http.StatusOK, "Dashboard", ref("Dashboard"), http.StatusInternalServerError)),
	})

	keys := adminOperation("list_keys", "Search keys, newest first",
		newResponses(http.StatusOK, "Matching keys", ref("KeyList"), http.StatusInternalServerError))
	keys.Parameters = openapi3.Parameters{
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("q").
				WithDescription("Case-insensitive substring of the key.").
				WithSchema(openapi3.NewStringSchema()),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("status").
				WithDescription("Exact status; other values are ignored.").
				WithSchema(openapi3.NewStringSchema().WithEnum("active", "revoked")),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("limit").
				WithDescription("Maximum number of keys, at most 500.").
				WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}),
		},
	}
	doc.Paths.Set("/admin/keys", &openapi3.PathItem{Get: keys})

	for _, action := range []string{"revoke", "activate"} {
		op := adminOperation(action+"_key", capitalize(action)+" a key. Unknown keys succeed without effect.",
			newResponses(http.StatusOK, "Status updated", ref("KeyAction"), http.StatusBadRequest, http.StatusInternalServerError))
		op.Parameters = openapi3.Parameters{
			&openapi3.ParameterRef{
				Value: openapi3.NewPathParameter("key").WithSchema(openapi3.NewStringSchema()),
			},
		}
		doc.Paths.Set("/admin/key/"+action+"/{key}", &openapi3.PathItem{Post: op})
	}

	add := adminOperation("add_key", "Add a key, or generate one when none is given",
		newResponses(http.StatusCreated, "Key added", ref("KeyCreated"),
			http.StatusBadRequest, http.StatusConflict, http.StatusInternalServerError))
	add.RequestBody = formBody("Key to add", openapi3.Schemas{
		"key": stringProp("Optional key; a random one is generated when empty."),
	})
	doc.Paths.Set("/admin/key/add", &openapi3.PathItem{Post: add})

	gen := adminOperation("generate_keys", "Generate unique keys in bulk",
		newResponses(http.StatusOK, "Keys generated", ref("GenerateResult"), http.StatusInternalServerError))
	gen.RequestBody = formBody("Batch size", openapi3.Schemas{
		"count": stringProp("Between 1 and 100000; defaults to 1000, including when not a number."),
	})
	doc.Paths.Set("/admin/key/generate", &openapi3.PathItem{Post: gen})

	doc.Paths.Set("/admin/logout", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "Drop the admin flag from the session",
			OperationID: "admin_logout",
			Responses:   newResponses(http.StatusOK, "Logged out", ref("Message")),
		},
	})
}

func addProbePaths(doc *openapi3.T) {
	doc.Paths.Set("/healthz", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Liveness probe",
			OperationID: "healthz",
			Responses:   newResponses(http.StatusOK, "Process is running", ref("Health")),
		},
	})
	doc.Paths.Set("/readyz", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Readiness probe",
			OperationID: "readyz",
			Responses: withResponse(
				newResponses(http.StatusOK, "Database reachable", ref("Health")),
				http.StatusServiceUnavailable, "Database unreachable", ref("Health"),
			),
		},
	})

	metricsDesc := "Prometheus text exposition"
	metrics := openapi3.NewResponses(openapi3.WithStatus(http.StatusOK, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &metricsDesc,
			Content:     openapi3.NewContentWithSchema(openapi3.NewStringSchema(), []string{"text/plain"}),
		},
	}))
	doc.Paths.Set("/metrics", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Prometheus metrics",
			Description: "Only served when metrics are enabled.",
			OperationID: "metrics",
			Responses:   metrics,
		},
	})
	doc.Paths.Set("/openapi.json", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "This document",
			OperationID: "openapi",
			Responses: newResponses(http.StatusOK, "OpenAPI document",
				&openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}),
		},
	})
}

// adminOperation builds an operation behind the admin gate, which redirects
// to /admin without an admin session.
func adminOperation(id, summary string, responses *openapi3.Responses) *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{"admin"},
		Summary:     summary,
		OperationID: id,
		Security:    &sessionRequired,
		Responses:   withRedirect(responses),
	}
}

func formBody(desc string, props openapi3.Schemas, required ...string) *openapi3.RequestBodyRef {
	schema := objectSchema("", props, required...)
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Description: desc,
			Required:    len(required) > 0,
			Content:     openapi3.NewContentWithSchemaRef(schema, []string{formContentType}),
		},
	}
}

// newResponses builds a Responses with one success response and an error
// envelope response for each status in errs.
func newResponses(status int, description string, schema *openapi3.SchemaRef, errs ...int) *openapi3.Responses {
	successDesc := description
	responses := openapi3.NewResponses(openapi3.WithStatus(status, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	}))
	for _, code := range errs {
		responses = withResponse(responses, code, http.StatusText(code), ref("ErrorResponse"))
	}
	return responses
}

func withResponse(responses *openapi3.Responses, status int, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	desc := description
	responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &desc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})
	return responses
}

func withRedirect(responses *openapi3.Responses) *openapi3.Responses {
	desc := "Redirect to the admin login or dashboard"
	responses.Set("302", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &desc,
			Headers: openapi3.Headers{
				"Location": &openapi3.HeaderRef{
					Value: &openapi3.Header{
						Parameter: openapi3.Parameter{Schema: openapi3.NewStringSchema().NewRef()},
					},
				},
			},
		},
	})
	return responses
}

// capitalize returns a string with its first character uppercased.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
