package openapi

import "github.com/getkin/kin-openapi/openapi3"

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func describe(s *openapi3.Schema, desc string) *openapi3.SchemaRef {
	s.Description = desc
	return &openapi3.SchemaRef{Value: s}
}

func stringProp(desc string) *openapi3.SchemaRef {
	return describe(openapi3.NewStringSchema(), desc)
}

func objectSchema(desc string, props openapi3.Schemas, required ...string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:        &openapi3.Types{"object"},
			Description: desc,
			Properties:  props,
			Required:    required,
		},
	}
}

func arrayOf(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:  &openapi3.Types{"array"},
			Items: items,
		},
	}
}

func int64Prop(desc string) *openapi3.SchemaRef {
	return describe(openapi3.NewInt64Schema(), desc)
}

// componentSchemas returns the named schemas shared by the operations.
func componentSchemas() openapi3.Schemas {
	return openapi3.Schemas{
		"ErrorResponse": objectSchema("Error envelope.", openapi3.Schemas{
			"error": objectSchema("", openapi3.Schemas{
				"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
				"message": stringProp("Human readable message."),
				"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
			}, "code", "message"),
		}, "error"),

		"Message": objectSchema("Plain acknowledgement.", openapi3.Schemas{
			"message": stringProp(""),
		}, "message"),

		"Key": objectSchema("Download access key.", openapi3.Schemas{
			"key": stringProp("Key string, XXXX-XXXX-XXXX-XXXX for generated keys."),
			"status": &openapi3.SchemaRef{Value: &openapi3.Schema{
				Type: &openapi3.Types{"string"},
				Enum: []interface{}{"active", "revoked"},
			}},
			"created_at":  openapi3.NewDateTimeSchema().NewRef(),
			"last_used":   describe(openapi3.NewDateTimeSchema(), "Time of the last download."),
			"usage_count": int64Prop("Number of downloads made with the key."),
		}, "key", "status", "created_at", "usage_count"),

		"LogEntry": objectSchema("Audit log entry.", openapi3.Schemas{
			"id":       int64Prop(""),
			"ts":       openapi3.NewDateTimeSchema().NewRef(),
			"action":   stringProp("LOGIN_SUCCESS, LOGIN_FAIL, LOGIN_REVOKED, DOWNLOAD or an ADMIN_ action."),
			"key":      stringProp(""),
			"filename": stringProp(""),
			"detail":   stringProp("Action specific detail, such as the number of generated keys."),
			"ip":       stringProp("Client IP, or cli/mcp for operator actions."),
		}, "id", "ts", "action"),

		"KeyStats": objectSchema("Key counters.", openapi3.Schemas{
			"total":     int64Prop(""),
			"active":    int64Prop(""),
			"revoked":   int64Prop(""),
			"downloads": int64Prop("Sum of usage counts."),
		}, "total", "active", "revoked", "downloads"),

		"Home": objectSchema("Result of a key submission.", openapi3.Schemas{
			"status": &openapi3.SchemaRef{Value: &openapi3.Schema{
				Type: &openapi3.Types{"string"},
				Enum: []interface{}{"prompt", "granted"},
			}},
			"message": stringProp(""),
			"key":     stringProp("The key bound to the session."),
			"files":   arrayOf(openapi3.NewStringSchema().NewRef()),
		}, "status"),

		"AdminStatus": objectSchema("Admin session state.", openapi3.Schemas{
			"admin":   openapi3.NewBoolSchema().NewRef(),
			"enabled": describe(openapi3.NewBoolSchema(), "Whether an admin password is configured."),
			"message": stringProp(""),
		}, "admin", "enabled"),

		"Dashboard": objectSchema("Dashboard counters and recent activity.", openapi3.Schemas{
			"stats":     ref("KeyStats"),
			"logs":      arrayOf(ref("LogEntry")),
			"log_limit": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
		}, "stats", "logs"),

		"KeyList": objectSchema("Filtered key listing, newest first.", openapi3.Schemas{
			"resource": arrayOf(ref("Key")),
			"meta":     metaSchema(),
		}, "resource"),

		"KeyAction": objectSchema("Result of a status change.", openapi3.Schemas{
			"message": stringProp(""),
			"key":     stringProp(""),
			"status":  stringProp("Status the key was set to."),
		}, "message", "key", "status"),

		"KeyCreated": objectSchema("Result of adding a key.", openapi3.Schemas{
			"message": stringProp(""),
			"key":     ref("Key"),
		}, "message", "key"),

		"GenerateResult": objectSchema("Result of bulk generation.", openapi3.Schemas{
			"message": stringProp(""),
			"created": int64Prop("Number of keys created."),
		}, "message", "created"),

		"Health": objectSchema("Probe result.", openapi3.Schemas{
			"status": stringProp("ok or degraded."),
			"checks": &openapi3.SchemaRef{Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: openapi3.NewStringSchema().NewRef()},
			}},
		}, "status"),
	}
}

// metaSchema returns the schema for the "meta" field in list responses.
func metaSchema() *openapi3.SchemaRef {
	return objectSchema("", openapi3.Schemas{
		"count": &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type:        &openapi3.Types{"integer"},
			Format:      "int32",
			Description: "Number of keys returned.",
		}},
		"limit": &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type:        &openapi3.Types{"integer"},
			Format:      "int32",
			Description: "Maximum number of keys returned.",
		}},
	})
}
