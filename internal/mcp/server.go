package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/keygate/keygate/internal/service"
)

// Origin is recorded as the client address of every audit entry written
// through the MCP tools.
const Origin = "mcp"

// MCPServer exposes key administration as MCP tools and resources so an
// agent can inspect the key store and revoke, activate, add or generate keys.
type MCPServer struct {
	keys   *service.KeyService
	logger *slog.Logger
	server *server.MCPServer
}

// NewMCPServer creates an MCPServer with every keygate tool and resource
// registered. A nil logger means slog.Default().
func NewMCPServer(keys *service.KeyService, version string, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}
	s := &MCPServer{
		keys:   keys,
		logger: logger,
	}

	mcpServer := server.NewMCPServer(
		"Keygate",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go server.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

// Status changes are idempotent; adding and generating keys are not.
func mutatingAnnotation(idempotent bool) mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:    boolPtr(false),
		DestructiveHint: boolPtr(false),
		IdempotentHint:  boolPtr(idempotent),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
