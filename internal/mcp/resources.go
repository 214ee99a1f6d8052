package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/keygate/keygate/internal/store"
)

const (
	statsURI = "keygate://stats"
	logsURI  = "keygate://logs"
)

func (s *MCPServer) registerResources(srv *server.MCPServer) {
	srv.AddResource(
		mcp.NewResource(
			statsURI,
			"Key statistics",
			mcp.WithResourceDescription("Total, active and revoked key counts plus total downloads"),
			mcp.WithMIMEType("application/json"),
		),
		s.handleStatsResource,
	)

	srv.AddResource(
		mcp.NewResource(
			logsURI,
			"Audit log",
			mcp.WithResourceDescription(fmt.Sprintf("The %d newest audit log entries", store.DefaultLogLimit)),
			mcp.WithMIMEType("application/json"),
		),
		s.handleLogsResource,
	)
}

func (s *MCPServer) handleStatsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stats, err := s.keys.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read key stats: %w", err)
	}
	return jsonContents(statsURI, stats)
}

func (s *MCPServer) handleLogsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	logs, err := s.keys.RecentLogs(ctx, store.DefaultLogLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return jsonContents(logsURI, logs)
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
