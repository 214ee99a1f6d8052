package mcp

import (
	"context"
	"errors"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/keygate/keygate/internal/keys"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/store"
)

func (s *MCPServer) registerTools(srv *server.MCPServer) {
	srv.AddTool(mcp.NewTool("keygate_stats",
		mcp.WithDescription("Return the key store counters: total, active and revoked keys plus total downloads."),
		mcp.WithToolAnnotation(readOnlyAnnotation()),
	), s.handleStats)

	srv.AddTool(mcp.NewTool("keygate_search_keys",
		mcp.WithDescription("List access keys, newest first. "+
			"Filter by a case-insensitive substring of the key and/or by status. Both filters combine with AND."),
		mcp.WithToolAnnotation(readOnlyAnnotation()),
		mcp.WithString("q",
			mcp.Description("Substring of the key to match, case-insensitive"),
		),
		mcp.WithString("status",
			mcp.Description("Only keys with this status"),
			mcp.Enum(string(model.KeyActive), string(model.KeyRevoked)),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of keys to return (default 100, max 500)"),
		),
	), s.handleSearchKeys)

	srv.AddTool(mcp.NewTool("keygate_get_key",
		mcp.WithDescription("Return one access key with its status, creation time, last use and download count."),
		mcp.WithToolAnnotation(readOnlyAnnotation()),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("The access key, e.g. ABCD-1234-EFGH-5678"),
		),
	), s.handleGetKey)

	srv.AddTool(mcp.NewTool("keygate_recent_logs",
		mcp.WithDescription("Return the newest audit log entries, newest first."),
		mcp.WithToolAnnotation(readOnlyAnnotation()),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of entries (default 200, max 500)"),
		),
	), s.handleRecentLogs)

	srv.AddTool(mcp.NewTool("keygate_revoke_key",
		mcp.WithDescription("Revoke an access key. Revoking an unknown or already revoked key succeeds without change."),
		mcp.WithToolAnnotation(mutatingAnnotation(true)),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("The access key, e.g. ABCD-1234-EFGH-5678"),
		),
	), s.handleRevokeKey)

	srv.AddTool(mcp.NewTool("keygate_activate_key",
		mcp.WithDescription("Re-activate a revoked access key. Activating an unknown or already active key succeeds without change."),
		mcp.WithToolAnnotation(mutatingAnnotation(true)),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("The access key, e.g. ABCD-1234-EFGH-5678"),
		),
	), s.handleActivateKey)

	srv.AddTool(mcp.NewTool("keygate_add_key",
		mcp.WithDescription("Add a single active key. Omit key to have one generated."),
		mcp.WithToolAnnotation(mutatingAnnotation(false)),
		mcp.WithString("key",
			mcp.Description("Key to add (at most 64 characters). Empty generates a random key."),
		),
	), s.handleAddKey)

	srv.AddTool(mcp.NewTool("keygate_generate_keys",
		mcp.WithDescription("Generate new unique active keys in one transaction. The count is clamped to 1..100000."),
		mcp.WithToolAnnotation(mutatingAnnotation(false)),
		mcp.WithNumber("count",
			mcp.Description("Number of keys to create (default 1000)"),
		),
	), s.handleGenerateKeys)
}

func (s *MCPServer) handleStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.keys.Stats(ctx)
	if err != nil {
		return s.internalError("Failed to read key stats", err)
	}
	return successJSON(stats)
}

func (s *MCPServer) handleSearchKeys(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := model.KeyStatus(optionalString(request, "status"))
	if status != "" && !status.Valid() {
		return toolError("Invalid status %q: expected active or revoked", status)
	}

	filter := model.KeyFilter{
		Query:  optionalString(request, "q"),
		Status: status,
		Limit:  clamp(optionalInt(request, "limit", defaultSearchLimit), 1, store.MaxSearchResults),
	}
	found, err := s.keys.Search(ctx, filter)
	if err != nil {
		return s.internalError("Failed to search keys", err)
	}

	return successJSON(model.ListResponse{
		Resource: found,
		Meta:     &model.ResponseMeta{Count: len(found), Limit: filter.Limit},
	})
}

func (s *MCPServer) handleGetKey(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := requireString(request, "key")
	if err != nil {
		return toolError("%v", err)
	}
	k, err := s.keys.Get(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return toolError("Key not found")
	case err != nil:
		return s.internalError("Failed to read key", err)
	}
	return successJSON(k)
}

func (s *MCPServer) handleRecentLogs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := clamp(optionalInt(request, "limit", store.DefaultLogLimit), 1, store.MaxSearchResults)
	logs, err := s.keys.RecentLogs(ctx, limit)
	if err != nil {
		return s.internalError("Failed to read audit log", err)
	}
	return successJSON(model.ListResponse{
		Resource: logs,
		Meta:     &model.ResponseMeta{Count: len(logs), Limit: limit},
	})
}

func (s *MCPServer) handleRevokeKey(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.setStatus(ctx, request, model.KeyRevoked)
}

func (s *MCPServer) handleActivateKey(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.setStatus(ctx, request, model.KeyActive)
}

func (s *MCPServer) setStatus(ctx context.Context, request mcp.CallToolRequest, status model.KeyStatus) (*mcp.CallToolResult, error) {
	key, err := requireString(request, "key")
	if err != nil {
		return toolError("%v", err)
	}

	verb := "revoked"
	if status == model.KeyActive {
		err = s.keys.Activate(ctx, key, Origin)
		verb = "activated"
	} else {
		err = s.keys.Revoke(ctx, key, Origin)
	}
	switch {
	case errors.Is(err, service.ErrInvalidKey):
		return toolError("Invalid key %q", key)
	case err != nil:
		return s.internalError("Failed to update key", err)
	}

	normalized := keys.Normalize(key)
	return successJSON(keyResult{
		Message: "Key " + normalized + " " + verb,
		Key:     normalized,
		Status:  status,
	})
}

func (s *MCPServer) handleAddKey(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := optionalString(request, "key")
	k, err := s.keys.Add(ctx, raw, Origin)
	switch {
	case service.IsDuplicate(err):
		return toolError("Key already exists")
	case errors.Is(err, service.ErrInvalidKey):
		return toolError("Invalid key: at most %d characters", service.MaxKeyLength)
	case err != nil:
		return s.internalError("Failed to add key", err)
	}
	return successJSON(keyResult{
		Message: "Key added: " + k.Key,
		Key:     k.Key,
		Status:  k.Status,
	})
}

func (s *MCPServer) handleGenerateKeys(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	count := service.DefaultGenerate
	if args := request.GetArguments(); args != nil {
		if _, ok := args["count"]; ok {
			count = optionalInt(request, "count", service.DefaultGenerate)
		}
	}

	created, err := s.keys.Generate(ctx, count, Origin)
	if err != nil {
		return s.internalError("Failed to generate keys", err)
	}
	return successJSON(generateResult{
		Message: "Generated " + strconv.Itoa(created) + " keys",
		Created: created,
	})
}

type keyResult struct {
	Message string          `json:"message"`
	Key     string          `json:"key"`
	Status  model.KeyStatus `json:"status"`
}

type generateResult struct {
	Message string `json:"message"`
	Created int    `json:"created"`
}
