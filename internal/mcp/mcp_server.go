// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/huangsam/digitaldiary/internal/contract"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer initializes and configures the diary cache MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(baseCfg *contract.Config, mgr contract.CacheManager) *server.MCPServer {
	s := server.NewMCPServer(
		"Digital Diary Cache Server",
		"1.0.0",
		server.WithLogging(),
	)

	h := &toolHandler{
		baseCfg: baseCfg,
		mgr:     mgr,
	}

	// --- 1. Tool: get_cache_status ---
	s.AddTool(mcp.NewTool("get_cache_status",
		mcp.WithDescription("Report the backend, generation count and entry totals of the offline cache store."),
	), h.handleGetCacheStatus)

	// --- 2. Tool: list_generations ---
	s.AddTool(mcp.NewTool("list_generations",
		mcp.WithDescription("List every cache generation with its size and whether it is the current one."),
	), h.handleListGenerations)

	// --- 3. Tool: list_entries ---
	s.AddTool(mcp.NewTool("list_entries",
		mcp.WithDescription("List the cached responses of one generation (metadata only, no bodies)."),
		mcp.WithString("generation", mcp.Description("Generation name such as 'digital-diary-v3'. Defaults to the current generation.")),
		mcp.WithNumber("limit", mcp.Description("Limit the number of entries returned.")),
	), h.handleListEntries)

	// --- 4. Tool: check_manifest ---
	s.AddTool(mcp.NewTool("check_manifest",
		mcp.WithDescription("Check whether every asset of the app manifest is cached in a generation."),
		mcp.WithString("version", mcp.Description("Version tag to check (e.g., 'v3'). Defaults to the configured version.")),
	), h.handleCheckManifest)

	return s
}

// StartMCPServer starts the diary cache MCP server over stdio.
func StartMCPServer(_ context.Context, baseCfg *contract.Config, mgr contract.CacheManager) error {
	s := NewMCPServer(baseCfg, mgr)
	return server.ServeStdio(s)
}
