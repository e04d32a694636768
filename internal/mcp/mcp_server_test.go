package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/huangsam/digitaldiary/internal/contract"
	"github.com/huangsam/digitaldiary/internal/iocache"
	mcp_internal "github.com/huangsam/digitaldiary/internal/mcp"
	"github.com/huangsam/digitaldiary/schema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *contract.Config {
	origin, err := url.Parse("http://localhost:8080/")
	require.NoError(t, err)
	return &contract.Config{
		CacheBackend: schema.MemoryBackend,
		CachePrefix:  "digital-diary",
		CacheVersion: "v3",
		Manifest:     []string{"./", "./index.html"},
		Origin:       origin,
	}
}

func seededManager(t *testing.T) *iocache.MockCacheManager {
	store := iocache.NewMemoryStorage()
	ctx := context.Background()
	entries := func(urls ...string) []schema.CachedEntry {
		var out []schema.CachedEntry
		for _, u := range urls {
			out = append(out, schema.CachedEntry{Method: "GET", URL: u, Status: 200, Body: []byte("<html>")})
		}
		return out
	}
	require.NoError(t, store.PutAll(ctx, "digital-diary-v2", entries("http://localhost:8080/")))
	require.NoError(t, store.PutAll(ctx, "digital-diary-v3", entries("http://localhost:8080/", "http://localhost:8080/index.html")))

	mgr := &iocache.MockCacheManager{}
	mgr.On("GetCacheStorage").Return(store)
	return mgr
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	tool := s.GetTool(name)
	require.NotNil(t, tool, "Tool %s should exist", name)
	res, err := tool.Handler(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	require.NoError(t, err, "The MCP handler should not return a raw error for tool logic failures")
	require.NotNil(t, res)
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestMCPServerCacheTools(t *testing.T) {
	s := mcp_internal.NewMCPServer(testConfig(t), seededManager(t))

	t.Run("get_cache_status", func(t *testing.T) {
		res := callTool(t, s, "get_cache_status", nil)
		require.False(t, res.IsError)
		var status schema.CacheStatus
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &status))
		assert.Equal(t, "memory", status.Backend)
		assert.Equal(t, 2, status.Generations)
		assert.Equal(t, 3, status.TotalEntries)
	})

	t.Run("list_generations marks current", func(t *testing.T) {
		res := callTool(t, s, "list_generations", nil)
		require.False(t, res.IsError)
		var generations []schema.GenerationInfo
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &generations))
		require.Len(t, generations, 2)
		assert.False(t, generations[0].Current)
		assert.Equal(t, "digital-diary-v3", generations[1].Name)
		assert.True(t, generations[1].Current)
	})

	t.Run("list_entries defaults to current", func(t *testing.T) {
		res := callTool(t, s, "list_entries", map[string]any{"limit": 1.0})
		require.False(t, res.IsError)
		var infos []schema.EntryInfo
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &infos))
		require.Len(t, infos, 1)
		assert.Equal(t, "digital-diary-v3", infos[0].Generation)
	})

	t.Run("list_entries negative limit", func(t *testing.T) {
		res := callTool(t, s, "list_entries", map[string]any{"limit": -1.0})
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(t, res), "limit must not be negative")
	})

	t.Run("check_manifest complete", func(t *testing.T) {
		res := callTool(t, s, "check_manifest", nil)
		require.False(t, res.IsError)
		assert.Contains(t, resultText(t, res), `"complete": true`)
	})

	t.Run("check_manifest older version", func(t *testing.T) {
		res := callTool(t, s, "check_manifest", map[string]any{"version": "v2"})
		require.False(t, res.IsError)
		text := resultText(t, res)
		assert.Contains(t, text, `"complete": false`)
		assert.Contains(t, text, "http://localhost:8080/index.html")
	})
}

func TestMCPServerHandlers_StoreErrors(t *testing.T) {
	t.Run("no manager", func(t *testing.T) {
		s := mcp_internal.NewMCPServer(testConfig(t), nil)
		res := callTool(t, s, "get_cache_status", nil)
		assert.True(t, res.IsError, "The response should indicate an error state")
		assert.Contains(t, resultText(t, res), "cache store is not initialized")
	})

	t.Run("store failure", func(t *testing.T) {
		store := &iocache.MockCacheStorage{}
		store.On("Generations", mock.Anything).Return(nil, errors.New("connection reset"))
		mgr := &iocache.MockCacheManager{}
		mgr.On("GetCacheStorage").Return(store)

		s := mcp_internal.NewMCPServer(testConfig(t), mgr)
		res := callTool(t, s, "list_generations", nil)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(t, res), "connection reset")
		store.AssertExpectations(t)
	})

	t.Run("invalid manifest", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Manifest = []string{"https://cdn.example.com/app.js"}
		s := mcp_internal.NewMCPServer(cfg, seededManager(t))
		res := callTool(t, s, "check_manifest", nil)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(t, res), "must be relative")
	})
}
