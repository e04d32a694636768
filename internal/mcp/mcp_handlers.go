package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/huangsam/digitaldiary/core"
	"github.com/huangsam/digitaldiary/internal/contract"
	"github.com/huangsam/digitaldiary/schema"
	"github.com/mark3labs/mcp-go/mcp"
)

var errNoStore = errors.New("cache store is not initialized")

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	baseCfg *contract.Config
	mgr     contract.CacheManager
}

// manifestReport is the result of check_manifest.
type manifestReport struct {
	Generation string   `json:"generation"`
	Assets     int      `json:"assets"`
	Complete   bool     `json:"complete"`
	Missing    []string `json:"missing"`
}

func (h *toolHandler) store() (contract.CacheStorage, error) {
	if h.mgr == nil {
		return nil, errNoStore
	}
	store := h.mgr.GetCacheStorage()
	if store == nil {
		return nil, errNoStore
	}
	return store, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	jsonData, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(jsonData))
}

func (h *toolHandler) handleGetCacheStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store, err := h.store()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	status, err := store.GetStatus(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status failed: %v", err)), nil
	}
	return jsonResult(status), nil
}

func (h *toolHandler) handleListGenerations(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store, err := h.store()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	generations, err := store.Generations(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing generations failed: %v", err)), nil
	}
	current := h.baseCfg.CacheName()
	for i := range generations {
		generations[i].Current = generations[i].Name == current
	}
	return jsonResult(generations), nil
}

func (h *toolHandler) handleListEntries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store, err := h.store()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	generation := request.GetString("generation", "")
	if generation == "" {
		generation = h.baseCfg.CacheName()
	}
	limit := request.GetInt("limit", 0)
	if limit < 0 {
		return mcp.NewToolResultError("limit must not be negative"), nil
	}

	entries, err := store.Entries(ctx, generation)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing entries failed: %v", err)), nil
	}
	infos := make([]schema.EntryInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.Info())
	}
	if limit > 0 && len(infos) > limit {
		infos = infos[:limit]
	}
	return jsonResult(infos), nil
}

func (h *toolHandler) handleCheckManifest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store, err := h.store()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cfg := h.baseCfg.Clone()
	if v := request.GetString("version", ""); v != "" {
		cfg.CacheVersion = v
	}
	manifest := core.DefaultManifest
	if len(cfg.Manifest) > 0 {
		manifest = core.Manifest(cfg.Manifest)
	}

	w, err := core.NewWorker(core.WorkerConfig{
		Prefix:   cfg.CachePrefix,
		Version:  cfg.CacheVersion,
		Manifest: manifest,
		Origin:   cfg.Origin,
	}, store, core.NewHTTPFetcher(10*time.Second))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid manifest parameters: %v", err)), nil
	}

	missing, err := w.Missing(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("manifest check failed: %v", err)), nil
	}
	return jsonResult(manifestReport{
		Generation: w.CacheName(),
		Assets:     len(w.Assets()),
		Complete:   len(missing) == 0,
		Missing:    missing,
	}), nil
}
