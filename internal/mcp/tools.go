package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/manager"
	"github.com/dshills/semindex/internal/searcher"
	"github.com/dshills/semindex/internal/vault"
	"github.com/dshills/semindex/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams  = -32602 // Invalid method parameters
	ErrorCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrorCodeRunInProgress  = -32002 // Another processing run holds the gate
	ErrorCodeNotIndexed     = -32003 // Document has no usable vectors
	ErrorCodeEmptyQuery     = -32004 // Query parameter is empty
	ErrorCodeCoolingDown    = -32005 // Scope is waiting out a provider failure
	ErrorCodeProviderFailed = -32006 // Embedding provider rejected the request
)

func (s *Server) handleProcessVault(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.runTool(ctx, "process_vault", s.manager.ProcessVault)
}

func (s *Server) handleRetryFailedFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.runTool(ctx, "retry_failed_files", s.manager.RetryFailedFiles)
}

func (s *Server) handleForceRefresh(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.runTool(ctx, "force_refresh", s.manager.ForceRefreshCurrentNamespace)
}

func (s *Server) handleProcessFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	path, err := s.pathArg(args)
	if err != nil {
		return nil, err
	}
	return s.runTool(ctx, "process_file", func(ctx context.Context) (*manager.RunReport, error) {
		return s.manager.ProcessFile(ctx, path)
	})
}

// runTool executes a processing run and formats its report.
func (s *Server) runTool(ctx context.Context, name string, fn func(context.Context) (*manager.RunReport, error)) (*mcp.CallToolResult, error) {
	report, err := fn(ctx)
	if err != nil {
		return nil, s.toolError(name, err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"request_id": uuid.NewString(),
		"summary":    report.Summary(),
		"report":     report,
	})), nil
}

func (s *Server) handleSearchSimilar(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}
	limit, err := limitArg(args)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := s.manager.SearchSimilar(ctx, query, limit)
	if err != nil {
		return nil, s.toolError("search_similar", err)
	}
	return mcp.NewToolResultText(formatJSON(searchResponse(query, results, time.Since(start)))), nil
}

func (s *Server) handleFindSimilar(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	path, err := s.pathArg(args)
	if err != nil {
		return nil, err
	}
	limit, err := limitArg(args)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := s.manager.FindSimilar(ctx, path, limit)
	if err != nil {
		return nil, s.toolError("find_similar", err)
	}
	resp := searchResponse("", results, time.Since(start))
	resp["path"] = path
	return mcp.NewToolResultText(formatJSON(resp)), nil
}

func searchResponse(query string, results []types.SearchResult, took time.Duration) map[string]interface{} {
	resp := map[string]interface{}{
		"request_id":  uuid.NewString(),
		"results":     results,
		"total":       len(results),
		"duration_ms": took.Milliseconds(),
	}
	if query != "" {
		resp["query"] = query
	}
	return resp
}

func (s *Server) handleGetStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.manager.GetStats(ctx)
	if err != nil {
		return nil, s.toolError("get_stats", err)
	}
	return mcp.NewToolResultText(formatJSON(stats)), nil
}

func (s *Server) handleListPendingFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	limit := getIntDefault(args, "limit", 0)
	if limit < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit cannot be negative", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	pending, err := s.manager.ListPendingFiles(ctx)
	if err != nil {
		return nil, s.toolError("list_pending_files", err)
	}
	total := len(pending)
	if limit > 0 && total > limit {
		pending = pending[:limit]
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"files": pending,
		"total": total,
	})), nil
}

func (s *Server) handleGetHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(formatJSON(s.manager.GetHealthSnapshot())), nil
}

func (s *Server) handleSwitchProvider(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	provider := strings.ToLower(getStringDefault(args, "provider", ""))
	switch provider {
	case embedder.ProviderLocal, embedder.ProviderOpenAI, embedder.ProviderJina:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "unsupported provider", map[string]interface{}{
			"param":   "provider",
			"value":   provider,
			"allowed": []string{embedder.ProviderLocal, embedder.ProviderOpenAI, embedder.ProviderJina},
		})
	}
	dimensions := getIntDefault(args, "dimensions", 0)
	if dimensions < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "dimensions cannot be negative", map[string]interface{}{
			"param": "dimensions",
			"value": dimensions,
		})
	}

	cfg := embedder.Config{
		Provider:   provider,
		Model:      getStringDefault(args, "model", ""),
		Dimensions: dimensions,
		CacheSize:  10000,
	}
	if err := s.manager.SwitchProvider(ctx, cfg); err != nil {
		return nil, s.toolError("switch_provider", err)
	}

	resp := map[string]interface{}{"provider": provider}
	if ns, err := s.manager.Namespace(ctx); err == nil {
		resp["namespace"] = ns.String()
	}
	if stats, err := s.manager.GetStats(ctx); err == nil {
		resp["needs_processing"] = stats.NeedsProcessing
		resp["total"] = stats.Total
	}
	return mcp.NewToolResultText(formatJSON(resp)), nil
}

// Helper functions

// toolError maps manager errors onto MCP error codes.
func (s *Server) toolError(tool string, err error) error {
	var cooldown *manager.CooldownError
	var pe *embedder.ProviderError

	switch {
	case errors.Is(err, manager.ErrRunInProgress):
		return newMCPError(ErrorCodeRunInProgress, "a processing run is already in progress", nil)
	case errors.As(err, &cooldown):
		return newMCPError(ErrorCodeCoolingDown, cooldown.Error(), map[string]interface{}{
			"scope":               cooldown.Scope,
			"code":                cooldown.Code,
			"retry_after_seconds": int(cooldown.Remaining.Seconds()),
			"until":               cooldown.Until.Format(time.RFC3339),
		})
	case errors.Is(err, manager.ErrNotIndexed):
		return newMCPError(ErrorCodeNotIndexed, "document is not indexed; process it first", nil)
	case errors.Is(err, manager.ErrEmptyQuery):
		return newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", nil)
	case errors.Is(err, vault.ErrOutsideVault), errors.Is(err, vault.ErrNotDocument), errors.Is(err, embedder.ErrUnsupportedModel):
		return newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	case errors.As(err, &pe):
		s.logger.Warn("provider error", zap.String("tool", tool), zap.Error(err))
		return newMCPError(ErrorCodeProviderFailed, "embedding provider failed", map[string]interface{}{
			"code":      pe.Code,
			"status":    pe.Status,
			"retryable": pe.Transient,
			"error":     pe.Error(),
		})
	default:
		s.logger.Error("tool failed", zap.String("tool", tool), zap.Error(err))
		return newMCPError(ErrorCodeInternalError, tool+" failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// pathArg reads the path argument as a vault-relative path.
func (s *Server) pathArg(args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok || strings.TrimSpace(path) == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if filepath.IsAbs(path) {
		if s.vault == nil {
			return "", newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
				"param":  "path",
				"reason": "absolute paths are not supported",
			})
		}
		rel, err := s.vault.Rel(path)
		if err != nil {
			return "", newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
				"param":  "path",
				"reason": err.Error(),
			})
		}
		return rel, nil
	}
	return vault.Clean(path), nil
}

func limitArg(args map[string]interface{}) (int, error) {
	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return 0, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", searcher.MaxLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}
	return limit, nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
