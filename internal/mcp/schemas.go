package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/searcher"
)

func noArgs() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}}
}

func limitProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Maximum number of documents to return (1-100)",
		"default":     searcher.DefaultLimit,
		"minimum":     1,
		"maximum":     searcher.MaxLimit,
	}
}

func processVaultTool() mcp.Tool {
	return mcp.Tool{
		Name:        "process_vault",
		Description: "Embed every vault note that is new, modified, incomplete or indexed under another model. Unchanged notes are skipped.",
		InputSchema: noArgs(),
	}
}

func processFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "process_file",
		Description: "Bring one note up to date. A deleted or excluded note has its vectors removed.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Note path relative to the vault root, or an absolute path inside the vault",
				},
			},
			Required: []string{"path"},
		},
	}
}

func retryFailedFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "retry_failed_files",
		Description: "Reprocess every note in the failed-files ledger, ignoring processing cooldowns",
		InputSchema: noArgs(),
	}
}

func forceRefreshTool() mcp.Tool {
	return mcp.Tool{
		Name:        "force_refresh",
		Description: "Delete all vectors of the current provider and model, then embed the whole vault again",
		InputSchema: noArgs(),
	}
}

func searchSimilarTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_similar",
		Description: "Find notes semantically related to a natural language query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"limit": limitProperty(),
			},
			Required: []string{"query"},
		},
	}
}

func findSimilarTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_similar",
		Description: "Find notes related to an indexed note. The note itself is never returned.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Note path relative to the vault root, or an absolute path inside the vault",
				},
				"limit": limitProperty(),
			},
			Required: []string{"path"},
		},
	}
}

func getStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_stats",
		Description: "Count vault notes by processing state for the current namespace",
		InputSchema: noArgs(),
	}
}

func listPendingFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_pending_files",
		Description: "List notes that need processing or failed, with the recorded failure details",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of entries to return (0 for all)",
					"default":     0,
					"minimum":     0,
				},
			},
		},
	}
}

func getHealthTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_health",
		Description: "Report provider health, cooldowns and pending file events without calling the provider",
		InputSchema: noArgs(),
	}
}

func switchProviderTool() mcp.Tool {
	return mcp.Tool{
		Name:        "switch_provider",
		Description: "Switch the embedding provider. Stored vectors are kept; notes indexed under another model show as needing processing.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"provider": map[string]interface{}{
					"type":        "string",
					"description": "Embedding provider",
					"enum":        []string{embedder.ProviderLocal, embedder.ProviderOpenAI, embedder.ProviderJina},
				},
				"model": map[string]interface{}{
					"type":        "string",
					"description": "Model id, empty for the provider default",
				},
				"dimensions": map[string]interface{}{
					"type":        "integer",
					"description": "Requested output dimension, 0 for the model default",
					"minimum":     0,
				},
			},
			Required: []string{"provider"},
		},
	}
}
