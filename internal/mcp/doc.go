// Package mcp implements the Model Context Protocol (MCP) server for semindex.
//
// The server exposes the index manager to MCP clients as tools:
//   - process_vault: Embed every new, modified or incomplete note
//   - process_file: Bring one note up to date
//   - retry_failed_files: Reprocess the failed-files ledger
//   - force_refresh: Drop and rebuild the current namespace
//   - search_similar: Search notes with a natural language query
//   - find_similar: Find notes related to an indexed note
//   - get_stats: Count notes by processing state
//   - list_pending_files: List notes waiting for processing
//   - get_health: Provider health and cooldowns
//   - switch_provider: Change the embedding provider
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout carries the protocol, so the server logs to stderr only.
//
// # Tool: search_similar
//
//	Request:
//	{
//	  "name": "search_similar",
//	  "arguments": {"query": "database migration checklist", "limit": 5}
//	}
//
//	Response:
//	{
//	  "request_id": "0f6c3d0e-...",
//	  "query": "database migration checklist",
//	  "results": [
//	    {"path": "ops/db.md", "title": "Database", "score": 0.83, "rawScore": 0.71, "rank": 1}
//	  ],
//	  "total": 1,
//	  "duration_ms": 12
//	}
//
// Processing tools answer with the run report and a one-line summary:
//
//	{
//	  "request_id": "...",
//	  "summary": "partial success: 41 processed, 1 failed; retry failed files to try again",
//	  "report": {"status": "partial", "processed": 41, "failed": 1, ...}
//	}
//
// # Error Handling
//
// Errors are returned as MCPError values:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32002: A processing run is in progress
//   - -32003: Document not indexed
//   - -32004: Empty query
//   - -32005: Scope cooling down after a provider failure; data carries retry_after_seconds
//   - -32006: Embedding provider failed
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "semindex": {
//	      "command": "/usr/local/bin/semindex",
//	      "args": ["serve", "--vault", "/path/to/vault"],
//	      "env": {
//	        "JINA_API_KEY": "your-api-key"
//	      }
//	    }
//	  }
//	}
package mcp
