package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/semindex/internal/manager"
	"github.com/dshills/semindex/internal/vault"
)

const (
	// ServerName is the MCP server name
	ServerName = "semindex"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Options configures a Server.
type Options struct {
	Manager *manager.Manager
	// Vault converts absolute paths in tool arguments. Optional.
	Vault  *vault.FSVault
	Logger *zap.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	manager *manager.Manager
	vault   *vault.FSVault
	logger  *zap.Logger
}

// NewServer creates a new MCP server instance. The manager stays owned by
// the caller.
func NewServer(opts Options) (*Server, error) {
	if opts.Manager == nil {
		return nil, errors.New("mcp server requires a manager")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:     mcpServer,
		manager: opts.Manager,
		vault:   opts.Vault,
		logger:  logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// Serve answers MCP requests on stdio until ctx is done or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	return s.ServeIO(ctx, os.Stdin, os.Stdout)
}

// ServeIO answers MCP requests read from in, writing responses to out.
func (s *Server) ServeIO(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger.Named("mcp")))
	return stdio.Listen(ctx, in, out)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(processVaultTool(), s.handleProcessVault)
	s.mcp.AddTool(processFileTool(), s.handleProcessFile)
	s.mcp.AddTool(retryFailedFilesTool(), s.handleRetryFailedFiles)
	s.mcp.AddTool(forceRefreshTool(), s.handleForceRefresh)

	s.mcp.AddTool(searchSimilarTool(), s.handleSearchSimilar)
	s.mcp.AddTool(findSimilarTool(), s.handleFindSimilar)

	s.mcp.AddTool(getStatsTool(), s.handleGetStats)
	s.mcp.AddTool(listPendingFilesTool(), s.handleListPendingFiles)
	s.mcp.AddTool(getHealthTool(), s.handleGetHealth)
	s.mcp.AddTool(switchProviderTool(), s.handleSwitchProvider)
	return nil
}
