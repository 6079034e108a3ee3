package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/semindex/internal/mcp"
	"github.com/dshills/semindex/internal/vault"
)

var serveNoWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Start the Model Context Protocol server. Requests are read from stdin and
responses written to stdout; logs go to stderr.

Unless --no-watch is given (or vault.watch is false), file changes in the
vault are followed and re-embedded after a short quiet period.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "do not follow file changes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !serveNoWatch && a.cfg.Vault.WatchOrDefault() {
		w := vault.NewWatcher(a.vault, a.manager, a.logger)
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	server, err := mcp.NewServer(mcp.Options{Manager: a.manager, Vault: a.vault, Logger: a.logger})
	if err != nil {
		return err
	}

	a.logger.Info("MCP server ready, listening on stdio", zap.String("version", version))
	if err := server.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	a.logger.Info("server stopped")
	return nil
}
