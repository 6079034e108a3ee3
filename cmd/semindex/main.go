// Command semindex keeps a semantic index of a markdown vault and serves it
// over MCP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configPath string
	vaultFlag  string
	dbFlag     string
	debugFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "semindex",
	Short: "Incremental semantic index for markdown vaults",
	Long: `semindex embeds the notes of a markdown vault into a local SQLite store
and answers similarity queries over them. Unchanged notes are never embedded
twice, and switching the embedding provider keeps existing vectors.

Run "semindex serve" to expose the index to MCP clients on stdio.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", os.Getenv("SEMINDEX_CONFIG"), "path to a YAML config file")
	flags.StringVar(&vaultFlag, "vault", "", "vault directory (overrides config and SEMINDEX_VAULT)")
	flags.StringVar(&dbFlag, "db", "", "database file (overrides config and SEMINDEX_DB_PATH)")
	flags.BoolVar(&debugFlag, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
