package main

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/semindex/internal/health"
	"github.com/dshills/semindex/internal/storage"
	"github.com/dshills/semindex/pkg/types"
)

var statusJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count notes by processing state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, nil, func(ctx context.Context, a *app) error {
			stats, err := a.manager.GetStats(ctx)
			if err != nil {
				return err
			}
			if statusJSON {
				return printJSON(cmd, stats)
			}
			cmd.Printf("namespace:        %s\n", stats.Namespace)
			cmd.Printf("notes:            %d\n", stats.Total)
			cmd.Printf("up to date:       %d\n", stats.UpToDate)
			cmd.Printf("needs processing: %d\n", stats.NeedsProcessing)
			cmd.Printf("empty:            %d\n", stats.Empty)
			cmd.Printf("failed:           %d\n", stats.Failed)
			cmd.Printf("vectors:          %d (%d stored in all namespaces)\n", stats.Vectors, stats.StoredVectors)
			states := make([]string, 0, len(stats.States))
			for s := range stats.States {
				states = append(states, string(s))
			}
			sort.Strings(states)
			for _, s := range states {
				cmd.Printf("  %-17s %d\n", s+":", stats.States[types.DocumentState(s)])
			}
			return nil
		})
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List notes waiting for processing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, nil, func(ctx context.Context, a *app) error {
			pending, err := a.manager.ListPendingFiles(ctx)
			if err != nil {
				return err
			}
			if statusJSON {
				return printJSON(cmd, pending)
			}
			if len(pending) == 0 {
				cmd.Println("Nothing pending.")
				return nil
			}
			for _, p := range pending {
				cmd.Printf("  %-16s %s", p.State, p.Path)
				if p.Code != "" {
					cmd.Printf("  [%s] %s", p.Code, p.Message)
				}
				cmd.Println()
			}
			return nil
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show provider health and cooldowns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, nil, func(ctx context.Context, a *app) error {
			snap := a.manager.GetHealthSnapshot()
			if statusJSON {
				return printJSON(cmd, snap)
			}
			cmd.Printf("provider: %s (%s)\n", snap.Provider, snap.Model)
			if snap.Namespace != "" {
				cmd.Printf("namespace: %s\n", snap.Namespace)
			}
			for _, scope := range health.Scopes {
				st := snap.Scopes[scope]
				cmd.Printf("  %-6s %-9s failures=%d", scope, st.Status, st.Health.ConsecutiveFailures)
				if st.Remaining > 0 {
					cmd.Printf(" cooldown=%s (%s)", st.Remaining.Round(time.Second), st.CooldownCode)
				}
				cmd.Println()
			}
			return nil
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("semindex %s\n", version)
		cmd.Printf("Build Time: %s\n", buildTime)
		cmd.Printf("Build Mode: %s\n", storage.BuildMode)
		cmd.Printf("SQLite Driver: %s\n", storage.DriverName)
	},
}

func init() {
	for _, c := range []*cobra.Command{statsCmd, pendingCmd, healthCmd} {
		c.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(versionCmd)
}

// notePath accepts a vault-relative path or an absolute path inside the vault.
func notePath(a *app, arg string) (string, error) {
	if filepath.IsAbs(arg) {
		return a.vault.Rel(arg)
	}
	return arg, nil
}
