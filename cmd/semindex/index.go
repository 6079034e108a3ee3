package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/semindex/internal/indexer"
	"github.com/dshills/semindex/internal/manager"
)

var (
	indexJSON     bool
	indexProgress bool
)

var indexCmd = &cobra.Command{
	Use:   "index [file...]",
	Short: "Embed new and modified notes",
	Long: `Without arguments, brings the whole vault up to date. With file arguments,
processes only those notes; deleted or excluded notes have their vectors removed.`,
	RunE: runIndex,
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Reprocess notes in the failed-files ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runReport(cmd, func(ctx context.Context, m *manager.Manager) (*manager.RunReport, error) {
			return m.RetryFailedFiles(ctx)
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Delete the vectors of the current model and embed the vault again",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runReport(cmd, func(ctx context.Context, m *manager.Manager) (*manager.RunReport, error) {
			return m.ForceRefreshCurrentNamespace(ctx)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{indexCmd, retryCmd, refreshCmd} {
		c.Flags().BoolVar(&indexJSON, "json", false, "print the run report as JSON")
		c.Flags().BoolVar(&indexProgress, "progress", true, "show a progress bar on terminals")
		rootCmd.AddCommand(c)
	}
}

func runIndex(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return runReport(cmd, func(ctx context.Context, m *manager.Manager) (*manager.RunReport, error) {
			return m.ProcessVault(ctx)
		})
	}
	return withApp(cmd, newProgress(indexProgress), func(ctx context.Context, a *app) error {
		for _, arg := range args {
			path, err := notePath(a, arg)
			if err != nil {
				return err
			}
			report, err := a.manager.ProcessFile(ctx, path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if err := printReport(cmd, report); err != nil {
				return err
			}
		}
		return nil
	})
}

func runReport(cmd *cobra.Command, fn func(context.Context, *manager.Manager) (*manager.RunReport, error)) error {
	return withApp(cmd, newProgress(indexProgress), func(ctx context.Context, a *app) error {
		report, err := fn(ctx, a.manager)
		if err != nil {
			return err
		}
		return printReport(cmd, report)
	})
}

func printReport(cmd *cobra.Command, report *manager.RunReport) error {
	if indexJSON {
		return printJSON(cmd, report)
	}
	cmd.Println(report.Summary())
	for _, f := range report.Failures {
		cmd.Printf("  %s: %s %s\n", f.Path, f.Code, f.Message)
	}
	if !report.CooldownUntil.IsZero() {
		cmd.Printf("provider cooling down until %s\n", report.CooldownUntil.Format("15:04:05"))
	}
	return nil
}

// withApp builds the app, runs fn and closes everything afterwards.
func withApp(cmd *cobra.Command, progress indexer.Progress, fn func(context.Context, *app) error) error {
	a, err := newApp(progress)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
