package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/semindex/pkg/types"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search notes by meaning",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		return withApp(cmd, nil, func(ctx context.Context, a *app) error {
			results, err := a.manager.SearchSimilar(ctx, query, searchLimit)
			if err != nil {
				return err
			}
			return printResults(cmd, results)
		})
	},
}

var similarCmd = &cobra.Command{
	Use:   "similar [note]",
	Short: "List notes related to an indexed note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, nil, func(ctx context.Context, a *app) error {
			path, err := notePath(a, args[0])
			if err != nil {
				return err
			}
			results, err := a.manager.FindSimilar(ctx, path, searchLimit)
			if err != nil {
				return err
			}
			return printResults(cmd, results)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, similarCmd} {
		c.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
		c.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
		rootCmd.AddCommand(c)
	}
}

func printResults(cmd *cobra.Command, results []types.SearchResult) error {
	if searchJSON {
		return printJSON(cmd, results)
	}
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for _, r := range results {
		title := r.Title
		if title == "" {
			title = r.Path
		}
		cmd.Printf("  [%d] %s (%.3f)\n", r.Rank, title, r.Score)
		cmd.Printf("      %s\n", r.Path)
		if r.Excerpt != "" {
			cmd.Printf("      %s\n", oneLine(r.Excerpt, 120))
		}
	}
	return nil
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max]) + "..."
	}
	return s
}
