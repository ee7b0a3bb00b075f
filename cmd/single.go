package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/report"
)

func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape <url>",
		Short: "Extract the content of a single page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSingle(cmd, func(ctx context.Context, ops Operations) (crawler.Result, error) {
				return ops.Scrape(ctx, args[0])
			})
		},
	}
}

func newMapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "map <url>",
		Short: "List the visible and hidden addresses on a single page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSingle(cmd, func(ctx context.Context, ops Operations) (crawler.Result, error) {
				return ops.Map(ctx, args[0])
			})
		},
	}
}

func newSearchCmd() *cobra.Command {
	var maxResults int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the web and fetch the content of each hit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSingle(cmd, func(ctx context.Context, ops Operations) (crawler.Result, error) {
				return ops.Search(ctx, query, maxResults)
			})
		},
	}
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "number of hits to return (0 uses the config)")
	return cmd
}

// runSingle builds the operations, runs one of them and prints its JSON.
func runSingle(cmd *cobra.Command, run func(context.Context, Operations) (crawler.Result, error)) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	ops, err := newOperations(cmd.Context(), e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer ops.Close(cmd.Context())

	res, err := run(cmd.Context(), ops)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	return report.WriteJSON(cmd.OutOrStdout(), res)
}
