// Package cmd defines and implements the CLI commands for the sitecrawler
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/config"
	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/logging"
	"github.com/JakeFAU/sitecrawler/internal/server"
)

// Operations is what the one-shot commands run against. *server.Operations
// satisfies it.
type Operations interface {
	Crawl(ctx context.Context, req crawler.CrawlRequest) (*crawler.CrawlReport, error)
	Scrape(ctx context.Context, rawURL string) (*crawler.ScrapeResult, error)
	Map(ctx context.Context, rawURL string) (*crawler.MapResult, error)
	Search(ctx context.Context, query string, maxResults int) (*crawler.SearchResult, error)
	Close(ctx context.Context)
}

// newOperations is the operations factory. It's a variable so tests can
// inject fakes.
var newOperations = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Operations, error) {
	ops, err := server.NewOperations(ctx, cfg, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("build operations: %w", err)
	}
	return ops, nil
}

// env is the loaded configuration and logger shared by subcommands.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

type envKeyType struct{}

var envKey envKeyType

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "sitecrawler",
		Short: "Scrape, map, crawl and search websites.",
		Long: `sitecrawler fetches web pages and turns them into structured JSON:
single-page scrapes and address maps, bounded same-site crawls with an
aggregate report, and web searches enriched with the content of each hit.
It runs one-shot from the command line or as an HTTP service.`,
		SilenceUsage: true,

		// Runs before every subcommand so each one gets the same config and logger.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &env{cfg: cfg, logger: logger}))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, ok := cmd.Context().Value(envKey).(*env); ok {
				_ = e.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newMapCmd())
	cmd.AddCommand(newSearchCmd())
	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("configuration not loaded")
	}
	return e, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		zap.L().Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
