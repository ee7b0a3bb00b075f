package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/report"
)

type crawlOptions struct {
	maxDepth    int
	maxPages    int
	sameOrigin  bool
	concurrency int
	format      string
	out         string
}

func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl a site breadth-first and print the report",
		Long: `Crawls outward from the start address, breadth-first, within the depth
and page budgets, and prints the aggregate report as JSON or Markdown.
Omitted flags fall back to the configured crawler defaults.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, opts, args[0])
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&opts.maxDepth, "max-depth", crawler.DefaultMaxDepth, "maximum link depth from the start page")
	flags.IntVar(&opts.maxPages, "max-pages", crawler.DefaultMaxPages, "maximum number of pages to fetch")
	flags.BoolVar(&opts.sameOrigin, "same-origin", crawler.DefaultSameOriginOnly, "only follow links on the start host")
	flags.IntVar(&opts.concurrency, "concurrency", 0, "pages fetched in parallel (0 uses the config)")
	flags.StringVar(&opts.format, "format", report.FormatJSON, "output format: json or markdown")
	flags.StringVarP(&opts.out, "out", "o", "", "write the report to this file instead of stdout")
	return cmd
}

func runCrawl(cmd *cobra.Command, opts *crawlOptions, startURL string) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	cfg := e.cfg
	flags := cmd.Flags()
	req := crawler.CrawlRequest{
		StartURL:       startURL,
		MaxDepth:       cfg.Crawler.MaxDepthDefault,
		MaxPages:       cfg.Crawler.MaxPagesDefault,
		SameOriginOnly: cfg.Crawler.SameOriginDefault,
	}
	if flags.Changed("max-depth") {
		req.MaxDepth = opts.maxDepth
	}
	if flags.Changed("max-pages") {
		req.MaxPages = opts.maxPages
	}
	if flags.Changed("same-origin") {
		req.SameOriginOnly = opts.sameOrigin
	}
	if opts.concurrency > 0 {
		cfg.Crawler.Concurrency = opts.concurrency
	}

	out, closeOut, err := openOutput(cmd, opts.out)
	if err != nil {
		return err
	}
	defer closeOut()
	writer, err := report.NewWriter(opts.format, out)
	if err != nil {
		return err
	}

	ops, err := newOperations(cmd.Context(), cfg, e.logger)
	if err != nil {
		return err
	}
	defer ops.Close(cmd.Context())

	rep, err := ops.Crawl(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("crawl %s: %w", startURL, err)
	}
	if err := writer.Write(rep); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// openOutput returns stdout or the named file.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
