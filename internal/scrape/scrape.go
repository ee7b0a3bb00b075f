// Package scrape implements the single-page scrape mode.
package scrape

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/extractor"
)

// DefaultTimeout bounds one scrape fetch.
const DefaultTimeout = 10 * time.Second

// Config tunes a Scraper.
type Config struct {
	Timeout time.Duration
}

// Scraper fetches one page and returns its full extraction.
type Scraper struct {
	fetcher   crawler.Fetcher
	extractor crawler.Extractor
	clock     crawler.Clock
	logger    *zap.Logger
	timeout   time.Duration
}

// New builds a Scraper. A nil extractor or clock falls back to the defaults.
func New(fetcher crawler.Fetcher, ext crawler.Extractor, clock crawler.Clock, cfg Config, logger *zap.Logger) *Scraper {
	if ext == nil {
		ext = extractor.New()
	}
	if clock == nil {
		clock = utcClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Scraper{fetcher: fetcher, extractor: ext, clock: clock, logger: logger, timeout: cfg.Timeout}
}

// Scrape fetches rawURL (only 2xx is accepted) and extracts it. The text is
// returned in full. Invalid input yields a *crawler.JobError and fetch
// failures a *crawler.FetchError.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*crawler.ScrapeResult, error) {
	page, err := crawler.ParseSeed(rawURL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.fetcher.Fetch(ctx, crawler.FetchRequest{URL: page.String(), AcceptBelow: 300})
	if err != nil {
		s.logger.Debug("scrape fetch failed", zap.String("url", rawURL), zap.Error(err))
		return nil, fmt.Errorf("scrape %s: %w", rawURL, err)
	}

	content := s.extractor.Extract(resp.Body, page)
	return &crawler.ScrapeResult{
		Title:       content.Title,
		Description: content.Description,
		URL:         rawURL,
		Images:      nonNil(content.Images),
		Links:       nonNil(content.Links),
		Text:        content.Text,
		Timestamp:   s.clock.Now(),
		TotalImages: content.RawImageCount,
		TotalLinks:  content.RawLinkCount,
		TextLength:  content.TextLength,
	}, nil
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
