// Package search runs a web search against the DuckDuckGo HTML endpoint and
// enriches every hit with the content of the page it points to.
package search

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/extractor"
)

// Defaults applied by New.
const (
	DefaultEndpoint      = "https://html.duckduckgo.com/html/"
	DefaultMaxResults    = 10
	DefaultSearchTimeout = 15 * time.Second
	DefaultResultTimeout = 10 * time.Second

	engineName = "DuckDuckGo"
	// ScrapeFailedMessage is recorded on hits whose page could not be read.
	ScrapeFailedMessage = "could not fetch full content"
)

// Limiter paces requests per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config tunes a Searcher.
type Config struct {
	Endpoint      string
	MaxResults    int
	SearchTimeout time.Duration
	ResultTimeout time.Duration
	// Parallel is how many result pages are fetched at once.
	Parallel int
}

// Deps are the collaborators of a Searcher. Engine fetches the results
// page; Pages fetches the hits.
type Deps struct {
	Engine  crawler.Fetcher
	Pages   crawler.Fetcher
	Limiter Limiter
	Clock   crawler.Clock
	Logger  *zap.Logger
}

// Searcher implements the search mode.
type Searcher struct {
	deps Deps
	cfg  Config
}

// New builds a Searcher. Pages defaults to Engine.
func New(deps Deps, cfg Config) *Searcher {
	if deps.Pages == nil {
		deps.Pages = deps.Engine
	}
	if deps.Clock == nil {
		deps.Clock = utcClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = DefaultSearchTimeout
	}
	if cfg.ResultTimeout <= 0 {
		cfg.ResultTimeout = DefaultResultTimeout
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 1
	}
	return &Searcher{deps: deps, cfg: cfg}
}

// Search queries the engine and enriches up to maxResults hits; zero or a
// negative value means the configured default. Engine failures (a 429
// included) come back as *crawler.FetchError. Hit failures never fail the
// search.
func (s *Searcher) Search(ctx context.Context, query string, maxResults int) (*crawler.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, crawler.InvalidInput("query is required", nil)
	}
	if maxResults <= 0 {
		maxResults = s.cfg.MaxResults
	}
	endpoint, err := url.Parse(s.cfg.Endpoint)
	if err != nil {
		return nil, crawler.InvalidInput("invalid search endpoint", err)
	}
	searchURL := *endpoint
	params := searchURL.Query()
	params.Set("q", query)
	searchURL.RawQuery = params.Encode()

	engineCtx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
	resp, err := s.deps.Engine.Fetch(engineCtx, crawler.FetchRequest{URL: searchURL.String(), AcceptBelow: 300})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("search %q: parse results: %w", query, err)
	}
	hits := ParseResults(doc, endpoint, maxResults)
	s.deps.Logger.Debug("search results parsed", zap.String("query", query), zap.Int("hits", len(hits)))

	detailed, err := s.enrich(ctx, hits)
	if err != nil {
		return nil, err
	}
	return &crawler.SearchResult{
		Query:        query,
		SearchEngine: engineName,
		TotalResults: len(hits),
		Results:      detailed,
		Summary:      Summarize(detailed),
		Timestamp:    s.deps.Clock.Now(),
	}, nil
}

func (s *Searcher) enrich(ctx context.Context, hits []crawler.SearchHit) ([]crawler.SearchHit, error) {
	out := make([]crawler.SearchHit, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallel)
	for i, hit := range hits {
		g.Go(func() error {
			out[i] = s.enrichOne(gctx, hit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("search canceled: %w", err)
	}
	return out, nil
}

func (s *Searcher) enrichOne(ctx context.Context, hit crawler.SearchHit) crawler.SearchHit {
	now := s.deps.Clock.Now()
	article, err := s.fetchArticle(ctx, hit.URL)
	if err != nil {
		s.deps.Logger.Debug("search hit fetch failed", zap.String("url", hit.URL), zap.Error(err))
		hit.FullTitle = hit.Title
		hit.FullDescription = hit.Snippet
		hit.FullText = hit.Snippet
		hit.Paragraphs = []string{}
		hit.Headings = []string{}
		hit.ScrapingError = ScrapeFailedMessage
		hit.ScrapedAt = now
		return hit
	}
	hit.FullTitle = firstNonEmpty(article.Title, hit.Title)
	hit.FullDescription = firstNonEmpty(article.Description, hit.Snippet)
	hit.FullText = article.Text
	hit.Paragraphs = article.Paragraphs
	hit.Headings = article.Headings
	hit.ContentLength = article.ContentLength
	hit.WordCount = article.WordCount
	hit.ScrapedAt = now
	return hit
}

func (s *Searcher) fetchArticle(ctx context.Context, rawURL string) (extractor.Article, error) {
	if s.deps.Limiter != nil {
		if err := s.deps.Limiter.Wait(ctx, rawURL); err != nil {
			return extractor.Article{}, err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ResultTimeout)
	defer cancel()
	resp, err := s.deps.Pages.Fetch(ctx, crawler.FetchRequest{
		URL:         rawURL,
		Headers:     crawler.UserAgentOnly(),
		AcceptBelow: 300,
	})
	if err != nil {
		return extractor.Article{}, err
	}
	return extractor.ExtractArticle(resp.Body), nil
}

// ParseResults reads hits from a results page. Index is the 1-based
// position of the block the hit came from.
func ParseResults(doc *goquery.Document, endpoint *url.URL, maxResults int) []crawler.SearchHit {
	hits := []crawler.SearchHit{}
	doc.Find(".result").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxResults {
			return false
		}
		link := s.Find(".result__title a").First()
		title := strings.TrimSpace(link.Text())
		target := resultTarget(link.AttrOr("href", ""), endpoint)
		if title != "" && target != "" {
			hits = append(hits, crawler.SearchHit{
				Index:      i + 1,
				Title:      title,
				URL:        target,
				Snippet:    strings.TrimSpace(s.Find(".result__snippet").Text()),
				DisplayURL: strings.TrimSpace(s.Find(".result__url").Text()),
			})
		}
		return true
	})
	if len(hits) > 0 {
		return hits
	}

	doc.Find("h2 a").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxResults {
			return false
		}
		title := strings.TrimSpace(s.Text())
		target := resultTarget(s.AttrOr("href", ""), endpoint)
		if title != "" && strings.HasPrefix(target, "http") {
			snippet := s.Closest(".web-result, .result").Find(".snippet, .result__snippet").Text()
			hits = append(hits, crawler.SearchHit{
				Index:   i + 1,
				Title:   title,
				URL:     target,
				Snippet: strings.TrimSpace(snippet),
			})
		}
		return true
	})
	return hits
}

// resultTarget resolves href and unwraps the engine's /l/?uddg= redirect.
func resultTarget(href string, endpoint *url.URL) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := crawler.Resolve(href, endpoint)
	if err != nil {
		return ""
	}
	if strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return u.String()
}

// Summarize aggregates the enrichment pass.
func Summarize(hits []crawler.SearchHit) crawler.SearchSummary {
	sum := crawler.SearchSummary{TotalResultsProcessed: len(hits)}
	words := 0
	for _, hit := range hits {
		if hit.ScrapingError == "" {
			sum.SuccessfulScrapes++
		} else {
			sum.FailedScrapes++
		}
		sum.TotalContentLength += hit.ContentLength
		words += hit.WordCount
	}
	if len(hits) > 0 {
		sum.AverageWordCount = int(math.Round(float64(words) / float64(len(hits))))
	}
	return sum
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
