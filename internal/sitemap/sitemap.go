// Package sitemap implements the single-page address map mode: it lists
// every address a page exposes, both as visible links and hidden in
// attributes, scripts and text.
package sitemap

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// DefaultTimeout bounds the page fetch.
const DefaultTimeout = 15 * time.Second

var (
	scriptURLPattern = regexp.MustCompile("['\"`](https?://[^'\"`\\s]+)['\"`]")
	textURLPattern   = regexp.MustCompile(`https?://[^\s<>"']+`)
)

// Config tunes a Mapper.
type Config struct {
	Timeout time.Duration
}

// Mapper builds MapResults.
type Mapper struct {
	fetcher crawler.Fetcher
	clock   crawler.Clock
	logger  *zap.Logger
	timeout time.Duration
}

// New builds a Mapper.
func New(fetcher crawler.Fetcher, clock crawler.Clock, cfg Config, logger *zap.Logger) *Mapper {
	if clock == nil {
		clock = utcClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Mapper{fetcher: fetcher, clock: clock, logger: logger, timeout: cfg.Timeout}
}

// Map fetches rawURL and categorizes the addresses found on it.
func (m *Mapper) Map(ctx context.Context, rawURL string) (*crawler.MapResult, error) {
	page, err := crawler.ParseSeed(rawURL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	resp, err := m.fetcher.Fetch(ctx, crawler.FetchRequest{URL: page.String(), AcceptBelow: 300})
	if err != nil {
		m.logger.Debug("map fetch failed", zap.String("url", rawURL), zap.Error(err))
		return nil, fmt.Errorf("map %s: %w", rawURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("map %s: parse: %w", rawURL, err)
	}
	found := Collect(doc, page)
	res := Categorize(found, page)
	res.URL = rawURL
	res.Timestamp = m.clock.Now()
	return &res, nil
}

// Found holds the raw address lists in discovery order, duplicates kept.
type Found struct {
	Visible []string
	Hidden  []string
	All     []string
}

func (f *Found) visible(addr string) {
	f.Visible = append(f.Visible, addr)
	f.All = append(f.All, addr)
}

func (f *Found) hidden(addr string) {
	f.Hidden = append(f.Hidden, addr)
	f.All = append(f.All, addr)
}

// Collect walks doc in a fixed order: anchors, form actions, data
// attributes, script bodies, src/href on other elements, then body text.
func Collect(doc *goquery.Document, page *url.URL) Found {
	var found Found
	resolve := func(raw string) (string, bool) {
		if strings.TrimSpace(raw) == "" {
			return "", false
		}
		u, err := crawler.Resolve(raw, page)
		if err != nil {
			return "", false
		}
		return u.String(), true
	}
	absolute := func(raw string) (string, bool) {
		u, err := crawler.Resolve(raw, nil)
		if err != nil {
			return "", false
		}
		return u.String(), true
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if addr, ok := resolve(s.AttrOr("href", "")); ok {
			found.visible(addr)
		}
	})
	doc.Find("form[action]").Each(func(_ int, s *goquery.Selection) {
		if addr, ok := resolve(s.AttrOr("action", "")); ok {
			found.visible(addr)
		}
	})
	doc.Find("[data-url], [data-href], [data-link]").Each(func(_ int, s *goquery.Selection) {
		raw := firstAttr(s, "data-url", "data-href", "data-link")
		if addr, ok := resolve(raw); ok {
			found.hidden(addr)
		}
	})
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		body := s.Text()
		for _, m := range scriptURLPattern.FindAllStringSubmatch(body, -1) {
			if addr, ok := absolute(m[1]); ok {
				found.hidden(addr)
			}
		}
	})
	doc.Find("[src], [href]").Not("a, img, script, link").Each(func(_ int, s *goquery.Selection) {
		raw := firstAttr(s, "src", "href")
		if !strings.HasPrefix(raw, "http") {
			return
		}
		if addr, ok := resolve(raw); ok {
			found.hidden(addr)
		}
	})
	for _, m := range textURLPattern.FindAllString(doc.Find("body").Text(), -1) {
		if addr, ok := absolute(m); ok {
			found.hidden(addr)
		}
	}
	return found
}

// Categorize dedups the lists and splits them by host. Hidden excludes
// anything also seen as visible.
func Categorize(found Found, page *url.URL) crawler.MapResult {
	visible := dedup(found.Visible, nil)
	hidden := dedup(found.Hidden, toSet(found.Visible))
	all := dedup(found.All, nil)

	internal, external := []string{}, []string{}
	for _, addr := range all {
		u, err := url.Parse(addr)
		if err != nil {
			continue
		}
		if u.Hostname() == page.Hostname() {
			internal = append(internal, addr)
		} else {
			external = append(external, addr)
		}
	}

	return crawler.MapResult{
		VisibleURLs:  visible,
		HiddenURLs:   hidden,
		AllURLs:      all,
		InternalURLs: internal,
		ExternalURLs: external,
		Statistics: crawler.MapStatistics{
			TotalURLs:     len(all),
			VisibleCount:  len(visible),
			HiddenCount:   len(hidden),
			InternalCount: len(internal),
			ExternalCount: len(external),
		},
		Categories: crawler.MapCategories{
			Visible:  visible,
			Hidden:   hidden,
			Internal: internal,
			External: external,
		},
	}
}

func firstAttr(s *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v := s.AttrOr(name, ""); v != "" {
			return v
		}
	}
	return ""
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func dedup(items []string, exclude map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, skip := exclude[item]; skip {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
