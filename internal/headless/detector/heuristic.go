// Package detector decides when a plain fetch returned an application shell
// that needs a browser to render.
package detector

import (
	"bytes"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/extractor"
)

const (
	defaultMinTextRunes = 200
	scriptSharePercent  = 25
)

// Heuristic promotes pages whose visible text is thin and whose markup looks
// script-driven.
type Heuristic struct {
	// MinTextRunes is the visible text length below which a page is a
	// promotion candidate.
	MinTextRunes int
}

// NewHeuristic creates a detector; zero selects the default threshold.
func NewHeuristic(minTextRunes int) *Heuristic {
	if minTextRunes <= 0 {
		minTextRunes = defaultMinTextRunes
	}
	return &Heuristic{MinTextRunes: minTextRunes}
}

var mountPoints = []string{"#__next", "#root", "#app", "[data-reactroot]", "[ng-app]"}

// ShouldPromote reports whether probe should be re-fetched headless.
func (h *Heuristic) ShouldPromote(probe crawler.FetchResponse) bool {
	if probe.StatusCode < 200 || probe.StatusCode >= 300 {
		return false
	}
	if len(bytes.TrimSpace(probe.Body)) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(probe.Body))
	if err != nil {
		return false
	}

	scripts := doc.Find("script")
	scriptBytes := 0
	scripts.Each(func(_ int, s *goquery.Selection) {
		if html, err := goquery.OuterHtml(s); err == nil {
			scriptBytes += len(html)
		}
	})
	scripts.Remove()
	doc.Find("style, noscript").Remove()

	visible := utf8.RuneCountInString(extractor.CollapseWhitespace(doc.Find("body").Text()))
	if visible >= h.MinTextRunes {
		return false
	}
	for _, sel := range mountPoints {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return scriptBytes*100/len(probe.Body) >= scriptSharePercent
}
