// Package extractor pulls structured content out of fetched HTML using
// goquery. Extraction is total: malformed markup degrades to empty or
// sentinel fields and never returns an error.
package extractor

import (
	"bytes"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// Sentinels used when no candidate yields a value.
const (
	NoTitle       = "no title"
	NoDescription = "no description"
)

// chromeSelector lists the page furniture dropped before body text is read.
const chromeSelector = "script, style, nav, header, footer, aside, .nav, .navigation, .menu"

// HTML implements crawler.Extractor.
type HTML struct{}

// New returns an HTML extractor.
func New() *HTML {
	return &HTML{}
}

// Extract applies the title, description, image, link and text rules to
// markup. Relative addresses resolve against page.
func (*HTML) Extract(markup []byte, page *url.URL) crawler.PageContent {
	doc, err := parse(markup)
	if err != nil {
		return crawler.PageContent{Title: NoTitle, Description: NoDescription}
	}

	content := crawler.PageContent{
		Title:       title(doc, NoTitle),
		Description: description(doc, true, NoDescription),
	}
	content.Images, content.RawImageCount = resolveAll(attrValues(doc, "img", "src"), page)
	content.Links, content.RawLinkCount = resolveAll(attrValues(doc, "a[href]", "href"), page)

	// Links inside navigation are collected above; only the text skips them.
	doc.Find(chromeSelector).Remove()
	content.Text = CollapseWhitespace(doc.Find("body").Text())
	content.TextLength = utf8.RuneCountInString(content.Text)
	return content
}

func parse(markup []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(markup))
}

func title(doc *goquery.Document, fallback string) string {
	return firstNonEmpty(
		strings.TrimSpace(doc.Find("title").First().Text()),
		metaContent(doc, `meta[property="og:title"]`),
		strings.TrimSpace(doc.Find("h1").First().Text()),
		fallback,
	)
}

func description(doc *goquery.Document, withParagraph bool, fallback string) string {
	paragraph := ""
	if withParagraph {
		paragraph = strings.TrimSpace(doc.Find("p").First().Text())
	}
	return firstNonEmpty(
		metaContent(doc, `meta[name="description"]`),
		metaContent(doc, `meta[property="og:description"]`),
		paragraph,
		fallback,
	)
}

func metaContent(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().AttrOr("content", ""))
}

func attrValues(doc *goquery.Document, selector, attr string) []string {
	var out []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(attr); ok && v != "" {
			out = append(out, v)
		}
	})
	return out
}

// resolveAll resolves and deduplicates raw addresses, also returning how many
// resolved before dedup. Unresolvable ones are skipped.
func resolveAll(raw []string, page *url.URL) ([]string, int) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	resolvedCount := 0
	for _, candidate := range raw {
		resolved, err := crawler.Resolve(candidate, page)
		if err != nil {
			continue
		}
		resolvedCount++
		addr := resolved.String()
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out, resolvedCount
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// CollapseWhitespace reduces every whitespace run to one space and trims.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TruncateRunes keeps at most limit runes of s.
func TruncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
