package extractor

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	articleSelector     = chromeSelector + ", .advertisement, .ads"
	articleTextLimit    = 5000
	minParagraphRunes   = 50
	maxParagraphs       = 10
	minHeadingRunes     = 5
	maxHeadings         = 15
	headingSelector     = "h1, h2, h3, h4, h5, h6"
	articleParagraphSel = "p"
)

// Article is the reading view of a page used to enrich search hits.
type Article struct {
	Title         string
	Description   string
	Text          string
	Paragraphs    []string
	Headings      []string
	ContentLength int
	WordCount     int
}

// ExtractArticle strips page furniture and advertising, then collects the
// title, description, substantial paragraphs and headings. Empty title or
// description are left for the caller to fill in.
func ExtractArticle(markup []byte) Article {
	doc, err := parse(markup)
	if err != nil {
		return Article{}
	}
	doc.Find(articleSelector).Remove()

	full := CollapseWhitespace(doc.Find("body").Text())
	return Article{
		Title:         title(doc, ""),
		Description:   description(doc, false, ""),
		Text:          TruncateRunes(full, articleTextLimit),
		Paragraphs:    collectTexts(doc, articleParagraphSel, minParagraphRunes, maxParagraphs),
		Headings:      collectTexts(doc, headingSelector, minHeadingRunes, maxHeadings),
		ContentLength: utf8.RuneCountInString(full),
		WordCount:     len(strings.Fields(full)),
	}
}

func collectTexts(doc *goquery.Document, selector string, minRunes, limit int) []string {
	out := make([]string, 0, limit)
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if utf8.RuneCountInString(text) > minRunes {
			out = append(out, text)
		}
		return len(out) < limit
	})
	return out
}
