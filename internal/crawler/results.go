package crawler

import "time"

// Operation names one of the supported request kinds.
type Operation string

// Supported operations.
const (
	OperationScrape Operation = "scrape"
	OperationMap    Operation = "map"
	OperationCrawl  Operation = "crawl"
	OperationSearch Operation = "search"
)

// Result is the closed set of operation outputs. Only the types in this
// package implement it.
type Result interface {
	Operation() Operation
	sealed()
}

// ScrapeResult is the output of a single-page scrape.
type ScrapeResult struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Images      []string  `json:"images"`
	Links       []string  `json:"links"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
	TotalImages int       `json:"totalImages"`
	TotalLinks  int       `json:"totalLinks"`
	TextLength  int       `json:"textLength"`
}

// MapStatistics counts the buckets of a MapResult.
type MapStatistics struct {
	TotalURLs     int `json:"totalUrls"`
	VisibleCount  int `json:"visibleCount"`
	HiddenCount   int `json:"hiddenCount"`
	InternalCount int `json:"internalCount"`
	ExternalCount int `json:"externalCount"`
}

// MapCategories groups the address lists by kind.
type MapCategories struct {
	Visible  []string `json:"visible"`
	Hidden   []string `json:"hidden"`
	Internal []string `json:"internal"`
	External []string `json:"external"`
}

// MapResult is the output of a single-page address map.
type MapResult struct {
	URL          string        `json:"url"`
	Timestamp    time.Time     `json:"timestamp"`
	VisibleURLs  []string      `json:"visibleUrls"`
	HiddenURLs   []string      `json:"hiddenUrls"`
	AllURLs      []string      `json:"allUrls"`
	InternalURLs []string      `json:"internalUrls"`
	ExternalURLs []string      `json:"externalUrls"`
	Statistics   MapStatistics `json:"statistics"`
	Categories   MapCategories `json:"categories"`
}

// SearchHit is one search engine result, enriched with the page content when
// it could be fetched.
type SearchHit struct {
	Index           int       `json:"index"`
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	Snippet         string    `json:"snippet"`
	DisplayURL      string    `json:"displayUrl,omitempty"`
	FullTitle       string    `json:"fullTitle"`
	FullDescription string    `json:"fullDescription"`
	FullText        string    `json:"fullText"`
	Paragraphs      []string  `json:"paragraphs"`
	Headings        []string  `json:"headings"`
	ContentLength   int       `json:"contentLength"`
	WordCount       int       `json:"wordCount"`
	ScrapedAt       time.Time `json:"scrapedAt"`
	ScrapingError   string    `json:"scrapingError,omitempty"`
}

// SearchSummary aggregates the enrichment pass.
type SearchSummary struct {
	TotalResultsProcessed int `json:"totalResultsProcessed"`
	SuccessfulScrapes     int `json:"successfulScrapes"`
	FailedScrapes         int `json:"failedScrapes"`
	TotalContentLength    int `json:"totalContentLength"`
	AverageWordCount      int `json:"averageWordCount"`
}

// SearchResult is the output of a search request.
type SearchResult struct {
	Query        string        `json:"query"`
	SearchEngine string        `json:"searchEngine"`
	TotalResults int           `json:"totalResults"`
	Results      []SearchHit   `json:"detailedResults"`
	Summary      SearchSummary `json:"summary"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Operation implements Result.
func (*ScrapeResult) Operation() Operation { return OperationScrape }

// Operation implements Result.
func (*MapResult) Operation() Operation { return OperationMap }

// Operation implements Result.
func (*CrawlReport) Operation() Operation { return OperationCrawl }

// Operation implements Result.
func (*SearchResult) Operation() Operation { return OperationSearch }

func (*ScrapeResult) sealed() {}
func (*MapResult) sealed()    {}
func (*CrawlReport) sealed()  {}
func (*SearchResult) sealed() {}
