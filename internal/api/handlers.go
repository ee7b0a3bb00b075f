package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/metrics"
)

type crawlRequest struct {
	URL            string `json:"url"`
	MaxDepth       *int   `json:"maxDepth"`
	MaxPages       *int   `json:"maxPages"`
	SameOriginOnly *bool  `json:"sameOriginOnly"`
}

type pageRequest struct {
	URL string `json:"url"`
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults *int   `json:"maxResults"`
}

func (s *Server) crawl(w http.ResponseWriter, r *http.Request) {
	if s.deps.Crawler == nil {
		s.writeError(w, http.StatusServiceUnavailable, "crawl unavailable")
		return
	}
	var body crawlRequest
	if !s.decode(w, r, &body) {
		return
	}
	req, err := s.toCrawlRequest(body)
	if err != nil {
		s.failOperation(w, crawler.OperationCrawl, err)
		return
	}
	rep, err := s.deps.Crawler.Crawl(r.Context(), req)
	if err != nil {
		s.failOperation(w, crawler.OperationCrawl, err)
		return
	}
	metrics.ObserveOperation(string(crawler.OperationCrawl), nil)
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scraper == nil {
		s.writeError(w, http.StatusServiceUnavailable, "scrape unavailable")
		return
	}
	var body pageRequest
	if !s.decode(w, r, &body) {
		return
	}
	res, err := s.deps.Scraper.Scrape(r.Context(), body.URL)
	if err != nil {
		s.failOperation(w, crawler.OperationScrape, err)
		return
	}
	metrics.ObserveOperation(string(crawler.OperationScrape), nil)
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) mapPage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Mapper == nil {
		s.writeError(w, http.StatusServiceUnavailable, "map unavailable")
		return
	}
	var body pageRequest
	if !s.decode(w, r, &body) {
		return
	}
	res, err := s.deps.Mapper.Map(r.Context(), body.URL)
	if err != nil {
		s.failOperation(w, crawler.OperationMap, err)
		return
	}
	metrics.ObserveOperation(string(crawler.OperationMap), nil)
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	if s.deps.Searcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "search unavailable")
		return
	}
	var body searchRequest
	if !s.decode(w, r, &body) {
		return
	}
	maxResults := valueOrDefault(body.MaxResults, s.cfg.Search.MaxResultsDefault)
	res, err := s.deps.Searcher.Search(r.Context(), body.Query, maxResults)
	if err != nil {
		s.failOperation(w, crawler.OperationSearch, err)
		return
	}
	metrics.ObserveOperation(string(crawler.OperationSearch), nil)
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func (s *Server) failOperation(w http.ResponseWriter, op crawler.Operation, err error) {
	metrics.ObserveOperation(string(op), err)
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("operation failed", zap.String("operation", string(op)), zap.Error(err))
	} else {
		s.logger.Debug("operation rejected", zap.String("operation", string(op)), zap.Error(err))
	}
	s.writeError(w, status, msg)
}

// toCrawlRequest applies the configured defaults to omitted fields.
func (s *Server) toCrawlRequest(body crawlRequest) (crawler.CrawlRequest, error) {
	req := crawler.CrawlRequest{
		StartURL:       body.URL,
		MaxDepth:       valueOrDefault(body.MaxDepth, s.cfg.Crawler.MaxDepthDefault),
		MaxPages:       valueOrDefault(body.MaxPages, s.cfg.Crawler.MaxPagesDefault),
		SameOriginOnly: valueOrDefault(body.SameOriginOnly, s.cfg.Crawler.SameOriginDefault),
	}
	if limit := s.cfg.Crawler.MaxPagesLimit; limit > 0 && req.MaxPages > limit {
		return crawler.CrawlRequest{}, crawler.InvalidInput(fmt.Sprintf("maxPages must be <= %d", limit), nil)
	}
	return req, nil
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}
