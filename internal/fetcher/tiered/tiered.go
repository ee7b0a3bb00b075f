// Package tiered combines a plain fetcher with a headless renderer: pages
// are probed cheaply first and only re-fetched through the browser when the
// detector flags them as application shells.
package tiered

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// Fetcher implements crawler.Fetcher with probe-then-promote semantics.
type Fetcher struct {
	probe    crawler.Fetcher
	headless crawler.Fetcher
	detector crawler.HeadlessDetector
	logger   *zap.Logger
}

// New wires the probe and headless fetchers. A nil headless fetcher or
// detector disables promotion.
func New(probe, headless crawler.Fetcher, detector crawler.HeadlessDetector, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		probe:    probe,
		headless: headless,
		detector: detector,
		logger:   logger,
	}
}

// Fetch probes request.URL and promotes it when warranted. A failed
// promotion falls back to the probe response.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := f.probe.Fetch(ctx, request)
	if err != nil {
		return resp, err
	}
	if !f.shouldPromote(request, resp) {
		return resp, nil
	}

	promoted := request
	promoted.UseHeadless = true
	headlessResp, err := f.headless.Fetch(ctx, promoted)
	if err != nil {
		if ctx.Err() != nil {
			return crawler.FetchResponse{}, err
		}
		f.logger.Warn("headless promotion failed",
			zap.String("job_id", request.JobID),
			zap.String("url", request.URL),
			zap.Error(err),
		)
		return resp, nil
	}
	headlessResp.UsedHeadless = true
	f.logger.Debug("headless promotion applied",
		zap.String("job_id", request.JobID),
		zap.String("url", request.URL),
	)
	return headlessResp, nil
}

func (f *Fetcher) shouldPromote(request crawler.FetchRequest, resp crawler.FetchResponse) bool {
	if f.headless == nil || f.detector == nil {
		return false
	}
	return request.UseHeadless || f.detector.ShouldPromote(resp)
}
