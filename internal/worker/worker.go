// Package worker implements the per-URL fetch stage: robots, politeness,
// retries and headless promotion.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/crawler"
	"github.com/JakeFAU/catalog-scraper/internal/metrics"
)

// Pacer spaces requests per host and learns from response statuses.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
	Report(rawURL string, status int, retryAfter time.Duration)
	SetFloor(rawURL string, floor time.Duration)
}

// crawlDelayer is implemented by robots policies that expose Crawl-delay.
type crawlDelayer interface {
	CrawlDelay(ctx context.Context, rawURL string) time.Duration
}

// Deps are the collaborators a Worker drives.
type Deps struct {
	Probe    crawler.Fetcher
	Headless crawler.Fetcher
	Detector crawler.HeadlessDetector
	Robots   crawler.RobotsPolicy
	Pacer    Pacer
	Retry    crawler.RetryPolicy
}

// Config controls Worker behavior.
type Config struct {
	// HeadlessEnabled allows promotion and load-more rendering.
	HeadlessEnabled bool
	// LoadMore is applied to listing pages fetched headless.
	LoadMore crawler.LoadMore
}

// Worker fetches one candidate at a time.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Robots == nil {
		deps.Robots = crawler.NewRobotsEnforcer(false, "", 0, logger)
	}
	if deps.Retry == nil {
		deps.Retry = crawler.NewExponentialRetryPolicy(crawler.RetryConfig{})
	}
	if deps.Headless == nil {
		cfg.HeadlessEnabled = false
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger.Named("worker")}
}

// Fetch retrieves c and wraps the response as a Page. It returns
// crawler.ErrRobotsDisallowed for URLs robots.txt forbids.
func (w *Worker) Fetch(ctx context.Context, c crawler.CandidateURL) (*crawler.Page, error) {
	if !w.deps.Robots.Allowed(ctx, c.URL) {
		return nil, fmt.Errorf("fetch %s: %w", c.URL, crawler.ErrRobotsDisallowed)
	}
	if delayer, ok := w.deps.Robots.(crawlDelayer); ok && w.deps.Pacer != nil {
		if d := delayer.CrawlDelay(ctx, c.URL); d > 0 {
			w.deps.Pacer.SetFloor(c.URL, d)
		}
	}

	req := crawler.FetchRequest{URL: c.URL, Kind: c.Kind}
	if w.cfg.HeadlessEnabled && c.Kind == crawler.KindListing && w.cfg.LoadMore.Enabled() {
		req.UseHeadless = true
		req.LoadMore = w.cfg.LoadMore
		resp, err := w.fetchWithRetry(ctx, w.deps.Headless, req)
		if err == nil {
			return crawler.NewPage(c, resp), nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		w.logger.Warn("headless listing fetch failed; falling back to static",
			zap.String("url", c.URL), zap.Error(err))
		req = crawler.FetchRequest{URL: c.URL, Kind: c.Kind}
	}

	resp, err := w.fetchWithRetry(ctx, w.deps.Probe, req)
	if err != nil {
		return nil, err
	}
	if promoted, ok := w.maybePromote(ctx, c, resp); ok {
		resp = promoted
	}
	return crawler.NewPage(c, resp), nil
}

func (w *Worker) maybePromote(
	ctx context.Context,
	c crawler.CandidateURL,
	resp crawler.FetchResponse,
) (crawler.FetchResponse, bool) {
	if !w.cfg.HeadlessEnabled || w.deps.Detector == nil || !w.deps.Detector.ShouldPromote(resp) {
		return resp, false
	}
	req := crawler.FetchRequest{URL: c.URL, Kind: c.Kind, UseHeadless: true}
	if c.Kind == crawler.KindListing {
		req.LoadMore = w.cfg.LoadMore
	}
	headlessResp, err := w.fetchWithRetry(ctx, w.deps.Headless, req)
	if err != nil {
		w.logger.Warn("headless promotion failed", zap.String("url", c.URL), zap.Error(err))
		return resp, false
	}
	w.logger.Debug("headless promotion applied", zap.String("url", c.URL))
	headlessResp.UsedHeadless = true
	return headlessResp, true
}

// fetchWithRetry paces, fetches and retries transient failures. Every
// attempt is reported to the pacer so throttling widens before the retry.
func (w *Worker) fetchWithRetry(
	ctx context.Context,
	fetcher crawler.Fetcher,
	req crawler.FetchRequest,
) (crawler.FetchResponse, error) {
	for attempt := 0; ; attempt++ {
		if w.deps.Pacer != nil {
			if err := w.deps.Pacer.Wait(ctx, req.URL); err != nil {
				return crawler.FetchResponse{}, err
			}
		}

		resp, err := fetcher.Fetch(ctx, req)
		status := resp.StatusCode
		var retryAfter time.Duration
		var statusErr *crawler.StatusError
		if errors.As(err, &statusErr) {
			status = statusErr.Code
			retryAfter = statusErr.RetryAfter
		}
		metrics.ObserveFetch(req.URL, req.UseHeadless, status, len(resp.Body))
		if w.deps.Pacer != nil {
			w.deps.Pacer.Report(req.URL, status, retryAfter)
		}
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", req.URL, ctx.Err())
		}
		if !w.deps.Retry.ShouldRetry(err, attempt) {
			return crawler.FetchResponse{}, fmt.Errorf("fetch %s after %d attempts: %w", req.URL, attempt+1, err)
		}

		// Retry-After is enforced by the pacer on the next Wait.
		backoff := w.deps.Retry.Backoff(attempt)
		metrics.ObserveRetry(req.URL)
		w.logger.Debug("retrying fetch",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt+1),
			zap.Int("status", status),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := crawler.Sleep(ctx, backoff); err != nil {
			return crawler.FetchResponse{}, err
		}
	}
}
