package worker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/crawler"
)

type scriptedFetcher struct {
	mu       sync.Mutex
	attempts int
	fails    int
	failWith error
	body     string
	requests []crawler.FetchRequest
}

func (f *scriptedFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	f.requests = append(f.requests, req)
	if f.attempts <= f.fails {
		err := f.failWith
		if err == nil {
			err = errors.New("transient error")
		}
		return crawler.FetchResponse{}, err
	}
	return crawler.FetchResponse{
		URL:          req.URL,
		StatusCode:   http.StatusOK,
		Body:         []byte(f.body),
		UsedHeadless: req.UseHeadless,
	}, nil
}

type report struct {
	status     int
	retryAfter time.Duration
}

type recordingPacer struct {
	mu      sync.Mutex
	waits   int
	reports []report
	floor   time.Duration
}

func (p *recordingPacer) Wait(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waits++
	return nil
}

func (p *recordingPacer) Report(_ string, status int, retryAfter time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, report{status: status, retryAfter: retryAfter})
}

func (p *recordingPacer) SetFloor(_ string, floor time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.floor = floor
}

type fakeRobots struct {
	allowed bool
	delay   time.Duration
}

func (r fakeRobots) Allowed(context.Context, string) bool { return r.allowed }

func (r fakeRobots) CrawlDelay(context.Context, string) time.Duration { return r.delay }

type fakeDetector struct{ promote bool }

func (d fakeDetector) ShouldPromote(crawler.FetchResponse) bool { return d.promote }

func fastRetry(maxRetries int) crawler.RetryPolicy {
	return crawler.NewExponentialRetryPolicy(crawler.RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
	})
}

func item(u string) crawler.CandidateURL {
	return crawler.CandidateURL{URL: u, Kind: crawler.KindItem}
}

func TestWorker_RetryLogic(t *testing.T) {
	t.Parallel()

	probe := &scriptedFetcher{fails: 2, body: "<html>ok</html>"}
	pacer := &recordingPacer{}
	w := New(Deps{Probe: probe, Pacer: pacer, Retry: fastRetry(3)}, Config{}, zap.NewNop())

	page, err := w.Fetch(context.Background(), item("https://example.com/p/1"))
	require.NoError(t, err)
	require.Equal(t, 3, probe.attempts)
	require.Equal(t, "<html>ok</html>", string(page.Body))
	assert.Equal(t, 3, pacer.waits)
	assert.Len(t, pacer.reports, 3)
}

func TestWorker_RetryExhausted(t *testing.T) {
	t.Parallel()

	probe := &scriptedFetcher{fails: 5}
	w := New(Deps{Probe: probe, Retry: fastRetry(3)}, Config{}, zap.NewNop())

	_, err := w.Fetch(context.Background(), item("https://example.com/p/1"))
	require.Error(t, err)
	// Initial attempt + 3 retries = 4 attempts
	require.Equal(t, 4, probe.attempts)
}

func TestWorker_PermanentStatusNotRetried(t *testing.T) {
	t.Parallel()

	probe := &scriptedFetcher{fails: 1, failWith: &crawler.StatusError{Code: http.StatusNotFound}}
	pacer := &recordingPacer{}
	w := New(Deps{Probe: probe, Pacer: pacer, Retry: fastRetry(3)}, Config{}, zap.NewNop())

	_, err := w.Fetch(context.Background(), item("https://example.com/p/1"))
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, crawler.StatusCode(err))
	assert.Equal(t, 1, probe.attempts)
	assert.Equal(t, []report{{status: http.StatusNotFound}}, pacer.reports)
}

func TestWorker_ThrottleReportedToPacer(t *testing.T) {
	t.Parallel()

	probe := &scriptedFetcher{
		fails:    1,
		failWith: &crawler.StatusError{Code: http.StatusServiceUnavailable, RetryAfter: 3 * time.Second},
	}
	pacer := &recordingPacer{}
	w := New(Deps{Probe: probe, Pacer: pacer, Retry: fastRetry(2)}, Config{}, zap.NewNop())

	_, err := w.Fetch(context.Background(), item("https://example.com/p/1"))
	require.NoError(t, err)
	require.Len(t, pacer.reports, 2)
	assert.Equal(t, report{status: http.StatusServiceUnavailable, retryAfter: 3 * time.Second}, pacer.reports[0])
	assert.Equal(t, http.StatusOK, pacer.reports[1].status)
}

func TestWorker_RobotsDisallowed(t *testing.T) {
	t.Parallel()

	probe := &scriptedFetcher{}
	w := New(Deps{Probe: probe, Robots: fakeRobots{allowed: false}}, Config{}, zap.NewNop())

	_, err := w.Fetch(context.Background(), item("https://example.com/private"))
	require.ErrorIs(t, err, crawler.ErrRobotsDisallowed)
	assert.Zero(t, probe.attempts)
}

func TestWorker_CrawlDelaySetsFloor(t *testing.T) {
	t.Parallel()

	pacer := &recordingPacer{}
	w := New(Deps{
		Probe:  &scriptedFetcher{},
		Robots: fakeRobots{allowed: true, delay: 2 * time.Second},
		Pacer:  pacer,
	}, Config{}, zap.NewNop())

	_, err := w.Fetch(context.Background(), item("https://example.com/p/1"))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, pacer.floor)
}

func TestWorker_PromotesToHeadless(t *testing.T) {
	t.Parallel()

	probe := &scriptedFetcher{body: `<div id="root"></div>`}
	headless := &scriptedFetcher{body: "<h1>Rendered</h1>"}
	w := New(Deps{
		Probe:    probe,
		Headless: headless,
		Detector: fakeDetector{promote: true},
	}, Config{HeadlessEnabled: true}, zap.NewNop())

	page, err := w.Fetch(context.Background(), item("https://example.com/p/1"))
	require.NoError(t, err)
	assert.True(t, page.UsedHeadless)
	assert.Equal(t, "<h1>Rendered</h1>", string(page.Body))
	assert.Equal(t, 1, probe.attempts)
	assert.Equal(t, 1, headless.attempts)
}

func TestWorker_PromotionDisabled(t *testing.T) {
	t.Parallel()

	probe := &scriptedFetcher{body: `<div id="root"></div>`}
	headless := &scriptedFetcher{}
	w := New(Deps{
		Probe:    probe,
		Headless: headless,
		Detector: fakeDetector{promote: true},
	}, Config{HeadlessEnabled: false}, zap.NewNop())

	page, err := w.Fetch(context.Background(), item("https://example.com/p/1"))
	require.NoError(t, err)
	assert.False(t, page.UsedHeadless)
	assert.Zero(t, headless.attempts)
}

func TestWorker_ListingWithLoadMoreGoesHeadless(t *testing.T) {
	t.Parallel()

	probe := &scriptedFetcher{}
	headless := &scriptedFetcher{body: "<ul></ul>"}
	loadMore := crawler.LoadMore{Selector: "button.more", MaxClicks: 3, Wait: time.Millisecond}
	w := New(Deps{Probe: probe, Headless: headless}, Config{HeadlessEnabled: true, LoadMore: loadMore}, zap.NewNop())

	listing := crawler.CandidateURL{URL: "https://example.com/c/shoes", Kind: crawler.KindListing}
	page, err := w.Fetch(context.Background(), listing)
	require.NoError(t, err)
	assert.True(t, page.UsedHeadless)
	assert.Zero(t, probe.attempts)
	require.Len(t, headless.requests, 1)
	assert.Equal(t, loadMore, headless.requests[0].LoadMore)

	_, err = w.Fetch(context.Background(), item("https://example.com/p/1"))
	require.NoError(t, err)
	assert.Equal(t, 1, probe.attempts, "item pages use the static fetcher")
}

func TestWorker_HeadlessListingFallsBackToStatic(t *testing.T) {
	t.Parallel()

	probe := &scriptedFetcher{body: "<ul></ul>"}
	headless := &scriptedFetcher{fails: 10}
	w := New(Deps{Probe: probe, Headless: headless, Retry: fastRetry(0)}, Config{
		HeadlessEnabled: true,
		LoadMore:        crawler.LoadMore{Selector: "button.more", MaxClicks: 1},
	}, zap.NewNop())

	page, err := w.Fetch(context.Background(), crawler.CandidateURL{URL: "https://example.com/c/x", Kind: crawler.KindListing})
	require.NoError(t, err)
	assert.False(t, page.UsedHeadless)
	assert.Equal(t, 1, headless.attempts)
	assert.Equal(t, 1, probe.attempts)
}
