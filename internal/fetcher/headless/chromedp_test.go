package headless

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/JakeFAU/catalog-scraper/internal/crawler"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{MaxParallel: -1}); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer fetcher.Close()
	if cap(fetcher.limiter) != 2 {
		t.Fatalf("expected limiter capacity 2, got %d", cap(fetcher.limiter))
	}
	if fetcher.cfg.ClickWait != 1500*time.Millisecond {
		t.Fatalf("expected default click wait, got %v", fetcher.cfg.ClickWait)
	}
}

func TestFetcherNavTimeout(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	if got := fetcher.navTimeout(crawler.LoadMore{}); got != 45*time.Second {
		t.Fatalf("expected default nav timeout, got %v", got)
	}
	fetcher.cfg.NavigationTimeout = time.Second
	fetcher.cfg.ClickWait = 100 * time.Millisecond
	if got := fetcher.navTimeout(crawler.LoadMore{}); got != time.Second {
		t.Fatalf("expected override to be used, got %v", got)
	}
	lm := crawler.LoadMore{Selector: "button.more", MaxClicks: 3}
	if got := fetcher.navTimeout(lm); got != time.Second+300*time.Millisecond {
		t.Fatalf("expected click budget to extend the timeout, got %v", got)
	}
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	netHeaders := toNetworkHeaders(http.Header{"X-Test": {"a", "b"}, "X-One": {"1"}, "X-None": {}})
	if v, ok := netHeaders["X-Test"].([]string); !ok || len(v) != 2 {
		t.Fatalf("expected two entries, got %#v", netHeaders["X-Test"])
	}
	if netHeaders["X-One"] != "1" {
		t.Fatalf("expected single value to be flattened, got %#v", netHeaders["X-One"])
	}
	if _, ok := netHeaders["X-None"]; ok {
		t.Fatal("expected empty header to be skipped")
	}
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  404,
			URL:     "https://example.com/rendered",
			Headers: network.Headers{"X-Request-ID": "abc"},
		},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://example.com/frame"},
	})
	status, headers, url := meta.snapshotWithFallbacks("https://req", "")
	if status != 404 || headers.Get("X-Request-ID") != "abc" || url != "https://example.com/rendered" {
		t.Fatalf("unexpected snapshot values: status=%d headers=%v url=%s", status, headers, url)
	}

	meta = newResponseMeta()
	status, _, url = meta.snapshotWithFallbacks("https://req", "https://final")
	if status != http.StatusOK || url != "https://final" {
		t.Fatalf("expected fallback values, got status=%d url=%s", status, url)
	}
}

func TestClickScriptQuotesSelector(t *testing.T) {
	t.Parallel()

	script := clickScript(`button[data-action="more"]`)
	if !strings.Contains(script, `document.querySelector("button[data-action=\"more\"]")`) {
		t.Fatalf("selector not safely quoted: %s", script)
	}
}

func TestDisabledFetcher(t *testing.T) {
	t.Parallel()

	_, err := Disabled{}.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com"})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}
