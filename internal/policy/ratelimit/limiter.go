// Package ratelimit paces requests per host and backs off when a host pushes
// back with 429 or 5xx responses.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/catalog-scraper/internal/crawler"
	"github.com/JakeFAU/catalog-scraper/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	// MinDelay is the floor between two requests to the same host.
	MinDelay time.Duration
	// MaxDelay caps how far throttling may widen the gap.
	MaxDelay time.Duration
	Clock    crawler.Clock
}

// Limiter manages per-host pacing.
type Limiter struct {
	mu       sync.Mutex
	hosts    map[string]*hostState
	minDelay time.Duration
	maxDelay time.Duration
	clock    crawler.Clock
}

type hostState struct {
	limiter *rate.Limiter
	delay   time.Duration
	floor   time.Duration
	until   time.Time
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	clock := cfg.Clock
	if clock == nil {
		clock = crawler.SystemClock{}
	}
	maxDelay := cfg.MaxDelay
	if maxDelay < cfg.MinDelay {
		maxDelay = cfg.MinDelay
	}
	return &Limiter{
		hosts:    make(map[string]*hostState),
		minDelay: cfg.MinDelay,
		maxDelay: maxDelay,
		clock:    clock,
	}
}

// Wait blocks until a request to rawURL's host may be sent.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	l.mu.Lock()
	st := l.state(host)
	limiter := st.limiter
	pause := st.until.Sub(l.clock.Now())
	l.mu.Unlock()

	start := time.Now()
	if pause > 0 {
		if err := crawler.Sleep(ctx, pause); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObservePolitenessDelay(host, waited)
	}
	return nil
}

// Report feeds a response back into the pacing for rawURL's host. status is
// 0 when the request failed without a response.
func (l *Limiter) Report(rawURL string, status int, retryAfter time.Duration) {
	host := hostOf(rawURL)
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state(host)

	switch {
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		next := st.delay * 2
		if next < time.Second {
			next = time.Second
		}
		l.setDelay(st, next)
		if retryAfter > 0 {
			if l.maxDelay > 0 && retryAfter > l.maxDelay {
				retryAfter = l.maxDelay
			}
			st.until = l.clock.Now().Add(retryAfter)
		}
	case status >= 200 && status < 400:
		l.setDelay(st, st.delay/2)
	}
}

// SetFloor raises the minimum gap for one host, e.g. from a robots.txt
// Crawl-delay. It never lowers the configured minimum.
func (l *Limiter) SetFloor(rawURL string, floor time.Duration) {
	host := hostOf(rawURL)
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state(host)
	st.floor = floor
	l.setDelay(st, st.delay)
}

// Delay reports the current gap for rawURL's host.
func (l *Limiter) Delay(rawURL string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state(hostOf(rawURL)).delay
}

// state must be called with l.mu held.
func (l *Limiter) state(host string) *hostState {
	st, ok := l.hosts[host]
	if !ok {
		st = &hostState{delay: l.minDelay, limiter: rate.NewLimiter(limitFor(l.minDelay), 1)}
		l.hosts[host] = st
	}
	return st
}

func (l *Limiter) setDelay(st *hostState, d time.Duration) {
	lower := l.minDelay
	if st.floor > lower {
		lower = st.floor
	}
	upper := l.maxDelay
	if upper < lower {
		upper = lower
	}
	if d < lower {
		d = lower
	}
	if upper > 0 && d > upper {
		d = upper
	}
	if d == st.delay {
		return
	}
	st.delay = d
	st.limiter.SetLimit(limitFor(d))
}

func limitFor(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
