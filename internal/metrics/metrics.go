// Package metrics exposes Prometheus collectors for the scraper.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scraperAdmissionsTotal       *prometheus.CounterVec
	scraperPipelineOutcomesTotal *prometheus.CounterVec
	scraperFetchesTotal          *prometheus.CounterVec
	scraperFetchRetriesTotal     *prometheus.CounterVec
	scraperBytesTotal            *prometheus.CounterVec
	scraperPolitenessDelaySecs   *prometheus.HistogramVec
	scraperActiveWorkers         prometheus.Gauge
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperAdmissionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_admissions_total",
				Help: "Admission filter decisions, labeled by site and decision.",
			},
			[]string{"site", "decision"},
		)

		scraperPipelineOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_pipeline_outcomes_total",
				Help: "Persistence outcomes per extracted record, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		scraperFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_fetches_total",
				Help: "Completed fetches, labeled by host, mode and status.",
			},
			[]string{"host", "mode", "status"},
		)

		scraperFetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_fetch_retries_total",
				Help: "Fetch retries scheduled after a transient failure, labeled by host.",
			},
			[]string{"host"},
		)

		scraperBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_bytes_total",
				Help: "Total number of bytes fetched, labeled by host.",
			},
			[]string{"host"},
		)

		scraperPolitenessDelaySecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_politeness_delay_seconds",
				Help:    "Histogram of politeness waits before a request.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"host"},
		)

		scraperActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_workers",
				Help: "Number of workers currently processing a URL.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL for use as a label.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAdmission counts one admission decision ("new", "existing",
// "listing" or "lookup_error").
func ObserveAdmission(site, decision string) {
	if scraperAdmissionsTotal == nil {
		return
	}
	scraperAdmissionsTotal.WithLabelValues(site, decision).Inc()
}

// ObserveOutcome counts one pipeline outcome.
func ObserveOutcome(site, outcome string) {
	if scraperPipelineOutcomesTotal == nil {
		return
	}
	scraperPipelineOutcomesTotal.WithLabelValues(site, outcome).Inc()
}

// ObserveFetch records a finished fetch. status is the HTTP code, or 0 when
// the request never produced a response.
func ObserveFetch(rawURL string, headless bool, status int, bytesFetched int) {
	if scraperFetchesTotal == nil {
		return
	}
	host := SanitizeHost(rawURL)
	mode := "http"
	if headless {
		mode = "headless"
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	scraperFetchesTotal.WithLabelValues(host, mode, label).Inc()
	if bytesFetched > 0 {
		scraperBytesTotal.WithLabelValues(host).Add(float64(bytesFetched))
	}
}

// ObserveRetry counts a scheduled retry for rawURL's host.
func ObserveRetry(rawURL string) {
	if scraperFetchRetriesTotal == nil {
		return
	}
	scraperFetchRetriesTotal.WithLabelValues(SanitizeHost(rawURL)).Inc()
}

// ObservePolitenessDelay records the duration of a politeness wait.
func ObservePolitenessDelay(host string, duration time.Duration) {
	if scraperPolitenessDelaySecs == nil {
		return
	}
	scraperPolitenessDelaySecs.WithLabelValues(host).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if scraperActiveWorkers != nil {
		scraperActiveWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if scraperActiveWorkers != nil {
		scraperActiveWorkers.Dec()
	}
}

// ObserveHTTPRequest increments the HTTP request metrics of the metrics server.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
