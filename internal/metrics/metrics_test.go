package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeHost(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeHost(tc.input); got != tc.expected {
				t.Errorf("SanitizeHost(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveCounters(t *testing.T) {
	Init()

	ObserveAdmission("metrics-test", "new")
	ObserveAdmission("metrics-test", "new")
	ObserveOutcome("metrics-test", "created")
	ObserveFetch("https://metrics-test.example/p/1", false, 200, 512)
	ObserveFetch("https://metrics-test.example/p/2", true, 0, 0)
	ObserveRetry("https://metrics-test.example/p/2")
	ObservePolitenessDelay("metrics-test.example", 2*time.Second)

	if val := testutil.ToFloat64(scraperAdmissionsTotal.WithLabelValues("metrics-test", "new")); val != 2 {
		t.Errorf("expected 2 admissions, got %f", val)
	}
	if val := testutil.ToFloat64(scraperPipelineOutcomesTotal.WithLabelValues("metrics-test", "created")); val != 1 {
		t.Errorf("expected 1 created outcome, got %f", val)
	}
	if val := testutil.ToFloat64(scraperFetchesTotal.WithLabelValues("metrics-test.example", "http", "200")); val != 1 {
		t.Errorf("expected 1 http fetch, got %f", val)
	}
	if val := testutil.ToFloat64(scraperFetchesTotal.WithLabelValues("metrics-test.example", "headless", "error")); val != 1 {
		t.Errorf("expected 1 failed headless fetch, got %f", val)
	}
	if val := testutil.ToFloat64(scraperBytesTotal.WithLabelValues("metrics-test.example")); val != 512 {
		t.Errorf("expected 512 bytes, got %f", val)
	}
	if val := testutil.ToFloat64(scraperFetchRetriesTotal.WithLabelValues("metrics-test.example")); val != 1 {
		t.Errorf("expected 1 retry, got %f", val)
	}
}

func TestRouterServesMetricsAndHealth(t *testing.T) {
	ts := httptest.NewServer(Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("unexpected healthz response %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), "http_requests_total") {
		t.Fatalf("expected request metrics in exposition, got %d bytes", len(body))
	}

	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")); val < 1 {
		t.Errorf("expected GET 200 to be recorded, got %f", val)
	}
}
