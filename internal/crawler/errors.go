package crawler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrRobotsDisallowed marks a URL robots.txt forbids; it is never retried.
var ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

// StatusError reports a non-success HTTP status from a fetch.
type StatusError struct {
	Code       int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// NewStatusError builds a StatusError, reading Retry-After when present.
func NewStatusError(code int, headers http.Header) *StatusError {
	return &StatusError{Code: code, RetryAfter: ParseRetryAfter(headers, time.Now())}
}

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	return 0
}

// ParseRetryAfter understands both the delta-seconds and HTTP-date forms.
func ParseRetryAfter(headers http.Header, now time.Time) time.Duration {
	if headers == nil {
		return 0
	}
	raw := strings.TrimSpace(headers.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
