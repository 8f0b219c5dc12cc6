package orchestrator

import (
	"time"

	"github.com/JakeFAU/catalog-scraper/internal/admission"
	"github.com/JakeFAU/catalog-scraper/internal/pipeline"
)

// Status is how a run ended.
type Status string

// Run statuses.
const (
	StatusCompleted   Status = "completed"
	StatusItemLimit   Status = "item_limit"
	StatusInterrupted Status = "interrupted"
)

// FetchCounters tally page handling.
type FetchCounters struct {
	Pages    int
	Listings int
	Items    int
	// Failed pages were abandoned after retries.
	Failed int
	// Skipped pages were disallowed by robots.txt.
	Skipped  int
	NoRecord int
}

// Summary is the end-of-run report.
type Summary struct {
	RunID      string
	Site       string
	StartedAt  time.Time
	FinishedAt time.Time
	Resumed    bool
	Status     Status
	Fetch      FetchCounters
	Admission  admission.Counters
	Pipeline   pipeline.Counters
}

// Elapsed is the wall time of the run.
func (s Summary) Elapsed() time.Duration {
	if s.FinishedAt.Before(s.StartedAt) {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
