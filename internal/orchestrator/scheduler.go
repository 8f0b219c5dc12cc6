package orchestrator

import (
	"context"
	"sync"

	"github.com/JakeFAU/catalog-scraper/internal/crawler"
)

// stopReason records why the scheduler stopped handing out work.
type stopReason int

const (
	notStopped stopReason = iota
	stopDrained
	stopItemLimit
)

// scheduler hands candidates to workers, listings before items. A URL is
// scheduled at most once per run.
type scheduler struct {
	mu       sync.Mutex
	listings []crawler.CandidateURL
	items    []crawler.CandidateURL
	seen     map[string]struct{}
	inFlight map[string]crawler.CandidateURL
	visited  []string
	// itemBudget is the number of item pages still allowed; negative means
	// unlimited.
	itemBudget int
	stopped    stopReason
	wake       chan struct{}
}

// unlimited is the item budget of a crawl without --max-items.
const unlimited = -1

// itemBudget converts a crawl-wide item limit into the budget left after
// prior items of a resumed crawl. The limit bounds the whole crawl, not each
// invocation.
func itemBudget(maxItems, prior int) int {
	if maxItems <= 0 {
		return unlimited
	}
	return max(maxItems-prior, 0)
}

func newScheduler(budget int) *scheduler {
	return &scheduler{
		seen:       make(map[string]struct{}),
		inFlight:   make(map[string]crawler.CandidateURL),
		itemBudget: budget,
		wake:       make(chan struct{}),
	}
}

// restore loads a checkpoint: visited URLs are never scheduled again and
// pending ones are queued without re-admission.
func (s *scheduler) restore(visited []string, pending []crawler.CandidateURL) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range visited {
		s.seen[u] = struct{}{}
	}
	s.visited = append(s.visited, visited...)
	for _, c := range pending {
		if _, dup := s.seen[c.URL]; dup {
			continue
		}
		s.seen[c.URL] = struct{}{}
		s.enqueueLocked(c)
	}
	s.notifyLocked()
}

// claim marks rawURL as seen and reports whether it was new.
func (s *scheduler) claim(rawURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[rawURL]; dup {
		return false
	}
	s.seen[rawURL] = struct{}{}
	return true
}

// push queues a claimed candidate.
func (s *scheduler) push(c crawler.CandidateURL) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueLocked(c)
	s.notifyLocked()
}

func (s *scheduler) enqueueLocked(c crawler.CandidateURL) {
	if c.Kind == crawler.KindItem {
		s.items = append(s.items, c)
		return
	}
	s.listings = append(s.listings, c)
}

// next blocks until a candidate is available. It returns false once the
// queues are drained with nothing in flight, the item budget is spent, or
// ctx is done.
func (s *scheduler) next(ctx context.Context) (crawler.CandidateURL, bool) {
	for {
		if ctx.Err() != nil {
			return crawler.CandidateURL{}, false
		}
		s.mu.Lock()
		if s.stopped != notStopped {
			s.mu.Unlock()
			return crawler.CandidateURL{}, false
		}
		if c, ok := s.popLocked(); ok {
			s.inFlight[c.URL] = c
			s.mu.Unlock()
			return c, true
		}
		if len(s.inFlight) == 0 && len(s.listings) == 0 && len(s.items) == 0 {
			s.stopLocked(stopDrained)
			s.mu.Unlock()
			return crawler.CandidateURL{}, false
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return crawler.CandidateURL{}, false
		case <-wake:
		}
	}
}

func (s *scheduler) popLocked() (crawler.CandidateURL, bool) {
	if len(s.listings) > 0 {
		c := s.listings[0]
		s.listings = s.listings[1:]
		return c, true
	}
	if len(s.items) == 0 {
		return crawler.CandidateURL{}, false
	}
	if s.itemBudget == 0 {
		if len(s.inFlight) == 0 {
			s.stopLocked(stopItemLimit)
		}
		return crawler.CandidateURL{}, false
	}
	c := s.items[0]
	s.items = s.items[1:]
	if s.itemBudget > 0 {
		s.itemBudget--
	}
	return c, true
}

// finish releases an in-flight candidate. Unfinished candidates go back to
// the front of their queue so a checkpoint keeps them pending.
func (s *scheduler) finish(c crawler.CandidateURL, visited bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, c.URL)
	if visited {
		s.visited = append(s.visited, c.URL)
	} else if c.Kind == crawler.KindItem {
		s.items = append([]crawler.CandidateURL{c}, s.items...)
		if s.itemBudget >= 0 {
			s.itemBudget++
		}
	} else {
		s.listings = append([]crawler.CandidateURL{c}, s.listings...)
	}
	s.notifyLocked()
}

func (s *scheduler) stopLocked(reason stopReason) {
	if s.stopped == notStopped {
		s.stopped = reason
	}
	s.notifyLocked()
}

func (s *scheduler) notifyLocked() {
	close(s.wake)
	s.wake = make(chan struct{})
}

func (s *scheduler) reason() stopReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// snapshot returns the visited URLs and everything not yet finished.
func (s *scheduler) snapshot() (visited []string, pending []crawler.CandidateURL) {
	s.mu.Lock()
	defer s.mu.Unlock()
	visited = append([]string(nil), s.visited...)
	pending = make([]crawler.CandidateURL, 0, len(s.inFlight)+len(s.listings)+len(s.items))
	for _, c := range s.inFlight {
		pending = append(pending, c)
	}
	pending = append(pending, s.listings...)
	pending = append(pending, s.items...)
	return visited, pending
}
