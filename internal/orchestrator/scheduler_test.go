package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-scraper/internal/crawler"
)

func listing(u string) crawler.CandidateURL {
	return crawler.CandidateURL{URL: u, Kind: crawler.KindListing}
}

func item(u string) crawler.CandidateURL {
	return crawler.CandidateURL{URL: u, Kind: crawler.KindItem}
}

func schedule(s *scheduler, cs ...crawler.CandidateURL) {
	for _, c := range cs {
		if s.claim(c.URL) {
			s.push(c)
		}
	}
}

func TestSchedulerListingsFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newScheduler(unlimited)
	schedule(s, item("https://x.test/p/1"), listing("https://x.test/c/a"), item("https://x.test/p/2"))

	var order []string
	for {
		c, ok := s.next(ctx)
		if !ok {
			break
		}
		order = append(order, c.URL)
		s.finish(c, true)
	}
	assert.Equal(t, []string{"https://x.test/c/a", "https://x.test/p/1", "https://x.test/p/2"}, order)
	assert.Equal(t, stopDrained, s.reason())
}

func TestSchedulerClaimOnce(t *testing.T) {
	t.Parallel()
	s := newScheduler(unlimited)
	assert.True(t, s.claim("https://x.test/p/1"))
	assert.False(t, s.claim("https://x.test/p/1"))
}

func TestSchedulerWaitsForInFlight(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newScheduler(unlimited)
	schedule(s, listing("https://x.test/c/a"))

	first, ok := s.next(ctx)
	require.True(t, ok)

	got := make(chan crawler.CandidateURL, 1)
	go func() {
		c, ok := s.next(ctx)
		if ok {
			got <- c
		}
		close(got)
	}()

	// The in-flight listing discovers an item before finishing.
	schedule(s, item("https://x.test/p/1"))
	s.finish(first, true)

	select {
	case c := <-got:
		assert.Equal(t, "https://x.test/p/1", c.URL)
	case <-time.After(time.Second):
		t.Fatal("waiting worker was not woken")
	}
}

func TestSchedulerItemBudget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newScheduler(2)
	schedule(s, item("https://x.test/p/1"), item("https://x.test/p/2"), item("https://x.test/p/3"))

	for range 2 {
		c, ok := s.next(ctx)
		require.True(t, ok)
		s.finish(c, true)
	}
	_, ok := s.next(ctx)
	assert.False(t, ok)
	assert.Equal(t, stopItemLimit, s.reason())

	visited, pending := s.snapshot()
	assert.Len(t, visited, 2)
	assert.Equal(t, []crawler.CandidateURL{item("https://x.test/p/3")}, pending)
}

func TestSchedulerUnfinishedStaysPending(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	s := newScheduler(unlimited)
	schedule(s, item("https://x.test/p/1"))

	c, ok := s.next(ctx)
	require.True(t, ok)
	_, pending := s.snapshot()
	assert.Len(t, pending, 1, "in-flight candidates are pending")

	cancel()
	s.finish(c, false)
	_, ok = s.next(ctx)
	assert.False(t, ok)

	visited, pending := s.snapshot()
	assert.Empty(t, visited)
	assert.Equal(t, []crawler.CandidateURL{c}, pending)
}

func TestSchedulerRestore(t *testing.T) {
	t.Parallel()
	s := newScheduler(unlimited)
	s.restore(
		[]string{"https://x.test/c/a"},
		[]crawler.CandidateURL{item("https://x.test/p/1"), listing("https://x.test/c/a")},
	)

	assert.False(t, s.claim("https://x.test/c/a"))
	assert.False(t, s.claim("https://x.test/p/1"))

	c, ok := s.next(context.Background())
	require.True(t, ok)
	assert.Equal(t, "https://x.test/p/1", c.URL)
}

func TestItemBudgetCountsPriorItems(t *testing.T) {
	t.Parallel()
	assert.Equal(t, unlimited, itemBudget(0, 5))
	assert.Equal(t, 3, itemBudget(5, 2))
	assert.Equal(t, 0, itemBudget(2, 2))
	assert.Equal(t, 0, itemBudget(2, 7))
}

func TestSchedulerSpentBudgetKeepsItemsPending(t *testing.T) {
	t.Parallel()
	s := newScheduler(0)
	schedule(s, item("https://x.test/p/1"), listing("https://x.test/c/a"))

	c, ok := s.next(context.Background())
	require.True(t, ok, "listings are still expanded")
	assert.Equal(t, "https://x.test/c/a", c.URL)
	s.finish(c, true)

	_, ok = s.next(context.Background())
	assert.False(t, ok)
	assert.Equal(t, stopItemLimit, s.reason())
	_, pending := s.snapshot()
	assert.Equal(t, []crawler.CandidateURL{item("https://x.test/p/1")}, pending)
}
