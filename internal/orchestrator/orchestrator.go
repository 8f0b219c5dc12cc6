// Package orchestrator drives one crawl run: it seeds the scheduler, fans
// work out to fetch workers, routes listing pages to the navigator and item
// pages through extraction into the pipeline, and checkpoints resumable
// state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/catalog-scraper/internal/admission"
	"github.com/JakeFAU/catalog-scraper/internal/crawler"
	"github.com/JakeFAU/catalog-scraper/internal/metrics"
	"github.com/JakeFAU/catalog-scraper/internal/pipeline"
	"github.com/JakeFAU/catalog-scraper/internal/state"
)

// Navigator discovers URLs and extracts records for one site.
type Navigator interface {
	Seed() []crawler.CandidateURL
	Expand(page *crawler.Page) []crawler.CandidateURL
	Extract(page *crawler.Page) (*crawler.ExtractedRecord, bool)
}

// PageFetcher fetches a candidate with politeness and retries applied.
type PageFetcher interface {
	Fetch(ctx context.Context, c crawler.CandidateURL) (*crawler.Page, error)
}

// CategoryCounter is implemented by navigators that cap items per category.
// Its counts are checkpointed with the crawl state.
type CategoryCounter interface {
	CategoryCounts() map[string]int
	RestoreCategoryCounts(counts map[string]int)
}

// Admission is the admission policy plus its counters. The orchestrator
// admits with the navigator's kind so URLs are never reclassified.
type Admission interface {
	crawler.AdmissionPolicy
	Counters() admission.Counters
}

// Processor persists extracted records.
type Processor interface {
	Process(ctx context.Context, rec crawler.ExtractedRecord) pipeline.Outcome
	// Known counts an item skipped because it is already persisted.
	Known()
	Counters() pipeline.Counters
}

// Deps are the collaborators of a run.
type Deps struct {
	Navigator Navigator
	Fetcher   PageFetcher
	Admission Admission
	Pipeline  Processor
	// State is optional; without it the run neither resumes nor checkpoints.
	State *state.Store
	Clock crawler.Clock
}

// Options tune a run.
type Options struct {
	Target          crawler.CrawlTarget
	RunID           string
	CheckpointEvery int
	KeepOnComplete  bool
}

// Orchestrator runs one crawl.
type Orchestrator struct {
	deps   Deps
	opts   Options
	clock  crawler.Clock
	logger *zap.Logger

	mu         sync.Mutex
	fetch      FetchCounters
	sinceCheck int
	priorItems int

	checkpointMu sync.Mutex
	crawlState   *state.CrawlState
}

// New validates deps and builds an Orchestrator.
func New(deps Deps, opts Options, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Navigator == nil || deps.Fetcher == nil || deps.Admission == nil || deps.Pipeline == nil {
		return nil, errors.New("orchestrator: navigator, fetcher, admission and pipeline are required")
	}
	if opts.RunID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate run id: %w", err)
		}
		opts.RunID = id.String()
	}
	if opts.Target.Concurrency <= 0 {
		opts.Target.Concurrency = 1
	}
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = 25
	}
	clock := deps.Clock
	if clock == nil {
		clock = crawler.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		deps:  deps,
		opts:  opts,
		clock: clock,
		logger: logger.Named("orchestrator").With(
			zap.String("site", opts.Target.Site),
			zap.String("run_id", opts.RunID),
		),
	}, nil
}

// Run crawls until the queues drain, the item limit is reached or ctx is
// cancelled. Cancellation checkpoints state and returns ctx's error along
// with the partial summary.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	summary := Summary{
		RunID:     o.opts.RunID,
		Site:      o.opts.Target.Site,
		StartedAt: o.clock.Now(),
	}

	prior, err := o.loadState()
	if err != nil {
		return summary, err
	}
	if prior != nil {
		o.priorItems = prior.ItemsProcessed
	}
	sched := newScheduler(itemBudget(o.opts.Target.MaxItems, o.priorItems))
	if prior != nil {
		summary.Resumed = true
		sched.restore(prior.Visited, prior.Pending)
		if counter, ok := o.deps.Navigator.(CategoryCounter); ok {
			counter.RestoreCategoryCounts(prior.CategoryItems)
		}
		o.crawlState = prior
		o.crawlState.RunID = o.opts.RunID
		o.logger.Info("resuming crawl",
			zap.Int("visited", len(prior.Visited)),
			zap.Int("pending", len(prior.Pending)),
			zap.Int("items_processed", prior.ItemsProcessed),
		)
	} else {
		o.crawlState = &state.CrawlState{
			Site:      o.opts.Target.Site,
			RunID:     o.opts.RunID,
			StartedAt: summary.StartedAt,
		}
		for _, c := range o.deps.Navigator.Seed() {
			o.enqueue(ctx, sched, c)
		}
	}

	o.logger.Info("crawl started", zap.Int("concurrency", o.opts.Target.Concurrency))
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < o.opts.Target.Concurrency; i++ {
		g.Go(func() error {
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			for {
				c, ok := sched.next(gctx)
				if !ok {
					return nil
				}
				visited := o.handle(gctx, sched, c)
				sched.finish(c, visited)
				o.maybeCheckpoint(sched)
			}
		})
	}
	runErr := g.Wait()

	summary.FinishedAt = o.clock.Now()
	summary.Fetch = o.fetchCounters()
	summary.Admission = o.deps.Admission.Counters()
	summary.Pipeline = o.deps.Pipeline.Counters()

	switch {
	case ctx.Err() != nil:
		summary.Status = StatusInterrupted
		runErr = ctx.Err()
	case sched.reason() == stopItemLimit:
		summary.Status = StatusItemLimit
	default:
		summary.Status = StatusCompleted
	}

	if err := o.finalizeState(sched, summary.Status); err != nil {
		o.logger.Error("saving crawl state failed", zap.Error(err))
	}
	o.logger.Info("crawl finished",
		zap.String("status", string(summary.Status)),
		zap.Duration("elapsed", summary.Elapsed()),
		zap.Int("pages", summary.Fetch.Pages),
		zap.Int("created", summary.Pipeline.Created),
		zap.Int("updated", summary.Pipeline.Updated),
	)
	if runErr != nil {
		return summary, fmt.Errorf("crawl %s: %w", o.opts.Target.Site, runErr)
	}
	return summary, nil
}

// handle fetches and processes one candidate. It reports whether the
// candidate is finished; false leaves it pending for the next run.
func (o *Orchestrator) handle(ctx context.Context, sched *scheduler, c crawler.CandidateURL) bool {
	logger := o.logger.With(zap.String("url", c.URL), zap.String("kind", string(c.Kind)))
	page, err := o.deps.Fetcher.Fetch(ctx, c)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return false
		case errors.Is(err, crawler.ErrRobotsDisallowed):
			logger.Info("skipping url disallowed by robots.txt")
			o.count(func(f *FetchCounters) { f.Skipped++ })
		default:
			logger.Warn("abandoning url", zap.Error(err))
			o.count(func(f *FetchCounters) { f.Failed++ })
		}
		return true
	}

	if c.Kind == crawler.KindListing {
		o.count(func(f *FetchCounters) { f.Pages++; f.Listings++ })
		discovered := o.deps.Navigator.Expand(page)
		for _, next := range discovered {
			o.enqueue(ctx, sched, next)
		}
		logger.Debug("listing expanded", zap.Int("discovered", len(discovered)))
		return true
	}

	o.count(func(f *FetchCounters) { f.Pages++; f.Items++ })
	rec, ok := o.deps.Navigator.Extract(page)
	if !ok {
		o.count(func(f *FetchCounters) { f.NoRecord++ })
		return true
	}
	outcome := o.deps.Pipeline.Process(ctx, *rec)
	logger.Debug("item processed", zap.String("outcome", string(outcome)))
	return true
}

// enqueue schedules c once per run; items must pass admission first.
func (o *Orchestrator) enqueue(ctx context.Context, sched *scheduler, c crawler.CandidateURL) {
	if !sched.claim(c.URL) {
		return
	}
	if c.Kind == crawler.KindItem && !o.deps.Admission.AdmitKind(ctx, c.URL, c.Kind) {
		o.deps.Pipeline.Known()
		return
	}
	sched.push(c)
}

func (o *Orchestrator) count(bump func(*FetchCounters)) {
	o.mu.Lock()
	bump(&o.fetch)
	o.mu.Unlock()
}

func (o *Orchestrator) fetchCounters() FetchCounters {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fetch
}

func (o *Orchestrator) loadState() (*state.CrawlState, error) {
	store := o.deps.State
	site := o.opts.Target.Site
	if store == nil {
		return nil, nil
	}
	if !o.opts.Target.Resume {
		if err := store.Clear(site); err != nil {
			return nil, fmt.Errorf("clear state: %w", err)
		}
		return nil, nil
	}
	st, err := store.Load(site)
	switch {
	case errors.Is(err, state.ErrNoState):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load state: %w", err)
	case st.Completed:
		o.logger.Info("previous crawl completed; starting fresh")
		return nil, nil
	}
	return st, nil
}

func (o *Orchestrator) maybeCheckpoint(sched *scheduler) {
	if o.deps.State == nil {
		return
	}
	o.mu.Lock()
	o.sinceCheck++
	due := o.sinceCheck >= o.opts.CheckpointEvery
	if due {
		o.sinceCheck = 0
	}
	o.mu.Unlock()
	if !due {
		return
	}
	if err := o.checkpoint(sched, false); err != nil {
		o.logger.Warn("checkpoint failed", zap.Error(err))
	}
}

func (o *Orchestrator) checkpoint(sched *scheduler, completed bool) error {
	o.checkpointMu.Lock()
	defer o.checkpointMu.Unlock()
	visited, pending := sched.snapshot()
	st := o.crawlState
	st.Visited = visited
	st.Pending = pending
	st.Completed = completed
	st.ItemsProcessed = o.itemsProcessed()
	if counter, ok := o.deps.Navigator.(CategoryCounter); ok {
		st.CategoryItems = counter.CategoryCounts()
	}
	if err := o.deps.State.Save(st); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	o.logger.Debug("checkpoint saved", zap.Int("visited", len(visited)), zap.Int("pending", len(pending)))
	return nil
}

func (o *Orchestrator) itemsProcessed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.priorItems + o.fetch.Items
}

func (o *Orchestrator) finalizeState(sched *scheduler, status Status) error {
	store := o.deps.State
	if store == nil {
		return nil
	}
	if status != StatusCompleted {
		return o.checkpoint(sched, false)
	}
	if o.opts.KeepOnComplete {
		return o.checkpoint(sched, true)
	}
	if err := store.Clear(o.opts.Target.Site); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}
