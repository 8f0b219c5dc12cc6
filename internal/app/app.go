// Package app holds the long-lived services of one CLI invocation and wires
// them into a crawl run.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/admission"
	"github.com/JakeFAU/catalog-scraper/internal/config"
	"github.com/JakeFAU/catalog-scraper/internal/crawler"
	collyfetcher "github.com/JakeFAU/catalog-scraper/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/catalog-scraper/internal/fetcher/headless"
	"github.com/JakeFAU/catalog-scraper/internal/headless/detector"
	"github.com/JakeFAU/catalog-scraper/internal/logging"
	"github.com/JakeFAU/catalog-scraper/internal/metrics"
	"github.com/JakeFAU/catalog-scraper/internal/orchestrator"
	"github.com/JakeFAU/catalog-scraper/internal/pipeline"
	"github.com/JakeFAU/catalog-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/catalog-scraper/internal/site"
	"github.com/JakeFAU/catalog-scraper/internal/state"
	"github.com/JakeFAU/catalog-scraper/internal/storage"
	"github.com/JakeFAU/catalog-scraper/internal/storage/postgres"
	"github.com/JakeFAU/catalog-scraper/internal/worker"
)

// CatalogOpener connects to the product catalog. The returned func releases it.
type CatalogOpener func(ctx context.Context, cfg postgres.Config) (storage.Catalog, func(), error)

// App holds the configuration and logger shared by every command.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	openCatalog CatalogOpener
}

// New loads configuration from cfgPath (plus environment) and builds the
// logger. A non-empty logLevel overrides logging.level.
func New(cfgPath, logLevel string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return NewWithConfig(cfg, logger), nil
}

// NewWithConfig builds an App from an already loaded configuration.
func NewWithConfig(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, logger: logger, openCatalog: openPostgres}
}

// Config returns the resolved configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// StateStore opens the resumable state directory.
func (a *App) StateStore() (*state.Store, error) {
	store, err := state.New(a.cfg.State.Dir)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return store, nil
}

// Close flushes the logger.
func (a *App) Close() {
	// Sync fails on terminals; nothing useful can be done about it.
	_ = a.logger.Sync()
}

// RunOptions are the per-invocation flags of the run command.
type RunOptions struct {
	Site     string
	NoResume bool
	// DryRun disables duplicate filtering and the update policy; writes
	// still happen.
	DryRun   bool
	MaxItems int
}

// Run crawls one configured site and returns its summary.
func (a *App) Run(ctx context.Context, opts RunOptions) (orchestrator.Summary, error) {
	target, err := a.cfg.Target(opts.Site)
	if err != nil {
		return orchestrator.Summary{}, err
	}
	siteCfg, err := a.cfg.Site(opts.Site)
	if err != nil {
		return orchestrator.Summary{}, err
	}
	if opts.NoResume {
		target.Resume = false
	}
	if opts.MaxItems > 0 {
		target.MaxItems = opts.MaxItems
	}
	dedup := a.cfg.Pipeline.DedupEnabled && !opts.DryRun
	update := a.cfg.Pipeline.UpdateExisting && !opts.DryRun
	logger := a.logger.With(zap.String("site", target.Site))

	adapter, err := site.New(target, siteCfg, logger)
	if err != nil {
		return orchestrator.Summary{}, err
	}
	classifier, err := admission.NewClassifier(adapter.Patterns())
	if err != nil {
		return orchestrator.Summary{}, fmt.Errorf("site %s: %w", target.Site, err)
	}

	catalog, closeCatalog, err := a.openCatalog(ctx, postgres.Config{
		DSN:             a.cfg.DB.DSN,
		ProductsTable:   a.cfg.DB.ProductsTable,
		StoresTable:     a.cfg.DB.StoresTable,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetimeSeconds) * time.Second,
	})
	if err != nil {
		return orchestrator.Summary{}, fmt.Errorf("open catalog: %w", err)
	}
	defer closeCatalog()

	stateStore, err := a.StateStore()
	if err != nil {
		return orchestrator.Summary{}, err
	}

	metrics.Init()
	if a.cfg.Metrics.Addr != "" {
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		defer stopMetrics()
		go func() {
			if err := metrics.Serve(metricsCtx, a.cfg.Metrics.Addr, logger); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	fetch, closeFetch := a.buildWorker(adapter, target, logger)
	defer closeFetch()

	orch, err := orchestrator.New(orchestrator.Deps{
		Navigator: adapter,
		Fetcher:   fetch,
		Admission: admission.NewFilter(classifier, catalog, admission.Options{
			Site:         target.Site,
			DedupEnabled: dedup,
			Logger:       logger,
		}),
		Pipeline: pipeline.New(catalog, pipeline.Options{
			Site:           target.Site,
			DedupEnabled:   dedup,
			UpdateExisting: update,
			Logger:         logger,
		}),
		State: stateStore,
	}, orchestrator.Options{
		Target:          target,
		CheckpointEvery: a.cfg.State.CheckpointEvery,
		KeepOnComplete:  a.cfg.State.KeepOnComplete,
	}, logger)
	if err != nil {
		return orchestrator.Summary{}, err
	}
	logger.Info("starting run",
		zap.Bool("dry_run", opts.DryRun),
		zap.Bool("dedup", dedup),
		zap.Bool("update_existing", update),
		zap.Bool("resume", target.Resume),
		zap.Int("max_items", target.MaxItems),
	)
	return orch.Run(ctx)
}

// buildWorker assembles the fetch stage. The returned func releases the
// browser when one was started.
func (a *App) buildWorker(adapter site.Adapter, target crawler.CrawlTarget, logger *zap.Logger) (*worker.Worker, func()) {
	cfg := a.cfg
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})

	release := func() {}
	var headless crawler.Fetcher = headlessfetcher.Disabled{}
	headlessEnabled := false
	if cfg.Headless.Enabled {
		browser, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			ClickWait:         time.Duration(cfg.Headless.ClickWaitMs) * time.Millisecond,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed; static fetches only", zap.Error(err))
		} else {
			headless = browser
			headlessEnabled = true
			release = browser.Close
		}
	}

	loadMore := adapter.LoadMore()
	loadMore.Wait = time.Duration(cfg.Headless.ClickWaitMs) * time.Millisecond

	w := worker.New(worker.Deps{
		Probe:    probe,
		Headless: headless,
		Detector: detector.NewHeuristic(cfg.Headless.PromotionThresh, adapter.ReadySelectors()...),
		Robots:   crawler.NewRobotsEnforcer(cfg.Crawler.RespectRobots, cfg.Crawler.UserAgent, cfg.FetchTimeout(), logger),
		Pacer: ratelimit.New(ratelimit.Config{
			MinDelay: target.MinDelay,
			MaxDelay: target.MaxDelay,
		}),
		Retry: crawler.NewExponentialRetryPolicy(cfg.RetryConfig()),
	}, worker.Config{
		HeadlessEnabled: headlessEnabled,
		LoadMore:        loadMore,
	}, logger)
	return w, release
}

func openPostgres(ctx context.Context, cfg postgres.Config) (storage.Catalog, func(), error) {
	store, err := postgres.NewCatalogStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}
