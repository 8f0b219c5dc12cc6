package admission

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/catalog-scraper/internal/crawler"
	"github.com/JakeFAU/catalog-scraper/internal/metrics"
)

// Lookup answers whether a product URL is already in the catalog, for any store.
type Lookup interface {
	URLExists(ctx context.Context, sourceURL string) (bool, error)
}

// Counters summarise the filter's decisions for one run.
type Counters struct {
	New          int
	Existing     int
	Listings     int
	LookupErrors int
}

// Options configure a Filter.
type Options struct {
	Site         string
	DedupEnabled bool
	Logger       *zap.Logger
}

// Filter implements crawler.AdmissionPolicy against the catalog.
type Filter struct {
	classifier *Classifier
	lookup     Lookup
	site       string
	dedup      bool
	logger     *zap.Logger

	inflight singleflight.Group

	mu       sync.Mutex
	cache    map[string]bool
	counters Counters
}

var _ crawler.AdmissionPolicy = (*Filter)(nil)

// NewFilter builds a Filter. lookup may be nil only when dedup is disabled.
func NewFilter(classifier *Classifier, lookup Lookup, opts Options) *Filter {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if classifier == nil {
		classifier = &Classifier{}
	}
	return &Filter{
		classifier: classifier,
		lookup:     lookup,
		site:       opts.Site,
		dedup:      opts.DedupEnabled && lookup != nil,
		logger:     logger.Named("admission"),
		cache:      make(map[string]bool),
	}
}

// Classify exposes the filter's classifier.
func (f *Filter) Classify(rawURL string) crawler.URLKind {
	return f.classifier.Classify(rawURL)
}

// Admit classifies rawURL and reports whether it should be fetched.
func (f *Filter) Admit(ctx context.Context, rawURL string) bool {
	return f.AdmitKind(ctx, rawURL, f.classifier.Classify(rawURL))
}

// AdmitKind is Admit for a URL whose kind the caller already decided.
// Listings are always admitted; items are admitted unless the catalog
// already holds them.
func (f *Filter) AdmitKind(ctx context.Context, rawURL string, kind crawler.URLKind) bool {
	if kind != crawler.KindItem {
		f.record("listing", func(c *Counters) { c.Listings++ })
		return true
	}
	if !f.dedup {
		f.record("new", func(c *Counters) { c.New++ })
		return true
	}

	key := rawURL
	if normalized, err := crawler.NormalizeURL(rawURL); err == nil {
		key = normalized
	}
	if admit, cached := f.cached(key); cached {
		return admit
	}
	// Concurrent first lookups of one URL share a single catalog query.
	v, _, _ := f.inflight.Do(key, func() (any, error) {
		return f.lookupItem(ctx, key), nil
	})
	return v.(bool)
}

func (f *Filter) cached(key string) (admit, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	admit, ok = f.cache[key]
	return admit, ok
}

// lookupItem queries the catalog once per key and caches the answer. A
// failed lookup admits the URL and is not cached.
func (f *Filter) lookupItem(ctx context.Context, key string) bool {
	if admit, ok := f.cached(key); ok {
		return admit
	}
	exists, err := f.lookup.URLExists(ctx, key)
	if err != nil {
		f.logger.Warn("url lookup failed, admitting",
			zap.String("site", f.site),
			zap.String("url", key),
			zap.Error(err),
		)
		f.record("lookup_error", func(c *Counters) { c.LookupErrors++ })
		return true
	}

	f.mu.Lock()
	f.cache[key] = !exists
	if exists {
		f.counters.Existing++
	} else {
		f.counters.New++
	}
	f.mu.Unlock()

	if exists {
		metrics.ObserveAdmission(f.site, "existing")
		f.logger.Debug("skipping known item", zap.String("site", f.site), zap.String("url", key))
		return false
	}
	metrics.ObserveAdmission(f.site, "new")
	return true
}

// Counters returns a snapshot of the decision counts.
func (f *Filter) Counters() Counters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters
}

func (f *Filter) record(decision string, bump func(*Counters)) {
	f.mu.Lock()
	bump(&f.counters)
	f.mu.Unlock()
	metrics.ObserveAdmission(f.site, decision)
}
