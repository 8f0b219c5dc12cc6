package site

import (
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/config"
	"github.com/JakeFAU/catalog-scraper/internal/crawler"
	"github.com/JakeFAU/catalog-scraper/internal/extract"
)

// Navigator runs a Profile for one configured site.
type Navigator struct {
	name          string
	profile       Profile
	seeds         []string
	categoryPaths []string
	storeID       int64
	domains       *crawler.DomainMatcher
	loadMore      crawler.LoadMore
	itemCap       int
	logger        *zap.Logger

	mu sync.Mutex
	// categoryItems counts item links emitted per category root, across
	// every page of that category.
	categoryItems map[string]int
}

var _ Adapter = (*Navigator)(nil)

func newNavigator(target crawler.CrawlTarget, profile Profile, cfg config.SiteConfig, logger *zap.Logger) *Navigator {
	clicks := target.LoadMoreClicks
	if clicks == 0 {
		clicks = DefaultLoadMoreClicks
	}
	itemCap := target.PerCategoryItemCap
	if itemCap == 0 {
		itemCap = DefaultItemCap
	}
	lm := crawler.LoadMore{Selector: profile.LoadMoreSelector, MaxClicks: clicks, Scroll: profile.Scroll}
	return &Navigator{
		name:          target.Site,
		profile:       profile,
		seeds:         target.Seeds,
		categoryPaths: cfg.CategoryPaths,
		storeID:       target.StoreID,
		domains:       crawler.NewDomainMatcher(target.AllowedDomains),
		loadMore:      lm,
		itemCap:       itemCap,
		logger:        logger.Named("site").With(zap.String("site", target.Site), zap.String("platform", profile.Platform)),
		categoryItems: make(map[string]int),
	}
}

// Name returns the configured site name.
func (n *Navigator) Name() string { return n.name }

// LoadMore describes the listing pages' load-more control.
func (n *Navigator) LoadMore() crawler.LoadMore { return n.loadMore }

// Patterns returns the site's listing and item URL regexes.
func (n *Navigator) Patterns() (listing, item []string) {
	return n.profile.ListingPatterns, n.profile.ItemPatterns
}

// ReadySelectors match elements present once a page has rendered: product
// links on listings, the title on product pages.
func (n *Navigator) ReadySelectors() []string {
	out := append([]string(nil), n.profile.ItemLinks...)
	return append(out, n.profile.Name.CSS...)
}

// Seed returns the configured entry points as depth-0 listings.
func (n *Navigator) Seed() []crawler.CandidateURL {
	out := make([]crawler.CandidateURL, 0, len(n.seeds))
	for _, seed := range n.seeds {
		normalized, err := crawler.NormalizeURL(seed)
		if err != nil {
			n.logger.Warn("skipping invalid seed", zap.String("url", seed), zap.Error(err))
			continue
		}
		out = append(out, crawler.CandidateURL{URL: normalized, Kind: crawler.KindListing})
	}
	return out
}

// Expand discovers category, pagination and item links on a listing page.
// When several selectors match one URL, item beats pagination and pagination
// beats category. Items are capped per category across all of its pages;
// category links fall back to the static category paths when the page
// offers none.
func (n *Navigator) Expand(page *crawler.Page) []crawler.CandidateURL {
	if page == nil || page.Candidate.Kind == crawler.KindItem {
		return nil
	}
	logger := n.logger.With(zap.String("url", page.URL))
	if page.StatusCode >= http.StatusBadRequest {
		logger.Info("not expanding failed page", zap.Int("status", page.StatusCode))
		return nil
	}
	doc, err := page.Document()
	if err != nil {
		logger.Warn("listing page did not parse", zap.Error(err))
		return nil
	}
	if !extract.HasRoot(doc, n.profile.Root) {
		logger.Warn("listing root missing", zap.String("root", n.profile.Root))
		return nil
	}

	base := page.BaseURL()
	depth := page.Candidate.Depth + 1
	root := page.Candidate.Category
	if root == "" {
		root = page.URL
	}
	seen := map[string]struct{}{page.URL: {}}
	fresh := func(u string) bool {
		if !n.domains.Allows(u) {
			return false
		}
		if _, dup := seen[u]; dup {
			return false
		}
		seen[u] = struct{}{}
		return true
	}
	var out []crawler.CandidateURL
	emit := func(u string, kind crawler.URLKind, category string) {
		out = append(out, crawler.CandidateURL{URL: u, Kind: kind, Referrer: page.URL, Category: category, Depth: depth})
	}

	itemLinks := extract.Links(doc, base, n.profile.ItemLinks...)
	claimed := make(map[string]struct{}, len(itemLinks))
	for _, u := range itemLinks {
		claimed[u] = struct{}{}
	}
	var pages []string
	for _, u := range extract.PaginationLinks(doc, base, n.profile.NextPage...) {
		if _, ok := claimed[u]; !ok {
			claimed[u] = struct{}{}
			pages = append(pages, u)
		}
	}
	var categories []string
	for _, u := range extract.Links(doc, base, n.profile.CategoryLinks...) {
		if _, ok := claimed[u]; !ok {
			categories = append(categories, u)
		}
	}
	if len(categories) == 0 {
		categories = n.fallbackCategories(base)
		logger.Debug("no category links found, using static paths", zap.Int("paths", len(categories)))
	}

	for _, u := range categories {
		if fresh(u) {
			emit(u, crawler.KindListing, "")
		}
	}
	for _, u := range pages {
		if fresh(u) {
			emit(u, crawler.KindListing, root)
		}
	}

	for _, u := range itemLinks {
		if n.profile.CanonicalItem != nil {
			u = n.profile.CanonicalItem(u)
		}
		if !fresh(u) {
			continue
		}
		if !n.reserveItem(root) {
			logger.Debug("per-category item cap reached", zap.String("category", root), zap.Int("cap", n.itemCap))
			break
		}
		emit(u, crawler.KindItem, root)
	}
	if len(out) == 0 {
		logger.Info("listing page yielded no links")
	}
	return out
}

// reserveItem takes one of the category's item slots.
func (n *Navigator) reserveItem(root string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.itemCap > 0 && n.categoryItems[root] >= n.itemCap {
		return false
	}
	n.categoryItems[root]++
	return true
}

// CategoryCounts returns a copy of the per-category item counts.
func (n *Navigator) CategoryCounts() map[string]int {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]int, len(n.categoryItems))
	for k, v := range n.categoryItems {
		out[k] = v
	}
	return out
}

// RestoreCategoryCounts seeds the per-category item counts from a checkpoint.
func (n *Navigator) RestoreCategoryCounts(counts map[string]int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for k, v := range counts {
		n.categoryItems[k] = v
	}
}

func (n *Navigator) fallbackCategories(base string) []string {
	out := make([]string, 0, len(n.categoryPaths))
	for _, p := range n.categoryPaths {
		abs, err := crawler.ResolveReference(base, "/"+strings.TrimPrefix(p, "/"))
		if err == nil {
			out = append(out, abs)
		}
	}
	return out
}

// Extract builds a record from an item page.
func (n *Navigator) Extract(page *crawler.Page) (*crawler.ExtractedRecord, bool) {
	if page == nil || page.StatusCode >= http.StatusBadRequest {
		return nil, false
	}
	doc, err := page.Document()
	if err != nil {
		n.logger.Warn("item page did not parse", zap.String("url", page.URL), zap.Error(err))
		return nil, false
	}
	src := extract.NewSource(doc, page.Body)
	name := n.profile.Name.Run(src)
	if name == "" {
		n.logger.Info("no product name found", zap.String("url", page.URL))
		return nil, false
	}
	return &crawler.ExtractedRecord{
		Name:        name,
		Price:       extract.ParsePrice(n.profile.Price.Run(src)),
		Description: n.profile.Description.Run(src),
		ImageURL:    extract.ResolveImageURL(page.BaseURL(), n.profile.Image.Run(src)),
		SourceURL:   page.URL,
		StoreID:     n.storeID,
	}, true
}
