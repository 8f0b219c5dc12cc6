// Package site holds the per-retailer navigation and extraction adapters.
// Every adapter is a Profile of selectors and URL patterns for one commerce
// platform, bound to a configured site and run by the shared Navigator.
package site

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/config"
	"github.com/JakeFAU/catalog-scraper/internal/crawler"
	"github.com/JakeFAU/catalog-scraper/internal/extract"
)

// Defaults applied when a site leaves the interaction bounds unset.
const (
	DefaultLoadMoreClicks = 3
	DefaultItemCap        = 40
)

// ErrUnknownPlatform is returned for a platform with no adapter.
var ErrUnknownPlatform = errors.New("unknown platform")

// Adapter navigates and extracts one retailer.
type Adapter interface {
	Name() string
	// Seed returns the configured entry points.
	Seed() []crawler.CandidateURL
	// Expand returns the listing and item URLs discovered on a listing page.
	Expand(page *crawler.Page) []crawler.CandidateURL
	// Extract builds a record from an item page; false when no name is found.
	Extract(page *crawler.Page) (*crawler.ExtractedRecord, bool)
	// LoadMore describes the listing pages' load-more control.
	LoadMore() crawler.LoadMore
	// Patterns returns the site's listing and item URL regexes.
	Patterns() (listing, item []string)
	// ReadySelectors match elements present once a page has rendered.
	ReadySelectors() []string
	// CategoryCounts and RestoreCategoryCounts carry the per-category item
	// cap across checkpoints.
	CategoryCounts() map[string]int
	RestoreCategoryCounts(counts map[string]int)
}

// Profile is everything platform specific about navigating a storefront.
type Profile struct {
	Platform string
	// Root must be present on a listing page for it to be expanded.
	Root          string
	CategoryLinks []string
	ItemLinks     []string
	NextPage      []string

	Name        extract.Cascade
	Price       extract.Cascade
	Description extract.Cascade
	Image       extract.Cascade

	ListingPatterns []string
	ItemPatterns    []string

	LoadMoreSelector string
	Scroll           bool

	// CanonicalItem rewrites an item URL to the form the catalog stores.
	CanonicalItem func(string) string
}

var platforms = map[string]func() Profile{
	"shopify":     Shopify,
	"woocommerce": WooCommerce,
	"vtex":        VTEX,
	"generic":     Generic,
}

// Platforms lists the supported platform names.
func Platforms() []string {
	names := make([]string, 0, len(platforms))
	for name := range platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New binds the platform adapter named by cfg.Platform to a configured site.
func New(target crawler.CrawlTarget, cfg config.SiteConfig, logger *zap.Logger) (Adapter, error) {
	platform := strings.ToLower(strings.TrimSpace(cfg.Platform))
	if platform == "" {
		platform = "generic"
	}
	build, ok := platforms[platform]
	if !ok {
		return nil, fmt.Errorf("site %s: %w: %q", target.Site, ErrUnknownPlatform, cfg.Platform)
	}
	profile := applyOverrides(build(), cfg)
	if logger == nil {
		logger = zap.NewNop()
	}
	return newNavigator(target, profile, cfg, logger), nil
}

func applyOverrides(p Profile, cfg config.SiteConfig) Profile {
	sel := cfg.Selectors
	if sel.Root != "" {
		p.Root = sel.Root
	}
	p.CategoryLinks = prepend(sel.CategoryLinks, p.CategoryLinks)
	p.ItemLinks = prepend(sel.ItemLinks, p.ItemLinks)
	p.NextPage = prepend(sel.NextPage, p.NextPage)
	p.Name = p.Name.With(sel.Name...)
	p.Price = p.Price.With(sel.Price...)
	p.Description = p.Description.With(sel.Description...)
	p.Image = p.Image.With(sel.Image...)
	p.ListingPatterns = prepend(cfg.ListingPatterns, p.ListingPatterns)
	p.ItemPatterns = prepend(cfg.ItemPatterns, p.ItemPatterns)
	if cfg.LoadMoreSelector != "" {
		p.LoadMoreSelector = cfg.LoadMoreSelector
	}
	return p
}

func prepend(first, rest []string) []string {
	if len(first) == 0 {
		return rest
	}
	return append(append([]string(nil), first...), rest...)
}
