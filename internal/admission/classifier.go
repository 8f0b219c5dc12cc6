// Package admission decides which discovered URLs are fetched. Listing pages
// are always admitted; item pages already present in the catalog are not.
package admission

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/JakeFAU/catalog-scraper/internal/crawler"
)

var (
	listingSegments = set("category", "categories", "collections", "collection", "c", "search",
		"buscar", "busca", "department", "departments", "departamento", "shop", "tienda", "catalog",
		"catalogo", "product-category")
	listingQueryKeys = set("page", "p", "q", "sort", "order", "orderby", "filter", "s", "map")
	itemSegments     = set("product", "products", "producto", "productos", "item", "items", "p", "dp", "sku")
	itemQueryKeys    = set("sku", "pid", "productid", "variant", "product_id", "skuid")
	fragmentMarkers  = []string{"page", "category", "filter", "sort", "search"}
)

// itemDepth is the segment count at which an unmatched path is assumed to be
// a product page.
const itemDepth = 3

// Classifier labels URLs as listing or item pages.
type Classifier struct {
	listing []*regexp.Regexp
	item    []*regexp.Regexp
}

// NewClassifier compiles site-specific patterns. Item patterns are checked
// first, then listing patterns, then the generic heuristics.
func NewClassifier(listingPatterns, itemPatterns []string) (*Classifier, error) {
	listing, err := compileAll(listingPatterns)
	if err != nil {
		return nil, fmt.Errorf("listing patterns: %w", err)
	}
	item, err := compileAll(itemPatterns)
	if err != nil {
		return nil, fmt.Errorf("item patterns: %w", err)
	}
	return &Classifier{listing: listing, item: item}, nil
}

// Classify reports the kind of rawURL. Unrecognised shapes default to
// listing so they are revisited rather than skipped.
func (c *Classifier) Classify(rawURL string) crawler.URLKind {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return crawler.KindListing
	}
	target := u.EscapedPath()
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	if c != nil {
		for _, re := range c.item {
			if re.MatchString(target) {
				return crawler.KindItem
			}
		}
		for _, re := range c.listing {
			if re.MatchString(target) {
				return crawler.KindListing
			}
		}
	}

	segments := pathSegments(u.Path)
	query := u.Query()
	if isListing(segments, query, u.Fragment) {
		return crawler.KindListing
	}
	if isItem(segments, query) {
		return crawler.KindItem
	}
	return crawler.KindListing
}

func isListing(segments []string, query url.Values, fragment string) bool {
	for _, seg := range segments {
		if _, ok := listingSegments[seg]; ok {
			return true
		}
	}
	for key := range query {
		if _, ok := listingQueryKeys[strings.ToLower(key)]; ok {
			return true
		}
	}
	fragment = strings.ToLower(fragment)
	for _, marker := range fragmentMarkers {
		if strings.Contains(fragment, marker) {
			return true
		}
	}
	return false
}

func isItem(segments []string, query url.Values) bool {
	for _, seg := range segments {
		if _, ok := itemSegments[seg]; ok {
			return true
		}
	}
	for key := range query {
		if _, ok := itemQueryKeys[strings.ToLower(key)]; ok {
			return true
		}
	}
	return len(segments) >= itemDepth
}

func pathSegments(path string) []string {
	parts := strings.Split(strings.ToLower(path), "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}
