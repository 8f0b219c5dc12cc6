package extract

import (
	"net/url"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/catalog-scraper/internal/crawler"
)

// Links resolves the href of every element matching selectors against base.
// Results are normalized and deduplicated in document order.
func Links(doc *goquery.Document, base string, selectors ...string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, sel := range selectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok {
				return
			}
			abs, err := crawler.ResolveReference(base, href)
			if err != nil {
				return
			}
			if _, dup := seen[abs]; dup {
				return
			}
			seen[abs] = struct{}{}
			out = append(out, abs)
		})
	}
	return out
}

// PaginationLinks finds explicit pagination: rel="next" links, any extra
// selectors, and anchors whose query carries a numeric page parameter.
func PaginationLinks(doc *goquery.Document, base string, selectors ...string) []string {
	sels := append([]string{`link[rel="next"]`, `a[rel="next"]`}, selectors...)
	out := Links(doc, base, sels...)
	seen := make(map[string]struct{}, len(out))
	for _, u := range out {
		seen[u] = struct{}{}
	}
	for _, u := range Links(doc, base, "a[href]") {
		if _, dup := seen[u]; dup || !hasPageParam(u) {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func hasPageParam(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	q := u.Query()
	for _, key := range []string{"page", "p", "pg"} {
		if v := q.Get(key); v != "" {
			if _, err := strconv.Atoi(v); err == nil {
				return true
			}
		}
	}
	return false
}

// HasRoot reports whether doc contains the element a page must have to be
// usable. An empty selector always matches.
func HasRoot(doc *goquery.Document, root string) bool {
	if root == "" {
		return true
	}
	return doc.Find(root).Length() > 0
}
