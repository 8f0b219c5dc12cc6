package extract

import (
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Source is one parsed page as seen by a Cascade. JSON-LD is decoded at most
// once however many fields are extracted.
type Source struct {
	Doc *goquery.Document
	Raw []byte

	once    sync.Once
	product *Product
}

// NewSource wraps a parsed document and the markup it came from.
func NewSource(doc *goquery.Document, raw []byte) *Source {
	return &Source{Doc: doc, Raw: raw}
}

// Product returns the page's JSON-LD Product, or nil.
func (s *Source) Product() *Product {
	s.once.Do(func() {
		if s.Doc != nil {
			s.product = ProductFromJSONLD(s.Doc)
		}
	})
	return s.product
}

// Cascade extracts one field in three stages: structured metadata, CSS
// selectors, then regular expressions over the raw markup. The first
// non-empty value wins.
type Cascade struct {
	// Meta names meta tags or itemprops, e.g. "og:title" or "price".
	Meta []string
	// JSONLD picks the field from a JSON-LD Product; it runs after Meta.
	JSONLD func(*Product) string
	// CSS selectors read element text, or an attribute when written as
	// "selector@attr".
	CSS []string
	// Regex patterns yield their first capture group, or the whole match.
	Regex []*regexp.Regexp
}

// Run evaluates the cascade against src.
func (c Cascade) Run(src *Source) string {
	if src == nil {
		return ""
	}
	if src.Doc != nil {
		for _, key := range c.Meta {
			if v := metaValue(src.Doc, key); v != "" {
				return v
			}
		}
		if c.JSONLD != nil {
			if p := src.Product(); p != nil {
				if v := CleanText(c.JSONLD(p)); v != "" {
					return v
				}
			}
		}
		for _, sel := range c.CSS {
			if v := selectorValue(src.Doc, sel); v != "" {
				return v
			}
		}
	}
	for _, re := range c.Regex {
		if v := regexValue(re, src.Raw); v != "" {
			return v
		}
	}
	return ""
}

// With returns a copy of c with extra CSS selectors tried first.
func (c Cascade) With(css ...string) Cascade {
	if len(css) == 0 {
		return c
	}
	out := c
	out.CSS = append(append([]string(nil), css...), c.CSS...)
	return out
}

func metaValue(doc *goquery.Document, key string) string {
	selectors := []string{
		`meta[property="` + key + `"]`,
		`meta[name="` + key + `"]`,
		`meta[itemprop="` + key + `"]`,
	}
	for _, sel := range selectors {
		if v := CleanText(doc.Find(sel).First().AttrOr("content", "")); v != "" {
			return v
		}
	}
	node := doc.Find(`[itemprop="` + key + `"]`).Not("meta").First()
	if node.Length() == 0 {
		return ""
	}
	if v, ok := node.Attr("content"); ok && strings.TrimSpace(v) != "" {
		return CleanText(v)
	}
	return CleanText(node.Text())
}

func selectorValue(doc *goquery.Document, sel string) string {
	attr := ""
	if at := strings.LastIndex(sel, "@"); at > 0 {
		sel, attr = sel[:at], sel[at+1:]
	}
	var out string
	doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if attr != "" {
			out = CleanText(s.AttrOr(attr, ""))
		} else {
			out = CleanText(s.Text())
		}
		return out == ""
	})
	return out
}

func regexValue(re *regexp.Regexp, raw []byte) string {
	if re == nil || len(raw) == 0 {
		return ""
	}
	m := re.FindSubmatch(raw)
	if m == nil {
		return ""
	}
	value := m[0]
	if len(m) > 1 {
		value = m[1]
	}
	return CleanText(html.UnescapeString(string(value)))
}
