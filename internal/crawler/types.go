package crawler

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// URLKind classifies a discovered URL.
type URLKind string

// URL kinds understood by the scheduler and the admission policy.
const (
	KindListing URLKind = "listing"
	KindItem    URLKind = "item"
)

// CrawlTarget describes one logical run against one retailer. It is built once
// per invocation and never mutated afterwards.
type CrawlTarget struct {
	Site               string
	Seeds              []string
	AllowedDomains     []string
	StoreID            int64
	Resume             bool
	Concurrency        int
	MinDelay           time.Duration
	MaxDelay           time.Duration
	MaxItems           int
	LoadMoreClicks     int
	PerCategoryItemCap int
}

// CandidateURL is a unit of work discovered during traversal. Category is
// the first page of the category a pagination or item link was found under;
// it is empty for seeds and category links, which root their own category.
type CandidateURL struct {
	URL      string  `json:"url"`
	Kind     URLKind `json:"kind"`
	Referrer string  `json:"referrer,omitempty"`
	Category string  `json:"category,omitempty"`
	Depth    int     `json:"depth"`
}

// LoadMore describes a "load more" affordance on listing pages. A zero value
// means the site has none.
type LoadMore struct {
	Selector  string
	MaxClicks int
	Wait      time.Duration
	Scroll    bool
}

// Enabled reports whether any interaction should be attempted.
func (l LoadMore) Enabled() bool {
	return l.MaxClicks > 0 && (l.Selector != "" || l.Scroll)
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL         string
	Kind        URLKind
	UseHeadless bool
	Headers     http.Header
	LoadMore    LoadMore
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Page is a fetched document handed to site adapters. The parsed DOM is
// built lazily and shared between Expand and Extract.
type Page struct {
	URL          string
	FinalURL     string
	StatusCode   int
	Body         []byte
	UsedHeadless bool
	Candidate    CandidateURL

	once sync.Once
	doc  *goquery.Document
	err  error
}

// NewPage wraps a fetch response for the candidate that produced it.
func NewPage(candidate CandidateURL, resp FetchResponse) *Page {
	final := resp.URL
	if final == "" {
		final = candidate.URL
	}
	return &Page{
		URL:          candidate.URL,
		FinalURL:     final,
		StatusCode:   resp.StatusCode,
		Body:         resp.Body,
		UsedHeadless: resp.UsedHeadless,
		Candidate:    candidate,
	}
}

// Document parses the body once and returns the goquery document.
func (p *Page) Document() (*goquery.Document, error) {
	p.once.Do(func() {
		p.doc, p.err = goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	})
	return p.doc, p.err
}

// BaseURL is the URL relative links on the page resolve against.
func (p *Page) BaseURL() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

// ExtractedRecord is the structured output of processing one item page.
type ExtractedRecord struct {
	Name        string
	Price       *float64
	Description string
	ImageURL    string
	SourceURL   string
	StoreID     int64
}
