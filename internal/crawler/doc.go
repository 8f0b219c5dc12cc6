// Package crawler holds the shared vocabulary of the scraper: crawl targets,
// candidate URLs, fetched pages and extracted records, plus the small policies
// (retry, robots, allowed domains, URL normalisation) every stage relies on.
package crawler
