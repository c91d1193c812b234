// Package scraper defines the shared tournament types, collaborator
// interfaces and error kinds used across the scraping pipeline.
//
// The pipeline itself lives in sibling packages: extract parses result
// pages, crawl walks paginated searches, entries enriches records with
// participant counts and engine wraps a whole invocation in bounded retries.
package scraper
