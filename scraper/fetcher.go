package scraper

import (
	"context"

	"jobs-scraper/models"
)

// ListingFetcher retrieves one page of raw listing data.
//
// hasMore=false tells the controller the source has no further pages.
// A returned error is a fetch failure and goes through the retry policy;
// wrap it with utils.Terminal when the source rejected the crawl itself.
type ListingFetcher interface {
	FetchPage(ctx context.Context, cursor models.Cursor) (page models.RawPage, hasMore bool, err error)
}

// DetailFetcher reads the full description behind a listing link.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, link string) (string, error)
}

// ConcurrentFetcher is implemented by detail fetchers that can serve
// several FetchDetail calls at once. Fetchers that don't implement it
// are driven by a single worker.
type ConcurrentFetcher interface {
	SupportsConcurrency() bool
}

// ListingExtractor turns a raw page into listings with empty descriptions.
type ListingExtractor interface {
	Extract(page models.RawPage) []models.Listing
}

func supportsConcurrency(f DetailFetcher) bool {
	c, ok := f.(ConcurrentFetcher)
	return ok && c.SupportsConcurrency()
}
