package scraper

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"jobs-scraper/models"
	"jobs-scraper/utils"
)

var ErrEmptyDetail = errors.New("detail region is empty")

// DetailEnricher fills in listing descriptions. It never fails: any error,
// retried or not, ends as the models.NotAvailable sentinel.
type DetailEnricher struct {
	fetcher DetailFetcher
	policy  utils.RetryPolicy
}

// NewDetailEnricher returns an enricher over fetcher. A nil fetcher skips
// enrichment and marks every description as not available.
func NewDetailEnricher(fetcher DetailFetcher, policy utils.RetryPolicy) *DetailEnricher {
	return &DetailEnricher{fetcher: fetcher, policy: policy}
}

func (e *DetailEnricher) Enrich(ctx context.Context, listing models.Listing) models.Listing {
	if e.fetcher == nil || listing.Link == "" {
		listing.Description = models.NotAvailable
		return listing
	}

	var description string
	err := e.policy.Do(ctx, "fetch detail", func(ctx context.Context) error {
		text, err := e.fetcher.FetchDetail(ctx, listing.Link)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return ErrEmptyDetail
		}
		description = text
		return nil
	})
	if err != nil {
		slog.Warn("description not available", "link", listing.Link, "err", err)
		listing.Description = models.NotAvailable
		return listing
	}

	listing.Description = description
	return listing
}

func (e *DetailEnricher) concurrent() bool {
	return e.fetcher != nil && supportsConcurrency(e.fetcher)
}
