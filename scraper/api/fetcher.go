package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"jobs-scraper/models"
	"jobs-scraper/scraper"
	"jobs-scraper/utils"

	"github.com/go-resty/resty/v2"
)

type Options struct {
	SearchURL string
	Keyword   string
	Location  string
	PageSize  int
	// OffsetParam and LimitParam name the paging query parameters. An empty
	// LimitParam leaves the page size to the endpoint.
	OffsetParam string
	LimitParam  string
}

// Fetcher pages through an offset based search endpoint. Responses are
// either HTML fragments of listing cards or JSON listing arrays.
type Fetcher struct {
	client *resty.Client
	opts   Options
}

func NewFetcher(client *resty.Client, opts Options) *Fetcher {
	if opts.OffsetParam == "" {
		opts.OffsetParam = "start"
	}
	return &Fetcher{client: client, opts: opts}
}

func (f *Fetcher) FetchPage(ctx context.Context, cursor models.Cursor) (models.RawPage, bool, error) {
	query := map[string]string{
		"keywords":         f.opts.Keyword,
		f.opts.OffsetParam: strconv.Itoa(cursor.Offset),
	}
	if f.opts.Location != "" {
		query["location"] = f.opts.Location
	}
	if f.opts.LimitParam != "" {
		query[f.opts.LimitParam] = strconv.Itoa(f.opts.PageSize)
	}

	res, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(f.opts.SearchURL)
	if err != nil {
		return models.RawPage{}, false, fmt.Errorf("fetch %s: %w", cursor, err)
	}

	ok, err := utils.CheckStatus(res)
	if err != nil {
		return models.RawPage{}, false, err
	}
	page := models.RawPage{Cursor: cursor, BaseURL: f.opts.SearchURL}
	if !ok {
		slog.Warn("search endpoint returned no page", "cursor", cursor, "status", res.StatusCode())
		return page, true, nil
	}

	body := bytes.TrimSpace(res.Body())
	if len(body) == 0 {
		return page, false, nil
	}

	if body[0] == '[' || body[0] == '{' {
		items, err := decodeItems(body)
		if err != nil {
			return models.RawPage{}, false, fmt.Errorf("decode %s: %w", cursor, err)
		}
		page.Items = items
		return page, len(items) > 0, nil
	}

	page.HTML = string(body)
	return page, true, nil
}

// decodeItems accepts a bare array or an object wrapping one.
func decodeItems(body []byte) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if body[0] == '[' {
		err := json.Unmarshal(body, &items)
		return items, err
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	for _, key := range []string{"items", "listings", "jobs", "results", "data"} {
		raw, ok := wrapped[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &items); err == nil {
			return items, nil
		}
	}
	return nil, nil
}

// DetailFetcher downloads a listing page and reads its description region.
type DetailFetcher struct {
	client   *resty.Client
	selector string
}

func NewDetailFetcher(client *resty.Client, selector string) *DetailFetcher {
	return &DetailFetcher{client: client, selector: selector}
}

func (d *DetailFetcher) FetchDetail(ctx context.Context, link string) (string, error) {
	res, err := d.client.R().SetContext(ctx).Get(link)
	if err != nil {
		return "", fmt.Errorf("fetch detail: %w", err)
	}
	ok, err := utils.CheckStatus(res)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("detail page returned status %d", res.StatusCode())
	}
	return scraper.DetailText(res.String(), d.selector)
}

func (d *DetailFetcher) SupportsConcurrency() bool {
	return true
}
