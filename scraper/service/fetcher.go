// Package service fetches listings through a managed scraping service. Each
// page is one run of a hosted scraper (an "actor"): the run is started with
// the search parameters, polled until it finishes, and its dataset is read.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"jobs-scraper/models"
	"jobs-scraper/utils"

	"github.com/go-resty/resty/v2"
)

const (
	statusSucceeded = "SUCCEEDED"
	statusFailed    = "FAILED"
	statusTimedOut  = "TIMED-OUT"
	statusAborted   = "ABORTED"
)

var ErrRunTimeout = errors.New("service run did not finish in time")

type Options struct {
	ActorID      string
	Token        string
	Keyword      string
	Location     string
	PageSize     int
	PollInterval time.Duration
	// RunTimeout bounds how long one run is waited for.
	RunTimeout time.Duration
	// RequestTimeout bounds every single call to the service.
	RequestTimeout time.Duration
}

type Input struct {
	Keyword  string `json:"keyword"`
	Location string `json:"location,omitempty"`
	Offset   int    `json:"offset"`
	Limit    int    `json:"limit"`
}

type Run struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

type runEnvelope struct {
	Data Run `json:"data"`
}

type Fetcher struct {
	client *resty.Client
	opts   Options
}

// NewFetcher expects client to carry the service base URL.
func NewFetcher(client *resty.Client, opts Options) *Fetcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 10 * time.Minute
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = time.Minute
	}
	if opts.Token != "" {
		client.SetAuthToken(opts.Token)
	}
	return &Fetcher{client: client, opts: opts}
}

func (f *Fetcher) FetchPage(ctx context.Context, cursor models.Cursor) (models.RawPage, bool, error) {
	run, err := f.StartRun(ctx, Input{
		Keyword:  f.opts.Keyword,
		Location: f.opts.Location,
		Offset:   cursor.Offset,
		Limit:    f.opts.PageSize,
	})
	if err != nil {
		return models.RawPage{}, false, err
	}
	slog.Info("service run started", "run", run.ID, "cursor", cursor)

	run, err = f.WaitForRun(ctx, run.ID)
	if err != nil {
		return models.RawPage{}, false, err
	}

	items, err := f.DatasetItems(ctx, run.DefaultDatasetID)
	if err != nil {
		return models.RawPage{}, false, err
	}
	slog.Info("service run finished", "run", run.ID, "items", len(items))

	page := models.RawPage{Cursor: cursor, Items: items}
	return page, len(items) >= f.opts.PageSize, nil
}

func (f *Fetcher) StartRun(ctx context.Context, input Input) (Run, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.RequestTimeout)
	defer cancel()

	var env runEnvelope
	res, err := f.client.R().
		SetContext(ctx).
		SetBody(input).
		ForceContentType("application/json").
		SetResult(&env).
		Post("/v2/acts/" + url.PathEscape(f.opts.ActorID) + "/runs")
	if err != nil {
		return Run{}, fmt.Errorf("start run: %w", err)
	}
	if err := checkResponse(res); err != nil {
		return Run{}, fmt.Errorf("start run: %w", err)
	}
	if env.Data.ID == "" {
		return Run{}, errors.New("start run: response has no run id")
	}
	return env.Data, nil
}

// WaitForRun polls the run until it succeeds, fails, or RunTimeout passes.
// Failed, aborted and timed out runs are transient failures.
func (f *Fetcher) WaitForRun(ctx context.Context, runID string) (Run, error) {
	waitCtx, cancel := context.WithTimeout(ctx, f.opts.RunTimeout)
	defer cancel()

	for {
		run, err := f.GetRun(waitCtx, runID)
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return Run{}, fmt.Errorf("run %s: %w", runID, ErrRunTimeout)
			}
			return Run{}, err
		}

		switch run.Status {
		case statusSucceeded:
			return run, nil
		case statusFailed, statusTimedOut, statusAborted:
			return Run{}, fmt.Errorf("run %s ended with status %s", runID, run.Status)
		}
		slog.Debug("service run pending", "run", runID, "status", run.Status)

		if err := utils.Sleep(waitCtx, f.opts.PollInterval); err != nil {
			if ctx.Err() != nil {
				return Run{}, ctx.Err()
			}
			return Run{}, fmt.Errorf("run %s: %w", runID, ErrRunTimeout)
		}
	}
}

func (f *Fetcher) GetRun(ctx context.Context, runID string) (Run, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.RequestTimeout)
	defer cancel()

	var env runEnvelope
	res, err := f.client.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(&env).
		Get("/v2/actor-runs/" + url.PathEscape(runID))
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	if err := checkResponse(res); err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return env.Data, nil
}

func (f *Fetcher) DatasetItems(ctx context.Context, datasetID string) ([]json.RawMessage, error) {
	if datasetID == "" {
		return nil, errors.New("run has no dataset")
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.RequestTimeout)
	defer cancel()

	var items []json.RawMessage
	res, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"format": "json", "clean": "true"}).
		ForceContentType("application/json").
		SetResult(&items).
		Get("/v2/datasets/" + url.PathEscape(datasetID) + "/items")
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if err := checkResponse(res); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return items, nil
}

// checkResponse treats every non-2xx answer as a failure. Rejections of the
// credentials stay terminal.
func checkResponse(res *resty.Response) error {
	ok, err := utils.CheckStatus(res)
	if err != nil {
		return err
	}
	if !ok {
		return &utils.StatusError{URL: res.Request.URL, Status: res.StatusCode()}
	}
	return nil
}
