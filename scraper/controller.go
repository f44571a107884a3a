package scraper

import (
	"context"
	"log/slog"
	"time"

	"jobs-scraper/config"
	"jobs-scraper/models"
	"jobs-scraper/utils"
)

type State string

const (
	StateRunning      State = "running"
	StateFetching     State = "fetching"
	StateExtracting   State = "extracting"
	StateEnriching    State = "enriching"
	StateAccumulating State = "accumulating"
	StateTerminated   State = "terminated"
)

// CrawlState is owned by the controller for the duration of one run.
type CrawlState struct {
	Cursor                models.Cursor
	PagesFetched          int
	ConsecutiveEmptyPages int
}

type ControllerOptions struct {
	MaxPages int
	PageSize int
	// RunTimeout is checked between page cycles, in-flight fetches are not interrupted.
	RunTimeout time.Duration
	MinDelay   time.Duration
	MaxDelay   time.Duration
	Start      models.Cursor
}

func OptionsFromConfig(cfg config.Config) ControllerOptions {
	return ControllerOptions{
		MaxPages:   cfg.MaxPages,
		PageSize:   cfg.PageSize,
		RunTimeout: cfg.RunTimeout.Std(),
		MinDelay:   cfg.MinDelay.Std(),
		MaxDelay:   cfg.MaxDelay.Std(),
	}
}

// Controller drives pagination to completion. A run ends when the fetcher
// reports no more pages, a page yields no listings, MaxPages is reached, a
// terminal fetch failure occurs, or the run is cancelled. Whatever was
// accumulated until then is returned.
type Controller struct {
	fetcher   ListingFetcher
	extractor ListingExtractor
	pool      *WorkerPool
	results   *ResultAccumulator
	policy    utils.RetryPolicy
	opts      ControllerOptions

	state State
	now   func() time.Time
}

func NewController(
	fetcher ListingFetcher,
	extractor ListingExtractor,
	pool *WorkerPool,
	results *ResultAccumulator,
	policy utils.RetryPolicy,
	opts ControllerOptions,
) *Controller {
	if opts.PageSize <= 0 {
		opts.PageSize = 25
	}
	return &Controller{
		fetcher:   fetcher,
		extractor: extractor,
		pool:      pool,
		results:   results,
		policy:    policy,
		opts:      opts,
		state:     StateRunning,
		now:       time.Now,
	}
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) transition(s State, crawl CrawlState) {
	c.state = s
	slog.Debug("crawl state", "state", s, "cursor", crawl.Cursor, "pages", crawl.PagesFetched)
}

func (c *Controller) Run(ctx context.Context) models.RunResult {
	result := models.RunResult{Started: c.now()}
	var deadline time.Time
	if c.opts.RunTimeout > 0 {
		deadline = result.Started.Add(c.opts.RunTimeout)
	}

	crawl := CrawlState{Cursor: c.opts.Start}
	slog.Info(
		"starting crawl",
		"cursor", crawl.Cursor,
		"max_pages", c.opts.MaxPages,
		"page_size", c.opts.PageSize,
		"detail_workers", c.pool.Workers(),
	)
	c.transition(StateRunning, crawl)

	for {
		if reason, stop := c.shouldStop(ctx, crawl, deadline); stop {
			result.Reason = reason
			break
		}

		c.transition(StateFetching, crawl)
		page, hasMore, err := c.fetch(ctx, crawl.Cursor)
		fetched := err == nil
		if err != nil {
			if utils.IsTerminal(err) {
				slog.Error("source rejected the crawl, stopping", "cursor", crawl.Cursor, "err", err)
				result.Reason = models.ReasonTerminalFailure
				result.Err = err
				break
			}
			if ctx.Err() != nil {
				result.Reason = models.ReasonCancelled
				result.Err = err
				break
			}
			// retries exhausted, the page counts as empty
			slog.Warn("page fetch failed, treating page as empty", "cursor", crawl.Cursor, "err", err)
			result.Err = err
			page = models.RawPage{Cursor: crawl.Cursor}
		}

		c.transition(StateExtracting, crawl)
		listings := c.extractor.Extract(page)
		for i := range listings {
			listings[i].SourceCursor = crawl.Cursor
		}

		if fetched {
			crawl.PagesFetched++
		}
		if len(listings) == 0 {
			crawl.ConsecutiveEmptyPages++
			// a page with markup but no cards usually means the selectors drifted
			slog.Info(
				"page yielded no listings, stopping",
				"cursor", crawl.Cursor,
				"empty_page", page.Empty(),
			)
			result.Reason = models.ReasonNormal
			break
		}
		crawl.ConsecutiveEmptyPages = 0

		c.transition(StateEnriching, crawl)
		fresh := c.results.Unseen(listings)
		enriched := c.pool.Run(ctx, fresh)

		c.transition(StateAccumulating, crawl)
		added := c.results.AddAll(enriched)
		slog.Info(
			"page done",
			"page", crawl.PagesFetched,
			"cursor", crawl.Cursor,
			"found", len(listings),
			"added", added,
			"total", c.results.Len(),
		)

		if !hasMore {
			slog.Info("source has no more pages", "cursor", crawl.Cursor)
			result.Reason = models.ReasonNormal
			break
		}
		if c.opts.MaxPages > 0 && crawl.PagesFetched >= c.opts.MaxPages {
			slog.Info("reached max pages", "max_pages", c.opts.MaxPages)
			result.Reason = models.ReasonMaxPages
			break
		}

		crawl.Cursor = crawl.Cursor.Next(c.opts.PageSize)
		c.transition(StateRunning, crawl)

		// cancellation during the pause is picked up by shouldStop
		_ = utils.RandomDelay(ctx, c.opts.MinDelay, c.opts.MaxDelay)
	}

	c.transition(StateTerminated, crawl)

	result.Listings = c.results.Snapshot()
	result.PagesFetched = crawl.PagesFetched
	result.Finished = c.now()
	return result
}

func (c *Controller) fetch(ctx context.Context, cursor models.Cursor) (models.RawPage, bool, error) {
	var (
		page    models.RawPage
		hasMore bool
	)
	err := c.policy.Do(ctx, "fetch page", func(ctx context.Context) error {
		p, more, err := c.fetcher.FetchPage(ctx, cursor)
		if err != nil {
			return err
		}
		page, hasMore = p, more
		return nil
	})
	if page.Cursor == (models.Cursor{}) {
		page.Cursor = cursor
	}
	return page, hasMore, err
}

func (c *Controller) shouldStop(ctx context.Context, crawl CrawlState, deadline time.Time) (models.TerminationReason, bool) {
	if ctx.Err() != nil {
		slog.Warn("run cancelled", "err", ctx.Err())
		return models.ReasonCancelled, true
	}
	if !deadline.IsZero() && !c.now().Before(deadline) {
		slog.Warn("run deadline reached", "pages", crawl.PagesFetched)
		return models.ReasonCancelled, true
	}
	if c.opts.MaxPages > 0 && crawl.PagesFetched >= c.opts.MaxPages {
		return models.ReasonMaxPages, true
	}
	return "", false
}
