package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"jobs-scraper/config"
	"jobs-scraper/models"
	"jobs-scraper/scraper"
	"jobs-scraper/scraper/api"
	"jobs-scraper/scraper/browser"
	"jobs-scraper/scraper/service"
	"jobs-scraper/services"
	"jobs-scraper/storage"
	"jobs-scraper/utils"
)

// backend pairs the page fetcher of one source with its detail fetcher.
type backend struct {
	pages   scraper.ListingFetcher
	details scraper.DetailFetcher
	close   func()
}

func newBackend(cfg config.Config) (backend, error) {
	switch cfg.Backend {
	case config.BackendBrowser:
		b, err := browser.New(browser.OptionsFromConfig(cfg))
		if err != nil {
			return backend{}, err
		}
		return backend{pages: b, details: b, close: b.Close}, nil

	case config.BackendAPI:
		client := utils.NewHTTPClient(utils.HTTPOptions{
			UserAgent:         cfg.API.UserAgent,
			Timeout:           cfg.RequestTimeout.Std(),
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
		pages := api.NewFetcher(client, api.Options{
			SearchURL:   cfg.API.BaseURL,
			Keyword:     cfg.Keyword,
			Location:    cfg.Location,
			PageSize:    cfg.PageSize,
			OffsetParam: cfg.API.OffsetParam,
			LimitParam:  cfg.API.LimitParam,
		})
		return backend{pages: pages, details: api.NewDetailFetcher(client, cfg.Selectors.Detail)}, nil

	case config.BackendService:
		client := utils.NewHTTPClient(utils.HTTPOptions{
			BaseURL:           cfg.Service.BaseURL,
			Timeout:           cfg.RequestTimeout.Std(),
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
		pages := service.NewFetcher(client, service.Options{
			ActorID:        cfg.Service.ActorID,
			Token:          cfg.Service.Token,
			Keyword:        cfg.Keyword,
			Location:       cfg.Location,
			PageSize:       cfg.PageSize,
			PollInterval:   cfg.Service.PollInterval.Std(),
			RunTimeout:     cfg.Service.RunTimeout.Std(),
			RequestTimeout: cfg.RequestTimeout.Std(),
		})
		// the service returns listings only, descriptions come from the listing pages
		details := api.NewDetailFetcher(utils.NewHTTPClient(utils.HTTPOptions{
			UserAgent:         cfg.API.UserAgent,
			Timeout:           cfg.DetailTimeout.Std(),
			RequestsPerSecond: cfg.RequestsPerSecond,
		}), cfg.Selectors.Detail)
		return backend{pages: pages, details: details}, nil
	}
	return backend{}, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func (b backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// retryPolicies returns the policies for page fetches and detail fetches.
func retryPolicies(cfg config.Config) (page, detail utils.RetryPolicy) {
	page = utils.RetryPolicy{
		MaxAttempts:    cfg.MaxRetries,
		Backoff:        utils.Backoff(cfg.Backoff),
		BaseDelay:      cfg.RetryDelay.Std(),
		MaxDelay:       cfg.MaxRetryDelay.Std(),
		AttemptTimeout: cfg.RequestTimeout.Std(),
	}
	if cfg.Backend == config.BackendService {
		// each service call carries RequestTimeout, the wait for the run RunTimeout
		page.AttemptTimeout = 0
	}

	detail = page
	detail.AttemptTimeout = cfg.DetailTimeout.Std()
	return page, detail
}

func crawl(ctx context.Context, cfg config.Config, be backend) models.RunResult {
	pagePolicy, detailPolicy := retryPolicies(cfg)

	details := be.details
	if cfg.SkipDetails {
		details = nil
	}
	enricher := scraper.NewDetailEnricher(details, detailPolicy)

	controller := scraper.NewController(
		be.pages,
		scraper.NewExtractor(cfg.Selectors, cfg.KeepLinkQuery),
		scraper.NewWorkerPool(enricher, cfg.MaxWorkers),
		scraper.NewResultAccumulator(),
		pagePolicy,
		scraper.OptionsFromConfig(cfg),
	)
	return controller.Run(ctx)
}

// export writes the result set to every configured sink. The database sink
// counts as a failed sink when it cannot be reached.
func export(ctx context.Context, cfg config.Config, listings []models.Listing, date time.Time) storage.ExportReport {
	sinks := []storage.Sink{
		storage.NewJSONWriter(cfg.Output.Dir, date),
		storage.NewCSVWriter(cfg.Output.Dir, date),
		storage.NewXLSXWriter(cfg.Output.Dir, date),
	}

	var dbErr error
	if cfg.Database.Enabled {
		pg, err := storage.NewPostgresWriter(ctx, cfg.Database.ConnString(), date)
		if err == nil {
			defer pg.Close()
			err = pg.EnsureSchema(ctx)
		}
		if err != nil {
			slog.Warn("postgres sink unavailable", "err", err)
			dbErr = err
		} else {
			sinks = append(sinks, pg)
		}
	}

	report := storage.ExportAll(ctx, sinks, listings)
	if dbErr != nil {
		report.Attempted++
		report.Failures["postgres"] = dbErr
	}
	return report
}

type outcome struct {
	Result models.RunResult
	Export storage.ExportReport
}

// ExitCode is non-zero only when nothing at all was produced.
func (o outcome) ExitCode() int {
	if o.Result.Count() == 0 && o.Export.Succeeded == 0 {
		return 1
	}
	return 0
}

// run crawls, exports and reports. It never fails outright, the outcome
// says how much was produced.
func run(ctx context.Context, cfg config.Config, be backend, stdout io.Writer) outcome {
	slog.Info("scraper starting",
		"backend", cfg.Backend,
		"keyword", cfg.Keyword,
		"location", cfg.Location,
		"pages", cfg.MaxPages,
		"workers", cfg.MaxWorkers,
	)

	var out outcome
	out.Result = crawl(ctx, cfg, be)
	if out.Result.Err != nil {
		slog.Warn("crawl ended early", "reason", out.Result.Reason, "err", out.Result.Err)
	}

	// a rejected first page leaves nothing worth writing, every other run
	// exports what it has, even an empty set
	if out.Result.Count() == 0 && out.Result.Reason == models.ReasonTerminalFailure {
		slog.Warn("no listings scraped, nothing to export")
		printSummary(stdout, out)
		return out
	}

	// export even when the crawl itself was cancelled
	exportCtx := context.WithoutCancel(ctx)
	date := out.Result.Started
	out.Export = export(exportCtx, cfg, out.Result.Listings, date)

	report := services.GenerateReport(out.Result)
	services.PrintReport(stdout, report)
	if cfg.Output.Chart {
		if err := services.RenderChart(storage.ArtifactPath(cfg.Output.Dir, date, "html"), report); err != nil {
			slog.Warn("chart not written", "err", err)
		}
	}

	printSummary(stdout, out)
	return out
}

func printSummary(w io.Writer, o outcome) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Scrape complete: %d listings, %d pages, reason %s\n",
		o.Result.Count(), o.Result.PagesFetched, o.Result.Reason)
	if o.Export.Attempted > 0 {
		fmt.Fprintf(w, "Exported to %d of %d sinks\n", o.Export.Succeeded, o.Export.Attempted)
	}
	if err := o.Export.Err(); err != nil {
		fmt.Fprintf(w, "Export failures: %v\n", err)
	}
}
