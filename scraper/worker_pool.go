package scraper

import (
	"context"
	"log/slog"
	"sync"

	"jobs-scraper/models"
)

// WorkerPool enriches the listings of one page with a fixed number of
// workers. Results keep the order the listings were discovered in.
//
// HOW IT WORKS:
//
//	jobs channel    -> every listing of the page, tagged with its index
//	workers (N)     -> each takes a job, fetches its detail page, sends it on
//	results channel -> collected back into a slice at the original index
//
// With 3 workers and 25 listings at most 3 detail pages are open at once.
// A fetcher that can't serve concurrent detail requests gets a single worker.
type WorkerPool struct {
	enricher *DetailEnricher
	workers  int
}

type enrichJob struct {
	index   int
	listing models.Listing
}

func NewWorkerPool(enricher *DetailEnricher, workers int) *WorkerPool {
	if workers < 1 || !enricher.concurrent() {
		workers = 1
	}
	return &WorkerPool{
		enricher: enricher,
		workers:  workers,
	}
}

// Workers is the number of detail fetches that may run at once.
func (p *WorkerPool) Workers() int {
	return p.workers
}

func (p *WorkerPool) Run(ctx context.Context, listings []models.Listing) []models.Listing {
	if len(listings) == 0 {
		return nil
	}

	// both buffered to the page size so sending never blocks
	jobs := make(chan enrichJob, len(listings))
	results := make(chan enrichJob, len(listings))

	workerCount := p.workers
	if len(listings) < workerCount {
		workerCount = len(listings)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 1; i <= workerCount; i++ {
		go p.worker(ctx, i, jobs, results, &wg)
	}

	for i, l := range listings {
		jobs <- enrichJob{index: i, listing: l}
	}
	close(jobs)

	// close results once every worker is done, ending the range in collect
	go func() {
		wg.Wait()
		close(results)
	}()

	return p.collect(results, len(listings))
}

// worker runs until jobs is closed. Enrich never fails, a listing whose
// detail could not be read comes back with the NotAvailable description.
func (p *WorkerPool) worker(ctx context.Context, id int, jobs <-chan enrichJob, results chan<- enrichJob, wg *sync.WaitGroup) {
	defer wg.Done()

	for job := range jobs {
		slog.Debug("enriching listing", "worker", id, "link", job.listing.Link)
		job.listing = p.enricher.Enrich(ctx, job.listing)
		results <- job
	}
}

// collect places results by discovery index, so completion order doesn't matter.
func (p *WorkerPool) collect(results <-chan enrichJob, n int) []models.Listing {
	out := make([]models.Listing, n)
	missing := 0
	for result := range results {
		out[result.index] = result.listing
	}
	for _, l := range out {
		if l.Description == models.NotAvailable {
			missing++
		}
	}

	slog.Info("page enriched", "listings", n, "without_description", missing)
	return out
}
