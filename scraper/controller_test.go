package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jobs-scraper/config"
	"jobs-scraper/models"
	"jobs-scraper/utils"

	"github.com/stretchr/testify/require"
)

type fakeResult struct {
	links   []string
	hasMore bool
	err     error
}

// fakeFetcher serves pages keyed by offset. Offsets it doesn't know yield empty pages.
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[int]fakeResult
	cursors []models.Cursor
}

func (f *fakeFetcher) FetchPage(_ context.Context, cursor models.Cursor) (models.RawPage, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, cursor)

	res, ok := f.pages[cursor.Offset]
	if !ok {
		return models.RawPage{Cursor: cursor}, true, nil
	}
	if res.err != nil {
		return models.RawPage{}, false, res.err
	}

	page := models.RawPage{Cursor: cursor}
	for i, link := range res.links {
		raw, _ := json.Marshal(map[string]string{
			"title":    fmt.Sprintf("Engineer %d-%d", cursor.Offset, i),
			"company":  "Acme",
			"location": "Remote",
			"link":     link,
		})
		page.Items = append(page.Items, raw)
	}
	return page, res.hasMore, nil
}

func (f *fakeFetcher) offsets() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, c := range f.cursors {
		out = append(out, c.Offset)
	}
	return out
}

// fakeDetail answers with "about <link>" unless the link is listed in fail.
type fakeDetail struct {
	fail       map[string]error
	concurrent bool
	delay      func(link string) time.Duration
	calls      sync.Map
}

func (f *fakeDetail) FetchDetail(ctx context.Context, link string) (string, error) {
	n, _ := f.calls.LoadOrStore(link, new(int32))
	atomic.AddInt32(n.(*int32), 1)

	if f.delay != nil {
		if err := utils.Sleep(ctx, f.delay(link)); err != nil {
			return "", err
		}
	}
	if err, ok := f.fail[link]; ok {
		return "", err
	}
	return "about " + link, nil
}

func (f *fakeDetail) SupportsConcurrency() bool {
	return f.concurrent
}

func (f *fakeDetail) callCount(link string) int {
	n, ok := f.calls.Load(link)
	if !ok {
		return 0
	}
	return int(atomic.LoadInt32(n.(*int32)))
}

var testPolicy = utils.RetryPolicy{MaxAttempts: 3}

func newTestController(fetcher ListingFetcher, detail DetailFetcher, opts ControllerOptions) *Controller {
	if opts.MaxPages == 0 {
		opts.MaxPages = 10
	}
	if opts.PageSize == 0 {
		opts.PageSize = 25
	}
	enricher := NewDetailEnricher(detail, testPolicy)
	return NewController(
		fetcher,
		NewExtractor(config.DefaultConfig().Selectors, false),
		NewWorkerPool(enricher, 3),
		NewResultAccumulator(),
		testPolicy,
		opts,
	)
}

func links(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://jobs.example.com/view/%s-%d", prefix, i)
	}
	return out
}

func TestRunStopsOnEmptyPage(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[int]fakeResult{
		0:  {links: links("a", 2), hasMore: true},
		25: {links: links("b", 2), hasMore: true},
		50: {hasMore: true},
		75: {links: links("never", 2), hasMore: true},
	}}

	c := newTestController(fetcher, &fakeDetail{}, ControllerOptions{})
	res := c.Run(context.Background())

	require.Equal(t, 4, res.Count())
	require.Equal(t, 3, res.PagesFetched)
	require.Equal(t, models.ReasonNormal, res.Reason)
	require.NoError(t, res.Err)
	require.Equal(t, []int{0, 25, 50}, fetcher.offsets())
	require.Equal(t, StateTerminated, c.State())
}

func TestRunTerminalFailureKeepsPartialResults(t *testing.T) {
	blocked := errors.New("blocked")
	fetcher := &fakeFetcher{pages: map[int]fakeResult{
		0:  {links: links("a", 2), hasMore: true},
		25: {err: utils.Terminal(blocked)},
	}}

	res := newTestController(fetcher, &fakeDetail{}, ControllerOptions{}).Run(context.Background())

	require.Equal(t, 2, res.Count())
	require.Equal(t, 1, res.PagesFetched)
	require.Equal(t, models.ReasonTerminalFailure, res.Reason)
	require.ErrorIs(t, res.Err, blocked)
	// terminal failures are not retried
	require.Equal(t, []int{0, 25}, fetcher.offsets())
}

func TestRunDetailTimeoutBecomesSentinel(t *testing.T) {
	pageLinks := links("a", 3)
	fetcher := &fakeFetcher{pages: map[int]fakeResult{
		0: {links: pageLinks, hasMore: false},
	}}
	detail := &fakeDetail{fail: map[string]error{pageLinks[1]: context.DeadlineExceeded}}

	res := newTestController(fetcher, detail, ControllerOptions{}).Run(context.Background())

	require.Equal(t, 3, res.Count())
	require.Equal(t, models.NotAvailable, res.Listings[1].Description)
	require.Equal(t, "about "+pageLinks[0], res.Listings[0].Description)
	require.Equal(t, "about "+pageLinks[2], res.Listings[2].Description)
	require.Equal(t, testPolicy.MaxAttempts, detail.callCount(pageLinks[1]))
	require.Equal(t, 1, detail.callCount(pageLinks[0]))
}

func TestRunDescriptionNeverEmpty(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[int]fakeResult{
		0:  {links: append(links("a", 2), ""), hasMore: true},
		25: {links: links("b", 2), hasMore: false},
	}}

	res := newTestController(fetcher, nil, ControllerOptions{}).Run(context.Background())

	require.Equal(t, 5, res.Count())
	for _, l := range res.Listings {
		require.Equal(t, models.NotAvailable, l.Description)
	}
}

func TestRunStopsWhenSourceHasNoMore(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[int]fakeResult{
		0:  {links: links("a", 2), hasMore: false},
		25: {links: links("b", 2), hasMore: true},
	}}

	res := newTestController(fetcher, &fakeDetail{}, ControllerOptions{}).Run(context.Background())

	require.Equal(t, 2, res.Count())
	require.Equal(t, models.ReasonNormal, res.Reason)
	require.Equal(t, []int{0}, fetcher.offsets())
}

func TestRunStopsAtMaxPages(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[int]fakeResult{
		0:  {links: links("a", 1), hasMore: true},
		10: {links: links("b", 1), hasMore: true},
		20: {links: links("c", 1), hasMore: true},
	}}

	res := newTestController(fetcher, &fakeDetail{}, ControllerOptions{MaxPages: 2, PageSize: 10}).Run(context.Background())

	require.Equal(t, models.ReasonMaxPages, res.Reason)
	require.Equal(t, 2, res.PagesFetched)
	require.Equal(t, []int{0, 10}, fetcher.offsets())
}

type flakyFetcher struct {
	calls int
}

func (f *flakyFetcher) FetchPage(_ context.Context, cursor models.Cursor) (models.RawPage, bool, error) {
	f.calls++
	return models.RawPage{}, false, errors.New("connection reset")
}

func TestRunTransientFetchFailureIsNotFatal(t *testing.T) {
	fetcher := &flakyFetcher{}

	res := newTestController(fetcher, &fakeDetail{}, ControllerOptions{}).Run(context.Background())

	require.Equal(t, testPolicy.MaxAttempts, fetcher.calls)
	require.Equal(t, models.ReasonNormal, res.Reason)
	require.Equal(t, 0, res.PagesFetched)
	require.True(t, utils.IsExhausted(res.Err))
	require.Empty(t, res.Listings)
}

func TestRunDeduplicatesAcrossPages(t *testing.T) {
	shared := "https://jobs.example.com/view/shared"
	fetcher := &fakeFetcher{pages: map[int]fakeResult{
		0:  {links: []string{shared, "https://jobs.example.com/view/one"}, hasMore: true},
		25: {links: []string{"https://jobs.example.com/view/two", shared + "?trackingId=xyz"}, hasMore: false},
	}}
	detail := &fakeDetail{}

	res := newTestController(fetcher, detail, ControllerOptions{}).Run(context.Background())

	require.Equal(t, 3, res.Count())
	require.Equal(t, shared, res.Listings[0].Link)
	require.Equal(t, "Engineer 0-0", res.Listings[0].Title)
	require.Equal(t, 0, res.Listings[0].SourceCursor.Offset)
	require.Equal(t, 1, detail.callCount(shared))
}

func TestRunKeepsDiscoveryOrderUnderConcurrency(t *testing.T) {
	pageLinks := links("a", 6)
	fetcher := &fakeFetcher{pages: map[int]fakeResult{
		0: {links: pageLinks, hasMore: false},
	}}
	// earlier listings finish last
	order := map[string]time.Duration{}
	for i, l := range pageLinks {
		order[l] = time.Duration(len(pageLinks)-i) * 5 * time.Millisecond
	}
	detail := &fakeDetail{concurrent: true, delay: func(link string) time.Duration { return order[link] }}

	res := newTestController(fetcher, detail, ControllerOptions{}).Run(context.Background())

	require.Equal(t, len(pageLinks), res.Count())
	for i, l := range res.Listings {
		require.Equal(t, pageLinks[i], l.Link)
		require.Equal(t, "about "+pageLinks[i], l.Description)
	}
}

func TestRunHonoursDeadline(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[int]fakeResult{
		0:  {links: links("a", 1), hasMore: true},
		25: {links: links("b", 1), hasMore: true},
	}}
	c := newTestController(fetcher, &fakeDetail{}, ControllerOptions{RunTimeout: time.Minute})

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := 0
	c.now = func() time.Time {
		ticks++
		// first call is the start time, afterwards the clock is past the deadline
		if ticks == 1 {
			return start
		}
		return start.Add(2 * time.Minute)
	}

	res := c.Run(context.Background())

	require.Equal(t, models.ReasonCancelled, res.Reason)
	require.Equal(t, 0, res.PagesFetched)
	require.Empty(t, fetcher.offsets())
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &fakeFetcher{pages: map[int]fakeResult{0: {links: links("a", 1), hasMore: true}}}
	res := newTestController(fetcher, &fakeDetail{}, ControllerOptions{}).Run(ctx)

	require.Equal(t, models.ReasonCancelled, res.Reason)
	require.Empty(t, fetcher.offsets())
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestRunLogsWorkersAndEmptyPage(t *testing.T) {
	logs := captureLogs(t)
	fetcher := &fakeFetcher{pages: map[int]fakeResult{
		0: {links: links("a", 1), hasMore: true},
	}}

	c := newTestController(fetcher, &fakeDetail{concurrent: true}, ControllerOptions{})
	res := c.Run(context.Background())
	require.Equal(t, models.ReasonNormal, res.Reason)

	out := logs.String()
	require.Contains(t, out, `"msg":"starting crawl"`)
	require.Contains(t, out, `"detail_workers":3`)
	require.Contains(t, out, `"empty_page":true`)
}

func TestRunLogsPageWithoutCards(t *testing.T) {
	logs := captureLogs(t)
	c := NewController(
		fixedPage(models.RawPage{HTML: `<ul class="jobs-search__results-list"></ul>`}),
		NewExtractor(config.DefaultConfig().Selectors, false),
		NewWorkerPool(NewDetailEnricher(&fakeDetail{}, testPolicy), 3),
		NewResultAccumulator(),
		testPolicy,
		ControllerOptions{MaxPages: 5},
	)
	res := c.Run(context.Background())

	require.Equal(t, 0, res.Count())
	require.Contains(t, logs.String(), `"detail_workers":1`)
	require.Contains(t, logs.String(), `"empty_page":false`)
}

// fixedPage serves the same page for every cursor.
type fixedPage models.RawPage

func (p fixedPage) FetchPage(_ context.Context, cursor models.Cursor) (models.RawPage, bool, error) {
	page := models.RawPage(p)
	page.Cursor = cursor
	return page, true, nil
}
