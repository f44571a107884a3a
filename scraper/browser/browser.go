package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"jobs-scraper/config"
	"jobs-scraper/models"
	"jobs-scraper/scraper"
	"jobs-scraper/utils"

	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"
)

type Options struct {
	SearchURL string
	Keyword   string
	Location  string
	Headless  bool
	UserAgent string

	ScrollStep     int
	ScrollInterval time.Duration
	MaxScrollSteps int
	// WaitTimeout bounds every wait for a selector to appear.
	WaitTimeout time.Duration
	MaxTabs     int

	Selectors config.Selectors
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		SearchURL:      cfg.Browser.SearchURL,
		Keyword:        cfg.Keyword,
		Location:       cfg.Location,
		Headless:       cfg.Browser.Headless,
		UserAgent:      cfg.Browser.UserAgent,
		ScrollStep:     cfg.Browser.ScrollStep,
		ScrollInterval: cfg.Browser.ScrollInterval.Std(),
		MaxScrollSteps: cfg.Browser.MaxScrollSteps,
		WaitTimeout:    cfg.Browser.WaitTimeout.Std(),
		MaxTabs:        cfg.Browser.MaxTabs,
		Selectors:      cfg.Selectors,
	}
}

// Browser owns one Chrome instance. The search tab is used by FetchPage
// only, detail pages are opened in their own tabs.
type Browser struct {
	opts Options

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// mu serializes page cycles on the search tab, page is the index of
	// the result page currently rendered in it.
	mu   sync.Mutex
	page int

	tabs *semaphore.Weighted
}

func New(opts Options) (*Browser, error) {
	if opts.MaxTabs < 1 {
		opts.MaxTabs = 1
	}

	slog.Info("launching chrome", "headless", opts.Headless)
	allocCtx, allocCancel := chromedp.NewExecAllocator(
		context.Background(),
		utils.BrowserOpts(opts.Headless, opts.UserAgent)...,
	)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// run with no actions to start the browser now rather than on first use
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &Browser{
		opts:          opts,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		tabs:          semaphore.NewWeighted(int64(opts.MaxTabs)),
	}, nil
}

func (b *Browser) Close() {
	slog.Info("closing browser")
	b.browserCancel()
	b.allocCancel()
}

// bind returns a context of the chromedp target parent that is also
// cancelled when ctx is done.
func bind(ctx, parent context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (b *Browser) searchURL() (string, error) {
	u, err := url.Parse(b.opts.SearchURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("keywords", b.opts.Keyword)
	if b.opts.Location != "" {
		q.Set("location", b.opts.Location)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchPage reads the listings rendered for cursor.Page. Page 0 navigates to
// the search, later pages expect the previous call to have triggered the
// next page control. hasMore reports whether that control was found and
// clicked.
func (b *Browser) FetchPage(ctx context.Context, cursor models.Cursor) (models.RawPage, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cursor.Page != b.page {
		return models.RawPage{}, false, utils.Terminal(
			fmt.Errorf("search tab shows page %d, cannot move to page %d", b.page, cursor.Page),
		)
	}

	runCtx, cancel := bind(ctx, b.browserCtx)
	defer cancel()

	if cursor.Page == 0 {
		target, err := b.searchURL()
		if err != nil {
			return models.RawPage{}, false, utils.Terminal(fmt.Errorf("search url: %w", err))
		}
		slog.Info("opening search", "url", target)
		if err := chromedp.Run(runCtx, chromedp.Navigate(target)); err != nil {
			return models.RawPage{}, false, fmt.Errorf("navigate: %w", err)
		}
	}

	if err := b.waitFor(runCtx, b.opts.Selectors.Container); err != nil {
		return models.RawPage{}, false, fmt.Errorf("listing container: %w", err)
	}
	if err := b.scroll(runCtx); err != nil {
		return models.RawPage{}, false, fmt.Errorf("scroll: %w", err)
	}

	var html, location string
	err := chromedp.Run(runCtx,
		chromedp.OuterHTML(b.opts.Selectors.Container, &html, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		return models.RawPage{}, false, fmt.Errorf("read listings: %w", err)
	}
	page := models.RawPage{Cursor: cursor, BaseURL: location, HTML: html}

	before, err := b.firstCard(runCtx)
	if err != nil {
		slog.Warn("could not read first card", "cursor", cursor, "err", err)
		return page, false, nil
	}

	clicked, err := b.clickNext(runCtx)
	if err != nil {
		slog.Warn("could not look for next page control", "cursor", cursor, "err", err)
		return page, false, nil
	}
	if !clicked {
		return page, false, nil
	}
	b.page++

	// the old list stays in the DOM until the source swaps it, so waiting
	// for the container alone would read this page a second time
	err = waitUntilChanged(runCtx, before, b.opts.WaitTimeout, renderPollInterval, b.firstCard)
	if err != nil {
		slog.Warn("next page did not render, stopping", "cursor", cursor, "err", err)
		return page, false, nil
	}
	return page, true, nil
}

const renderPollInterval = 100 * time.Millisecond

var errNotRendered = errors.New("listing container did not change")

// firstCard returns the markup of the first listing card, or "" while the
// container or card is missing.
func (b *Browser) firstCard(ctx context.Context) (string, error) {
	container, err := json.Marshal(b.opts.Selectors.Container)
	if err != nil {
		return "", err
	}
	card, err := json.Marshal(b.opts.Selectors.Card)
	if err != nil {
		return "", err
	}

	var markup string
	err = chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(`(() => {
		const c = document.querySelector(%s);
		const card = c && c.querySelector(%s);
		return card ? card.outerHTML : "";
	})()`, container, card), &markup))
	return markup, err
}

// waitUntilChanged polls read every interval until it returns something
// other than before and not empty, or timeout passes.
func waitUntilChanged(
	ctx context.Context,
	before string,
	timeout, interval time.Duration,
	read func(context.Context) (string, error),
) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		current, err := read(ctx)
		if err == nil && current != "" && current != before {
			return nil
		}
		if err := utils.Sleep(ctx, interval); err != nil {
			return fmt.Errorf("%w: %w", errNotRendered, err)
		}
	}
}

func (b *Browser) waitFor(ctx context.Context, selector string) error {
	waitCtx, cancel := context.WithTimeout(ctx, b.opts.WaitTimeout)
	defer cancel()
	return chromedp.Run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// scroll triggers lazy loading by scrolling ScrollStep pixels every
// ScrollInterval until the bottom is reached or MaxScrollSteps is used up.
func (b *Browser) scroll(ctx context.Context) error {
	script := fmt.Sprintf(`(() => {
		window.scrollBy(0, %d);
		return window.scrollY + window.innerHeight >= document.body.scrollHeight;
	})()`, b.opts.ScrollStep)

	for step := 1; step <= b.opts.MaxScrollSteps; step++ {
		var bottom bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, &bottom)); err != nil {
			return err
		}
		if bottom {
			slog.Debug("scrolled to bottom", "steps", step)
			return nil
		}
		if err := utils.Sleep(ctx, b.opts.ScrollInterval); err != nil {
			return err
		}
	}
	slog.Debug("scroll step limit reached", "steps", b.opts.MaxScrollSteps)
	return nil
}

func (b *Browser) clickNext(ctx context.Context) (bool, error) {
	if b.opts.Selectors.NextPage == "" {
		return false, nil
	}
	selector, err := json.Marshal(b.opts.Selectors.NextPage)
	if err != nil {
		return false, err
	}

	var clicked bool
	err = chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el || el.disabled || el.getAttribute('aria-disabled') === 'true') return false;
		el.click();
		return true;
	})()`, selector), &clicked))
	return clicked, err
}

// FetchDetail opens link in a new tab and reads the description region.
// At most MaxTabs detail tabs are open at once.
func (b *Browser) FetchDetail(ctx context.Context, link string) (string, error) {
	if err := b.tabs.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer b.tabs.Release(1)

	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	defer tabCancel()

	runCtx, cancel := bind(ctx, tabCtx)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(link)); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	if err := b.waitFor(runCtx, b.opts.Selectors.Detail); err != nil {
		return "", fmt.Errorf("detail region: %w", err)
	}

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML(b.opts.Selectors.Detail, &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read detail: %w", err)
	}
	return scraper.DetailText(html, b.opts.Selectors.Detail)
}

func (b *Browser) SupportsConcurrency() bool {
	return b.opts.MaxTabs > 1
}
