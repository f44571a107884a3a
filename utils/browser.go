package utils

import "github.com/chromedp/chromedp"

// BrowserOpts returns the exec allocator options used to launch Chrome.
func BrowserOpts(headless bool, userAgent string) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1920, 1080),
	}

	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	if headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}

	return opts
}
