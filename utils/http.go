package utils

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

type HTTPOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// RequestsPerSecond throttles every request made by the client. Zero disables it.
	RequestsPerSecond float64
}

// NewHTTPClient returns a resty client that waits on a shared limiter before each request.
func NewHTTPClient(opts HTTPOptions) *resty.Client {
	client := resty.New()
	if opts.BaseURL != "" {
		client.SetBaseURL(opts.BaseURL)
	}
	if opts.UserAgent != "" {
		client.SetHeader("user-agent", opts.UserAgent)
	}
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	if opts.RequestsPerSecond > 0 {
		// burst 1 keeps requests evenly spaced
		limiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		slog.Debug("http response", "method", res.Request.Method, "url", res.Request.URL, "status", res.StatusCode(), "took", res.Time())
		return nil
	})

	return client
}

// StatusError is a non-2xx response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.Status)
}

// CheckStatus maps a response status onto the retry taxonomy:
// 2xx is nil, 429 and 5xx are transient, 401/403/451 are terminal.
// ok reports whether the body is usable; other client errors return
// (false, nil) so the caller can treat the page as empty.
func CheckStatus(res *resty.Response) (ok bool, err error) {
	status := res.StatusCode()
	switch {
	case status >= 200 && status < 300:
		return true, nil
	case status == http.StatusTooManyRequests || status >= 500:
		return false, &StatusError{URL: res.Request.URL, Status: status}
	case status == http.StatusUnauthorized ||
		status == http.StatusForbidden ||
		status == http.StatusUnavailableForLegalReasons:
		return false, Terminal(&StatusError{URL: res.Request.URL, Status: status})
	default:
		return false, nil
	}
}
