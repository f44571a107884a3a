package utils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// FailureKind is how the retry loop treats an error.
//
//	FailureNone      - success, stop
//	FailureTransient - timeouts, 429, 5xx, dropped connections: retry
//	FailureTerminal  - the source refused us: stop and don't retry
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureTransient
	FailureTerminal
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransient:
		return "transient"
	case FailureTerminal:
		return "terminal"
	default:
		return "none"
	}
}

// TerminalError marks a failure that must not be retried.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string {
	return "terminal: " + e.Err.Error()
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

// Terminal wraps err so the retry policy gives up on it immediately.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}

func IsTerminal(err error) bool {
	var t *TerminalError
	return errors.As(err, &t)
}

func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case IsTerminal(err):
		return FailureTerminal
	default:
		return FailureTransient
	}
}

// RetryContext describes the state of one retried invocation.
type RetryContext struct {
	Attempt         int
	LastFailureKind FailureKind
	BackoffDelay    time.Duration
}

// ExhaustedError is returned once every attempt failed transiently.
type ExhaustedError struct {
	Retry RetryContext
	Err   error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed, last error: %v", e.Retry.Attempt, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffExponential Backoff = "exponential"
)

// RetryPolicy decides how often and how patiently an operation is retried.
//
// Only transient failures are retried. A failure wrapped with Terminal
// (401, 403, 451, a rejected cursor) ends the loop on the spot.
//
// EXPONENTIAL BACKOFF with BaseDelay 2s and MaxDelay 10s means:
//
//	attempt 1 fails -> wait 2 seconds
//	attempt 2 fails -> wait 4 seconds
//	attempt 3 fails -> wait 8 seconds
//	attempt 4 fails -> wait 10 seconds (capped)
//
// FIXED backoff waits BaseDelay after every failure.
//
// A source answering 429 or 5xx is usually overloaded. Asking again at once
// keeps it overloaded, waiting longer each time gives it room to recover.
//
// Usage:
//
//	policy := utils.RetryPolicy{MaxAttempts: 3, Backoff: utils.BackoffExponential, BaseDelay: 2 * time.Second}
//	err := policy.Do(ctx, "fetch page", func(ctx context.Context) error {
//	    _, _, err := fetcher.FetchPage(ctx, cursor)
//	    return err
//	})
type RetryPolicy struct {
	MaxAttempts int
	Backoff     Backoff
	BaseDelay   time.Duration
	// MaxDelay caps exponential growth. Zero means uncapped.
	MaxDelay time.Duration
	// AttemptTimeout bounds each attempt. Zero leaves it to the operation.
	AttemptTimeout time.Duration
}

// Delay is the wait after the given failed attempt (1-based).
// Exponential backoff doubles from BaseDelay: base, 2*base, 4*base...
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	if p.Backoff == BackoffExponential {
		for i := 1; i < attempt; i++ {
			delay *= 2
			if p.MaxDelay > 0 && delay >= p.MaxDelay {
				return p.MaxDelay
			}
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Do runs fn until it succeeds, fails terminally or MaxAttempts is reached.
// Terminal failures come back as-is (still matching IsTerminal), exhaustion
// comes back as *ExhaustedError.
//
// Each attempt gets its own AttemptTimeout, so one hung request can't eat
// the whole budget. A cancelled ctx stops the wait between attempts and is
// reported as exhaustion carrying both errors.
func (p RetryPolicy) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	rc := RetryContext{}
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		rc.Attempt = attempt

		lastErr = p.attempt(ctx, fn)
		rc.LastFailureKind = Classify(lastErr)

		switch rc.LastFailureKind {
		case FailureNone:
			return nil
		case FailureTerminal:
			slog.Warn("terminal failure, not retrying", "op", name, "attempt", attempt, "err", lastErr)
			return lastErr
		}

		// no point sleeping after the last attempt
		if attempt == maxAttempts {
			break
		}

		rc.BackoffDelay = p.Delay(attempt)
		slog.Warn(
			"attempt failed, retrying",
			"op", name,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"wait", rc.BackoffDelay,
			"err", lastErr,
		)
		if err := Sleep(ctx, rc.BackoffDelay); err != nil {
			return &ExhaustedError{Retry: rc, Err: errors.Join(lastErr, err)}
		}
	}

	return &ExhaustedError{Retry: rc, Err: lastErr}
}

func (p RetryPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx)
}
