package models

import "time"

type TerminationReason string

const (
	ReasonNormal          TerminationReason = "normal"
	ReasonMaxPages        TerminationReason = "max-pages"
	ReasonTerminalFailure TerminationReason = "terminal-failure"
	ReasonCancelled       TerminationReason = "cancelled"
)

// RunResult is what a finished crawl reports back to its caller.
type RunResult struct {
	Listings     []Listing
	PagesFetched int
	Reason       TerminationReason
	// Err is the failure that ended or degraded the run, if any.
	Err      error
	Started  time.Time
	Finished time.Time
}

func (r RunResult) Count() int {
	return len(r.Listings)
}
