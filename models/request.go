package models

import "time"

// Kind distinguishes listing fetches from product-detail fetches.
type Kind string

const (
	KindSearch  Kind = "search"
	KindProduct Kind = "product"
)

// State is the lifecycle state of a Request.
type State int

const (
	StateNew State = iota
	StateInFlight
	StateRetrying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInFlight:
		return "in_flight"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the request lifecycle.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Request is a unit of fetch work held by the frontier.
type Request struct {
	ID         string
	Key        string
	URL        string
	Platform   Platform
	Kind       Kind
	SearchTerm string
	PageToken  string
	// ChainID groups the pages of one listing chain; it equals the seed request ID.
	ChainID   string
	Page      int
	Attempt   int
	State     State
	CreatedAt time.Time
	// Dismissed is set once a consent banner was cleared for this request.
	// It survives retries so the banner is dismissed at most once.
	Dismissed bool
}
