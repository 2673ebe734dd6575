package models

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// FailureRecord is appended for every transient or terminal failure.
type FailureRecord struct {
	RequestID string    `json:"requestId"`
	Platform  Platform  `json:"platform"`
	URL       string    `json:"url"`
	ErrorKind ErrorKind `json:"errorKind"`
	Error     string    `json:"error,omitempty"`
	Attempt   int       `json:"attempt"`
	Terminal  bool      `json:"terminal"`
	Timestamp time.Time `json:"timestamp"`
}

// RunStats is a read-only snapshot of the run counters.
type RunStats struct {
	RequestsEnqueued  int               `json:"requestsEnqueued"`
	RequestsSucceeded int               `json:"requestsSucceeded"`
	RequestsFailed    int               `json:"requestsFailed"`
	Retries           int               `json:"retries"`
	ProductsCollected map[Platform]int  `json:"productsCollected"`
	FailuresByKind    map[ErrorKind]int `json:"failuresByKind"`
}

// TotalProducts sums products over all platforms.
func (s RunStats) TotalProducts() int {
	total := 0
	for _, n := range s.ProductsCollected {
		total += n
	}
	return total
}

// Run carries the counters and failure log of one crawl run. It is passed
// by reference to the frontier, the sink and the scheduler so that
// concurrent runs never share state.
type Run struct {
	ID        string
	StartedAt time.Time

	mu       sync.Mutex
	stats    RunStats
	failures []FailureRecord
}

// NewRun starts a fresh run scope.
func NewRun() *Run {
	return &Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		stats: RunStats{
			ProductsCollected: make(map[Platform]int),
			FailuresByKind:    make(map[ErrorKind]int),
		},
	}
}

func (r *Run) IncEnqueued() {
	r.mu.Lock()
	r.stats.RequestsEnqueued++
	r.mu.Unlock()
}

func (r *Run) IncSucceeded() {
	r.mu.Lock()
	r.stats.RequestsSucceeded++
	r.mu.Unlock()
}

func (r *Run) IncRetries() {
	r.mu.Lock()
	r.stats.Retries++
	r.mu.Unlock()
}

// AddProducts records accepted products for a platform.
func (r *Run) AddProducts(platform Platform, n int) {
	if n <= 0 {
		return
	}
	r.mu.Lock()
	r.stats.ProductsCollected[platform] += n
	r.mu.Unlock()
}

// RecordFailure appends a failure; terminal failures also count as failed requests.
func (r *Run) RecordFailure(rec FailureRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	r.mu.Lock()
	r.failures = append(r.failures, rec)
	r.stats.FailuresByKind[rec.ErrorKind]++
	if rec.Terminal {
		r.stats.RequestsFailed++
	}
	r.mu.Unlock()
}

// Stats returns a copy of the counters.
func (r *Run) Stats() RunStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.stats
	out.ProductsCollected = make(map[Platform]int, len(r.stats.ProductsCollected))
	for k, v := range r.stats.ProductsCollected {
		out.ProductsCollected[k] = v
	}
	out.FailuresByKind = make(map[ErrorKind]int, len(r.stats.FailuresByKind))
	for k, v := range r.stats.FailuresByKind {
		out.FailuresByKind[k] = v
	}
	return out
}

// Failures returns a copy of the failure log.
func (r *Run) Failures() []FailureRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FailureRecord, len(r.failures))
	copy(out, r.failures)
	return out
}

// RunReport holds the overall result of a crawl run.
type RunReport struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	Stats     RunStats
	Failures  []FailureRecord
	Cancelled bool
}
