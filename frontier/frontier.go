// Package frontier holds the deduplicated queue of live crawl requests.
package frontier

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/shopcrawl/models"
)

var (
	// ErrUnknownRequest is returned for IDs that are not live in the frontier.
	ErrUnknownRequest = errors.New("frontier: unknown request")
	// ErrInvalidTransition is returned when a state change is not allowed.
	ErrInvalidTransition = errors.New("frontier: invalid state transition")
)

// Frontier is a mutable work queue keyed by canonical request identity.
// At most one non-terminal request exists per key. All methods are safe for
// concurrent use.
type Frontier struct {
	run *models.Run

	mu       sync.Mutex
	live     map[string]*models.Request // by canonical key
	byID     map[string]*models.Request
	ready    []*models.Request
	inFlight int
	closed   bool
	changed  chan struct{}
}

// New creates an empty frontier reporting into run.
func New(run *models.Run) *Frontier {
	return &Frontier{
		run:     run,
		live:    make(map[string]*models.Request),
		byID:    make(map[string]*models.Request),
		changed: make(chan struct{}),
	}
}

// Enqueue inserts req unless a live request with the same key exists.
// It returns false, without side effects, for duplicates, for requests
// lacking a key and after Close.
func (f *Frontier) Enqueue(req models.Request) bool {
	if req.Key == "" {
		return false
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return false
	}
	if _, ok := f.live[req.Key]; ok {
		f.mu.Unlock()
		return false
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.ChainID == "" && req.Kind == models.KindSearch {
		req.ChainID = req.ID
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	req.State = models.StateNew

	entry := &req
	f.live[req.Key] = entry
	f.byID[req.ID] = entry
	f.ready = append(f.ready, entry)
	f.signalLocked()
	f.mu.Unlock()

	if f.run != nil {
		f.run.IncEnqueued()
	}
	return true
}

// Dequeue hands out the next dispatchable request, moving it to InFlight
// and counting the attempt. The returned value is a snapshot.
func (f *Frontier) Dequeue() (models.Request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.ready) == 0 {
		return models.Request{}, false
	}
	entry := f.ready[0]
	f.ready[0] = nil
	f.ready = f.ready[1:]

	entry.State = models.StateInFlight
	entry.Attempt++
	f.inFlight++
	return *entry, true
}

// MarkRetrying parks an in-flight request until Requeue is called. The
// request stays live, so its key keeps blocking duplicates.
func (f *Frontier) MarkRetrying(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	if entry.State != models.StateInFlight {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, entry.State, models.StateRetrying)
	}
	entry.State = models.StateRetrying
	f.inFlight--
	f.signalLocked()
	return nil
}

// Requeue makes a retrying request dispatchable again.
func (f *Frontier) Requeue(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	if entry.State != models.StateRetrying || f.queuedLocked(entry) {
		return fmt.Errorf("%w: requeue from %s", ErrInvalidTransition, entry.State)
	}
	f.ready = append(f.ready, entry)
	f.signalLocked()
	return nil
}

// MarkDone moves a request to a terminal state and removes it from the
// frontier. It returns the final snapshot.
func (f *Frontier) MarkDone(id string, outcome models.State) (models.Request, error) {
	if !outcome.Terminal() {
		return models.Request{}, fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, outcome)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.byID[id]
	if !ok {
		return models.Request{}, fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	f.removeLocked(entry)
	entry.State = outcome
	f.signalLocked()
	return *entry, nil
}

// MarkDismissed records that the consent banner of an in-flight request
// was dismissed.
func (f *Frontier) MarkDismissed(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	if entry.State != models.StateInFlight {
		return fmt.Errorf("%w: dismiss in %s", ErrInvalidTransition, entry.State)
	}
	entry.Dismissed = true
	return nil
}

// Get returns a snapshot of a live request.
func (f *Frontier) Get(id string) (models.Request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.byID[id]
	if !ok {
		return models.Request{}, false
	}
	return *entry, true
}

// Size counts live (non-terminal) requests.
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

// InFlight counts requests currently handed out to workers.
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// Changed returns a channel closed on the next frontier mutation.
func (f *Frontier) Changed() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changed
}

// Close rejects further enqueues.
func (f *Frontier) Close() {
	f.mu.Lock()
	f.closed = true
	f.signalLocked()
	f.mu.Unlock()
}

// Drain removes every remaining live request and returns their snapshots,
// oldest first.
func (f *Frontier) Drain() []models.Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.Request, 0, len(f.byID))
	for _, entry := range f.byID {
		out = append(out, *entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	f.live = make(map[string]*models.Request)
	f.byID = make(map[string]*models.Request)
	f.ready = nil
	f.inFlight = 0
	f.signalLocked()
	return out
}

func (f *Frontier) removeLocked(entry *models.Request) {
	delete(f.live, entry.Key)
	delete(f.byID, entry.ID)
	if entry.State == models.StateInFlight {
		f.inFlight--
	}
	for i, queued := range f.ready {
		if queued == entry {
			f.ready = append(f.ready[:i], f.ready[i+1:]...)
			break
		}
	}
}

func (f *Frontier) queuedLocked(entry *models.Request) bool {
	for _, queued := range f.ready {
		if queued == entry {
			return true
		}
	}
	return false
}

func (f *Frontier) signalLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}
