// Package pagination drives listing chains page by page up to a product cap.
package pagination

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/aluiziolira/shopcrawl/models"
)

// Sink accepts product batches and reports how many were new.
type Sink interface {
	PushBatch(records []*models.ProductRecord) int
}

// Enqueuer schedules continuation requests.
type Enqueuer interface {
	Enqueue(req models.Request) bool
}

// Keyer computes canonical request keys.
type Keyer interface {
	Key(platform models.Platform, kind models.Kind, rawURL, pageToken string) (string, error)
}

// Options bound a chain.
type Options struct {
	// MaxProducts caps the products accepted per chain.
	MaxProducts int
	// MaxPages caps the listing pages fetched per chain. Zero means no limit.
	MaxPages int
}

// Outcome reports what Handle did with one extraction result.
type Outcome struct {
	Accepted  int
	Collected int
	Continued bool
	// Reason explains why the chain stopped; empty while it continues.
	Reason string
}

type chainState struct {
	collected int
	pages     int
}

// Controller tracks every live listing chain. A chain has at most one live
// request at a time, since its continuation is only enqueued here after the
// previous page was processed.
type Controller struct {
	opts     Options
	sink     Sink
	frontier Enqueuer
	keys     Keyer

	mu     sync.Mutex
	chains map[string]*chainState
}

// New creates a controller.
func New(opts Options, sink Sink, frontier Enqueuer, keys Keyer) *Controller {
	return &Controller{
		opts:     opts,
		sink:     sink,
		frontier: frontier,
		keys:     keys,
		chains:   make(map[string]*chainState),
	}
}

// Handle pushes the products of one listing page and decides whether the
// chain continues. The cap is checked before any continuation is created,
// so no page is ever requested once the chain is full.
func (c *Controller) Handle(req models.Request, res *models.ExtractionResult) (Outcome, error) {
	chainID := req.ChainID
	if chainID == "" {
		chainID = req.ID
	}

	c.mu.Lock()
	st, ok := c.chains[chainID]
	if !ok {
		st = &chainState{}
		c.chains[chainID] = st
	}
	st.pages++
	remaining := c.opts.MaxProducts - st.collected
	c.mu.Unlock()

	var batch []*models.ProductRecord
	if res != nil && remaining > 0 {
		batch = res.Products
		if len(batch) > remaining {
			batch = batch[:remaining]
		}
	}

	accepted := 0
	if len(batch) > 0 {
		accepted = c.sink.PushBatch(batch)
	}

	c.mu.Lock()
	st.collected += accepted
	out := Outcome{Accepted: accepted, Collected: st.collected}
	pages := st.pages
	c.mu.Unlock()

	switch {
	case res == nil || !res.HasNextPage:
		out.Reason = "last page"
	case res.NextPageToken == "":
		out.Reason = "next page without link"
	case out.Collected >= c.opts.MaxProducts:
		out.Reason = "product cap reached"
	case c.opts.MaxPages > 0 && pages >= c.opts.MaxPages:
		out.Reason = "page budget exhausted"
	}
	if out.Reason != "" {
		c.finish(chainID)
		return out, nil
	}

	next, err := c.continuation(req, chainID, res.NextPageToken)
	if err != nil {
		c.finish(chainID)
		out.Reason = "invalid continuation"
		return out, err
	}
	if !c.frontier.Enqueue(next) {
		c.finish(chainID)
		out.Reason = "continuation already queued"
		return out, nil
	}
	out.Continued = true
	return out, nil
}

// Abandon forgets a chain whose current request failed terminally.
func (c *Controller) Abandon(chainID string) {
	c.finish(chainID)
}

// Active returns the number of chains still in progress.
func (c *Controller) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chains)
}

func (c *Controller) finish(chainID string) {
	c.mu.Lock()
	delete(c.chains, chainID)
	c.mu.Unlock()
}

func (c *Controller) continuation(req models.Request, chainID, token string) (models.Request, error) {
	nextURL, err := resolveToken(req.URL, token)
	if err != nil {
		return models.Request{}, err
	}
	key, err := c.keys.Key(req.Platform, models.KindSearch, nextURL, token)
	if err != nil {
		return models.Request{}, err
	}
	return models.Request{
		Key:        key,
		URL:        nextURL,
		Platform:   req.Platform,
		Kind:       models.KindSearch,
		SearchTerm: req.SearchTerm,
		PageToken:  token,
		ChainID:    chainID,
		Page:       req.Page + 1,
	}, nil
}

// resolveToken turns a next-page link into an absolute URL.
func resolveToken(base, token string) (string, error) {
	ref, err := url.Parse(token)
	if err != nil {
		return "", fmt.Errorf("%w: page token %q: %v", models.ErrMalformedURL, token, err)
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", models.ErrMalformedURL, base, err)
	}
	return b.ResolveReference(ref).String(), nil
}
