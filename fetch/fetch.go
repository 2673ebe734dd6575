// Package fetch adapts page retrieval engines to the crawler. Engines report
// transport failures as errors and hand back every HTTP response, whatever
// its status, so the caller can classify it.
package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/aluiziolira/shopcrawl/models"
)

// Engine names a fetch implementation.
type Engine string

const (
	EngineHTTP    Engine = "http"
	EngineBrowser Engine = "browser"
)

// ErrNoConsentControl is returned by Dismiss when none of the accept
// selectors is present on the page.
var ErrNoConsentControl = errors.New("fetch: no consent control found")

// Request describes one page retrieval.
type Request struct {
	URL      string
	Platform models.Platform
	// WaitSelector is an element the engine should wait for before capturing
	// content. Engines that do not render pages ignore it.
	WaitSelector string
	Timeout      time.Duration
}

// Fetcher retrieves page content.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*models.Page, error)
}

// Dismisser is implemented by engines able to clear a consent banner so
// that a repeated fetch of the same URL sees the page content.
type Dismisser interface {
	Dismiss(ctx context.Context, req Request, acceptSelectors []string) error
}

// Closer is implemented by engines holding external resources.
type Closer interface {
	Close() error
}
