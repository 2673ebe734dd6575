package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"

	"github.com/aluiziolira/shopcrawl/antibot"
	"github.com/aluiziolira/shopcrawl/models"
)

// HTTPOptions configures the HTTP engine.
type HTTPOptions struct {
	UserAgent string
	// ProxyURL is passed to the transport unmodified. Empty means the
	// environment proxy settings apply.
	ProxyURL string
	Timeout  time.Duration
	// Transport overrides the default transport, mainly for tests.
	Transport http.RoundTripper
}

// HTTPEngine fetches pages with a colly collector. Each fetch runs on a
// clone that shares the parent's HTTP client and cookie jar, so consent
// cookies set by Dismiss apply to later fetches.
type HTTPEngine struct {
	base      *colly.Collector
	transport *contextTransport
	timeout   time.Duration
}

// NewHTTPEngine builds the collector.
func NewHTTPEngine(opts HTTPOptions) (*HTTPEngine, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	options := []colly.CollectorOption{colly.AllowURLRevisit()}
	if opts.UserAgent != "" {
		options = append(options, colly.UserAgent(opts.UserAgent))
	}
	collector := colly.NewCollector(options...)
	collector.ParseHTTPErrorResponse = true
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(opts.Timeout)

	transport := opts.Transport
	if transport == nil {
		proxy := http.ProxyFromEnvironment
		if opts.ProxyURL != "" {
			parsed, err := url.Parse(opts.ProxyURL)
			if err != nil {
				return nil, fmt.Errorf("parse proxy url: %w", err)
			}
			proxy = http.ProxyURL(parsed)
		}
		transport = &http.Transport{
			Proxy: proxy,
			DialContext: (&net.Dialer{
				Timeout:   opts.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}
	bound := &contextTransport{base: transport, ctxs: make(map[string]context.Context)}
	collector.WithTransport(bound)

	return &HTTPEngine{base: collector, transport: bound, timeout: opts.Timeout}, nil
}

// fetchIDHeader carries a fetch ID from the collector to contextTransport.
// It never leaves the process.
const fetchIDHeader = "X-Shopcrawl-Fetch"

// contextTransport binds each outgoing request to the context of the fetch
// that issued it. colly builds its requests without a context, so without
// this a cancelled fetch would keep its connection open until the client
// timeout.
type contextTransport struct {
	base http.RoundTripper

	mu   sync.Mutex
	ctxs map[string]context.Context
}

func (t *contextTransport) bind(ctx context.Context) (string, func()) {
	id := uuid.NewString()
	t.mu.Lock()
	t.ctxs[id] = ctx
	t.mu.Unlock()
	return id, func() {
		t.mu.Lock()
		delete(t.ctxs, id)
		t.mu.Unlock()
	}
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	id := req.Header.Get(fetchIDHeader)
	if id == "" {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()
	t.mu.Lock()
	if bound, ok := t.ctxs[id]; ok {
		ctx = bound
	}
	t.mu.Unlock()

	out := req.Clone(ctx)
	out.Header.Del(fetchIDHeader)
	return t.base.RoundTrip(out)
}

type fetchResult struct {
	page *models.Page
	err  error
}

// Fetch issues a GET for req.URL. The call returns when the response arrives,
// the request times out or ctx ends, whichever happens first. The HTTP
// request itself is cancelled together with ctx.
func (e *HTTPEngine) Fetch(ctx context.Context, req Request) (*models.Page, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := e.base.Clone()
	c.ParseHTTPErrorResponse = true
	done := make(chan fetchResult, 1)

	id, release := e.transport.bind(ctx)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set(fetchIDHeader, id)
	})

	go func() {
		defer release()

		var page *models.Page
		c.OnResponse(func(r *colly.Response) {
			page = &models.Page{
				URL:        r.Request.URL.String(),
				StatusCode: r.StatusCode,
				Body:       r.Body,
			}
		})
		err := c.Visit(req.URL)
		if err == nil && page == nil {
			err = fmt.Errorf("no response for %s", req.URL)
		}
		done <- fetchResult{page: page, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch %s: %w", req.URL, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("fetch %s: %w", req.URL, res.err)
		}
		return res.page, nil
	}
}

// Dismiss records consent cookies for the request's site. The HTTP engine
// cannot click, so accept selectors are ignored.
func (e *HTTPEngine) Dismiss(_ context.Context, req Request, _ []string) error {
	u, err := url.Parse(req.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrMalformedURL, err)
	}
	root := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
	if err := e.base.SetCookies(root.String(), antibot.ConsentCookies()); err != nil {
		return fmt.Errorf("set consent cookies: %w", err)
	}
	return nil
}

// Cookies returns the cookies the engine would send to rawURL.
func (e *HTTPEngine) Cookies(rawURL string) []*http.Cookie {
	return e.base.Cookies(rawURL)
}
