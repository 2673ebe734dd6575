package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/aluiziolira/shopcrawl/models"
)

// waitSelectorTimeout bounds the wait for a platform's content marker. A
// missing marker is not an error; the page is captured as it is.
const waitSelectorTimeout = 5 * time.Second

// BrowserOptions configures the headless browser engine.
type BrowserOptions struct {
	UserAgent string
	ProxyURL  string
	Timeout   time.Duration
	Headless  bool
}

// BrowserEngine renders pages in a shared headless Chromium instance. Every
// fetch opens its own stealth page so concurrent workers do not interfere.
type BrowserEngine struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	opts     BrowserOptions

	closeOnce sync.Once
}

// NewBrowserEngine launches Chromium and connects to it.
func NewBrowserEngine(opts BrowserOptions) (*BrowserEngine, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	l := launcher.New().Headless(opts.Headless)
	if opts.ProxyURL != "" {
		l = l.Proxy(opts.ProxyURL)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &BrowserEngine{browser: browser, launcher: l, opts: opts}, nil
}

// open returns a stealth page and a view of it bound to ctx and timeout.
// The caller closes the unbound page so a cancelled fetch still releases
// its tab.
func (e *BrowserEngine) open(ctx context.Context, timeout time.Duration) (raw, bound *rod.Page, err error) {
	raw, err = stealth.Page(e.browser)
	if err != nil {
		return nil, nil, fmt.Errorf("open page: %w", err)
	}
	if e.opts.UserAgent != "" {
		if err := raw.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: e.opts.UserAgent}); err != nil {
			_ = raw.Close()
			return nil, nil, fmt.Errorf("set user agent: %w", err)
		}
	}
	return raw, raw.Context(ctx).Timeout(timeout), nil
}

// Fetch navigates to req.URL and returns the rendered document. The status
// is taken from the main document response.
func (e *BrowserEngine) Fetch(ctx context.Context, req Request) (*models.Page, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.opts.Timeout
	}

	raw, page, err := e.open(ctx, timeout)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = raw.Close()
	}()

	status := 0
	wait := page.EachEvent(func(ev *proto.NetworkResponseReceived) bool {
		if ev.Type == proto.NetworkResourceTypeDocument {
			status = ev.Response.Status
			return true
		}
		return false
	})

	if err := page.Navigate(req.URL); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", req.URL, err)
	}
	wait()

	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("load %s: %w", req.URL, err)
	}

	if req.WaitSelector != "" {
		waiter := page.Timeout(waitSelectorTimeout)
		_, _ = waiter.Element(req.WaitSelector)
		waiter.CancelTimeout()
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL, err)
	}
	if status == 0 {
		status = 200
	}

	return &models.Page{
		URL:        req.URL,
		StatusCode: status,
		Body:       []byte(html),
	}, nil
}

// Dismiss loads req.URL and clicks the first accept control present. The
// resulting consent cookies persist in the browser profile.
func (e *BrowserEngine) Dismiss(ctx context.Context, req Request, acceptSelectors []string) error {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.opts.Timeout
	}

	raw, page, err := e.open(ctx, timeout)
	if err != nil {
		return err
	}
	defer func() {
		_ = raw.Close()
	}()

	if err := page.Navigate(req.URL); err != nil {
		return fmt.Errorf("navigate %s: %w", req.URL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("load %s: %w", req.URL, err)
	}

	for _, sel := range acceptSelectors {
		found, el, err := page.Has(sel)
		if err != nil {
			return fmt.Errorf("query %s: %w", sel, err)
		}
		if !found {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return fmt.Errorf("click %s: %w", sel, err)
		}
		return nil
	}
	return ErrNoConsentControl
}

// Close shuts the browser down and kills the launched process.
func (e *BrowserEngine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		err = e.browser.Close()
		e.launcher.Kill()
	})
	return err
}
