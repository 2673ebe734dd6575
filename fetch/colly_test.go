package fetch

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/shopcrawl/models"
)

func newMockEngine(t *testing.T) (*HTTPEngine, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	engine, err := NewHTTPEngine(HTTPOptions{
		UserAgent: "shopcrawl-test",
		Timeout:   2 * time.Second,
		Transport: transport,
	})
	require.NoError(t, err)
	return engine, transport
}

func TestHTTPEngineReturnsBodyAndStatus(t *testing.T) {
	engine, transport := newMockEngine(t)
	transport.RegisterResponder(http.MethodGet, "https://www.ebay.com/sch/i.html",
		httpmock.NewStringResponder(http.StatusOK, "<html><body>listing</body></html>"))

	page, err := engine.Fetch(context.Background(), Request{URL: "https://www.ebay.com/sch/i.html", Platform: models.PlatformEbay})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, string(page.Body), "listing")
	assert.Equal(t, "https://www.ebay.com/sch/i.html", page.URL)
}

func TestHTTPEnginePassesErrorStatusThrough(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "forbidden", status: http.StatusForbidden},
		{name: "not found", status: http.StatusNotFound},
		{name: "rate limited", status: http.StatusTooManyRequests},
		{name: "unavailable", status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, transport := newMockEngine(t)
			transport.RegisterResponder(http.MethodGet, "https://www.walmart.com/search",
				httpmock.NewStringResponder(tt.status, "<html>denied</html>"))

			page, err := engine.Fetch(context.Background(), Request{URL: "https://www.walmart.com/search"})
			require.NoError(t, err)
			assert.Equal(t, tt.status, page.StatusCode)
			assert.Equal(t, "<html>denied</html>", string(page.Body))
		})
	}
}

func TestHTTPEngineTransportError(t *testing.T) {
	engine, transport := newMockEngine(t)
	boom := errors.New("connection reset")
	transport.RegisterResponder(http.MethodGet, "https://www.etsy.com/search", httpmock.NewErrorResponder(boom))

	_, err := engine.Fetch(context.Background(), Request{URL: "https://www.etsy.com/search"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestHTTPEngineRequestTimeout(t *testing.T) {
	engine, transport := newMockEngine(t)
	transport.RegisterResponder(http.MethodGet, "https://shopify.com/search",
		func(req *http.Request) (*http.Response, error) {
			time.Sleep(200 * time.Millisecond)
			return httpmock.NewStringResponse(http.StatusOK, "late"), nil
		})

	start := time.Now()
	_, err := engine.Fetch(context.Background(), Request{URL: "https://shopify.com/search", Timeout: 20 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestHTTPEngineHonoursCancellation(t *testing.T) {
	engine, transport := newMockEngine(t)
	transport.RegisterResponder(http.MethodGet, "https://www.amazon.com/s",
		func(req *http.Request) (*http.Response, error) {
			time.Sleep(200 * time.Millisecond)
			return httpmock.NewStringResponse(http.StatusOK, "late"), nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Fetch(ctx, Request{URL: "https://www.amazon.com/s"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPEngineCancelsInFlightRequest(t *testing.T) {
	engine, transport := newMockEngine(t)

	aborted := make(chan error, 1)
	var header string
	transport.RegisterResponder(http.MethodGet, "https://www.ebay.com/sch/i.html",
		func(req *http.Request) (*http.Response, error) {
			header = req.Header.Get(fetchIDHeader)
			select {
			case <-req.Context().Done():
				aborted <- req.Context().Err()
				return nil, req.Context().Err()
			case <-time.After(2 * time.Second):
				aborted <- nil
				return httpmock.NewStringResponse(http.StatusOK, "late"), nil
			}
		})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := engine.Fetch(ctx, Request{URL: "https://www.ebay.com/sch/i.html"})
	require.ErrorIs(t, err, context.Canceled)

	select {
	case got := <-aborted:
		assert.ErrorIs(t, got, context.Canceled)
	case <-time.After(time.Second):
		t.Fatalf("request kept running after the fetch was cancelled")
	}
	assert.Empty(t, header)
}

func TestHTTPEngineDismissSendsConsentCookies(t *testing.T) {
	engine, transport := newMockEngine(t)

	var cookies []*http.Cookie
	transport.RegisterResponder(http.MethodGet, "https://www.amazon.com/dp/B000TEST",
		func(req *http.Request) (*http.Response, error) {
			cookies = req.Cookies()
			return httpmock.NewStringResponse(http.StatusOK, "<html>product</html>"), nil
		})

	req := Request{URL: "https://www.amazon.com/dp/B000TEST", Platform: models.PlatformAmazon}
	require.NoError(t, engine.Dismiss(context.Background(), req, []string{"#sp-cc-accept"}))

	_, err := engine.Fetch(context.Background(), req)
	require.NoError(t, err)

	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"cookieconsent_status", "OptanonAlertBoxClosed", "gdpr_consent"}, names)
	assert.Len(t, engine.Cookies("https://www.amazon.com/"), 3)
}

func TestHTTPEngineDismissRejectsMalformedURL(t *testing.T) {
	engine, _ := newMockEngine(t)
	err := engine.Dismiss(context.Background(), Request{URL: "://bad"}, nil)
	assert.ErrorIs(t, err, models.ErrMalformedURL)
}
