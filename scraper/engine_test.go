package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/shopcrawl/fetch"
	"github.com/aluiziolira/shopcrawl/models"
	"github.com/aluiziolira/shopcrawl/pipeline"
	"github.com/aluiziolira/shopcrawl/retry"
)

func amazonResultsPage(page, count int, next bool) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="s-main-slot">`)
	for i := 0; i < count; i++ {
		asin := fmt.Sprintf("B%02d%02d", page, i)
		fmt.Fprintf(&b, `<div data-component-type="s-search-result" data-asin="%s">
<h2><a href="/dp/%s?ref=sr_1_%d"><span>Mouse %d-%d</span></a></h2>
<span class="a-price"><span class="a-offscreen">$%d.99</span></span>
</div>`, asin, asin, i, page, i, 10+i)
	}
	b.WriteString(`</div>`)
	if next {
		fmt.Fprintf(&b, `<a class="s-pagination-next" href="/s?k=mouse&page=%d">Next</a>`, page+1)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func htmlResponse(body string) *http.Response {
	resp := httpmock.NewStringResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "text/html")
	return resp
}

func TestSchedulerCrawlsWithHTTPEngine(t *testing.T) {
	transport := httpmock.NewMockTransport()
	calls := map[string]int{}
	transport.RegisterResponder(http.MethodGet, "https://www.amazon.com/s",
		func(req *http.Request) (*http.Response, error) {
			page := req.URL.Query().Get("page")
			calls[page]++
			switch page {
			case "":
				if calls[page] == 1 {
					return httpmock.NewStringResponse(http.StatusServiceUnavailable, "<html>try later</html>"), nil
				}
				return htmlResponse(amazonResultsPage(1, 5, true)), nil
			case "2":
				return htmlResponse(amazonResultsPage(2, 5, true)), nil
			case "3":
				return htmlResponse(amazonResultsPage(3, 2, false)), nil
			}
			return httpmock.NewStringResponse(http.StatusNotFound, ""), nil
		})

	engine, err := fetch.NewHTTPEngine(fetch.HTTPOptions{UserAgent: "shopcrawl-test", Timeout: time.Second, Transport: transport})
	if err != nil {
		t.Fatalf("NewHTTPEngine: %v", err)
	}

	run := models.NewRun()
	sink := pipeline.NewSink(nil, run, nil, pipeline.Options{})
	s, err := NewScheduler(Options{
		MaxConcurrency: 1,
		MaxProducts:    100,
		MaxPages:       10,
		Timeout:        time.Second,
		ShutdownGrace:  time.Second,
		Retry:          retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Metrics:        NewMetrics(),
	}, engine, sink, run)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	seeds := BuildSeeds(SeedInput{Platforms: []models.Platform{models.PlatformAmazon}, SearchTerms: []string{"mouse"}})
	report, err := s.Run(context.Background(), seeds)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sink.Len() != 12 {
		t.Fatalf("products = %d, want 12", sink.Len())
	}
	if report.Stats.RequestsSucceeded != 3 || report.Stats.Retries != 1 {
		t.Fatalf("stats = %+v, want 3 succeeded and 1 retry", report.Stats)
	}
	if report.Stats.FailuresByKind[models.ErrorBlocked] != 1 {
		t.Fatalf("failures = %+v, want one blocked", report.Stats.FailuresByKind)
	}

	first := sink.Products()[0]
	if first.URL != "https://www.amazon.com/dp/B0100?ref=sr_1_0" || first.Price == nil || *first.Price != 10.99 {
		t.Fatalf("first product = %+v", first)
	}
	if first.SearchTerm != "mouse" || first.Currency != "USD" {
		t.Fatalf("first product not enriched: %+v", first)
	}
}
