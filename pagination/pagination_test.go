package pagination

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/shopcrawl/canonical"
	"github.com/aluiziolira/shopcrawl/frontier"
	"github.com/aluiziolira/shopcrawl/models"
)

type memorySink struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (s *memorySink) PushBatch(records []*models.ProductRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	n := 0
	for _, r := range records {
		if !s.seen[r.URL] {
			s.seen[r.URL] = true
			n++
		}
	}
	return n
}

func (s *memorySink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// mockListing serves pages of perPage products forever.
func mockListing(req models.Request, perPage int) *models.ExtractionResult {
	page := req.Page
	res := &models.ExtractionResult{HasNextPage: true, NextPageToken: fmt.Sprintf("/s?k=shoes&page=%d", page+1)}
	for i := 0; i < perPage; i++ {
		res.Products = append(res.Products, &models.ProductRecord{
			Title:    fmt.Sprintf("Shoe %d-%d", page, i),
			URL:      fmt.Sprintf("https://www.amazon.com/dp/P%d-%d", page, i),
			Platform: models.PlatformAmazon,
		})
	}
	return res
}

func seed(t *testing.T, f *frontier.Frontier, canon *canonical.Canonicalizer) {
	t.Helper()
	u := "https://www.amazon.com/s?k=shoes"
	key, err := canon.Key(models.PlatformAmazon, models.KindSearch, u, "")
	require.NoError(t, err)
	require.True(t, f.Enqueue(models.Request{
		Key: key, URL: u, Platform: models.PlatformAmazon, Kind: models.KindSearch, SearchTerm: "shoes", Page: 1,
	}))
}

// crawl drives the chain to completion and returns the number of pages fetched.
func crawl(t *testing.T, maxProducts, maxPages int) (pages int, sink *memorySink) {
	t.Helper()
	canon, err := canonical.New(64)
	require.NoError(t, err)
	f := frontier.New(models.NewRun())
	sink = &memorySink{}
	ctrl := New(Options{MaxProducts: maxProducts, MaxPages: maxPages}, sink, f, canon)

	seed(t, f, canon)
	for {
		req, ok := f.Dequeue()
		if !ok {
			break
		}
		pages++
		_, err := ctrl.Handle(req, mockListing(req, 5))
		require.NoError(t, err)
		_, err = f.MarkDone(req.ID, models.StateSucceeded)
		require.NoError(t, err)
		require.LessOrEqual(t, pages, 100, "chain did not terminate")
	}
	assert.Zero(t, ctrl.Active())
	return pages, sink
}

func TestPaginationStopsAtCap(t *testing.T) {
	pages, sink := crawl(t, 12, 0)
	assert.Equal(t, 3, pages, "5+5+2 needs exactly three pages")
	assert.Equal(t, 12, sink.len())
}

func TestPaginationCapForAllLimits(t *testing.T) {
	for limit := 0; limit <= 23; limit++ {
		t.Run(fmt.Sprintf("max_%d", limit), func(t *testing.T) {
			pages, sink := crawl(t, limit, 0)
			assert.Equal(t, limit, sink.len())
			wantPages := (limit + 4) / 5
			if wantPages == 0 {
				wantPages = 1
			}
			assert.Equal(t, wantPages, pages)
		})
	}
}

func TestPaginationPageBudget(t *testing.T) {
	pages, sink := crawl(t, 100, 2)
	assert.Equal(t, 2, pages)
	assert.Equal(t, 10, sink.len())
}

func TestHandleStopsOnLastPage(t *testing.T) {
	canon, err := canonical.New(8)
	require.NoError(t, err)
	f := frontier.New(models.NewRun())
	ctrl := New(Options{MaxProducts: 50}, &memorySink{}, f, canon)

	req := models.Request{ID: "r1", ChainID: "r1", URL: "https://www.ebay.com/sch/i.html?_nkw=x", Platform: models.PlatformEbay, Kind: models.KindSearch}
	out, err := ctrl.Handle(req, &models.ExtractionResult{HasNextPage: false})
	require.NoError(t, err)
	assert.False(t, out.Continued)
	assert.Equal(t, "last page", out.Reason)
	assert.Zero(t, f.Size())

	out, err = ctrl.Handle(req, &models.ExtractionResult{HasNextPage: true})
	require.NoError(t, err)
	assert.False(t, out.Continued, "a next control without a link cannot be followed")
}

func TestContinuationCarriesChain(t *testing.T) {
	canon, err := canonical.New(8)
	require.NoError(t, err)
	f := frontier.New(models.NewRun())
	ctrl := New(Options{MaxProducts: 50}, &memorySink{}, f, canon)

	req := models.Request{
		ID: "seed", ChainID: "seed", URL: "https://www.etsy.com/search?q=mug",
		Platform: models.PlatformEtsy, Kind: models.KindSearch, SearchTerm: "mug", Page: 1,
	}
	out, err := ctrl.Handle(req, &models.ExtractionResult{HasNextPage: true, NextPageToken: "/search?q=mug&page=2"})
	require.NoError(t, err)
	require.True(t, out.Continued)

	next, ok := f.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "https://www.etsy.com/search?q=mug&page=2", next.URL)
	assert.Equal(t, "seed", next.ChainID)
	assert.Equal(t, 2, next.Page)
	assert.Equal(t, "mug", next.SearchTerm)
	assert.Equal(t, "/search?q=mug&page=2", next.PageToken)

	ctrl.Abandon("seed")
	assert.Zero(t, ctrl.Active())
}
