package pipeline

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/shopcrawl/canonical"
	"github.com/aluiziolira/shopcrawl/models"
)

type mockWriter struct {
	mu       sync.Mutex
	batches  [][]*models.ProductRecord
	closed   bool
	writeErr error
}

func (mw *mockWriter) Write(products []*models.ProductRecord) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	copyBatch := make([]*models.ProductRecord, len(products))
	copy(copyBatch, products)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return nil
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

func newTestSink(t *testing.T, writer OutputWriter, opts Options) (*Sink, *models.Run) {
	t.Helper()
	canon, err := canonical.New(256)
	if err != nil {
		t.Fatalf("canonicalizer: %v", err)
	}
	run := models.NewRun()
	return NewSink(writer, run, canon, opts), run
}

func product(i int) *models.ProductRecord {
	price := 12.0
	return &models.ProductRecord{
		Title:    "Product " + strconv.Itoa(i),
		URL:      "https://www.amazon.com/dp/B" + strconv.Itoa(i),
		Platform: models.PlatformAmazon,
		Price:    &price,
	}
}

func TestSinkValidationAndDedup(t *testing.T) {
	writer := &mockWriter{}
	sink, run := newTestSink(t, writer, Options{})

	valid := product(1)
	invalid := &models.ProductRecord{URL: "https://www.amazon.com/dp/B2", Platform: models.PlatformAmazon}
	duplicate := product(1)
	duplicate.URL = "https://WWW.amazon.com/dp/B1?utm_source=feed"

	if got := sink.PushBatch([]*models.ProductRecord{valid, invalid, duplicate}); got != 1 {
		t.Fatalf("accepted = %d, want 1", got)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 1 {
		t.Fatalf("written products = %d, want 1", got)
	}
	if !writer.closed {
		t.Fatalf("writer not closed")
	}

	rejections := sink.Rejections()
	if rejections["invalid_record"] == 0 {
		t.Fatalf("expected invalid_record rejection")
	}
	if rejections["duplicate_product"] == 0 {
		t.Fatalf("expected duplicate_product rejection")
	}
	if got := run.Stats().ProductsCollected[models.PlatformAmazon]; got != 1 {
		t.Fatalf("products collected = %d, want 1", got)
	}
}

func TestSinkSamePathOnDifferentPlatforms(t *testing.T) {
	sink, _ := newTestSink(t, nil, Options{})

	a := product(1)
	b := product(1)
	b.Platform = models.PlatformEbay

	if got := sink.PushBatch([]*models.ProductRecord{a, b}); got != 2 {
		t.Fatalf("accepted = %d, want 2", got)
	}
}

func TestSinkBatchFlushThreshold(t *testing.T) {
	writer := &mockWriter{}
	sink, _ := newTestSink(t, writer, Options{BatchSize: 64})

	for i := 0; i < 65; i++ {
		if got := sink.PushBatch([]*models.ProductRecord{product(i)}); got != 1 {
			t.Fatalf("push %d accepted %d", i, got)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 {
		t.Fatalf("batch writes = %d, want 2", len(sizes))
	}
	if sizes[0] != 64 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [64 1]", sizes)
	}
}

func TestSinkConcurrentPushBatch(t *testing.T) {
	writer := &mockWriter{}
	sink, run := newTestSink(t, writer, Options{BatchSize: 7})

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i += 5 {
				batch := []*models.ProductRecord{product(i), product(i + 1), product(i + 2), product(i + 3), product(i + 4)}
				n := sink.PushBatch(batch)
				mu.Lock()
				accepted += n
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if accepted != 100 {
		t.Fatalf("accepted = %d, want 100", accepted)
	}
	if sink.Len() != 100 {
		t.Fatalf("held = %d, want 100", sink.Len())
	}
	if got := writer.totalWritten(); got != 100 {
		t.Fatalf("written = %d, want 100", got)
	}
	if got := run.Stats().TotalProducts(); got != 100 {
		t.Fatalf("stats products = %d, want 100", got)
	}
}

func TestSinkDedupPolicies(t *testing.T) {
	first := product(1)
	first.Title = "First"
	last := product(1)
	last.Title = "Last"

	tests := []struct {
		policy DedupPolicy
		want   string
	}{
		{policy: KeepFirst, want: "First"},
		{policy: KeepLast, want: "Last"},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			writer := &mockWriter{}
			sink, _ := newTestSink(t, writer, Options{Policy: tt.policy})
			sink.PushBatch([]*models.ProductRecord{first})
			if got := sink.PushBatch([]*models.ProductRecord{last}); got != 0 {
				t.Fatalf("duplicate accepted = %d, want 0", got)
			}
			if err := sink.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}

			held := sink.Products()
			if len(held) != 1 || held[0].Title != tt.want {
				t.Fatalf("held = %+v, want single %q", held, tt.want)
			}
			if writer.totalWritten() != 1 || writer.batches[0][0].Title != tt.want {
				t.Fatalf("written batch does not hold %q", tt.want)
			}
		})
	}
}

func TestSinkNormalizesCopies(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracking := &models.Tracking{Prices: true, Stock: true}
	sink, _ := newTestSink(t, nil, Options{
		Tracking: tracking,
		Now:      func() time.Time { return now },
	})

	in := product(7)
	in.Title = "  Spaced   Title "
	in.Raw = map[string]string{"image": "a.jpg"}
	sink.PushBatch([]*models.ProductRecord{in})

	held := sink.Products()[0]
	if held == in {
		t.Fatalf("sink must store a copy")
	}
	if held.Title != "Spaced Title" {
		t.Fatalf("title = %q", held.Title)
	}
	if held.Currency != "USD" {
		t.Fatalf("currency = %q, want USD", held.Currency)
	}
	if held.Availability != models.AvailabilityUnknown {
		t.Fatalf("availability = %q", held.Availability)
	}
	if !held.ScrapedAt.Equal(now) {
		t.Fatalf("scraped at = %v", held.ScrapedAt)
	}
	if held.Tracking == nil || !held.Tracking.Prices || held.Tracking.Trends {
		t.Fatalf("tracking = %+v", held.Tracking)
	}

	in.Raw["image"] = "mutated.jpg"
	if held.Raw["image"] != "a.jpg" {
		t.Fatalf("raw fields alias the caller's map")
	}
	if in.Currency != "" {
		t.Fatalf("caller record was mutated")
	}
}

func TestSinkClosed(t *testing.T) {
	sink, _ := newTestSink(t, &mockWriter{}, Options{})
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := sink.PushBatch([]*models.ProductRecord{product(1)}); got != 0 {
		t.Fatalf("accepted after close = %d", got)
	}
	if err := sink.Flush(); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("flush after close = %v, want ErrSinkClosed", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestSinkWriteErrorKeepsRecords(t *testing.T) {
	boom := errors.New("disk full")
	sink, _ := newTestSink(t, &mockWriter{writeErr: boom}, Options{BatchSize: 1})

	if got := sink.PushBatch([]*models.ProductRecord{product(1)}); got != 1 {
		t.Fatalf("accepted = %d, want 1", got)
	}
	if err := sink.Err(); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if sink.Len() != 1 {
		t.Fatalf("records must be retained after a write failure")
	}
}
