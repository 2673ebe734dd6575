// Package pipeline accumulates extracted products into a deduplicated result
// set and hands them to output writers in batches.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/shopcrawl/models"
	"github.com/aluiziolira/shopcrawl/parser"
)

var (
	// ErrSinkClosed is returned when Flush is called after Close.
	ErrSinkClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output. Writers are
// append-only.
type OutputWriter interface {
	Write(products []*models.ProductRecord) error
	Close() error
	Validate() error
}

// ProductKeyer computes the identity of a product record.
type ProductKeyer interface {
	ProductKey(platform models.Platform, rawURL string) (string, error)
}

// DedupPolicy selects which copy of a duplicate product is kept.
type DedupPolicy string

const (
	KeepFirst DedupPolicy = "keep_first"
	KeepLast  DedupPolicy = "keep_last"
)

// Options configures a Sink.
type Options struct {
	BatchSize int
	Policy    DedupPolicy
	// Tracking is attached to every record that has none.
	Tracking *models.Tracking
	Now      func() time.Time
}

// Sink coordinates validation, de-duplication, normalization and output
// writing. PushBatch is safe for concurrent use.
type Sink struct {
	writer OutputWriter
	run    *models.Run
	keys   ProductKeyer
	opts   Options

	mu      sync.Mutex // guards everything below
	index   map[string]int
	records []*models.ProductRecord
	pending []*models.ProductRecord
	closed  bool
	err     error

	writeMu sync.Mutex

	metrics metrics
}

// NewSink builds a sink. A nil writer keeps records in memory only.
func NewSink(writer OutputWriter, run *models.Run, keys ProductKeyer, opts Options) *Sink {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Policy == "" {
		opts.Policy = KeepFirst
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if run == nil {
		run = models.NewRun()
	}
	return &Sink{
		writer:  writer,
		run:     run,
		keys:    keys,
		opts:    opts,
		index:   make(map[string]int),
		metrics: newMetrics(),
	}
}

// PushBatch stores the valid records of batch that are not already held and
// returns how many new identities were accepted. Under KeepLast a duplicate
// replaces the held copy but is not counted as accepted.
func (s *Sink) PushBatch(batch []*models.ProductRecord) int {
	type prepared struct {
		key    string
		record *models.ProductRecord
	}
	ready := make([]prepared, 0, len(batch))
	for _, r := range batch {
		rec, key, err := s.prepare(r)
		if err != nil {
			continue
		}
		ready = append(ready, prepared{key: key, record: rec})
	}
	if len(ready) == 0 {
		return 0
	}

	accepted := make(map[models.Platform]int)
	total := 0

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.metrics.addRejection("sink_closed")
		return 0
	}
	for _, p := range ready {
		if i, ok := s.index[p.key]; ok {
			s.metrics.addRejection("duplicate_product")
			if s.opts.Policy == KeepLast {
				s.replaceLocked(s.records[i], p.record)
				s.records[i] = p.record
			}
			continue
		}
		s.index[p.key] = len(s.records)
		s.records = append(s.records, p.record)
		s.pending = append(s.pending, p.record)
		accepted[p.record.Platform]++
		total++
	}
	var out []*models.ProductRecord
	if len(s.pending) >= s.opts.BatchSize {
		out = s.pending
		s.pending = nil
	}
	s.mu.Unlock()

	for platform, n := range accepted {
		s.run.AddProducts(platform, n)
	}
	s.metrics.addProcessed(total)

	if out != nil {
		s.write(out)
	}
	return total
}

// Flush writes pending records to the output writer.
func (s *Sink) Flush() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	out := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(out) > 0 {
		s.write(out)
	}
	return s.Err()
}

// Close flushes pending records and closes the writer. Records already held
// stay readable through Products.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		err := s.err
		s.mu.Unlock()
		return err
	}
	s.closed = true
	out := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(out) > 0 {
		s.write(out)
	}
	if s.writer != nil {
		s.writeMu.Lock()
		err := s.writer.Close()
		s.writeMu.Unlock()
		if err != nil {
			s.setErr(fmt.Errorf("close writer: %w", err))
		}
	}
	return s.Err()
}

// Stats returns a snapshot of the run statistics.
func (s *Sink) Stats() models.RunStats {
	return s.run.Stats()
}

// Len returns the number of distinct products held.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Products returns the held records in insertion order.
func (s *Sink) Products() []*models.ProductRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ProductRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Rejections returns counts of dropped records by reason.
func (s *Sink) Rejections() map[string]int {
	return s.metrics.rejections()
}

// Err returns the first error encountered while writing.
func (s *Sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// StartMetricsReporting emits periodic progress logs until done is closed.
func (s *Sink) StartMetricsReporting(interval time.Duration, logger *slog.Logger, done <-chan struct{}) {
	if interval <= 0 || logger == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logger.Info("pipeline progress",
					"products", s.Len(),
					"processed", s.metrics.processedCount(),
					"rejected", len(s.Rejections()))
			case <-done:
				return
			}
		}
	}()
}

// prepare validates and normalizes a copy of r, leaving the caller's record
// untouched.
func (s *Sink) prepare(r *models.ProductRecord) (*models.ProductRecord, string, error) {
	if err := parser.ValidateProduct(r); err != nil {
		s.metrics.addRejection("invalid_record")
		return nil, "", err
	}

	key := r.URL
	if s.keys != nil {
		k, err := s.keys.ProductKey(r.Platform, r.URL)
		if err != nil {
			s.metrics.addRejection("malformed_url")
			return nil, "", err
		}
		key = k
	}

	rec := *r
	if r.Raw != nil {
		rec.Raw = make(map[string]string, len(r.Raw))
		for k, v := range r.Raw {
			rec.Raw[k] = v
		}
	}
	rec.Title = parser.CleanText(rec.Title)
	rec.URL = strings.TrimSpace(rec.URL)
	if rec.Price != nil && rec.Currency == "" {
		rec.Currency = parser.DefaultCurrency
	}
	if rec.Availability == "" {
		rec.Availability = models.AvailabilityUnknown
	}
	if rec.ScrapedAt.IsZero() {
		rec.ScrapedAt = s.opts.Now().UTC()
	}
	if rec.Tracking == nil && s.opts.Tracking != nil {
		t := *s.opts.Tracking
		rec.Tracking = &t
	}
	return &rec, key, nil
}

// replaceLocked swaps old for rec in the pending batch if it has not been
// written yet. Written copies stay as they are since writers are append-only.
func (s *Sink) replaceLocked(old, rec *models.ProductRecord) {
	for i, p := range s.pending {
		if p == old {
			s.pending[i] = rec
			return
		}
	}
}

func (s *Sink) write(batch []*models.ProductRecord) {
	if s.writer == nil {
		return
	}
	s.writeMu.Lock()
	err := s.writer.Write(batch)
	s.writeMu.Unlock()
	if err != nil {
		s.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (s *Sink) setErr(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

type metrics struct {
	mu        sync.Mutex
	processed int64
	rejected  map[string]int
}

func newMetrics() metrics {
	return metrics{
		rejected: make(map[string]int),
	}
}

func (m *metrics) addProcessed(n int) {
	m.mu.Lock()
	m.processed += int64(n)
	m.mu.Unlock()
}

func (m *metrics) addRejection(kind string) {
	m.mu.Lock()
	m.rejected[kind]++
	m.mu.Unlock()
}

func (m *metrics) processedCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed
}

func (m *metrics) rejections() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int, len(m.rejected))
	for k, v := range m.rejected {
		out[k] = v
	}
	return out
}
