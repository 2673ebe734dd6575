package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/shopcrawl/antibot"
	"github.com/aluiziolira/shopcrawl/canonical"
	"github.com/aluiziolira/shopcrawl/extract"
	"github.com/aluiziolira/shopcrawl/fetch"
	"github.com/aluiziolira/shopcrawl/frontier"
	"github.com/aluiziolira/shopcrawl/models"
	"github.com/aluiziolira/shopcrawl/pagination"
	"github.com/aluiziolira/shopcrawl/retry"
)

const (
	outcomeSucceeded = "succeeded"
	outcomeRetrying  = "retrying"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
)

// Options are fixed at construction and never consulted from global state.
type Options struct {
	MaxConcurrency int
	MaxProducts    int
	MaxPages       int
	RequestDelay   time.Duration
	Timeout        time.Duration
	ShutdownGrace  time.Duration
	Retry          retry.Policy

	// Registry defaults to extract.DefaultRegistry.
	Registry *extract.Registry
	// Guard defaults to the built-in anti-bot rules.
	Guard   *antibot.Guard
	Metrics *Metrics
	// OnComplete is called once per request reaching a terminal state.
	OnComplete func(req models.Request)
}

// ProductSink receives extracted products. pipeline.Sink satisfies it.
type ProductSink interface {
	PushBatch(records []*models.ProductRecord) int
}

// Scheduler runs a fixed pool of workers over the request frontier.
type Scheduler struct {
	opts     Options
	fetcher  fetch.Fetcher
	sink     ProductSink
	run      *models.Run
	keys     *canonical.Canonicalizer
	frontier *frontier.Frontier
	pager    *pagination.Controller
	retry    *retryManager
	Metrics  *Metrics

	runOnce sync.Once
}

// NewScheduler wires a scheduler for one run. run carries the counters and
// must not be shared with another scheduler.
func NewScheduler(opts Options, fetcher fetch.Fetcher, sink ProductSink, run *models.Run) (*Scheduler, error) {
	if fetcher == nil {
		return nil, errors.New("scheduler requires a fetcher")
	}
	if sink == nil {
		return nil, errors.New("scheduler requires a product sink")
	}
	if run == nil {
		run = models.NewRun()
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 1
	}
	if opts.Registry == nil {
		opts.Registry = extract.DefaultRegistry()
	}
	if opts.Guard == nil {
		opts.Guard = antibot.New(antibot.DefaultRules())
	}

	keys, err := canonical.New(4096)
	if err != nil {
		return nil, fmt.Errorf("create canonicalizer: %w", err)
	}

	s := &Scheduler{
		opts:     opts,
		fetcher:  fetcher,
		run:      run,
		keys:     keys,
		frontier: frontier.New(run),
		Metrics:  opts.Metrics,
	}
	s.sink = &countingSink{sink: sink, metrics: opts.Metrics}
	s.pager = pagination.New(pagination.Options{
		MaxProducts: opts.MaxProducts,
		MaxPages:    opts.MaxPages,
	}, s.sink, s.frontier, keys)
	s.retry = newRetryManager(s.frontier, opts.Metrics)
	return s, nil
}

// Run enqueues the seeds and processes the frontier until it is empty or
// ctx is cancelled. Per-request failures never abort the run; they are
// reported through the returned RunReport. A scheduler runs at most once.
func (s *Scheduler) Run(ctx context.Context, seeds []models.Request) (*models.RunReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	started := false
	s.runOnce.Do(func() { started = true })
	if !started {
		return nil, errors.New("scheduler already ran")
	}

	start := time.Now()
	s.seed(seeds)

	// In-flight fetches outlive the run context by the shutdown grace.
	fetchCtx, cancelFetch := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelFetch()

	stop := context.AfterFunc(ctx, func() {
		slog.Info("crawl cancelled, stopping dispatch",
			slog.Int("in_flight", s.frontier.InFlight()),
			slog.Duration("grace", s.opts.ShutdownGrace),
		)
		s.retry.Stop()
		s.frontier.Close()
		time.AfterFunc(s.opts.ShutdownGrace, cancelFetch)
	})
	defer stop()

	var g errgroup.Group
	for i := 0; i < s.opts.MaxConcurrency; i++ {
		worker := i
		g.Go(func() error {
			s.work(ctx, fetchCtx, worker)
			return nil
		})
	}
	_ = g.Wait()

	s.retry.Stop()
	cancelled := ctx.Err() != nil
	for _, req := range s.frontier.Drain() {
		s.recordFailure(req, models.ErrorCancelled, ctx.Err(), true)
		s.complete(req, outcomeCancelled)
	}

	return &models.RunReport{
		RunID:     s.run.ID,
		StartTime: start,
		EndTime:   time.Now(),
		Stats:     s.run.Stats(),
		Failures:  s.run.Failures(),
		Cancelled: cancelled,
	}, nil
}

// Frontier exposes the live request queue.
func (s *Scheduler) Frontier() *frontier.Frontier {
	return s.frontier
}

func (s *Scheduler) seed(seeds []models.Request) {
	for _, req := range seeds {
		if req.Kind == "" {
			req.Kind = models.KindSearch
		}
		if req.Page == 0 {
			req.Page = 1
		}

		if _, err := s.opts.Registry.Lookup(req.Platform); err != nil {
			s.rejectSeed(req, err)
			continue
		}
		if req.Kind == models.KindSearch && s.opts.MaxProducts <= 0 {
			slog.Debug("search seed skipped, product cap is zero",
				slog.String("platform", string(req.Platform)),
				slog.String("url", req.URL),
			)
			continue
		}
		key, err := s.keys.Key(req.Platform, req.Kind, req.URL, req.PageToken)
		if err != nil {
			s.rejectSeed(req, err)
			continue
		}
		req.Key = key

		if !s.frontier.Enqueue(req) {
			slog.Debug("duplicate seed skipped",
				slog.String("platform", string(req.Platform)),
				slog.String("url", req.URL),
			)
		}
	}
}

func (s *Scheduler) rejectSeed(req models.Request, err error) {
	slog.Warn("seed rejected",
		slog.String("platform", string(req.Platform)),
		slog.String("url", req.URL),
		slog.Any("error", err),
	)
	s.recordFailure(req, models.KindOf(err), err, true)
	s.Metrics.IncError(errorTypeLabel(err))
}

func (s *Scheduler) work(ctx, fetchCtx context.Context, worker int) {
	limiters := make(map[models.Platform]*rate.Limiter)

	for ctx.Err() == nil {
		changed := s.frontier.Changed()
		req, ok := s.frontier.Dequeue()
		if !ok {
			if s.frontier.Size() == 0 {
				return
			}
			select {
			case <-changed:
				continue
			case <-ctx.Done():
				return
			}
		}

		limiter, ok := limiters[req.Platform]
		if !ok {
			limiter = newLimiter(s.opts.RequestDelay)
			limiters[req.Platform] = limiter
		}

		s.Metrics.trackInflight(1)
		s.process(ctx, fetchCtx, limiter, req)
		s.Metrics.trackInflight(-1)

		slog.Debug("worker finished request",
			slog.Int("worker", worker),
			slog.String("request_id", req.ID),
		)
	}
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// process drives one dequeued request to Succeeded, Retrying or Failed.
func (s *Scheduler) process(ctx, fetchCtx context.Context, limiter *rate.Limiter, req models.Request) {
	extractor, err := s.opts.Registry.Lookup(req.Platform)
	if err != nil {
		s.fail(ctx, req, err)
		return
	}

	freq := fetch.Request{
		URL:          req.URL,
		Platform:     req.Platform,
		WaitSelector: extract.WaitSelector(req.Platform, req.Kind),
		Timeout:      s.opts.Timeout,
	}

	dismissed := req.Dismissed
	for {
		page, err := s.fetch(ctx, fetchCtx, limiter, freq)
		if err != nil {
			s.fail(ctx, req, err)
			return
		}

		finding := s.opts.Guard.Inspect(req.Platform, page)
		switch finding.Verdict {
		case antibot.Blocked:
			s.fail(ctx, req, models.BlockedError{Reason: finding.Marker})
			return
		case antibot.CookieWall:
			if !dismissed && s.dismiss(fetchCtx, req, freq, finding) {
				dismissed = true
				continue
			}
		}

		if err := s.handlePage(req, extractor, page); err != nil {
			s.fail(ctx, req, err)
			return
		}
		s.succeed(req)
		return
	}
}

// fetch waits for the platform politeness slot and retrieves the page.
func (s *Scheduler) fetch(ctx, fetchCtx context.Context, limiter *rate.Limiter, freq fetch.Request) (*models.Page, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	page, err := s.fetcher.Fetch(fetchCtx, freq)
	s.Metrics.ObserveDuration(time.Since(start))

	status := 0
	if page != nil {
		status = page.StatusCode
	}
	if classified := classifyError(err, status); classified != nil {
		return nil, classified
	}
	if page == nil {
		return nil, models.NetworkError{Err: fmt.Errorf("empty response for %s", freq.URL)}
	}
	return page, nil
}

// dismiss clears a consent banner. The request is marked first, so a later
// attempt never dismisses again. It reports whether the request should be
// fetched again.
func (s *Scheduler) dismiss(ctx context.Context, req models.Request, freq fetch.Request, finding antibot.Finding) bool {
	dismisser, ok := s.fetcher.(fetch.Dismisser)
	if !ok {
		return false
	}
	if err := s.frontier.MarkDismissed(req.ID); err != nil {
		slog.Debug("mark dismissed skipped", slog.String("request_id", req.ID), slog.Any("error", err))
		return false
	}
	slog.Debug("dismissing consent banner",
		slog.String("platform", string(req.Platform)),
		slog.String("url", req.URL),
		slog.String("marker", finding.Marker),
	)
	if err := dismisser.Dismiss(ctx, freq, s.opts.Guard.AcceptSelectors(req.Platform)); err != nil {
		slog.Warn("consent dismissal failed",
			slog.String("platform", string(req.Platform)),
			slog.String("url", req.URL),
			slog.Any("error", err),
		)
	}
	return true
}

func (s *Scheduler) handlePage(req models.Request, extractor extract.Extractor, page *models.Page) error {
	if req.Kind == models.KindProduct {
		record, err := extractor.ExtractDetail(page)
		if err != nil {
			return err
		}
		enrich(record, req)
		s.sink.PushBatch([]*models.ProductRecord{record})
		return nil
	}

	result, err := extractor.ExtractListing(page)
	if err != nil {
		return err
	}
	for _, record := range result.Products {
		enrich(record, req)
	}

	outcome, err := s.pager.Handle(req, result)
	if err != nil {
		slog.Warn("continuation not scheduled",
			slog.String("platform", string(req.Platform)),
			slog.String("url", req.URL),
			slog.Any("error", err),
		)
		return nil
	}
	slog.Debug("listing page processed",
		slog.String("platform", string(req.Platform)),
		slog.String("search_term", req.SearchTerm),
		slog.Int("page", req.Page),
		slog.Int("accepted", outcome.Accepted),
		slog.Int("collected", outcome.Collected),
		slog.String("stop_reason", outcome.Reason),
	)
	return nil
}

func enrich(record *models.ProductRecord, req models.Request) {
	if record == nil {
		return
	}
	if record.Platform == "" {
		record.Platform = req.Platform
	}
	if record.SearchTerm == "" {
		record.SearchTerm = req.SearchTerm
	}
}

func (s *Scheduler) succeed(req models.Request) {
	final, err := s.frontier.MarkDone(req.ID, models.StateSucceeded)
	if err != nil {
		slog.Debug("mark done skipped", slog.String("request_id", req.ID), slog.Any("error", err))
		return
	}
	s.run.IncSucceeded()
	s.complete(final, outcomeSucceeded)
}

// fail routes an error through the retry policy. After cancellation no
// retry is scheduled and the request is recorded as cancelled.
func (s *Scheduler) fail(ctx context.Context, req models.Request, err error) {
	if ctx.Err() != nil {
		if final, markErr := s.frontier.MarkDone(req.ID, models.StateFailed); markErr == nil {
			s.recordFailure(final, models.ErrorCancelled, err, true)
			s.complete(final, outcomeCancelled)
		}
		return
	}

	decision := s.opts.Retry.Decide(req.Attempt, err)
	label := string(decision.Kind)
	s.Metrics.IncError(label)

	if decision.Retry() {
		slog.Warn("request failed, retrying",
			slog.String("platform", string(req.Platform)),
			slog.String("url", req.URL),
			slog.Int("attempt", req.Attempt),
			slog.Duration("delay", decision.Delay),
			slog.String("category", label),
			slog.Any("error", err),
		)
		if markErr := s.frontier.MarkRetrying(req.ID); markErr != nil {
			slog.Debug("mark retrying skipped", slog.String("request_id", req.ID), slog.Any("error", markErr))
			return
		}
		s.recordFailure(req, decision.Kind, err, false)
		s.run.IncRetries()
		s.Metrics.IncRequest(req.Platform, outcomeRetrying)
		s.retry.Schedule(req.ID, decision.Delay)
		return
	}

	slog.Error("request failed",
		slog.String("platform", string(req.Platform)),
		slog.String("url", req.URL),
		slog.Int("attempt", req.Attempt),
		slog.String("category", label),
		slog.Any("error", err),
	)
	final, markErr := s.frontier.MarkDone(req.ID, models.StateFailed)
	if markErr != nil {
		return
	}
	if final.Kind == models.KindSearch {
		s.pager.Abandon(final.ChainID)
	}
	s.recordFailure(final, decision.Kind, err, true)
	s.complete(final, outcomeFailed)
}

func (s *Scheduler) recordFailure(req models.Request, kind models.ErrorKind, err error, terminal bool) {
	rec := models.FailureRecord{
		RequestID: req.ID,
		Platform:  req.Platform,
		URL:       req.URL,
		ErrorKind: kind,
		Attempt:   req.Attempt,
		Terminal:  terminal,
		Timestamp: time.Now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	s.run.RecordFailure(rec)
}

func (s *Scheduler) complete(req models.Request, outcome string) {
	s.Metrics.IncRequest(req.Platform, outcome)
	if s.opts.OnComplete != nil {
		s.opts.OnComplete(req)
	}
}

// countingSink forwards batches and mirrors accepted counts into metrics.
type countingSink struct {
	sink    ProductSink
	metrics *Metrics
}

func (c *countingSink) PushBatch(records []*models.ProductRecord) int {
	accepted := c.sink.PushBatch(records)
	if accepted > 0 && len(records) > 0 {
		c.metrics.AddProducts(records[0].Platform, accepted)
	}
	return accepted
}

// retryManager re-enqueues parked requests once their backoff elapses. Its
// timers are the only pending work after cancellation, and Stop cancels
// them so a shutdown never waits on a backoff.
type retryManager struct {
	frontier *frontier.Frontier
	metrics  *Metrics

	mu           sync.Mutex
	timers       map[string]*time.Timer
	totalRetries int
	stopped      bool
}

func newRetryManager(f *frontier.Frontier, metrics *Metrics) *retryManager {
	return &retryManager{
		frontier: f,
		metrics:  metrics,
		timers:   make(map[string]*time.Timer),
	}
}

func (rm *retryManager) Schedule(id string, delay time.Duration) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return false
	}

	rm.totalRetries++
	rm.metrics.IncRetries()

	rm.resetTimerLocked(id)
	rm.timers[id] = time.AfterFunc(delay, func() {
		rm.fireRetry(id)
	})
	return true
}

func (rm *retryManager) resetTimerLocked(id string) {
	if timer, ok := rm.timers[id]; ok {
		timer.Stop()
		delete(rm.timers, id)
	}
}

func (rm *retryManager) fireRetry(id string) {
	rm.mu.Lock()
	if rm.stopped {
		rm.mu.Unlock()
		return
	}
	delete(rm.timers, id)
	rm.mu.Unlock()

	if err := rm.frontier.Requeue(id); err != nil {
		slog.Debug("retry requeue failed", slog.String("request_id", id), slog.Any("error", err))
	}
}

func (rm *retryManager) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return
	}

	rm.stopped = true
	for id, timer := range rm.timers {
		timer.Stop()
		delete(rm.timers, id)
	}
}

func (rm *retryManager) Pending() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.timers)
}

func (rm *retryManager) TotalRetries() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.totalRetries
}
