package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/shopcrawl/config"
	"github.com/aluiziolira/shopcrawl/fetch"
	"github.com/aluiziolira/shopcrawl/models"
	"github.com/aluiziolira/shopcrawl/pipeline"
	"github.com/aluiziolira/shopcrawl/scraper"
)

var version = "dev"

type flagValues struct {
	configFile     string
	platforms      string
	searchTerms    []string
	productURLs    []string
	maxProducts    int
	maxConcurrency int
	requestDelay   time.Duration
	maxAttempts    int
	baseDelay      time.Duration
	maxDelay       time.Duration
	maxPages       int
	timeout        time.Duration
	shutdownGrace  time.Duration
	userAgent      string
	proxyURL       string
	engine         string
	headless       bool
	outputFile     string
	outputFormat   string
	dedupPolicy    string
	trackPrices    bool
	trackStock     bool
	trackTrends    bool
	metricsAddr    string
	logFile        string
	verbose        bool
}

func main() {
	cmd, _ := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() (*cobra.Command, *flagValues) {
	defaults := config.DefaultConfig()
	fv := &flagValues{}

	cmd := &cobra.Command{
		Use:   "shopcrawl",
		Short: "Crawl e-commerce sites into a deduplicated product dataset",
		Long: `shopcrawl searches Amazon, eBay, Walmart, Etsy and Shopify storefronts,
extracts product records and writes them as CSV, JSON lines or SQLite.

Settings are read from defaults, then --config, then SHOPCRAWL_* variables,
then flags.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, fv)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
				return err
			}
			if err := run(cmd.Context(), cfg); err != nil {
				slog.Error("crawl failed", slog.Any("error", err))
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&fv.configFile, "config", "c", "", "YAML configuration file")
	f.StringVarP(&fv.platforms, "platforms", "p", "amazon", "Comma separated platforms: amazon, ebay, walmart, etsy, shopify")
	f.StringSliceVarP(&fv.searchTerms, "search", "s", nil, "Search term (repeatable)")
	f.StringSliceVarP(&fv.productURLs, "url", "u", nil, "Product URL (repeatable)")
	f.IntVar(&fv.maxProducts, "max-products", defaults.MaxProducts, "Maximum products per listing chain")
	f.IntVar(&fv.maxConcurrency, "concurrency", defaults.MaxConcurrency, "Number of parallel workers")
	f.DurationVar(&fv.requestDelay, "delay", defaults.RequestDelay, "Delay between requests to the same platform per worker")
	f.IntVar(&fv.maxAttempts, "max-attempts", defaults.MaxAttempts, "Maximum attempts per request")
	f.DurationVar(&fv.baseDelay, "retry-backoff", defaults.BaseDelay, "Initial retry backoff")
	f.DurationVar(&fv.maxDelay, "retry-backoff-max", defaults.MaxDelay, "Maximum retry backoff")
	f.IntVar(&fv.maxPages, "max-pages", defaults.MaxPages, "Maximum listing pages per chain (0 for no limit)")
	f.DurationVar(&fv.timeout, "timeout", defaults.Timeout, "Fetch timeout")
	f.DurationVar(&fv.shutdownGrace, "shutdown-grace", defaults.ShutdownGrace, "Time in-flight fetches get after cancellation")
	f.StringVar(&fv.userAgent, "user-agent", defaults.UserAgent, "User agent sent with every request")
	f.StringVar(&fv.proxyURL, "proxy", "", "Proxy URL passed to the fetch engine")
	f.StringVar(&fv.engine, "engine", defaults.Engine, "Fetch engine: http or browser")
	f.BoolVar(&fv.headless, "headless", defaults.Headless, "Run the browser engine headless")
	f.StringVarP(&fv.outputFile, "output", "o", defaults.OutputFile, "Output file path")
	f.StringVarP(&fv.outputFormat, "format", "f", defaults.OutputFormat, "Output format: csv, json, dual, or sqlite")
	f.StringVar(&fv.dedupPolicy, "dedup", defaults.DedupPolicy, "Duplicate handling: keep_first or keep_last")
	f.BoolVar(&fv.trackPrices, "track-prices", defaults.TrackPrices, "Mark records for price tracking")
	f.BoolVar(&fv.trackStock, "track-stock", defaults.TrackStock, "Mark records for stock tracking")
	f.BoolVar(&fv.trackTrends, "track-trends", defaults.TrackTrends, "Mark records for trend tracking")
	f.StringVar(&fv.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	f.StringVar(&fv.logFile, "log-file", "", "Also write logs to this rotated file")
	f.BoolVarP(&fv.verbose, "verbose", "v", false, "Enable verbose logging")

	return cmd, fv
}

// loadConfig layers defaults, the YAML file, the environment and the flags
// the user actually set.
func loadConfig(cmd *cobra.Command, fv *flagValues) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if fv.configFile != "" {
		file, err := config.LoadFile(fv.configFile)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", fv.configFile, err)
		}
		if err := file.Apply(cfg); err != nil {
			return nil, fmt.Errorf("apply %s: %w", fv.configFile, err)
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("platforms") {
		cfg.Platforms = config.ParsePlatforms(fv.platforms)
	}
	if changed("search") {
		cfg.SearchTerms = fv.searchTerms
	}
	if changed("url") {
		cfg.ProductURLs = fv.productURLs
	}
	if changed("max-products") {
		cfg.MaxProducts = fv.maxProducts
	}
	if changed("concurrency") {
		cfg.MaxConcurrency = fv.maxConcurrency
	}
	if changed("delay") {
		cfg.RequestDelay = fv.requestDelay
	}
	if changed("max-attempts") {
		cfg.MaxAttempts = fv.maxAttempts
	}
	if changed("retry-backoff") {
		cfg.BaseDelay = fv.baseDelay
	}
	if changed("retry-backoff-max") {
		cfg.MaxDelay = fv.maxDelay
	}
	if changed("max-pages") {
		cfg.MaxPages = fv.maxPages
	}
	if changed("timeout") {
		cfg.Timeout = fv.timeout
	}
	if changed("shutdown-grace") {
		cfg.ShutdownGrace = fv.shutdownGrace
	}
	if changed("user-agent") {
		cfg.UserAgent = fv.userAgent
	}
	if changed("proxy") {
		cfg.ProxyURL = fv.proxyURL
	}
	if changed("engine") {
		cfg.Engine = fv.engine
	}
	if changed("headless") {
		cfg.Headless = fv.headless
	}
	if changed("output") {
		cfg.OutputFile = fv.outputFile
	}
	if changed("format") {
		cfg.OutputFormat = fv.outputFormat
	}
	if changed("dedup") {
		cfg.DedupPolicy = fv.dedupPolicy
	}
	if changed("track-prices") {
		cfg.TrackPrices = fv.trackPrices
	}
	if changed("track-stock") {
		cfg.TrackStock = fv.trackStock
	}
	if changed("track-trends") {
		cfg.TrackTrends = fv.trackTrends
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = fv.metricsAddr
	}
	if changed("log-file") {
		cfg.LogFile = fv.logFile
	}
	if changed("verbose") {
		cfg.Verbose = fv.verbose
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	logger, closeLog := newLogger(cfg.Verbose, cfg.LogFile)
	defer closeLog()
	slog.SetDefault(logger)

	engine, err := newFetcher(cfg)
	if err != nil {
		return fmt.Errorf("initialising %s engine: %w", cfg.Engine, err)
	}
	if closer, ok := engine.(fetch.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				slog.Error("close fetch engine", slog.Any("error", err))
			}
		}()
	}

	crawlRun := models.NewRun()
	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile, crawlRun.ID)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}

	keys, err := newProductKeyer()
	if err != nil {
		return err
	}
	sink := pipeline.NewSink(writer, crawlRun, keys, pipeline.Options{
		Policy:   pipeline.DedupPolicy(cfg.DedupPolicy),
		Tracking: cfg.Tracking(),
	})

	metrics := scraper.NewMetrics()
	s, err := scraper.NewScheduler(scraper.Options{
		MaxConcurrency: cfg.MaxConcurrency,
		MaxProducts:    cfg.MaxProducts,
		MaxPages:       cfg.MaxPages,
		RequestDelay:   cfg.RequestDelay,
		Timeout:        cfg.Timeout,
		ShutdownGrace:  cfg.ShutdownGrace,
		Retry:          cfg.RetryPolicy(),
		Metrics:        metrics,
	}, engine, sink, crawlRun)
	if err != nil {
		return fmt.Errorf("initialising scheduler: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	done := make(chan struct{})
	if cfg.Verbose {
		sink.StartMetricsReporting(10*time.Second, logger, done)
	}

	seeds := scraper.BuildSeeds(scraper.SeedInput{
		Platforms:   cfg.Platforms,
		SearchTerms: cfg.SearchTerms,
		ProductURLs: cfg.ProductURLs,
	})
	slog.Info("starting crawl",
		slog.String("run_id", crawlRun.ID),
		slog.Any("platforms", cfg.Platforms),
		slog.Int("seeds", len(seeds)),
		slog.Int("workers", cfg.MaxConcurrency),
		slog.String("engine", cfg.Engine),
	)

	report, err := s.Run(ctx, seeds)
	close(done)
	if err != nil {
		_ = sink.Close()
		return err
	}

	if err := sink.Flush(); err != nil {
		_ = sink.Close()
		return fmt.Errorf("flush results: %w", err)
	}
	if report.Stats.TotalProducts() > 0 {
		if err := writer.Validate(); err != nil {
			_ = sink.Close()
			return fmt.Errorf("output validation failed: %w", err)
		}
	} else {
		slog.Warn("run produced no products", slog.Int("failures", len(report.Failures)))
	}
	if err := sink.Close(); err != nil {
		return fmt.Errorf("closing results: %w", err)
	}

	failuresFile := ""
	if len(report.Failures) > 0 {
		failuresFile = failuresPath(cfg.OutputFile)
		if err := writeFailures(failuresFile, report.Failures); err != nil {
			slog.Error("write failures", slog.Any("error", err))
			failuresFile = ""
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(os.Stdout, report, sink.Rejections(), cfg.OutputFile, failuresFile)
	return nil
}

func newFetcher(cfg *config.Config) (fetch.Fetcher, error) {
	switch fetch.Engine(cfg.Engine) {
	case fetch.EngineBrowser:
		return fetch.NewBrowserEngine(fetch.BrowserOptions{
			UserAgent: cfg.UserAgent,
			ProxyURL:  cfg.ProxyURL,
			Timeout:   cfg.Timeout,
			Headless:  cfg.Headless,
		})
	default:
		return fetch.NewHTTPEngine(fetch.HTTPOptions{
			UserAgent: cfg.UserAgent,
			ProxyURL:  cfg.ProxyURL,
			Timeout:   cfg.Timeout,
		})
	}
}
