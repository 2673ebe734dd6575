package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aluiziolira/shopcrawl/extract"
	"github.com/aluiziolira/shopcrawl/models"
	"github.com/aluiziolira/shopcrawl/retry"
)

// Config holds crawl configuration. All tunables are fixed once the run starts.
type Config struct {
	Platforms      []models.Platform
	SearchTerms    []string
	ProductURLs    []string
	MaxProducts    int
	MaxConcurrency int
	RequestDelay   time.Duration
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxPages       int
	Timeout        time.Duration
	ShutdownGrace  time.Duration
	UserAgent      string
	ProxyURL       string
	Engine         string // http or browser
	Headless       bool
	OutputFile     string
	OutputFormat   string // csv, json, dual or sqlite
	DedupPolicy    string
	TrackPrices    bool
	TrackStock     bool
	TrackTrends    bool
	MetricsAddr    string
	LogFile        string
	Verbose        bool
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() *Config {
	return &Config{
		Platforms:      []models.Platform{models.PlatformAmazon},
		MaxProducts:    100,
		MaxConcurrency: 5,
		RequestDelay:   time.Second,
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		MaxPages:       20,
		Timeout:        30 * time.Second,
		ShutdownGrace:  10 * time.Second,
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Engine:         "http",
		Headless:       true,
		OutputFile:     "output/products.csv",
		OutputFormat:   "csv",
		DedupPolicy:    "keep_first",
		TrackPrices:    true,
		TrackStock:     true,
	}
}

// Validate ensures all configuration values are coherent. Unknown platforms
// are rejected here, before any request reaches the frontier.
func (c *Config) Validate() error {
	if len(c.Platforms) == 0 {
		return fmt.Errorf("at least one platform is required")
	}
	for _, p := range c.Platforms {
		if !extract.KnownPlatform(p) {
			return fmt.Errorf("unsupported platform %q", p)
		}
	}
	if len(c.SearchTerms) == 0 && len(c.ProductURLs) == 0 {
		return fmt.Errorf("at least one search term or product URL is required")
	}
	for _, raw := range c.ProductURLs {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("invalid product URL %q", raw)
		}
	}

	if c.MaxProducts <= 0 {
		return fmt.Errorf("max products must be positive")
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive")
	}
	if c.RequestDelay < 0 {
		return fmt.Errorf("request delay cannot be negative")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.BaseDelay < 0 {
		return fmt.Errorf("base delay cannot be negative")
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("max delay cannot be negative")
	}
	if c.MaxDelay > 0 && c.BaseDelay > c.MaxDelay {
		return fmt.Errorf("base delay (%s) cannot exceed max delay (%s)", c.BaseDelay, c.MaxDelay)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGrace < 0 {
		return fmt.Errorf("shutdown grace cannot be negative")
	}
	if c.Engine != "http" && c.Engine != "browser" {
		return fmt.Errorf("engine must be http or browser")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "sqlite":
	default:
		return fmt.Errorf("output format must be csv, json, dual, or sqlite")
	}
	if c.DedupPolicy != "keep_first" && c.DedupPolicy != "keep_last" {
		return fmt.Errorf("dedup policy must be keep_first or keep_last")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// RetryPolicy returns the retry settings of the run.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BaseDelay,
		MaxDelay:    c.MaxDelay,
	}
}

// Tracking returns the tracking flags attached to every record.
func (c *Config) Tracking() *models.Tracking {
	return &models.Tracking{
		Prices: c.TrackPrices,
		Stock:  c.TrackStock,
		Trends: c.TrackTrends,
	}
}

// ParsePlatforms splits a comma separated platform list, lowercasing and
// dropping empty entries.
func ParsePlatforms(raw string) []models.Platform {
	var out []models.Platform
	for _, part := range SplitList(raw) {
		out = append(out, models.Platform(strings.ToLower(part)))
	}
	return out
}

// SplitList splits a comma separated list and trims every entry.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
