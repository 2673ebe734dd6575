package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the YAML form of Config. Unset keys leave the current value alone.
type File struct {
	Platforms      []string `yaml:"platforms"`
	SearchTerms    []string `yaml:"search_terms"`
	ProductURLs    []string `yaml:"product_urls"`
	MaxProducts    *int     `yaml:"max_products"`
	MaxConcurrency *int     `yaml:"max_concurrency"`
	RequestDelay   string   `yaml:"request_delay"`
	MaxAttempts    *int     `yaml:"max_attempts"`
	BaseDelay      string   `yaml:"base_delay"`
	MaxDelay       string   `yaml:"max_delay"`
	MaxPages       *int     `yaml:"max_pages"`
	Timeout        string   `yaml:"timeout"`
	ShutdownGrace  string   `yaml:"shutdown_grace"`
	UserAgent      string   `yaml:"user_agent"`
	ProxyURL       string   `yaml:"proxy_url"`
	Engine         string   `yaml:"engine"`
	Headless       *bool    `yaml:"headless"`
	OutputFile     string   `yaml:"output_file"`
	OutputFormat   string   `yaml:"output_format"`
	DedupPolicy    string   `yaml:"dedup_policy"`
	TrackPrices    *bool    `yaml:"track_prices"`
	TrackStock     *bool    `yaml:"track_stock"`
	TrackTrends    *bool    `yaml:"track_trends"`
	MetricsAddr    string   `yaml:"metrics_addr"`
	LogFile        string   `yaml:"log_file"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user supplied path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &f, nil
}

// Apply overlays the keys present in f onto cfg.
func (f *File) Apply(cfg *Config) error {
	if len(f.Platforms) > 0 {
		cfg.Platforms = nil
		for _, p := range f.Platforms {
			cfg.Platforms = append(cfg.Platforms, ParsePlatforms(p)...)
		}
	}
	if len(f.SearchTerms) > 0 {
		cfg.SearchTerms = append([]string(nil), f.SearchTerms...)
	}
	if len(f.ProductURLs) > 0 {
		cfg.ProductURLs = append([]string(nil), f.ProductURLs...)
	}

	setInt(&cfg.MaxProducts, f.MaxProducts)
	setInt(&cfg.MaxConcurrency, f.MaxConcurrency)
	setInt(&cfg.MaxAttempts, f.MaxAttempts)
	setInt(&cfg.MaxPages, f.MaxPages)

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"request_delay", f.RequestDelay, &cfg.RequestDelay},
		{"base_delay", f.BaseDelay, &cfg.BaseDelay},
		{"max_delay", f.MaxDelay, &cfg.MaxDelay},
		{"timeout", f.Timeout, &cfg.Timeout},
		{"shutdown_grace", f.ShutdownGrace, &cfg.ShutdownGrace},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	setBool(&cfg.Headless, f.Headless)
	setBool(&cfg.TrackPrices, f.TrackPrices)
	setBool(&cfg.TrackStock, f.TrackStock)
	setBool(&cfg.TrackTrends, f.TrackTrends)

	setString(&cfg.UserAgent, f.UserAgent)
	setString(&cfg.ProxyURL, f.ProxyURL)
	setString(&cfg.Engine, f.Engine)
	setString(&cfg.OutputFile, f.OutputFile)
	setString(&cfg.OutputFormat, f.OutputFormat)
	setString(&cfg.DedupPolicy, f.DedupPolicy)
	setString(&cfg.MetricsAddr, f.MetricsAddr)
	setString(&cfg.LogFile, f.LogFile)
	return nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
