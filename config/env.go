package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "SHOPCRAWL_"

// EnvString returns the value of SHOPCRAWL_<name> when it is set and not blank.
func EnvString(name string) (string, bool) {
	value, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return strings.TrimSpace(value), true
}

// EnvInt parses SHOPCRAWL_<name> as an integer.
func EnvInt(name string) (int, bool, error) {
	value, ok := EnvString(name)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	return n, true, nil
}

// EnvDuration parses SHOPCRAWL_<name> as a Go duration such as "750ms".
func EnvDuration(name string) (time.Duration, bool, error) {
	value, ok := EnvString(name)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	return d, true, nil
}

func EnvBool(name string) (bool, bool, error) {
	value, ok := EnvString(name)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, false, fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	return b, true, nil
}

// ApplyEnv overlays SHOPCRAWL_* variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if v, ok := EnvString("PLATFORMS"); ok {
		cfg.Platforms = ParsePlatforms(v)
	}
	if v, ok := EnvString("SEARCH_TERMS"); ok {
		cfg.SearchTerms = SplitList(v)
	}
	if v, ok := EnvString("PRODUCT_URLS"); ok {
		cfg.ProductURLs = SplitList(v)
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"MAX_PRODUCTS", &cfg.MaxProducts},
		{"MAX_CONCURRENCY", &cfg.MaxConcurrency},
		{"MAX_ATTEMPTS", &cfg.MaxAttempts},
		{"MAX_PAGES", &cfg.MaxPages},
	}
	for _, f := range ints {
		v, ok, err := EnvInt(f.name)
		if err != nil {
			return err
		}
		if ok {
			*f.dst = v
		}
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"REQUEST_DELAY", &cfg.RequestDelay},
		{"BASE_DELAY", &cfg.BaseDelay},
		{"MAX_DELAY", &cfg.MaxDelay},
		{"TIMEOUT", &cfg.Timeout},
		{"SHUTDOWN_GRACE", &cfg.ShutdownGrace},
	}
	for _, f := range durations {
		v, ok, err := EnvDuration(f.name)
		if err != nil {
			return err
		}
		if ok {
			*f.dst = v
		}
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"HEADLESS", &cfg.Headless},
		{"TRACK_PRICES", &cfg.TrackPrices},
		{"TRACK_STOCK", &cfg.TrackStock},
		{"TRACK_TRENDS", &cfg.TrackTrends},
		{"VERBOSE", &cfg.Verbose},
	}
	for _, f := range bools {
		v, ok, err := EnvBool(f.name)
		if err != nil {
			return err
		}
		if ok {
			*f.dst = v
		}
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"USER_AGENT", &cfg.UserAgent},
		{"PROXY_URL", &cfg.ProxyURL},
		{"ENGINE", &cfg.Engine},
		{"OUTPUT", &cfg.OutputFile},
		{"FORMAT", &cfg.OutputFormat},
		{"DEDUP_POLICY", &cfg.DedupPolicy},
		{"METRICS_ADDR", &cfg.MetricsAddr},
		{"LOG_FILE", &cfg.LogFile},
	}
	for _, f := range strs {
		if v, ok := EnvString(f.name); ok {
			*f.dst = v
		}
	}
	return nil
}
