// Package canonical normalizes request URLs into stable deduplication keys.
package canonical

import (
	"fmt"
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/shopcrawl/models"
)

// DefaultCacheSize bounds the memo of computed keys.
const DefaultCacheSize = 4096

var trackingParams = map[string]struct{}{
	"gclid":                {},
	"fbclid":               {},
	"msclkid":              {},
	"igshid":               {},
	"mc_cid":               {},
	"mc_eid":               {},
	"ref":                  {},
	"ref_":                 {},
	"tag":                  {},
	"qid":                  {},
	"sr":                   {},
	"crid":                 {},
	"sprefix":              {},
	"psc":                  {},
	"hash":                 {},
	"_trkparms":            {},
	"_trksid":              {},
	"click_key":            {},
	"click_sum":            {},
	"ga_order":             {},
	"ga_search_type":       {},
	"ga_view_type":         {},
	"ga_search_query":      {},
	"organic_search_click": {},
	"athcpid":              {},
	"athpgid":              {},
	"athznid":              {},
	"spm":                  {},
}

var trackingPrefixes = []string{"utm_", "pf_rd_", "pd_rd_", "_ga"}

// Canonicalizer computes request identities. It is safe for concurrent use.
type Canonicalizer struct {
	cache *lru.Cache[string, string]
}

// New builds a canonicalizer memoizing up to size keys.
func New(size int) (*Canonicalizer, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create key cache: %w", err)
	}
	return &Canonicalizer{cache: cache}, nil
}

// Key returns the canonical identity of a request. The page token only
// contributes for listing requests.
func (c *Canonicalizer) Key(platform models.Platform, kind models.Kind, rawURL, pageToken string) (string, error) {
	if kind != models.KindSearch {
		pageToken = ""
	}
	memo := string(platform) + "\x00" + string(kind) + "\x00" + rawURL + "\x00" + pageToken
	if c != nil && c.cache != nil {
		if key, ok := c.cache.Get(memo); ok {
			return key, nil
		}
	}

	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	key := string(platform) + "|" + normalized
	if pageToken != "" {
		key += "|" + pageToken
	}

	if c != nil && c.cache != nil {
		c.cache.Add(memo, key)
	}
	return key, nil
}

// ProductKey is the identity of a product record: (platform, canonical URL).
func (c *Canonicalizer) ProductKey(platform models.Platform, rawURL string) (string, error) {
	return c.Key(platform, models.KindProduct, rawURL, "")
}

// NormalizeURL lowercases scheme and host, drops default ports, fragments,
// tracking parameters and trailing slashes, and sorts the query.
func NormalizeURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", models.ErrMalformedURL)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrMalformedURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not absolute", models.ErrMalformedURL, rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}
	if u.Path == "/" {
		u.Path = ""
	}

	query := u.Query()
	for name := range query {
		if isTracking(name) {
			query.Del(name)
		}
	}
	u.RawQuery = query.Encode()
	u.ForceQuery = false

	return u.String(), nil
}

func isTracking(name string) bool {
	lower := strings.ToLower(name)
	if _, ok := trackingParams[lower]; ok {
		return true
	}
	for _, prefix := range trackingPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
