// Package extract turns fetched pages into product records, one Extractor
// per platform.
package extract

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/aluiziolira/shopcrawl/models"
)

// Extractor is the per-platform extraction contract. Implementations are
// pure: no network access and no shared mutable state.
//
// Missing optional fields are omitted rather than reported as errors.
// models.ErrExtractionEmpty is returned only when the page lacks the
// structure a listing or detail page must have.
type Extractor interface {
	Platform() models.Platform
	ExtractListing(page *models.Page) (*models.ExtractionResult, error)
	ExtractDetail(page *models.Page) (*models.ProductRecord, error)
}

// Registry resolves platforms to extractors. It is populated at startup and
// read-only afterwards.
type Registry struct {
	extractors map[models.Platform]Extractor
}

// NewRegistry builds a registry from the given extractors.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{extractors: make(map[models.Platform]Extractor, len(extractors))}
	for _, e := range extractors {
		r.extractors[e.Platform()] = e
	}
	return r
}

// DefaultRegistry returns a registry with every supported platform.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewAmazon(),
		NewEbay(),
		NewWalmart(),
		NewEtsy(),
		NewShopify(),
	)
}

// Lookup returns the extractor for platform.
func (r *Registry) Lookup(platform models.Platform) (Extractor, error) {
	e, ok := r.extractors[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedPlatform, platform)
	}
	return e, nil
}

// Platforms lists the registered platforms in sorted order.
func (r *Registry) Platforms() []models.Platform {
	out := make([]models.Platform, 0, len(r.extractors))
	for p := range r.extractors {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var searchBases = map[models.Platform]string{
	models.PlatformAmazon:  "https://www.amazon.com/s?k=",
	models.PlatformEbay:    "https://www.ebay.com/sch/i.html?_nkw=",
	models.PlatformWalmart: "https://www.walmart.com/search?q=",
	models.PlatformEtsy:    "https://www.etsy.com/search?q=",
	models.PlatformShopify: "https://shopify.com/search?q=",
}

var domains = map[models.Platform]string{
	models.PlatformAmazon:  "amazon.com",
	models.PlatformEbay:    "ebay.com",
	models.PlatformWalmart: "walmart.com",
	models.PlatformEtsy:    "etsy.com",
	models.PlatformShopify: "shopify.com",
}

// waitSelectors mark the element a rendering engine waits for before the
// page content is captured.
var waitSelectors = map[models.Platform]map[models.Kind]string{
	models.PlatformAmazon: {
		models.KindSearch:  `[data-component-type="s-search-result"]`,
		models.KindProduct: "#productTitle",
	},
	models.PlatformEbay: {
		models.KindSearch:  ".s-item",
		models.KindProduct: ".x-item-title",
	},
	models.PlatformWalmart: {
		models.KindSearch:  "[data-item-id]",
		models.KindProduct: "h1",
	},
	models.PlatformEtsy: {
		models.KindSearch:  "[data-listing-id]",
		models.KindProduct: "h1",
	},
	models.PlatformShopify: {
		models.KindSearch:  ".product-card, .grid__item",
		models.KindProduct: ".product__title, h1",
	},
}

// WaitSelector returns the content marker for a page kind, or "" when the
// platform has none.
func WaitSelector(platform models.Platform, kind models.Kind) string {
	return waitSelectors[platform][kind]
}

// SearchURL builds the first listing page URL for term on platform.
func SearchURL(platform models.Platform, term string) (string, error) {
	base, ok := searchBases[platform]
	if !ok {
		return "", fmt.Errorf("%w: %q", models.ErrUnsupportedPlatform, platform)
	}
	return base + url.QueryEscape(strings.TrimSpace(term)), nil
}

// Domain returns the registrable domain a platform serves product pages from.
func Domain(platform models.Platform) (string, bool) {
	d, ok := domains[platform]
	return d, ok
}

// MatchesDomain reports whether rawURL is served by platform.
func MatchesDomain(platform models.Platform, rawURL string) bool {
	d, ok := domains[platform]
	if !ok {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == d || strings.HasSuffix(host, "."+d)
}

// KnownPlatform reports whether p names a supported platform.
func KnownPlatform(p models.Platform) bool {
	_, ok := domains[p]
	return ok
}
