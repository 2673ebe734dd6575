// Package models defines data structures for the crawler.
package models

import "time"

// Platform identifies a supported e-commerce site.
type Platform string

const (
	PlatformAmazon  Platform = "amazon"
	PlatformEbay    Platform = "ebay"
	PlatformWalmart Platform = "walmart"
	PlatformEtsy    Platform = "etsy"
	PlatformShopify Platform = "shopify"
)

// Availability values produced by normalization.
const (
	AvailabilityInStock    = "In Stock"
	AvailabilityOutOfStock = "Out of Stock"
	AvailabilityAvailable  = "Available"
	AvailabilityUnknown    = "Unknown"
)

// Tracking mirrors the tracking switches a run was started with.
type Tracking struct {
	Prices bool `json:"prices"`
	Stock  bool `json:"stock"`
	Trends bool `json:"trends"`
}

// ProductRecord is the platform-agnostic representation of a scraped item.
// Optional fields are pointers so that absence is distinguishable from zero.
type ProductRecord struct {
	Title        string            `csv:"title" json:"title"`
	URL          string            `csv:"url" json:"url"`
	Platform     Platform          `csv:"platform" json:"platform"`
	Price        *float64          `csv:"price" json:"price,omitempty"`
	Currency     string            `csv:"currency" json:"currency,omitempty"`
	Availability string            `csv:"availability" json:"availability"`
	Rating       *float64          `csv:"rating" json:"rating,omitempty"`
	ReviewCount  *int              `csv:"review_count" json:"reviewCount,omitempty"`
	ScrapedAt    time.Time         `csv:"scraped_at" json:"scrapedAt"`
	SearchTerm   string            `csv:"search_term" json:"searchTerm,omitempty"`
	Tracking     *Tracking         `csv:"-" json:"trackingEnabled,omitempty"`
	Raw          map[string]string `csv:"-" json:"raw,omitempty"`
}

// SetRaw stores an optional extraction field, skipping empty values.
func (p *ProductRecord) SetRaw(key, value string) {
	if value == "" {
		return
	}
	if p.Raw == nil {
		p.Raw = make(map[string]string)
	}
	p.Raw[key] = value
}

// ExtractionResult is produced once per successful listing fetch.
type ExtractionResult struct {
	Products      []*ProductRecord
	HasNextPage   bool
	NextPageToken string
}

// Page is the content returned by a fetch engine.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}
