package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/shopcrawl/models"
	"github.com/aluiziolira/shopcrawl/parser"
)

// Shopify extracts products from Shopify storefront pages and from the
// storefront products.json endpoint. Themes differ, so each field is
// located through a list of fallback selectors.
type Shopify struct{}

// NewShopify returns the Shopify extractor.
func NewShopify() *Shopify { return &Shopify{} }

func (*Shopify) Platform() models.Platform { return models.PlatformShopify }

var (
	shopifyCards = []string{
		".product-item", ".product-card", ".grid-product", ".product-grid-item",
		"[data-product-id]", ".collection-product-card", ".product",
	}
	shopifyGrids = []string{
		"#product-grid", ".product-grid", ".collection-grid", ".search-results",
		"[data-search-results]", ".collection",
	}
	shopifyTitles = []string{
		".product-title", ".product-name", ".product-item-title",
		"h3 a", "h2 a", ".card-title", "[data-product-title]",
	}
	shopifyLinks  = []string{`a[href*="/products/"]`, ".product-link", ".product-item-link", "a"}
	shopifyPrices = []string{".price", ".product-price", ".money", ".price-current", "[data-price]", ".product-item-price"}
	shopifySold   = []string{".sold-out", ".out-of-stock", ".unavailable", `[data-available="false"]`}
	shopifyBadges = []string{".badge", ".label", ".product-badge", ".sale-badge"}
	shopifyImages = []string{".product-image img", ".product-item-image img", "img[data-src]", "img"}
)

func (s *Shopify) ExtractListing(page *models.Page) (*models.ExtractionResult, error) {
	if page != nil && looksLikeJSON(page.Body) {
		return s.extractCatalog(page)
	}

	doc, err := parseDocument(page)
	if err != nil {
		return nil, err
	}

	var items *goquery.Selection
	for _, sel := range shopifyCards {
		if found := doc.Find(sel); found.Length() > 0 {
			items = found
			break
		}
	}
	if items == nil {
		if !exists(doc.Selection, shopifyGrids...) {
			return nil, fmt.Errorf("%w: shopify product grid not found", models.ErrExtractionEmpty)
		}
		items = doc.Selection.Slice(0, 0)
	}

	result := &models.ExtractionResult{}
	items.Each(func(_ int, item *goquery.Selection) {
		titleEl := first(item, shopifyTitles...)
		title := parser.CleanText(titleEl.Text())
		if title == "" {
			title = strings.TrimSpace(titleEl.AttrOr("title", ""))
		}
		link := resolve(page.URL, attr(item, "href", shopifyLinks...))
		if title == "" || link == "" {
			return
		}

		p := &models.ProductRecord{
			Title:        title,
			URL:          link,
			Platform:     models.PlatformShopify,
			Availability: models.AvailabilityInStock,
		}
		priceEl := first(item, shopifyPrices...)
		setPrice(p, firstNonEmpty(parser.CleanText(priceEl.Text()), priceEl.AttrOr("data-price", "")))
		setPriceRaw(p, "compare_price", text(item, ".compare-price", ".price--compare", "s .money"))
		if exists(item, shopifySold...) {
			p.Availability = models.AvailabilityOutOfStock
		}
		p.SetRaw("image", imageSource(item, shopifyImages...))
		p.SetRaw("vendor", text(item, ".product-vendor", ".vendor", "[data-vendor]"))
		p.SetRaw("badges", badgeFlags(text(item, shopifyBadges...)))
		result.Products = append(result.Products, p)
	})

	result.HasNextPage, result.NextPageToken = nextPage(doc,
		`link[rel="next"]`, `a[rel="next"]`, ".pagination .next a", "a.pagination__item--next",
	)
	return result, nil
}

func (s *Shopify) ExtractDetail(page *models.Page) (*models.ProductRecord, error) {
	doc, err := parseDocument(page)
	if err != nil {
		return nil, err
	}

	title := text(doc.Selection, ".product-single__title", ".product__title", ".product-title", "h1")
	if title == "" {
		return nil, fmt.Errorf("%w: shopify product title not found", models.ErrExtractionEmpty)
	}

	p := &models.ProductRecord{
		Title:        title,
		URL:          page.URL,
		Platform:     models.PlatformShopify,
		Availability: models.AvailabilityInStock,
	}
	setPrice(p, text(doc.Selection, ".price", ".product-price", ".money", ".price-current", "[data-price]"))
	if exists(doc.Selection, ".sold-out", ".out-of-stock", ".unavailable") {
		p.Availability = models.AvailabilityOutOfStock
	}
	p.SetRaw("image", imageSource(doc.Selection, ".product-single__photo img", ".product-image img", ".featured-image img", "img[data-zoom]"))
	p.SetRaw("description", description(doc.Selection, ".product-description", ".product-single__description", ".rte", ".product-content"))
	p.SetRaw("vendor", text(doc.Selection, ".product-single__vendor", ".product__vendor", ".product-vendor"))
	return p, nil
}

type shopifyCatalog struct {
	Products []shopifyProduct `json:"products"`
}

type shopifyProduct struct {
	Title       string           `json:"title"`
	Handle      string           `json:"handle"`
	BodyHTML    string           `json:"body_html"`
	Vendor      string           `json:"vendor"`
	ProductType string           `json:"product_type"`
	Tags        json.RawMessage  `json:"tags"`
	Images      []shopifyImage   `json:"images"`
	Variants    []shopifyVariant `json:"variants"`
}

type shopifyImage struct {
	Src string `json:"src"`
}

type shopifyVariant struct {
	Price          json.RawMessage `json:"price"`
	CompareAtPrice json.RawMessage `json:"compare_at_price"`
	Available      bool            `json:"available"`
	SKU            string          `json:"sku"`
}

func (s *Shopify) extractCatalog(page *models.Page) (*models.ExtractionResult, error) {
	var catalog shopifyCatalog
	if err := json.Unmarshal(page.Body, &catalog); err != nil {
		return nil, fmt.Errorf("%w: decode products.json: %v", models.ErrExtractionEmpty, err)
	}
	if catalog.Products == nil {
		return nil, fmt.Errorf("%w: products.json without products", models.ErrExtractionEmpty)
	}

	origin := ""
	if u, err := url.Parse(page.URL); err == nil && u.IsAbs() {
		origin = u.Scheme + "://" + u.Host
	}

	result := &models.ExtractionResult{}
	for _, sp := range catalog.Products {
		if sp.Title == "" || sp.Handle == "" || origin == "" {
			continue
		}
		p := &models.ProductRecord{
			Title:        parser.CleanText(sp.Title),
			URL:          origin + "/products/" + sp.Handle,
			Platform:     models.PlatformShopify,
			Availability: models.AvailabilityOutOfStock,
		}
		for i, v := range sp.Variants {
			if v.Available {
				p.Availability = models.AvailabilityInStock
			}
			if i == 0 {
				if price, ok := jsonAmount(v.Price); ok {
					p.Price = &price
					p.Currency = parser.DefaultCurrency
				}
				if cmp, ok := jsonAmount(v.CompareAtPrice); ok {
					p.SetRaw("compare_price", formatAmount(cmp))
				}
				p.SetRaw("sku", v.SKU)
			}
		}
		if len(sp.Images) > 0 {
			p.SetRaw("image", sp.Images[0].Src)
		}
		p.SetRaw("description", parser.Truncate(parser.StripTags(sp.BodyHTML), parser.MaxDescriptionLength))
		p.SetRaw("vendor", sp.Vendor)
		p.SetRaw("category", sp.ProductType)
		p.SetRaw("tags", strings.Join(decodeTags(sp.Tags), ","))
		result.Products = append(result.Products, p)
	}
	return result, nil
}

func looksLikeJSON(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// jsonAmount accepts prices encoded either as strings or as numbers.
func jsonAmount(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return v, err == nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	return 0, false
}

// decodeTags handles both the array form and the legacy comma-separated form.
func decodeTags(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var joined string
		if err := json.Unmarshal(raw, &joined); err != nil {
			return nil
		}
		list = strings.Split(joined, ",")
	}
	out := list[:0]
	for _, t := range list {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func badgeFlags(badge string) string {
	lower := strings.ToLower(badge)
	var flags []string
	if strings.Contains(lower, "sale") || strings.Contains(lower, "promo") {
		flags = append(flags, "sale")
	}
	if strings.Contains(lower, "new") {
		flags = append(flags, "new")
	}
	return strings.Join(flags, ",")
}
