package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/shopcrawl/models"
	"github.com/aluiziolira/shopcrawl/parser"
)

// Walmart extracts search results and item pages from walmart.com.
type Walmart struct{}

// NewWalmart returns the Walmart extractor.
func NewWalmart() *Walmart { return &Walmart{} }

func (*Walmart) Platform() models.Platform { return models.PlatformWalmart }

func (w *Walmart) ExtractListing(page *models.Page) (*models.ExtractionResult, error) {
	doc, err := parseDocument(page)
	if err != nil {
		return nil, err
	}

	items := doc.Find(`[data-item-id]`)
	if items.Length() == 0 {
		items = doc.Find(".search-result-gridview-item")
	}
	if items.Length() == 0 && !exists(doc.Selection, `[data-testid="item-stack"]`, ".search-result-gridview-items") {
		return nil, fmt.Errorf("%w: walmart listing container not found", models.ErrExtractionEmpty)
	}

	result := &models.ExtractionResult{}
	items.Each(func(_ int, item *goquery.Selection) {
		title := text(item, `[data-automation-id="product-title"]`, ".product-title a")
		link := resolve(page.URL, attr(item, "href", `a[href*="/ip/"]`))
		if title == "" || link == "" {
			return
		}

		p := &models.ProductRecord{
			Title:    title,
			URL:      link,
			Platform: models.PlatformWalmart,
		}
		setPrice(p, firstNonEmpty(
			attr(item, "content", `[itemprop="price"]`),
			text(item, `[itemprop="price"]`, `[data-automation-id="product-price"] .f2`, ".price-current"),
		))
		setPriceRaw(p, "original_price", text(item, `[data-automation-id="product-price-old"]`, ".price-old"))
		setRating(p, text(item, ".average-rating", `[data-testid="reviews-section"]`))
		setReviewCount(p, text(item, `[data-testid="reviews-count"]`, ".review-count"))

		stock := first(item, `[data-automation-id="fulfillment-badge"]`, ".out-of-stock")
		if stock.Length() == 0 {
			p.Availability = models.AvailabilityInStock
		} else {
			p.Availability = parser.NormalizeAvailability(stock.Text(), models.AvailabilityUnknown)
			if strings.Contains(strings.ToLower(stock.Text()), "free") {
				p.SetRaw("shipping", "Free")
			}
		}

		seller := text(item, `[data-automation-id="seller-name"]`, ".seller-name")
		if seller == "" {
			seller = "Walmart"
		}
		p.SetRaw("seller", seller)
		p.SetRaw("image", imageSource(item, `[data-testid="productTileImage"]`, "img"))
		result.Products = append(result.Products, p)
	})

	result.HasNextPage, result.NextPageToken = nextPage(doc,
		`[data-testid="pagination-next"]:not([aria-disabled="true"])`,
		".paginator-btn.paginator-btn-next:not(.disabled)",
	)
	return result, nil
}

func (w *Walmart) ExtractDetail(page *models.Page) (*models.ProductRecord, error) {
	doc, err := parseDocument(page)
	if err != nil {
		return nil, err
	}

	title := text(doc.Selection, `[data-automation-id="product-title"]`, "h1[itemprop=name]", ".product-title")
	if title == "" {
		return nil, fmt.Errorf("%w: walmart product title not found", models.ErrExtractionEmpty)
	}

	p := &models.ProductRecord{
		Title:    title,
		URL:      page.URL,
		Platform: models.PlatformWalmart,
	}
	setPrice(p, firstNonEmpty(
		attr(doc.Selection, "content", `[itemprop="price"]`),
		text(doc.Selection, `[itemprop="price"]`, `[data-testid="price-current"]`),
	))
	setPriceRaw(p, "original_price", text(doc.Selection, `[data-testid="price-old"]`, ".price-old"))
	setRating(p, text(doc.Selection, `[data-testid="reviews-section"] .average-rating`, ".average-rating"))
	setReviewCount(p, text(doc.Selection, `[data-testid="reviews-section"] .review-count`, ".review-count"))
	p.Availability = parser.NormalizeAvailability(
		text(doc.Selection, `[data-testid="fulfillment-section"]`, ".product-fulfillment"),
		models.AvailabilityInStock,
	)

	p.SetRaw("image", imageSource(doc.Selection, `[data-testid="hero-image"] img`, `[data-testid="hero-image"]`, ".prod-hero-image img"))
	p.SetRaw("seller", text(doc.Selection, `[data-automation-id="seller-name"]`, ".seller-info"))
	p.SetRaw("description", description(doc.Selection, `[data-testid="product-description"]`, ".product-description"))
	p.SetRaw("brand", text(doc.Selection, `[data-testid="product-brand"]`, `[itemprop="brand"]`))
	return p, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
