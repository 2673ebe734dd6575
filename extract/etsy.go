package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/shopcrawl/models"
)

// Etsy extracts search results and listing pages from etsy.com.
type Etsy struct{}

// NewEtsy returns the Etsy extractor.
func NewEtsy() *Etsy { return &Etsy{} }

func (*Etsy) Platform() models.Platform { return models.PlatformEtsy }

func (e *Etsy) ExtractListing(page *models.Page) (*models.ExtractionResult, error) {
	doc, err := parseDocument(page)
	if err != nil {
		return nil, err
	}

	items := doc.Find(`[data-test-id="listing-card"]`)
	if items.Length() == 0 {
		items = doc.Find(".listing-link")
	}
	if items.Length() == 0 && !exists(doc.Selection, `[data-search-results]`, ".search-listings-group") {
		return nil, fmt.Errorf("%w: etsy listing container not found", models.ErrExtractionEmpty)
	}

	result := &models.ExtractionResult{}
	items.Each(func(_ int, item *goquery.Selection) {
		title := text(item, `[data-test-id="listing-card-title"]`, "h3")
		ref := attr(item, "href", `a[href*="/listing/"]`)
		if ref == "" {
			ref = item.AttrOr("href", "")
		}
		link := resolve(page.URL, ref)
		if title == "" || link == "" {
			return
		}

		p := &models.ProductRecord{
			Title:        title,
			URL:          link,
			Platform:     models.PlatformEtsy,
			Availability: models.AvailabilityAvailable,
		}
		setPrice(p, text(item, `[data-test-id="listing-card-price"]`, ".currency-value"))
		setRating(p, text(item, `[data-test-id="rating"]`, ".rating"))
		setReviewCount(p, text(item, `[data-test-id="review-count"]`, ".review-count"))
		p.SetRaw("image", imageSource(item, "img"))
		p.SetRaw("seller", text(item, `[data-test-id="shop-name"]`, ".shop-name"))
		p.SetRaw("badges", text(item, `[data-test-id="badge"]`, ".badge"))
		if exists(item, `[data-test-id="free-shipping"]`, ".free-shipping") ||
			strings.Contains(strings.ToLower(p.Raw["badges"]), "free shipping") {
			p.SetRaw("shipping", "Free")
		}
		result.Products = append(result.Products, p)
	})

	result.HasNextPage, result.NextPageToken = nextPage(doc,
		`[data-test-id="pagination-next"]:not(.wt-is-disabled)`,
		".btn-group .btn:last-child:not(.disabled)",
	)
	return result, nil
}

func (e *Etsy) ExtractDetail(page *models.Page) (*models.ProductRecord, error) {
	doc, err := parseDocument(page)
	if err != nil {
		return nil, err
	}

	title := text(doc.Selection, `[data-test-id="listing-page-title"]`, "h1")
	if title == "" {
		return nil, fmt.Errorf("%w: etsy listing title not found", models.ErrExtractionEmpty)
	}

	p := &models.ProductRecord{
		Title:        title,
		URL:          page.URL,
		Platform:     models.PlatformEtsy,
		Availability: models.AvailabilityAvailable,
	}
	setPrice(p, text(doc.Selection, `[data-test-id="listing-page-price"]`, ".currency-value"))
	setRating(p, text(doc.Selection, `[data-test-id="rating-stars"]`, ".rating-stars"))
	setReviewCount(p, text(doc.Selection, `[data-test-id="review-count"]`, ".review-count"))

	if qty := attr(doc.Selection, "max", `[data-test-id="quantity-input"]`, ".quantity-input"); qty != "" {
		p.SetRaw("quantity", qty)
		if qty == "0" {
			p.Availability = models.AvailabilityOutOfStock
		} else {
			p.Availability = models.AvailabilityInStock
		}
	}

	p.SetRaw("image", imageSource(doc.Selection, `[data-test-id="listing-page-image"]`, ".listing-page-image img"))
	p.SetRaw("seller", text(doc.Selection, `[data-test-id="shop-name"]`, ".shop-name a"))
	p.SetRaw("description", description(doc.Selection, `[data-test-id="listing-page-description"]`, ".listing-page-description"))
	p.SetRaw("materials", text(doc.Selection, `[data-test-id="listing-page-materials"]`, ".materials"))
	p.SetRaw("shipping", shippingCost(text(doc.Selection, `[data-test-id="shipping-cost"]`, ".shipping-cost")))

	var tags []string
	doc.Find(`[data-test-id="listing-tag"], .listing-tag`).Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			tags = append(tags, t)
		}
	})
	p.SetRaw("tags", strings.Join(tags, ","))
	return p, nil
}
