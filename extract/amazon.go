package extract

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/shopcrawl/models"
	"github.com/aluiziolira/shopcrawl/parser"
)

// Amazon extracts search results and product pages from amazon.com.
type Amazon struct{}

// NewAmazon returns the Amazon extractor.
func NewAmazon() *Amazon { return &Amazon{} }

func (*Amazon) Platform() models.Platform { return models.PlatformAmazon }

func (a *Amazon) ExtractListing(page *models.Page) (*models.ExtractionResult, error) {
	doc, err := parseDocument(page)
	if err != nil {
		return nil, err
	}

	items := doc.Find(`[data-component-type="s-search-result"]`)
	if items.Length() == 0 && !exists(doc.Selection, ".s-main-slot", ".s-search-results") {
		return nil, fmt.Errorf("%w: amazon listing container not found", models.ErrExtractionEmpty)
	}

	result := &models.ExtractionResult{}
	items.Each(func(_ int, item *goquery.Selection) {
		title := text(item, "h2 a span", "h2 a", "h2")
		link := resolve(page.URL, attr(item, "href", "h2 a", "a.a-link-normal"))
		if title == "" || link == "" {
			return
		}

		p := &models.ProductRecord{
			Title:        title,
			URL:          link,
			Platform:     models.PlatformAmazon,
			Availability: models.AvailabilityUnknown,
		}
		setPrice(p, text(item, ".a-price .a-offscreen", ".a-price-whole"))
		setRating(p, text(item, ".a-icon-alt"))
		setReviewCount(p, text(item, ".a-size-base.s-underline-text", ".a-size-base"))
		if exists(item, ".a-color-success", ".a-color-price") {
			p.Availability = models.AvailabilityInStock
		}
		p.SetRaw("image", imageSource(item, "img.s-image", "img"))
		p.SetRaw("asin", item.AttrOr("data-asin", ""))
		result.Products = append(result.Products, p)
	})

	result.HasNextPage, result.NextPageToken = nextPage(doc, ".s-pagination-next:not(.s-pagination-disabled)")
	return result, nil
}

func (a *Amazon) ExtractDetail(page *models.Page) (*models.ProductRecord, error) {
	doc, err := parseDocument(page)
	if err != nil {
		return nil, err
	}

	title := text(doc.Selection, "#productTitle")
	if title == "" {
		return nil, fmt.Errorf("%w: amazon product title not found", models.ErrExtractionEmpty)
	}

	p := &models.ProductRecord{
		Title:    title,
		URL:      page.URL,
		Platform: models.PlatformAmazon,
	}
	setPrice(p, text(doc.Selection, ".a-price .a-offscreen", "#price_inside_buybox", "#priceblock_ourprice"))
	setRating(p, text(doc.Selection, "#acrPopover .a-icon-alt", ".a-icon-alt"))
	setReviewCount(p, text(doc.Selection, "#acrCustomerReviewText"))
	p.Availability = parser.NormalizeAvailability(text(doc.Selection, "#availability span", "#outOfStock"), models.AvailabilityUnknown)

	p.SetRaw("image", imageSource(doc.Selection, "#landingImage", "#imgBlkFront"))
	p.SetRaw("description", description(doc.Selection, "#feature-bullets ul", "#productDescription"))
	p.SetRaw("seller", text(doc.Selection, "#sellerProfileTriggerId", "#bylineInfo"))
	p.SetRaw("category", text(doc.Selection, "#wayfinding-breadcrumbs_feature_div"))
	p.SetRaw("brand", text(doc.Selection, "#bylineInfo"))
	return p, nil
}
