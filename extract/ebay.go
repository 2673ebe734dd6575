package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/shopcrawl/models"
	"github.com/aluiziolira/shopcrawl/parser"
)

// Ebay extracts search results and item pages from ebay.com.
type Ebay struct{}

// NewEbay returns the eBay extractor.
func NewEbay() *Ebay { return &Ebay{} }

func (*Ebay) Platform() models.Platform { return models.PlatformEbay }

func (e *Ebay) ExtractListing(page *models.Page) (*models.ExtractionResult, error) {
	doc, err := parseDocument(page)
	if err != nil {
		return nil, err
	}

	items := doc.Find(".s-item:not(.s-item--watch-at-corner)")
	if items.Length() == 0 && !exists(doc.Selection, ".srp-results", "#srp-river-results") {
		return nil, fmt.Errorf("%w: ebay listing container not found", models.ErrExtractionEmpty)
	}

	result := &models.ExtractionResult{}
	items.Each(func(_ int, item *goquery.Selection) {
		title := text(item, ".s-item__title")
		link := resolve(page.URL, attr(item, "href", ".s-item__link"))
		// eBay injects a "Shop on eBay" placeholder as the first result.
		if title == "" || link == "" || strings.EqualFold(title, "Shop on eBay") {
			return
		}

		p := &models.ProductRecord{
			Title:        title,
			URL:          link,
			Platform:     models.PlatformEbay,
			Availability: models.AvailabilityAvailable,
		}
		priceText := text(item, ".s-item__price")
		setPrice(p, priceText)
		if priceText != "" {
			p.SetRaw("auction_type", auctionType(priceText+" "+text(item, ".s-item__bids", ".s-item__bidCount")))
		}
		p.SetRaw("image", imageSource(item, ".s-item__image img", "img"))
		p.SetRaw("condition", text(item, ".SECONDARY_INFO"))
		p.SetRaw("shipping", shippingCost(text(item, ".s-item__shipping", ".s-item__logisticsCost")))
		p.SetRaw("seller_location", text(item, ".s-item__location"))
		result.Products = append(result.Products, p)
	})

	result.HasNextPage, result.NextPageToken = nextPage(doc, ".pagination__next:not(.pagination__next--disabled)")
	return result, nil
}

func (e *Ebay) ExtractDetail(page *models.Page) (*models.ProductRecord, error) {
	doc, err := parseDocument(page)
	if err != nil {
		return nil, err
	}

	title := text(doc.Selection, ".x-item-title__mainTitle", ".x-item-title-label", "#ebay-item-title")
	if title == "" {
		return nil, fmt.Errorf("%w: ebay item title not found", models.ErrExtractionEmpty)
	}

	p := &models.ProductRecord{
		Title:        title,
		URL:          page.URL,
		Platform:     models.PlatformEbay,
		Availability: models.AvailabilityAvailable,
	}
	priceText := text(doc.Selection, ".x-price-primary", "#prcIsum", ".notranslate")
	setPrice(p, priceText)

	if qty, ok := parser.ParseCount(text(doc.Selection, "#qtySubTxt", ".qtyTxt")); ok {
		p.SetRaw("quantity", fmt.Sprint(qty))
		if qty > 0 {
			p.Availability = models.AvailabilityInStock
		} else {
			p.Availability = models.AvailabilityOutOfStock
		}
	}

	p.SetRaw("image", imageSource(doc.Selection, "#icImg", ".ux-image-magnify__container img"))
	p.SetRaw("condition", text(doc.Selection, ".x-item-condition-text .ux-textspans", ".u-flL.condText", ".condition-value"))
	p.SetRaw("seller", text(doc.Selection, ".x-sellercard-atf__info__about-seller", ".mbg-nw", ".seller-persona-title"))
	p.SetRaw("shipping", shippingCost(text(doc.Selection, ".ux-labels-values--shipping .ux-textspans--BOLD", ".shipping-cost")))
	p.SetRaw("auction_type", auctionType(priceText+" "+text(doc.Selection, "#qty-test", ".x-bid-count")))
	p.SetRaw("description", description(doc.Selection, ".item-description", ".x-item-description"))
	p.SetRaw("item_location", text(doc.Selection, ".ux-labels-values--itemLocation .ux-textspans", ".location-info"))
	return p, nil
}

func auctionType(priceText string) string {
	if strings.Contains(strings.ToLower(priceText), "bid") {
		return "auction"
	}
	return "buy_it_now"
}

func shippingCost(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.Contains(strings.ToLower(raw), "free") {
		return "Free"
	}
	if amount, _, ok := parser.NormalizePrice(raw); ok {
		return formatAmount(amount)
	}
	return ""
}
