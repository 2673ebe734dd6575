package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/shopcrawl/models"
	"github.com/aluiziolira/shopcrawl/parser"
)

func parseDocument(page *models.Page) (*goquery.Document, error) {
	if page == nil {
		return nil, fmt.Errorf("%w: nil page", models.ErrExtractionEmpty)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrExtractionEmpty, err)
	}
	return doc, nil
}

// first returns the first element matched by the earliest selector that
// matches anything, so selector lists act as fallbacks in priority order.
func first(s *goquery.Selection, selectors ...string) *goquery.Selection {
	for _, sel := range selectors {
		if found := s.Find(sel); found.Length() > 0 {
			return found.First()
		}
	}
	return s.Slice(0, 0)
}

func text(s *goquery.Selection, selectors ...string) string {
	return parser.CleanText(first(s, selectors...).Text())
}

func attr(s *goquery.Selection, name string, selectors ...string) string {
	for _, sel := range selectors {
		var value string
		s.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			value = strings.TrimSpace(el.AttrOr(name, ""))
			return value == ""
		})
		if value != "" {
			return value
		}
	}
	return ""
}

func exists(s *goquery.Selection, selectors ...string) bool {
	return first(s, selectors...).Length() > 0
}

// href returns the link target of s itself or of its first descendant anchor.
func href(s *goquery.Selection) string {
	if v, ok := s.Attr("href"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(s.Find("a[href]").First().AttrOr("href", ""))
}

func resolve(base, ref string) string {
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		if r.IsAbs() {
			return r.String()
		}
		return ""
	}
	return b.ResolveReference(r).String()
}

func imageSource(s *goquery.Selection, selectors ...string) string {
	img := first(s, selectors...)
	for _, name := range []string{"src", "data-src", "data-old-hires"} {
		if v := strings.TrimSpace(img.AttrOr(name, "")); v != "" {
			return v
		}
	}
	return ""
}

func setPrice(p *models.ProductRecord, raw string) {
	amount, currency, ok := parser.NormalizePrice(raw)
	if !ok {
		return
	}
	p.Price = &amount
	p.Currency = currency
}

func setRating(p *models.ProductRecord, raw string) {
	if v, ok := parser.ParseRating(raw); ok {
		p.Rating = &v
	}
}

func setReviewCount(p *models.ProductRecord, raw string) {
	if v, ok := parser.ParseCount(raw); ok {
		p.ReviewCount = &v
	}
}

func setPriceRaw(p *models.ProductRecord, key, raw string) {
	if amount, _, ok := parser.NormalizePrice(raw); ok {
		p.SetRaw(key, formatAmount(amount))
	}
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func description(s *goquery.Selection, selectors ...string) string {
	return parser.Truncate(text(s, selectors...), parser.MaxDescriptionLength)
}

// nextPage reports whether a next-page control is present and returns its
// link target, which serves as the continuation token.
func nextPage(doc *goquery.Document, selectors ...string) (bool, string) {
	next := first(doc.Selection, selectors...)
	if next.Length() == 0 {
		return false, ""
	}
	return true, href(next)
}
