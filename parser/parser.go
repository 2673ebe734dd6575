// Package parser holds the field-level cleanup shared by every extractor.
package parser

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/shopcrawl/models"
)

// DefaultCurrency is assumed when a price carries no recognizable marker.
const DefaultCurrency = "USD"

// MaxDescriptionLength bounds free-text fields copied into raw extras.
const MaxDescriptionLength = 500

var (
	numberPattern  = regexp.MustCompile(`[0-9][0-9,]*(?:\.[0-9]+)?`)
	decimalPattern = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)
	isoCodePattern = regexp.MustCompile(`\b([A-Z]{3})\b`)
	tagPattern     = regexp.MustCompile(`<[^>]*>`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
}

var knownCodes = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CAD": true,
	"AUD": true, "CHF": true, "SEK": true, "NOK": true, "DKK": true,
	"PLN": true, "INR": true, "NZD": true, "MXN": true, "BRL": true,
}

// ValidateProduct ensures the extractor captured the required fields.
func ValidateProduct(p *models.ProductRecord) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("product missing title")
	}
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("product missing url for %s", p.Title)
	}
	if p.Platform == "" {
		return fmt.Errorf("product missing platform for %s", p.Title)
	}
	if p.Price != nil && *p.Price < 0 {
		return fmt.Errorf("product has negative price for %s", p.Title)
	}
	return nil
}

// CleanText collapses whitespace and unescapes HTML entities.
func CleanText(text string) string {
	text = html.UnescapeString(text)
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// StripTags removes markup from an HTML fragment.
func StripTags(fragment string) string {
	return CleanText(tagPattern.ReplaceAllString(fragment, " "))
}

// Truncate limits text to n runes.
func Truncate(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

// NormalizePrice extracts the first amount in text along with its currency.
// ok is false when no amount is present.
func NormalizePrice(text string) (amount float64, currency string, ok bool) {
	text = CleanText(text)
	match := numberPattern.FindString(text)
	if match == "" {
		return 0, "", false
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0, "", false
	}
	return value, DetectCurrency(text), true
}

// DetectCurrency maps a currency symbol or ISO code in text to an ISO code.
func DetectCurrency(text string) string {
	for _, m := range isoCodePattern.FindAllStringSubmatch(text, -1) {
		if knownCodes[m[1]] {
			return m[1]
		}
	}
	for _, r := range text {
		if code, ok := currencySymbols[string(r)]; ok {
			return code
		}
	}
	return DefaultCurrency
}

// ParseRating reads the leading decimal from text such as "4.5 out of 5 stars".
func ParseRating(text string) (float64, bool) {
	match := decimalPattern.FindString(text)
	if match == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// ParseCount reads the first integer from text, ignoring thousands separators.
func ParseCount(text string) (int, bool) {
	match := numberPattern.FindString(text)
	if match == "" {
		return 0, false
	}
	if i := strings.IndexByte(match, '.'); i >= 0 {
		match = match[:i]
	}
	value, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return 0, false
	}
	return value, true
}

// NormalizeAvailability maps free-form stock text onto the availability values.
// Empty text yields fallback.
func NormalizeAvailability(text, fallback string) string {
	lower := strings.ToLower(CleanText(text))
	switch {
	case lower == "":
		return fallback
	case strings.Contains(lower, "out of stock"),
		strings.Contains(lower, "unavailable"),
		strings.Contains(lower, "sold out"):
		return models.AvailabilityOutOfStock
	case strings.Contains(lower, "in stock"),
		strings.Contains(lower, "available"):
		return models.AvailabilityInStock
	default:
		return models.AvailabilityUnknown
	}
}
