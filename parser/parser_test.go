package parser

import (
	"testing"

	"github.com/aluiziolira/shopcrawl/models"
)

func TestValidateProduct(t *testing.T) {
	negative := -1.0
	tests := []struct {
		name    string
		product *models.ProductRecord
		wantErr bool
	}{
		{
			name: "valid product",
			product: &models.ProductRecord{
				Title:    "Wireless Mouse",
				URL:      "https://www.amazon.com/dp/B000",
				Platform: models.PlatformAmazon,
			},
			wantErr: false,
		},
		{
			name:    "nil product",
			product: nil,
			wantErr: true,
		},
		{
			name: "missing title",
			product: &models.ProductRecord{
				Title:    "  ",
				URL:      "https://www.amazon.com/dp/B000",
				Platform: models.PlatformAmazon,
			},
			wantErr: true,
		},
		{
			name: "missing url",
			product: &models.ProductRecord{
				Title:    "Wireless Mouse",
				Platform: models.PlatformAmazon,
			},
			wantErr: true,
		},
		{
			name: "missing platform",
			product: &models.ProductRecord{
				Title: "Wireless Mouse",
				URL:   "https://www.amazon.com/dp/B000",
			},
			wantErr: true,
		},
		{
			name: "negative price",
			product: &models.ProductRecord{
				Title:    "Wireless Mouse",
				URL:      "https://www.amazon.com/dp/B000",
				Platform: models.PlatformAmazon,
				Price:    &negative,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProduct(tt.product)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProduct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantAmount   float64
		wantCurrency string
		wantOK       bool
	}{
		{name: "dollar", input: "$19.99", wantAmount: 19.99, wantCurrency: "USD", wantOK: true},
		{name: "thousands separator", input: "$1,299.00", wantAmount: 1299, wantCurrency: "USD", wantOK: true},
		{name: "euro suffix", input: "  12,50 € ", wantAmount: 1250, wantCurrency: "EUR", wantOK: true},
		{name: "pound", input: "£51.77", wantAmount: 51.77, wantCurrency: "GBP", wantOK: true},
		{name: "iso code", input: "CAD 45.00", wantAmount: 45, wantCurrency: "CAD", wantOK: true},
		{name: "no marker", input: "25.99", wantAmount: 25.99, wantCurrency: "USD", wantOK: true},
		{name: "range takes first", input: "$10.00 to $20.00", wantAmount: 10, wantCurrency: "USD", wantOK: true},
		{name: "no amount", input: "See price in cart", wantOK: false},
		{name: "empty string", input: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, currency, ok := NormalizePrice(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("NormalizePrice(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if amount != tt.wantAmount {
				t.Errorf("NormalizePrice(%q) amount = %v, want %v", tt.input, amount, tt.wantAmount)
			}
			if currency != tt.wantCurrency {
				t.Errorf("NormalizePrice(%q) currency = %q, want %q", tt.input, currency, tt.wantCurrency)
			}
		})
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		input  string
		want   float64
		wantOK bool
	}{
		{input: "4.5 out of 5 stars", want: 4.5, wantOK: true},
		{input: "Rated 3 stars", want: 3, wantOK: true},
		{input: "", wantOK: false},
		{input: "no rating", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseRating(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseRating(%q) = %v, %v, want %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		input  string
		want   int
		wantOK bool
	}{
		{input: "1,234 ratings", want: 1234, wantOK: true},
		{input: "(87)", want: 87, wantOK: true},
		{input: "12.0 reviews", want: 12, wantOK: true},
		{input: "none", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseCount(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseCount(%q) = %v, %v, want %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNormalizeAvailability(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		fallback string
		expected string
	}{
		{name: "in stock", input: "  In Stock.  ", fallback: models.AvailabilityUnknown, expected: models.AvailabilityInStock},
		{name: "unavailable is out", input: "Currently unavailable", fallback: models.AvailabilityUnknown, expected: models.AvailabilityOutOfStock},
		{name: "sold out", input: "SOLD OUT", fallback: models.AvailabilityUnknown, expected: models.AvailabilityOutOfStock},
		{name: "unrecognized", input: "Ships in 3 days", fallback: models.AvailabilityInStock, expected: models.AvailabilityUnknown},
		{name: "empty uses fallback", input: "", fallback: models.AvailabilityInStock, expected: models.AvailabilityInStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeAvailability(tt.input, tt.fallback)
			if result != tt.expected {
				t.Errorf("NormalizeAvailability(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestTruncateAndStripTags(t *testing.T) {
	if got := Truncate("héllo world", 5); got != "héllo" {
		t.Fatalf("Truncate() = %q", got)
	}
	if got := Truncate("short", 50); got != "short" {
		t.Fatalf("Truncate() = %q", got)
	}
	if got := StripTags("<p>Soft &amp; <b>warm</b></p>"); got != "Soft & warm" {
		t.Fatalf("StripTags() = %q", got)
	}
}
