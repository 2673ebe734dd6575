package canonical

import (
	"errors"
	"testing"

	"github.com/aluiziolira/shopcrawl/models"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "scheme and host case",
			input:    "HTTPS://WWW.Amazon.COM/s?k=shoes",
			expected: "https://www.amazon.com/s?k=shoes",
		},
		{
			name:     "tracking parameters removed",
			input:    "https://www.ebay.com/itm/123?utm_source=x&_trksid=p1&hash=abc&var=2",
			expected: "https://www.ebay.com/itm/123?var=2",
		},
		{
			name:     "query sorted",
			input:    "https://www.walmart.com/search?q=tv&page=2",
			expected: "https://www.walmart.com/search?page=2&q=tv",
		},
		{
			name:     "default port and fragment dropped",
			input:    "https://www.etsy.com:443/listing/42/#reviews",
			expected: "https://www.etsy.com/listing/42",
		},
		{
			name:     "root path",
			input:    "https://shop.example.com/",
			expected: "https://shop.example.com",
		},
		{
			name:     "non default port kept",
			input:    "http://localhost:8080/products/a",
			expected: "http://localhost:8080/products/a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.input)
			if err != nil {
				t.Fatalf("NormalizeURL(%q) error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Fatalf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeURLMalformed(t *testing.T) {
	for _, input := range []string{"", "   ", "/relative/path", "http://", "://missing", "www.amazon.com/s?k=x"} {
		if _, err := NormalizeURL(input); !errors.Is(err, models.ErrMalformedURL) {
			t.Fatalf("NormalizeURL(%q) error = %v, want ErrMalformedURL", input, err)
		}
	}
}

func TestKeyPageTokenOnlyForListings(t *testing.T) {
	c, err := New(16)
	if err != nil {
		t.Fatalf("new canonicalizer: %v", err)
	}

	listing1, err := c.Key(models.PlatformAmazon, models.KindSearch, "https://www.amazon.com/s?k=lamp", "2")
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	listing2, _ := c.Key(models.PlatformAmazon, models.KindSearch, "https://www.amazon.com/s?k=lamp", "3")
	if listing1 == listing2 {
		t.Fatalf("listing keys with different tokens should differ: %q", listing1)
	}

	detail1, _ := c.Key(models.PlatformAmazon, models.KindProduct, "https://www.amazon.com/dp/B01", "2")
	detail2, _ := c.Key(models.PlatformAmazon, models.KindProduct, "https://www.amazon.com/dp/B01", "9")
	if detail1 != detail2 {
		t.Fatalf("detail keys should ignore page token: %q vs %q", detail1, detail2)
	}
}

func TestKeyIncludesPlatform(t *testing.T) {
	c, _ := New(0)
	a, _ := c.ProductKey(models.PlatformShopify, "https://store.example.com/products/mug")
	b, _ := c.ProductKey(models.PlatformEtsy, "https://store.example.com/products/mug")
	if a == b {
		t.Fatalf("keys for different platforms should differ")
	}
}

func TestKeyDeterministicWithCache(t *testing.T) {
	c, _ := New(1)
	urls := []string{
		"https://www.ebay.com/sch/i.html?_nkw=watch&utm_medium=email",
		"https://www.ebay.com/sch/i.html?_nkw=watch",
	}
	first, _ := c.Key(models.PlatformEbay, models.KindSearch, urls[0], "")
	for i := 0; i < 3; i++ {
		for _, raw := range urls {
			got, err := c.Key(models.PlatformEbay, models.KindSearch, raw, "")
			if err != nil {
				t.Fatalf("key: %v", err)
			}
			if got != first {
				t.Fatalf("key(%q) = %q, want %q", raw, got, first)
			}
		}
	}
}

func TestKeyMalformed(t *testing.T) {
	c, _ := New(0)
	if _, err := c.Key(models.PlatformEbay, models.KindProduct, "itm/123", ""); !errors.Is(err, models.ErrMalformedURL) {
		t.Fatalf("expected ErrMalformedURL, got %v", err)
	}
}
