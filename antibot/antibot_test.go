package antibot

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aluiziolira/shopcrawl/models"
)

func page(status int, body string) *models.Page {
	return &models.Page{URL: "https://example.com/", StatusCode: status, Body: []byte(body)}
}

func TestInspect(t *testing.T) {
	guard := New(nil)

	tests := []struct {
		name     string
		platform models.Platform
		page     *models.Page
		want     Verdict
	}{
		{
			name:     "clean listing",
			platform: models.PlatformAmazon,
			page:     page(http.StatusOK, `<html><body><div data-component-type="s-search-result">x</div></body></html>`),
			want:     Clean,
		},
		{
			name:     "amazon captcha form",
			platform: models.PlatformAmazon,
			page:     page(http.StatusOK, `<html><body><form action="/errors/validateCaptcha"></form></body></html>`),
			want:     Blocked,
		},
		{
			name:     "robot check title",
			platform: models.PlatformWalmart,
			page:     page(http.StatusOK, `<html><head><title>Robot Check</title></head><body></body></html>`),
			want:     Blocked,
		},
		{
			name:     "ebay security captcha",
			platform: models.PlatformEbay,
			page:     page(http.StatusOK, `<html><body><form name="sec_captcha"></form></body></html>`),
			want:     Blocked,
		},
		{
			name:     "etsy challenge",
			platform: models.PlatformEtsy,
			page:     page(http.StatusOK, `<html><body><div data-test-id="security-challenge"></div></body></html>`),
			want:     Blocked,
		},
		{
			name:     "rate limited status",
			platform: models.PlatformShopify,
			page:     page(http.StatusTooManyRequests, ``),
			want:     Blocked,
		},
		{
			name:     "forbidden status",
			platform: models.PlatformEbay,
			page:     page(http.StatusForbidden, `<html><body>nope</body></html>`),
			want:     Blocked,
		},
		{
			name:     "etsy cookie banner",
			platform: models.PlatformEtsy,
			page:     page(http.StatusOK, `<html><body><div data-test-id="cookie-banner"><button data-test-id="accept-cookies">OK</button></div></body></html>`),
			want:     CookieWall,
		},
		{
			name:     "banner of another platform is ignored",
			platform: models.PlatformWalmart,
			page:     page(http.StatusOK, `<html><body><div class="gdpr-banner"></div></body></html>`),
			want:     Clean,
		},
		{
			name:     "challenge wins over banner",
			platform: models.PlatformShopify,
			page:     page(http.StatusOK, `<html><body><div class="cookie-banner"></div><iframe src="https://x/captcha"></iframe></body></html>`),
			want:     Blocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := guard.Inspect(tt.platform, tt.page)
			assert.Equal(t, tt.want, got.Verdict, "marker %q", got.Marker)
			if tt.want != Clean {
				assert.NotEmpty(t, got.Marker)
			}
		})
	}
}

func TestInspectIsPure(t *testing.T) {
	guard := New(nil)
	p := page(http.StatusOK, `<html><body><div class="cookie-banner"></div></body></html>`)

	first := guard.Inspect(models.PlatformShopify, p)
	second := guard.Inspect(models.PlatformShopify, p)
	assert.Equal(t, first, second)
}

func TestAcceptSelectors(t *testing.T) {
	guard := New(nil)
	assert.Contains(t, guard.AcceptSelectors(models.PlatformEtsy), `.accept-cookies`)
	assert.Empty(t, guard.AcceptSelectors(models.PlatformWalmart))
	assert.NotEmpty(t, ConsentCookies())
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "clean", Clean.String())
	assert.Equal(t, "blocked", Blocked.String())
	assert.Equal(t, "cookie_wall", CookieWall.String())
}
