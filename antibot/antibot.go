// Package antibot classifies fetched pages as clean, blocked or cookie-walled.
package antibot

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/shopcrawl/models"
)

// Verdict is the outcome of inspecting a page.
type Verdict int

const (
	Clean Verdict = iota
	Blocked
	CookieWall
)

func (v Verdict) String() string {
	switch v {
	case Clean:
		return "clean"
	case Blocked:
		return "blocked"
	case CookieWall:
		return "cookie_wall"
	default:
		return "unknown"
	}
}

// Rules lists the markers for one platform.
type Rules struct {
	// BlockSelectors match challenge or captcha elements.
	BlockSelectors []string
	// BlockPhrases are matched case-insensitively against the page title and text.
	BlockPhrases []string
	// BannerSelectors match consent banners.
	BannerSelectors []string
	// AcceptSelectors are clicked by engines able to interact with the page.
	AcceptSelectors []string
}

// Finding explains a verdict.
type Finding struct {
	Verdict Verdict
	Marker  string
}

var commonRules = Rules{
	BlockSelectors: []string{
		`form[action*="captcha"]`,
		`iframe[src*="captcha"]`,
		`#captchacharacters`,
		`#px-captcha`,
		`#challenge-form`,
	},
	BlockPhrases: []string{
		"robot check",
		"verify you are a human",
		"klicke auf die schaltfläche unten",
	},
}

// DefaultRules returns the built-in marker tables keyed by platform.
func DefaultRules() map[models.Platform]Rules {
	return map[models.Platform]Rules{
		models.PlatformAmazon: {
			BlockSelectors:  []string{`form[action*="/errors/validateCaptcha"]`},
			BlockPhrases:    []string{"to discuss automated access to amazon data", "weiter shoppen"},
			BannerSelectors: []string{`#sp-cc`},
			AcceptSelectors: []string{`#sp-cc-accept`},
		},
		models.PlatformEbay: {
			BlockSelectors:  []string{`form[name="sec_captcha"]`},
			BlockPhrases:    []string{"pardon our interruption"},
			BannerSelectors: []string{`#gdpr-banner`},
			AcceptSelectors: []string{`#gdpr-banner-accept`},
		},
		models.PlatformWalmart: {
			BlockSelectors: []string{`.security-check`, `[data-testid="security-check"]`},
			BlockPhrases:   []string{"activate and hold the button"},
		},
		models.PlatformEtsy: {
			BlockSelectors:  []string{`.security-challenge`, `[data-test-id="security-challenge"]`},
			BannerSelectors: []string{`[data-test-id="cookie-banner"]`, `.cookie-banner`},
			AcceptSelectors: []string{`[data-test-id="accept-cookies"]`, `.accept-cookies`},
		},
		models.PlatformShopify: {
			BannerSelectors: []string{`.cookie-banner`, `.gdpr-banner`},
			AcceptSelectors: []string{`.accept-cookies`, `.accept-all`},
		},
	}
}

// Guard inspects page content. It holds no mutable state and is safe for
// concurrent use.
type Guard struct {
	rules map[models.Platform]Rules
}

// New creates a guard over the given rules. Nil rules select DefaultRules.
func New(rules map[models.Platform]Rules) *Guard {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Guard{rules: rules}
}

// Inspect classifies page for platform. Blocking markers win over consent
// banners since a challenge page cannot be dismissed.
func (g *Guard) Inspect(platform models.Platform, page *models.Page) Finding {
	if page == nil {
		return Finding{Verdict: Clean}
	}
	if page.StatusCode == http.StatusTooManyRequests {
		return Finding{Verdict: Blocked, Marker: "status " + strconv.Itoa(page.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return Finding{Verdict: Clean}
	}

	rules := g.rules[platform]
	if marker, ok := matchBlock(doc, commonRules); ok {
		return Finding{Verdict: Blocked, Marker: marker}
	}
	if marker, ok := matchBlock(doc, rules); ok {
		return Finding{Verdict: Blocked, Marker: marker}
	}
	if page.StatusCode == http.StatusForbidden || page.StatusCode == http.StatusServiceUnavailable {
		return Finding{Verdict: Blocked, Marker: "status " + strconv.Itoa(page.StatusCode)}
	}
	for _, sel := range rules.BannerSelectors {
		if doc.Find(sel).Length() > 0 {
			return Finding{Verdict: CookieWall, Marker: sel}
		}
	}
	return Finding{Verdict: Clean}
}

// AcceptSelectors returns the consent buttons to click for platform.
func (g *Guard) AcceptSelectors(platform models.Platform) []string {
	return g.rules[platform].AcceptSelectors
}

// ConsentCookies returns cookies that record consent for widely deployed
// consent managers. Engines that cannot click set these instead.
func ConsentCookies() []*http.Cookie {
	return []*http.Cookie{
		{Name: "cookieconsent_status", Value: "dismiss", Path: "/"},
		{Name: "OptanonAlertBoxClosed", Value: "1", Path: "/"},
		{Name: "gdpr_consent", Value: "1", Path: "/"},
	}
}

func matchBlock(doc *goquery.Document, rules Rules) (string, bool) {
	for _, sel := range rules.BlockSelectors {
		if doc.Find(sel).Length() > 0 {
			return sel, true
		}
	}
	if len(rules.BlockPhrases) == 0 {
		return "", false
	}
	text := strings.ToLower(doc.Find("title").Text() + " " + doc.Find("body").Text())
	for _, phrase := range rules.BlockPhrases {
		if strings.Contains(text, phrase) {
			return phrase, true
		}
	}
	return "", false
}
