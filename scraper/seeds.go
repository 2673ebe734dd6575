package scraper

import (
	"log/slog"
	"strings"

	"github.com/aluiziolira/shopcrawl/extract"
	"github.com/aluiziolira/shopcrawl/models"
)

// SeedInput lists what a run should crawl.
type SeedInput struct {
	Platforms   []models.Platform
	SearchTerms []string
	ProductURLs []string
}

// BuildSeeds expands the input into initial requests: one listing request
// per platform and search term, and one detail request per product URL for
// every selected platform serving it. URLs no selected platform serves are
// logged and skipped.
func BuildSeeds(in SeedInput) []models.Request {
	var seeds []models.Request

	for _, term := range in.SearchTerms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		for _, platform := range in.Platforms {
			target, err := extract.SearchURL(platform, term)
			if err != nil {
				slog.Warn("no search url for platform",
					slog.String("platform", string(platform)),
					slog.Any("error", err),
				)
				continue
			}
			seeds = append(seeds, models.Request{
				URL:        target,
				Platform:   platform,
				Kind:       models.KindSearch,
				SearchTerm: term,
				Page:       1,
			})
		}
	}

	for _, raw := range in.ProductURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		routed := false
		for _, platform := range in.Platforms {
			if !extract.MatchesDomain(platform, raw) {
				continue
			}
			routed = true
			seeds = append(seeds, models.Request{
				URL:      raw,
				Platform: platform,
				Kind:     models.KindProduct,
				Page:     1,
			})
		}
		if !routed {
			slog.Warn("product url matches no selected platform", slog.String("url", raw))
		}
	}

	return seeds
}
