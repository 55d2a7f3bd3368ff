// Package search finds candidate product URLs for a known product.
//
// Providers are tried in a fixed order by Chain: an LLM asked for product
// pages, a SERP API, and finally store search URLs built locally. The
// NameSearcher answers free-text queries by reading the first card of each
// store's search page.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/lukman83/pricealert/internal/metrics"
	"github.com/lukman83/pricealert/internal/models"
)

// ErrDisabled is returned by a provider whose credential is not configured.
var ErrDisabled = errors.New("search provider disabled")

// AllowedDomains are the stores whose product pages may be returned by a
// provider that reads free text (LLM answers, SERP results).
var AllowedDomains = []string{
	"amazon.com.br",
	"mercadolivre.com.br",
	"magazineluiza.com.br",
	"kabum.com.br",
	"americanas.com.br",
	"shopee.com.br",
	"submarino.com.br",
	"casasbahia.com.br",
}

// Query describes the product to look for. Text is a free-text override
// used by name searches; identifier-driven providers ignore it.
type Query struct {
	Canonical models.CanonicalIDs
	Title     string
	Text      string
}

// Result is what a provider found. URLs are product pages in the order the
// provider ranked them. Items is only set by SERPProvider.Shopping, which
// gets prices from the engine and lists them cheapest first.
type Result struct {
	URLs       []string                     `json:"urls"`
	Items      []models.ProductSearchResult `json:"items,omitempty"`
	Confidence float64                      `json:"confidence"`
}

// Provider is one strategy for finding candidate URLs.
type Provider interface {
	Name() string
	Search(ctx context.Context, q Query) (Result, error)
}

// Chain runs providers in order and returns the first result that has URLs
// together with the name of the provider that produced it. Disabled and
// failing providers are skipped. When none yields URLs the last error seen
// is returned, or an empty result if every provider simply came back empty.
func Chain(ctx context.Context, logger *slog.Logger, q Query, providers ...Provider) (Result, string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var lastErr error
	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			return Result{}, "", err
		}
		res, err := p.Search(ctx, q)
		switch {
		case errors.Is(err, ErrDisabled):
			metrics.ProviderCalls.WithLabelValues(p.Name(), "disabled").Inc()
			continue
		case err != nil:
			metrics.ProviderCalls.WithLabelValues(p.Name(), "error").Inc()
			logger.Warn("search provider failed", "provider", p.Name(), "err", err)
			lastErr = fmt.Errorf("%s: %w", p.Name(), err)
			continue
		case len(res.URLs) == 0:
			metrics.ProviderCalls.WithLabelValues(p.Name(), "empty").Inc()
			continue
		}
		metrics.ProviderCalls.WithLabelValues(p.Name(), "urls").Inc()
		logger.Debug("search provider answered", "provider", p.Name(), "urls", len(res.URLs))
		return res, p.Name(), nil
	}
	return Result{}, "", lastErr
}

// IsAllowed reports whether rawURL points at one of AllowedDomains.
func IsAllowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range AllowedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

var urlRe = regexp.MustCompile(`https?://[^\s<>"]+`)

// extractURLs pulls allow-listed URLs out of free text, in order of first
// appearance and without duplicates, stopping at limit.
func extractURLs(text string, limit int) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range urlRe.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".,;:!?)]}'*`")
		if seen[m] || !IsAllowed(m) {
			continue
		}
		seen[m] = true
		out = append(out, m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Term picks the text to type into a store search box: the gtin, else
// "brand model", else the first three meaningful words of the title.
func Term(q Query) string {
	c := q.Canonical
	switch {
	case strings.TrimSpace(q.Text) != "":
		return strings.TrimSpace(q.Text)
	case c.GTIN != "":
		return c.GTIN
	case c.Brand != "" && c.Model != "":
		return c.Brand + " " + c.Model
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, q.Title)

	var words []string
	for _, w := range strings.Fields(cleaned) {
		if len([]rune(w)) > 3 {
			words = append(words, w)
		}
		if len(words) == 3 {
			break
		}
	}
	return strings.Join(words, " ")
}
