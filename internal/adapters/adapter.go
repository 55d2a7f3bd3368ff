// Package adapters turns a product page URL into a models.RawProduct.
//
// Each store adapter knows where its store hides the price and identifiers;
// the universal adapter handles everything else from structured data and
// meta tags. Adapters never retry and report "no data" as empty fields, not
// errors. Errors are reserved for fetch failures.
package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/lukman83/pricealert/internal/httputil"
	"github.com/lukman83/pricealert/internal/identity"
	"github.com/lukman83/pricealert/internal/models"
)

// Adapter extracts a product from one store's pages.
type Adapter interface {
	Name() string
	Match(u *url.URL) bool
	Extract(ctx context.Context, rawURL string) (models.RawProduct, error)
}

// Registry dispatches a URL to the first adapter that matches it.
// The universal adapter is always last and matches everything.
type Registry struct {
	adapters []Adapter
	logger   *slog.Logger
}

// Options tunes adapters that talk to store APIs.
type Options struct {
	// MercadoLivreAPI is the items API base URL.
	MercadoLivreAPI string
}

// NewRegistry builds the fixed adapter list over fetcher.
func NewRegistry(fetcher *httputil.Fetcher, opts Options, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		adapters: []Adapter{
			NewAmazon(fetcher),
			NewMercadoLivre(fetcher, opts.MercadoLivreAPI, logger),
			NewMagalu(fetcher),
			NewKabum(fetcher),
			NewUniversal(fetcher),
		},
		logger: logger,
	}
}

// For returns the adapter responsible for rawURL.
func (r *Registry) For(rawURL string) Adapter {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return r.adapters[len(r.adapters)-1]
	}
	for _, a := range r.adapters {
		if a.Match(u) {
			return a
		}
	}
	return r.adapters[len(r.adapters)-1]
}

// Names lists adapter names in dispatch order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name()
	}
	return names
}

// Extract dispatches rawURL and completes the canonical identifiers from
// the final and the requested URL.
func (r *Registry) Extract(ctx context.Context, rawURL string) (models.RawProduct, error) {
	a := r.For(rawURL)
	raw, err := a.Extract(ctx, rawURL)
	if err != nil {
		return models.RawProduct{}, fmt.Errorf("%s: %w", a.Name(), err)
	}

	ids := identity.Resolve(raw, raw.SourceURL)
	ids = identity.Resolve(raw.WithCanonical(ids), rawURL)
	raw = raw.WithCanonical(ids)

	r.logger.Debug("extracted product",
		"adapter", a.Name(),
		"url", raw.SourceURL,
		"price", raw.PriceValue(),
		"quality", raw.Quality,
	)
	return raw, nil
}

// hostHas reports whether u's host contains any of the given fragments.
func hostHas(u *url.URL, fragments ...string) bool {
	host := strings.ToLower(u.Hostname())
	for _, f := range fragments {
		if strings.Contains(host, f) {
			return true
		}
	}
	return false
}

// canonical normalizes adapter-found identifiers. Empty inputs stay empty.
func canonical(gtin, marketplaceID, mpn, brand, model string) models.CanonicalIDs {
	return models.CanonicalIDs{
		GTIN:          identity.ValidGTIN(gtin),
		MarketplaceID: strings.TrimSpace(marketplaceID),
		MPN:           strings.TrimSpace(mpn),
		Brand:         identity.NormalizeBrand(brand),
		Model:         identity.NormalizeModel(model),
	}
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
