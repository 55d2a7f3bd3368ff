package adapters

import (
	"context"
	"net/url"
	"regexp"

	"github.com/lukman83/pricealert/internal/httputil"
	"github.com/lukman83/pricealert/internal/identity"
	"github.com/lukman83/pricealert/internal/models"
	"github.com/lukman83/pricealert/internal/price"
)

var amazonTitlePriceRe = regexp.MustCompile(`R\$\s*[\d.,]+`)

// Amazon extracts amazon.com.br product pages.
type Amazon struct {
	fetcher *httputil.Fetcher
}

func NewAmazon(fetcher *httputil.Fetcher) *Amazon {
	return &Amazon{fetcher: fetcher}
}

func (a *Amazon) Name() string { return "amazon" }

func (a *Amazon) Match(u *url.URL) bool { return hostHas(u, "amazon.com.br") }

func (a *Amazon) Extract(ctx context.Context, rawURL string) (models.RawProduct, error) {
	page, err := a.fetcher.Fetch(ctx, a.Name(), rawURL)
	if err != nil {
		return models.RawProduct{}, err
	}
	doc, err := parseDoc(page.HTML)
	if err != nil {
		return models.RawProduct{}, err
	}

	// Related and sponsored products also link to /dp/ pages, so the raw
	// markup is scanned only after the page's own URLs.
	asin := identity.ASINFromURL(firstAttr(doc, "href", `link[rel="canonical"]`))
	if asin == "" {
		asin = identity.ASINFromURL(meta(doc, "og:url"))
	}
	if asin == "" {
		asin = identity.ASINFromURL(page.URL)
	}
	if asin == "" {
		asin = identity.ASINFromURL(page.HTML)
	}

	v, ok := 0.0, false
	for _, p := range extractJSONLD(page.HTML) {
		if v, ok = p.Price(offerFilter{}); ok {
			break
		}
	}
	if !ok {
		v, ok = firstPrice(doc,
			"#apex_desktop .a-offscreen",
			"#corePriceDisplay_desktop_feature_div .a-offscreen",
		)
	}
	if !ok {
		v, ok = firstPrice(doc, `[data-a-color="price"] .a-offscreen`, `span[data-a-color="price"]`)
	}
	if !ok {
		if m := amazonTitlePriceRe.FindString(doc.Find("title").First().Text()); m != "" {
			v, ok = price.Parse(m)
		}
	}
	if !ok {
		v, ok = price.Parse(meta(doc, "og:price:amount"))
	}

	title := orDefault(firstText(doc, "#productTitle"), meta(doc, "og:title"))
	image := meta(doc, "og:image")
	if image == "" {
		image = firstAttr(doc, "src", "#landingImage")
	}

	return models.NewRawProduct(
		page.URL,
		identity.Domain(page.URL),
		orDefault(title, "Produto Amazon"),
		image,
		price.Ptr(v, ok),
		canonical("", asin, "", "", ""),
	), nil
}
