package adapters

import (
	"context"
	"net/url"

	"github.com/lukman83/pricealert/internal/httputil"
	"github.com/lukman83/pricealert/internal/identity"
	"github.com/lukman83/pricealert/internal/models"
	"github.com/lukman83/pricealert/internal/price"
)

const universalName = "universal"

// Universal extracts any store from structured data, meta tags and
// heuristics. It matches every URL.
type Universal struct {
	fetcher *httputil.Fetcher
}

func NewUniversal(fetcher *httputil.Fetcher) *Universal {
	return &Universal{fetcher: fetcher}
}

func (u *Universal) Name() string { return universalName }

func (u *Universal) Match(*url.URL) bool { return true }

func (u *Universal) Extract(ctx context.Context, rawURL string) (models.RawProduct, error) {
	page, err := u.fetcher.Fetch(ctx, u.Name(), rawURL)
	if err != nil {
		return models.RawProduct{}, err
	}
	doc, err := parseDoc(page.HTML)
	if err != nil {
		return models.RawProduct{}, err
	}

	var f productFields
	for _, p := range extractJSONLD(page.HTML) {
		// Later blocks only fill what earlier ones lacked.
		f.fill(p, offerFilter{requireBRL: true, requireInStock: true})
		if f.title != "" && f.hasPrice {
			break
		}
	}

	if f.title == "" {
		f.title = meta(doc, "og:title", "twitter:title")
	}
	if f.title == "" {
		f.title = firstText(doc, "title")
	}
	if f.image == "" {
		f.image = meta(doc, "og:image", "twitter:image")
	}
	if !f.hasPrice {
		for _, key := range []string{"twitter:data1", "og:price:amount", "product:price:amount", "price"} {
			text := meta(doc, key)
			if text == "" || skipPriceText(text) {
				continue
			}
			if f.price, f.hasPrice = price.Parse(text); f.hasPrice {
				break
			}
		}
	}
	if f.title == "" {
		f.title = firstText(doc, "h1", `h1[class*="product"]`, `span[class*="title"]`)
	}
	if !f.hasPrice {
		f.price, f.hasPrice = scanBRL(page.HTML)
	}
	if f.gtin == "" {
		f.gtin = identity.ExtractGTIN(visibleText(doc))
	}

	return models.NewRawProduct(
		page.URL,
		identity.Domain(page.URL),
		orDefault(f.title, "Produto sem título"),
		absolute(page.URL, f.image),
		price.Ptr(f.price, f.hasPrice),
		canonical(f.gtin, "", f.mpn, f.brand, f.model),
	), nil
}
