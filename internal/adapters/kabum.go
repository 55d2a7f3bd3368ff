package adapters

import (
	"context"
	"net/url"

	"github.com/lukman83/pricealert/internal/httputil"
	"github.com/lukman83/pricealert/internal/identity"
	"github.com/lukman83/pricealert/internal/models"
	"github.com/lukman83/pricealert/internal/price"
)

// Kabum extracts kabum.com.br product pages.
type Kabum struct {
	fetcher *httputil.Fetcher
}

func NewKabum(fetcher *httputil.Fetcher) *Kabum {
	return &Kabum{fetcher: fetcher}
}

func (k *Kabum) Name() string { return "kabum" }

func (k *Kabum) Match(u *url.URL) bool { return hostHas(u, "kabum.com.br") }

func (k *Kabum) Extract(ctx context.Context, rawURL string) (models.RawProduct, error) {
	page, err := k.fetcher.Fetch(ctx, k.Name(), rawURL)
	if err != nil {
		return models.RawProduct{}, err
	}
	doc, err := parseDoc(page.HTML)
	if err != nil {
		return models.RawProduct{}, err
	}

	var f productFields
	if lds := extractJSONLD(page.HTML); len(lds) > 0 {
		f.fill(lds[0], offerFilter{requireBRL: true, requireInStock: true})
	}

	if f.title == "" {
		f.title = firstText(doc, `h1[class*="-title"]`, "h1")
	}
	if !f.hasPrice {
		f.price, f.hasPrice = firstPrice(doc,
			`span[class*="finalPrice"]`,
			`div[class*="finalPrice"]`,
			`strong[class*="price"]`,
		)
	}
	if f.image == "" {
		f.image = firstAttr(doc, "src", `img[class*="imageProduct"]`)
	}
	if f.image == "" {
		f.image = meta(doc, "og:image")
	}

	if f.gtin == "" || f.brand == "" || f.model == "" {
		table := specTable(doc)
		if f.gtin == "" {
			if g := identity.DigitsOnly(lookup(table, "EAN", "GTIN", "Código de Barras")); len(g) == 13 {
				f.gtin = g
			}
		}
		if f.brand == "" {
			f.brand = lookup(table, "Marca")
		}
		if f.model == "" {
			f.model = lookup(table, "Modelo")
		}
	}

	return models.NewRawProduct(
		page.URL,
		identity.Domain(page.URL),
		orDefault(f.title, "Produto KaBuM"),
		f.image,
		price.Ptr(f.price, f.hasPrice),
		canonical(f.gtin, "", f.mpn, f.brand, f.model),
	), nil
}
