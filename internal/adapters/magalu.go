package adapters

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/lukman83/pricealert/internal/httputil"
	"github.com/lukman83/pricealert/internal/identity"
	"github.com/lukman83/pricealert/internal/models"
	"github.com/lukman83/pricealert/internal/price"
)

var magaluFichaEAN = regexp.MustCompile(`(?is)ficha[^>]*t[ée]cnica.*?EAN[^:]*:\s*(\d{13})`)

// Magalu extracts magazineluiza.com.br pages, preferring the Next.js payload.
type Magalu struct {
	fetcher *httputil.Fetcher
}

func NewMagalu(fetcher *httputil.Fetcher) *Magalu {
	return &Magalu{fetcher: fetcher}
}

func (m *Magalu) Name() string { return "magalu" }

func (m *Magalu) Match(u *url.URL) bool {
	return hostHas(u, "magazineluiza.com.br", "magalu.com.br")
}

type magaluNextData struct {
	Props struct {
		PageProps struct {
			Data struct {
				Product *magaluProduct `json:"product"`
			} `json:"data"`
		} `json:"pageProps"`
	} `json:"props"`
}

type magaluProduct struct {
	Name  string          `json:"name"`
	Brand json.RawMessage `json:"brand"`
	Model string          `json:"model"`
	Price struct {
		BestPrice json.RawMessage `json:"bestPrice"`
		AsNumber  json.RawMessage `json:"asNumber"`
	} `json:"price"`
	Images         []json.RawMessage `json:"images"`
	Specifications []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"specifications"`
}

type productFields struct {
	title, image            string
	gtin, mpn, brand, model string
	price                   float64
	hasPrice                bool
}

// fill copies every empty field from an ld+json product.
func (f *productFields) fill(p ldProduct, filter offerFilter) {
	if f.title == "" {
		f.title = p.Name
	}
	if f.brand == "" {
		f.brand = p.Brand
	}
	if f.model == "" {
		f.model = p.Model
	}
	if f.mpn == "" {
		f.mpn = p.MPN
	}
	if f.gtin == "" {
		f.gtin = p.GTIN
	}
	if f.image == "" {
		f.image = p.Image
	}
	if !f.hasPrice {
		f.price, f.hasPrice = p.Price(filter)
	}
}

func (m *Magalu) Extract(ctx context.Context, rawURL string) (models.RawProduct, error) {
	page, err := m.fetcher.Fetch(ctx, m.Name(), rawURL)
	if err != nil {
		return models.RawProduct{}, err
	}
	doc, err := parseDoc(page.HTML)
	if err != nil {
		return models.RawProduct{}, err
	}

	var f productFields
	if raw := doc.Find("script#__NEXT_DATA__").First().Text(); raw != "" {
		var next magaluNextData
		if err := json.Unmarshal([]byte(raw), &next); err == nil && next.Props.PageProps.Data.Product != nil {
			m.fromNextData(next.Props.PageProps.Data.Product, &f)
		}
	}

	if f.title == "" || !f.hasPrice {
		if lds := extractJSONLD(page.HTML); len(lds) > 0 {
			f.fill(lds[0], offerFilter{requireBRL: true, requireInStock: true})
		}
	}

	if f.title == "" {
		f.title = firstText(doc, `h1[data-testid="heading-product-title"]`)
	}
	if !f.hasPrice {
		f.price, f.hasPrice = firstPrice(doc, `[data-testid="price-value"]`)
	}
	if f.image == "" {
		f.image = meta(doc, "og:image")
	}
	if f.gtin == "" {
		if mm := magaluFichaEAN.FindStringSubmatch(page.HTML); mm != nil {
			f.gtin = mm[1]
		}
	}

	return models.NewRawProduct(
		page.URL,
		identity.Domain(page.URL),
		orDefault(f.title, "Produto Magalu"),
		f.image,
		price.Ptr(f.price, f.hasPrice),
		canonical(f.gtin, "", f.mpn, f.brand, f.model),
	), nil
}

func (m *Magalu) fromNextData(p *magaluProduct, f *productFields) {
	f.title = cleanText(p.Name)
	f.brand = jsonName(p.Brand)
	f.model = strings.TrimSpace(p.Model)

	for _, raw := range []json.RawMessage{p.Price.BestPrice, p.Price.AsNumber} {
		if v, ok := jsonPrice(raw); ok {
			f.price, f.hasPrice = v, true
			break
		}
	}
	if len(p.Images) > 0 {
		f.image = jsonName(p.Images[0])
	}
	for _, s := range p.Specifications {
		if strings.Contains(s.Name, "EAN") || strings.Contains(s.Name, "GTIN") {
			f.gtin = strings.TrimSpace(s.Value)
			break
		}
	}
}

// jsonName reads a value that is either a plain string or an object with a
// name or url field.
func jsonName(raw json.RawMessage) string {
	var v any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if s := str(t["name"]); s != "" {
			return s
		}
		return str(t["url"])
	}
	return ""
}

func jsonPrice(raw json.RawMessage) (float64, bool) {
	var v any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return 0, false
	}
	return priceValue(v)
}
