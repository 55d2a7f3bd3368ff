package adapters

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/lukman83/pricealert/internal/price"
	"golang.org/x/net/html"
)

// ldProduct is the subset of a schema.org Product the adapters read.
type ldProduct struct {
	Name   string
	Brand  string
	Model  string
	MPN    string
	GTIN   string
	Image  string
	Offers []ldOffer
}

type ldOffer struct {
	Price        float64
	HasPrice     bool
	Currency     string
	Availability string
}

// offerFilter selects which offers may supply a price.
type offerFilter struct {
	requireBRL     bool
	requireInStock bool
}

// Price returns the first usable offer price.
func (p ldProduct) Price(f offerFilter) (float64, bool) {
	for _, o := range p.Offers {
		if !o.HasPrice {
			continue
		}
		if f.requireBRL && !strings.EqualFold(o.Currency, "BRL") {
			continue
		}
		if !f.requireBRL && o.Currency != "" && !strings.EqualFold(o.Currency, "BRL") {
			continue
		}
		if f.requireInStock && o.Availability != "" && !strings.Contains(o.Availability, "InStock") {
			continue
		}
		return o.Price, true
	}
	return 0, false
}

// extractJSONLD parses HTML and returns every Product found in
// application/ld+json script tags, including @graph members and arrays.
// Malformed scripts are skipped.
func extractJSONLD(htmlContent string) []ldProduct {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil
	}

	var products []ldProduct
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" && isLDScript(n) && n.FirstChild != nil {
			var v any
			if err := json.Unmarshal([]byte(strings.TrimSpace(n.FirstChild.Data)), &v); err == nil {
				products = collectProducts(v, products)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return products
}

func isLDScript(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key == "type" && strings.EqualFold(strings.TrimSpace(attr.Val), "application/ld+json") {
			return true
		}
	}
	return false
}

func collectProducts(v any, out []ldProduct) []ldProduct {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			out = collectProducts(item, out)
		}
	case map[string]any:
		if graph, ok := t["@graph"]; ok {
			out = collectProducts(graph, out)
		}
		if hasType(t["@type"], "Product") {
			out = append(out, toProduct(t))
		}
	}
	return out
}

func hasType(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return t == want
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func toProduct(m map[string]any) ldProduct {
	p := ldProduct{
		Name:  cleanText(str(m["name"])),
		Brand: nameOf(m["brand"]),
		Model: nameOf(m["model"]),
		MPN:   str(m["mpn"]),
		Image: firstURL(m["image"]),
	}
	for _, key := range []string{"gtin13", "gtin", "gtin8", "gtin12", "gtin14"} {
		if g := str(m[key]); g != "" {
			p.GTIN = g
			break
		}
	}

	var offers []any
	switch o := m["offers"].(type) {
	case []any:
		offers = o
	case map[string]any:
		offers = []any{o}
		// AggregateOffer can nest the concrete offers.
		if inner, ok := o["offers"].([]any); ok {
			offers = append(offers, inner...)
		}
	}
	for _, raw := range offers {
		om, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		offer := ldOffer{
			Currency:     str(om["priceCurrency"]),
			Availability: str(om["availability"]),
		}
		for _, key := range []string{"price", "lowPrice"} {
			if v, ok := priceValue(om[key]); ok {
				offer.Price, offer.HasPrice = v, true
				break
			}
		}
		p.Offers = append(p.Offers, offer)
	}
	return p
}

// priceValue accepts JSON numbers and strings ("1299.90", "R$ 1.299,90").
func priceValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return price.FromNumber(t)
	case string:
		return price.Parse(t)
	}
	return 0, false
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		// GTINs sometimes arrive unquoted.
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func nameOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		return str(t["name"])
	case []any:
		if len(t) > 0 {
			return nameOf(t[0])
		}
	}
	return ""
}

func firstURL(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		if len(t) > 0 {
			return firstURL(t[0])
		}
	case map[string]any:
		if u := str(t["url"]); u != "" {
			return u
		}
		return str(t["contentUrl"])
	}
	return ""
}
