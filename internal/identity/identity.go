// Package identity derives durable product identifiers from extracted data and URLs.
package identity

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/lukman83/pricealert/internal/models"
)

var (
	asinRe        = regexp.MustCompile(`(?i)/(?:dp|gp/product)/([A-Z0-9]{10})(?:[/?#"']|$)`)
	mlIDRe        = regexp.MustCompile(`(?i)(ML[A-Z])[-_]?(\d{3,})`)
	ogURLRe       = regexp.MustCompile(`(?i)<meta[^>]+property=["']og:url["'][^>]+content=["']([^"']+)["']`)
	canonLinkRe   = regexp.MustCompile(`(?i)<link[^>]+rel=["']canonical["'][^>]+href=["']([^"']+)["']`)
	gtinRe        = regexp.MustCompile(`\b(\d{8}|\d{12}|\d{13}|\d{14})\b`)
	modelPrefixRe = regexp.MustCompile(`(?i)^(modelo|model)\s+`)
)

const antibotPath = "/gz/account-verification"

// Resolve fills identifiers the adapter did not find from the URL structure
// of known marketplaces. Identifiers already present on raw are kept as-is.
func Resolve(raw models.RawProduct, rawURL string) models.CanonicalIDs {
	ids := raw.Canonical
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ids
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case isAmazon(host):
		if ids.MarketplaceID == "" {
			ids.MarketplaceID = ASINFromURL(rawURL)
		}
	case isMercadoLivre(host):
		if ids.MarketplaceID == "" {
			ids.MarketplaceID = MLIDFromURL(rawURL)
		}
	}
	return ids
}

// ASINFromURL returns the 10-character Amazon code after /dp/ or /gp/product/.
// It also works on raw HTML containing such a path.
func ASINFromURL(rawURL string) string {
	m := asinRe.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// MLIDFromURL extracts a Mercado Livre item code such as MLB123456 from a
// listing URL, following the anti-bot verification redirect target.
func MLIDFromURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	if !isMercadoLivre(strings.ToLower(u.Hostname())) {
		return ""
	}
	if target := GoTarget(rawURL); target != "" {
		return MLIDFromURL(target)
	}
	m := mlIDRe.FindStringSubmatch(u.Path)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1]) + m[2]
}

// MLIDFromHTML reads the item code from og:url or the canonical link.
func MLIDFromHTML(html string) string {
	if m := ogURLRe.FindStringSubmatch(html); m != nil {
		if id := MLIDFromURL(m[1]); id != "" {
			return id
		}
	}
	if m := canonLinkRe.FindStringSubmatch(html); m != nil {
		return MLIDFromURL(m[1])
	}
	return ""
}

// GoTarget returns the destination of a Mercado Livre account-verification
// page, or "" for any other URL.
func GoTarget(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !strings.HasPrefix(u.Path, antibotPath) {
		return ""
	}
	// Query().Get already percent-decodes the value.
	return u.Query().Get("go")
}

// ExtractGTIN finds a GTIN-shaped digit run in text, preferring 13 digits,
// then 12, then the first candidate.
func ExtractGTIN(text string) string {
	matches := gtinRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return ""
	}
	for _, want := range []int{13, 12} {
		for _, m := range matches {
			if len(m) == want {
				return m
			}
		}
	}
	return matches[0]
}

// DigitsOnly strips everything but digits. Used for EAN attribute values.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidGTIN keeps s only when it has a GTIN length after stripping non-digits.
func ValidGTIN(s string) string {
	d := DigitsOnly(s)
	switch len(d) {
	case 8, 12, 13, 14:
		return d
	}
	return ""
}

var knownBrands = map[string]string{
	"samsung":    "Samsung",
	"apple":      "Apple",
	"motorola":   "Motorola",
	"xiaomi":     "Xiaomi",
	"lg":         "LG",
	"sony":       "Sony",
	"nokia":      "Nokia",
	"huawei":     "Huawei",
	"positivo":   "Positivo",
	"multilaser": "Multilaser",
	"acer":       "Acer",
	"asus":       "Asus",
	"dell":       "Dell",
	"hp":         "HP",
	"lenovo":     "Lenovo",
	"microsoft":  "Microsoft",
}

// NormalizeBrand fixes the casing of well-known brands and trims the rest.
func NormalizeBrand(brand string) string {
	brand = strings.TrimSpace(brand)
	if brand == "" {
		return ""
	}
	if b, ok := knownBrands[strings.ToLower(brand)]; ok {
		return b
	}
	return brand
}

// NormalizeModel drops a leading "modelo"/"model" label and uppercases.
func NormalizeModel(model string) string {
	model = modelPrefixRe.ReplaceAllString(strings.TrimSpace(model), "")
	return strings.ToUpper(strings.TrimSpace(model))
}

// Domain returns the lowercase hostname of rawURL without a www. prefix.
func Domain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

var storeFamilies = []struct {
	needle string
	name   string
}{
	{"amazon.", "amazon"},
	{"mercadolivre.", "mercadolivre"},
	{"mercadolibre.", "mercadolivre"},
	{"magazineluiza.", "magalu"},
	{"magalu.", "magalu"},
	{"kabum.", "kabum"},
	{"americanas.", "americanas"},
	{"submarino.", "submarino"},
	{"casasbahia.", "casasbahia"},
	{"shopee.", "shopee"},
	{"carrefour.", "carrefour"},
	{"extra.", "extra"},
}

// StoreName maps a URL to a short store label such as "amazon" or "kabum".
// Unknown hosts are returned without the www. prefix.
func StoreName(rawURL string) string {
	host := Domain(rawURL)
	if host == "" {
		return "unknown"
	}
	for _, f := range storeFamilies {
		if strings.Contains(host, f.needle) {
			return f.name
		}
	}
	return host
}

func isAmazon(host string) bool {
	return strings.Contains(host, "amazon.")
}

func isMercadoLivre(host string) bool {
	return strings.Contains(host, "mercadolivre.") || strings.Contains(host, "mercadolibre.")
}
