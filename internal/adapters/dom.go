package adapters

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lukman83/pricealert/internal/price"
)

var (
	tagRe   = regexp.MustCompile(`<[^>]*>`)
	spaceRe = regexp.MustCompile(`\s+`)
	// brlRe finds R$ amounts in page text for the last-resort price scan.
	// Separator placement is left to price.Parse.
	brlRe = regexp.MustCompile(`R\$\s?\d[\d.,]*`)
)

func parseDoc(htmlContent string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
}

// cleanText strips markup and collapses whitespace.
func cleanText(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// firstText returns the trimmed text of the first non-empty match among
// selectors, tried in order.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		var out string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			out = cleanText(s.Text())
			return out == ""
		})
		if out != "" {
			return out
		}
	}
	return ""
}

// firstAttr returns attr of the first element matching any selector that
// has a non-empty value.
func firstAttr(doc *goquery.Document, attr string, selectors ...string) string {
	for _, sel := range selectors {
		var out string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			out = strings.TrimSpace(s.AttrOr(attr, ""))
			return out == ""
		})
		if out != "" {
			return out
		}
	}
	return ""
}

// meta reads the content of the first <meta> whose property, name or
// itemprop equals one of keys, in key order.
func meta(doc *goquery.Document, keys ...string) string {
	for _, k := range keys {
		for _, attr := range []string{"property", "name", "itemprop"} {
			if v := firstAttr(doc, "content", `meta[`+attr+`="`+k+`"]`); v != "" {
				return v
			}
		}
	}
	return ""
}

// firstPrice parses the text of every element matching the selectors, in
// order, and returns the first valid price. Text that reads like an
// installment or a "was" price is skipped.
func firstPrice(doc *goquery.Document, selectors ...string) (float64, bool) {
	for _, sel := range selectors {
		var v float64
		var ok bool
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := cleanText(s.Text())
			if skipPriceText(text) {
				return true
			}
			v, ok = price.Parse(text)
			return !ok
		})
		if ok {
			return v, true
		}
	}
	return 0, false
}

var skipPriceRe = regexp.MustCompile(`(?i)de\s*R\$|juros|parcela|\d\s*x\b`)

func skipPriceText(text string) bool {
	return skipPriceRe.MatchString(text)
}

// scanBRL parses every R$ amount in text and returns the most frequent
// valid one. Ties go to the amount seen first.
func scanBRL(text string) (float64, bool) {
	counts := map[float64]int{}
	var order []float64
	for _, m := range brlRe.FindAllString(text, -1) {
		v, ok := price.Parse(m)
		if !ok {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}

	best, bestN := 0.0, 0
	for _, v := range order {
		if counts[v] > bestN {
			best, bestN = v, counts[v]
		}
	}
	return best, bestN > 0
}

// specTable collects label/value pairs from spec tables: rows with a th
// and a td, or with two tds. Labels are lowercased.
func specTable(doc *goquery.Document) map[string]string {
	out := map[string]string{}
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return
		}
		label := strings.ToLower(cleanText(cells.Eq(0).Text()))
		value := cleanText(cells.Eq(1).Text())
		if label != "" && value != "" {
			if _, seen := out[label]; !seen {
				out[label] = value
			}
		}
	})
	return out
}

// lookup returns the first value whose label equals one of names.
func lookup(table map[string]string, names ...string) string {
	for _, n := range names {
		if v := table[strings.ToLower(n)]; v != "" {
			return v
		}
	}
	return ""
}

// visibleText is the document text without scripts and styles.
func visibleText(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	return body.Text()
}

// absolute resolves href against base. Unparsable values are returned as is.
func absolute(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}
