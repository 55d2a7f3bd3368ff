// Package price turns Brazilian currency strings into numeric values.
package price

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Max is the exclusive upper bound for an accepted price.
const Max = 1_000_000

var (
	installmentRe = regexp.MustCompile(`(?i)\d+\s*x\s+de\b|\d+\s*x\s+R\$|\bem\s+\d+\s*x|juros|parcela`)
	nowPriceRe    = regexp.MustCompile(`(?i)\bpor\s+(?:R\$\s*)?(\d[\d.,]*)`)
	wasPriceRe    = regexp.MustCompile(`(?i)\bde\s+R\$`)
	currencyRe    = regexp.MustCompile(`(?i)R\$\s*(\d[\d.,]*)`)
	bareNumberRe  = regexp.MustCompile(`^\s*(\d[\d.,]*)\s*$`)

	maxDecimal = decimal.NewFromInt(Max)
)

// Parse converts text such as "R$ 1.234,56" into 1234.56.
//
// It returns false for empty or non-numeric text, installment offers
// ("10x de", "em 3x", "juros", "parcela"), a "de R$ X" without its "por" price,
// and values outside (0, Max). For "de R$ X por R$ Y" only Y is read.
func Parse(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	if installmentRe.MatchString(text) {
		return 0, false
	}

	if m := nowPriceRe.FindStringSubmatch(text); m != nil {
		return fromDigits(m[1])
	}
	if wasPriceRe.MatchString(text) {
		return 0, false
	}

	if m := currencyRe.FindStringSubmatch(text); m != nil {
		return fromDigits(m[1])
	}
	if m := bareNumberRe.FindStringSubmatch(text); m != nil {
		return fromDigits(m[1])
	}
	return 0, false
}

// FromNumber applies the price bounds and rounding to an already numeric value,
// as found in JSON payloads.
func FromNumber(v float64) (float64, bool) {
	return bounded(decimal.NewFromFloat(v))
}

// Ptr is a convenience for optional prices.
func Ptr(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

// FormatBRL renders v as "R$ 1.234,56".
func FormatBRL(v float64) string {
	s := decimal.NewFromFloat(v).Round(2).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)

	out := "R$ " + strings.Join(groups, ".") + "," + frac
	if neg {
		out = "-" + out
	}
	return out
}

func fromDigits(raw string) (float64, bool) {
	canonical, ok := normalizeSeparators(strings.TrimRight(raw, ".,"))
	if !ok {
		return 0, false
	}
	d, err := decimal.NewFromString(canonical)
	if err != nil {
		return 0, false
	}
	return bounded(d)
}

func bounded(d decimal.Decimal) (float64, bool) {
	d = d.Round(2)
	if !d.IsPositive() || d.GreaterThanOrEqual(maxDecimal) {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// normalizeSeparators rewrites a digit group into a plain "1234.56" form.
// Period-thousands/comma-decimal is the default reading; the inverse is
// accepted when the fractional part is unambiguous.
func normalizeSeparators(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// 1.234,56
			return strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", "."), true
		}
		// 1,234.56
		if len(s)-lastDot-1 != 2 {
			return "", false
		}
		return strings.ReplaceAll(s, ",", ""), true

	case lastComma >= 0:
		frac := len(s) - lastComma - 1
		if frac == 3 {
			// 1,299 read as thousands
			return strings.ReplaceAll(s, ",", ""), true
		}
		return strings.ReplaceAll(s[:lastComma], ",", "") + "." + s[lastComma+1:], true

	case lastDot >= 0:
		frac := len(s) - lastDot - 1
		if frac == 3 {
			// 1.299 or 1.299.000
			groups := strings.Split(s, ".")
			for _, g := range groups[1:] {
				if len(g) != 3 {
					return "", false
				}
			}
			return strings.Join(groups, ""), true
		}
		// 1299.99, or 1299.9 as serialized by JSON payloads
		if strings.Count(s, ".") > 1 || frac > 2 {
			return "", false
		}
		return s, true

	default:
		return s, true
	}
}
