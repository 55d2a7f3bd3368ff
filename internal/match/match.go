// Package match decides whether two listings are the same physical product
// and ranks the offers that survive.
package match

import (
	"sort"
	"strings"
	"unicode"

	"github.com/lukman83/pricealert/internal/models"
)

// SimilarityThreshold is the minimum title similarity for a brand+model match.
const SimilarityThreshold = 0.92

// Subject is one side of a comparison.
type Subject struct {
	Canonical models.CanonicalIDs
	Title     string
}

// Match compares a and b. Rules are checked in order: equal gtin, equal
// marketplace ID, then equal brand and model backed by title similarity.
// The result does not depend on argument order.
func Match(a, b Subject) models.MatchResult {
	ca, cb := a.Canonical, b.Canonical

	if ca.GTIN != "" && ca.GTIN == cb.GTIN {
		return models.MatchResult{IsMatch: true, Confidence: 1.0}
	}
	if ca.MarketplaceID != "" && strings.EqualFold(ca.MarketplaceID, cb.MarketplaceID) {
		return models.MatchResult{IsMatch: true, Confidence: 1.0}
	}

	if ca.Brand != "" && ca.Model != "" &&
		strings.EqualFold(ca.Brand, cb.Brand) && strings.EqualFold(ca.Model, cb.Model) {
		sim := Similarity(a.Title, b.Title)
		if sim >= SimilarityThreshold {
			return models.MatchResult{IsMatch: true, Confidence: 0.85}
		}
		return models.MatchResult{IsMatch: false, Confidence: sim}
	}

	return models.MatchResult{}
}

// Similarity is the Jaccard index of the two titles' token sets. Titles are
// lowercased, stripped of punctuation, and tokens of two runes or fewer are
// ignored. Either side empty yields 0.
func Similarity(a, b string) float64 {
	sa, sb := tokenSet(a), tokenSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	inter := 0
	for tok := range sa {
		if _, ok := sb[tok]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, s)

	set := make(map[string]struct{})
	for _, tok := range strings.Fields(cleaned) {
		if len([]rune(tok)) > 2 {
			set[tok] = struct{}{}
		}
	}
	return set
}

// DedupeSort keeps one item per domain (lowest price, then highest
// confidence), drops non-positive prices and sorts by ascending price with
// descending confidence as the tie breaker. The input is not modified.
func DedupeSort(items []models.MarketItem) []models.MarketItem {
	best := make(map[string]models.MarketItem, len(items))
	for _, it := range items {
		if it.Price <= 0 {
			continue
		}
		cur, ok := best[it.Domain]
		if !ok || it.Price < cur.Price || (it.Price == cur.Price && it.Confidence > cur.Confidence) {
			best[it.Domain] = it
		}
	}

	out := make([]models.MarketItem, 0, len(best))
	for _, it := range best {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}
