package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lukman83/pricealert/internal/equivalence"
	"github.com/lukman83/pricealert/internal/ingest"
	"github.com/lukman83/pricealert/internal/models"
	"github.com/lukman83/pricealert/internal/price"
)

const titleWidth = 70

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printIngest prints an ingestion result in a human-friendly card layout.
func printIngest(w io.Writer, res ingest.Result) {
	status := "created"
	switch {
	case res.Existing && res.PriceChanged:
		status = "existing, price updated"
	case res.Existing:
		status = "existing"
	}
	fmt.Fprintf(w, " #%d %s  [%s]\n", res.ProductID, truncate(res.Title, titleWidth), status)

	if res.Raw.HasPrice() {
		line := "    Price: " + price.FormatBRL(res.Raw.PriceValue())
		if res.Raw.Domain != "" {
			line += "  |  Store: " + res.Raw.Domain
		}
		line += "  |  Quality: " + string(res.Raw.Quality)
		fmt.Fprintln(w, line)
	}
	if ids := formatIDs(res.Canonical); ids != "" {
		fmt.Fprintf(w, "    %s\n", ids)
	}
	fmt.Fprintf(w, "    %s\n", res.URL)
}

func formatIDs(c models.CanonicalIDs) string {
	var parts []string
	for _, kv := range [][2]string{
		{"GTIN", c.GTIN},
		{"ID", c.MarketplaceID},
		{"MPN", c.MPN},
		{"Brand", c.Brand},
		{"Model", c.Model},
	} {
		if kv[1] != "" {
			parts = append(parts, kv[0]+": "+kv[1])
		}
	}
	return strings.Join(parts, "  |  ")
}

// printMarket prints offers cheapest first.
func printMarket(w io.Writer, res equivalence.Result) {
	if res.Disabled {
		fmt.Fprintln(w, " Market lookup disabled: set GROQ_API_KEY or SERP_API_KEY.")
		return
	}
	if len(res.Items) == 0 {
		fmt.Fprintf(w, " No offers found (via %s).\n", res.Method)
		return
	}
	header := fmt.Sprintf(" %d offers via %s", len(res.Items), res.Method)
	if res.Partial {
		header += " (partial)"
	}
	fmt.Fprintln(w, header)
	for i, it := range res.Items {
		fmt.Fprintf(w, " %d. %-14s %-22s %3.0f%%\n", i+1, price.FormatBRL(it.Price), it.Domain, it.Confidence*100)
		fmt.Fprintf(w, "    %s\n", it.URL)
	}
}

func printSearchResults(w io.Writer, results []models.ProductSearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, " No products found.")
		return
	}
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, " %d. %s\n", i+1, truncate(r.Title, titleWidth))
		fmt.Fprintf(w, "    Price: %s  |  Store: %s\n", price.FormatBRL(r.Price), r.Domain)
		fmt.Fprintf(w, "    %s\n", r.URL)
	}
}

func printHistory(w io.Writer, points []models.PricePoint) {
	if len(points) == 0 {
		fmt.Fprintln(w, " No price history.")
		return
	}
	for _, p := range points {
		fmt.Fprintf(w, " %s  %s\n", p.CapturedAt.Local().Format("2006-01-02 15:04"), price.FormatBRL(p.Price))
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
