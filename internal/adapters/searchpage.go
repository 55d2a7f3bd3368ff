package adapters

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lukman83/pricealert/internal/httputil"
	"github.com/lukman83/pricealert/internal/identity"
	"github.com/lukman83/pricealert/internal/models"
	"github.com/lukman83/pricealert/internal/price"
)

// ErrIncompleteCard is returned when a search page's first result lacks a
// title, a price or a link.
var ErrIncompleteCard = errors.New("search page: incomplete product card")

// cardSelectors locate the parts of a result card on one store's search page.
type cardSelectors struct {
	title    []string
	price    func(doc *goquery.Document) (float64, bool)
	image    []string
	link     []string
	stripQry bool
}

var searchCards = map[string]cardSelectors{
	"amazon": {
		title:    []string{"span.a-size-medium.a-text-normal", `[data-component-type="s-search-result"] h2 span`},
		price:    amazonCardPrice,
		image:    []string{"img.s-image"},
		link:     []string{"a.a-link-normal.s-no-outline", `[data-component-type="s-search-result"] h2 a`},
		stripQry: true,
	},
	"mercadolivre": {
		title:    []string{"h2.poly-component__title", "a.poly-component__title", "h2.ui-search-item__title"},
		price:    fractionPrice("span.andes-money-amount__fraction"),
		image:    []string{"img.poly-component__picture", "img.ui-search-result-image__element"},
		link:     []string{"a.poly-component__title-link", "a.poly-component__title", "a.ui-search-link"},
		stripQry: true,
	},
	"magalu": {
		title: []string{`[data-testid="product-title"]`, "h2.product-title"},
		price: selectorPrice(`[data-testid="price-value"]`),
		image: []string{`[data-testid="product-image"]`},
		link:  []string{`[data-testid="product-card-container"]`},
	},
	"kabum": {
		title: []string{"span.nameCard"},
		price: selectorPrice("span.priceCard"),
		image: []string{"img.imageCard"},
		link:  []string{"a.productLink"},
	},
}

var genericCard = cardSelectors{
	title: []string{
		`h1[class*="product"][class*="title"]`,
		`h2[class*="product"][class*="title"]`,
		`h3[class*="product"][class*="title"]`,
		`span[class*="product"][class*="name"]`,
	},
	price: func(doc *goquery.Document) (float64, bool) {
		m := brlRe.FindString(doc.Text())
		return price.Parse(m)
	},
	image: []string{`img[alt*="product"]`},
	link:  []string{`a[class*="product"][class*="link"]`},
}

// FirstFromSearchPage fetches a store search page and returns its first
// priced product card. Confidence is left at zero for the caller to set.
func FirstFromSearchPage(ctx context.Context, fetcher *httputil.Fetcher, searchURL string) (models.ProductSearchResult, error) {
	store := identity.StoreName(searchURL)
	page, err := fetcher.Fetch(ctx, "search-"+store, searchURL)
	if err != nil {
		return models.ProductSearchResult{}, err
	}
	doc, err := parseDoc(page.HTML)
	if err != nil {
		return models.ProductSearchResult{}, err
	}

	sel, ok := searchCards[store]
	if !ok {
		sel = genericCard
	}

	title := firstText(doc, sel.title...)
	v, hasPrice := sel.price(doc)
	link := firstAttr(doc, "href", sel.link...)
	if sel.stripQry {
		link, _, _ = strings.Cut(link, "?")
	}
	if title == "" || !hasPrice || link == "" {
		return models.ProductSearchResult{}, fmt.Errorf("%w on %s (title=%t price=%t url=%t)",
			ErrIncompleteCard, store, title != "", hasPrice, link != "")
	}

	image := firstAttr(doc, "src", sel.image...)
	return models.ProductSearchResult{
		Title:    title,
		Price:    v,
		Currency: models.CurrencyBRL,
		Domain:   identity.Domain(searchURL),
		URL:      absolute(page.URL, link),
		ImageURL: absolute(page.URL, image),
	}, nil
}

func amazonCardPrice(doc *goquery.Document) (float64, bool) {
	if v, ok := firstPrice(doc, ".s-result-item .a-price .a-offscreen", ".a-price .a-offscreen"); ok {
		return v, true
	}
	whole := strings.TrimRight(firstText(doc, ".a-price-whole"), ",.")
	frac := firstText(doc, ".a-price-fraction")
	if whole == "" {
		return 0, false
	}
	if frac == "" {
		frac = "00"
	}
	return price.Parse("R$ " + whole + "," + frac)
}

// fractionPrice reads stores that split the integer part into its own span.
func fractionPrice(selector string) func(*goquery.Document) (float64, bool) {
	return func(doc *goquery.Document) (float64, bool) {
		text := firstText(doc, selector)
		if text == "" {
			return 0, false
		}
		return price.Parse("R$ " + text)
	}
}

func selectorPrice(selector string) func(*goquery.Document) (float64, bool) {
	return func(doc *goquery.Document) (float64, bool) {
		return firstPrice(doc, selector)
	}
}
