package adapters

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/lukman83/pricealert/internal/httputil"
	"github.com/lukman83/pricealert/internal/identity"
	"github.com/lukman83/pricealert/internal/models"
	"github.com/lukman83/pricealert/internal/price"
)

// DefaultMercadoLivreAPI is the public items API.
const DefaultMercadoLivreAPI = "https://api.mercadolibre.com"

// ErrNoListingID is returned when neither the URL nor the page carries a
// Mercado Livre listing code.
var ErrNoListingID = errors.New("mercadolivre: listing id not found")

var (
	mlBrandAttr = regexp.MustCompile(`(?i)brand|marca`)
	mlGTINAttr  = regexp.MustCompile(`(?i)gtin|ean|upc`)
	mlModelAttr = regexp.MustCompile(`(?i)model`)
	mlEANText   = regexp.MustCompile(`(?i)EAN[\s:]*([0-9.\-]{8,})`)
)

// MercadoLivre reads listings through the items API, falling back to the
// listing HTML when the API refuses.
type MercadoLivre struct {
	fetcher *httputil.Fetcher
	apiBase string
	logger  *slog.Logger
	now     func() time.Time
}

func NewMercadoLivre(fetcher *httputil.Fetcher, apiBase string, logger *slog.Logger) *MercadoLivre {
	if apiBase == "" {
		apiBase = DefaultMercadoLivreAPI
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MercadoLivre{
		fetcher: fetcher,
		apiBase: strings.TrimRight(apiBase, "/"),
		logger:  logger,
		now:     time.Now,
	}
}

func (m *MercadoLivre) Name() string { return "mercadolivre" }

func (m *MercadoLivre) Match(u *url.URL) bool {
	return hostHas(u, "mercadolivre.com.br", "mercadolibre.")
}

type mlItem struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Status    string   `json:"status"`
	Price     *float64 `json:"price"`
	Thumbnail string   `json:"thumbnail"`
	Pictures  []struct {
		URL       string `json:"url"`
		SecureURL string `json:"secure_url"`
	} `json:"pictures"`
	Attributes []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		ValueName string `json:"value_name"`
	} `json:"attributes"`
	Prices struct {
		Prices []struct {
			Type       string  `json:"type"`
			Amount     float64 `json:"amount"`
			Conditions struct {
				StartTime string `json:"start_time"`
				EndTime   string `json:"end_time"`
			} `json:"conditions"`
		} `json:"prices"`
	} `json:"prices"`
}

func (m *MercadoLivre) Extract(ctx context.Context, rawURL string) (models.RawProduct, error) {
	workURL := rawURL
	if target := identity.GoTarget(rawURL); target != "" {
		workURL = target
	}

	finalURL := workURL
	id := identity.MLIDFromURL(workURL)
	page, pageErr := m.fetcher.Fetch(ctx, m.Name(), workURL)
	if pageErr == nil {
		finalURL = page.URL
		if fromFinal := identity.MLIDFromURL(page.URL); fromFinal != "" {
			id = fromFinal
		} else if id == "" {
			id = identity.MLIDFromHTML(page.HTML)
		}
	}
	if id == "" {
		if pageErr != nil {
			return models.RawProduct{}, pageErr
		}
		return models.RawProduct{}, ErrNoListingID
	}

	var item mlItem
	apiErr := m.fetcher.GetJSON(ctx, m.Name(), m.apiBase+"/items/"+id+"?include_attributes=all", &item)
	if apiErr == nil {
		return m.fromAPI(item, id, finalURL), nil
	}
	m.logger.Warn("mercadolivre api failed, using page html", "id", id, "err", apiErr)

	if pageErr != nil {
		return models.RawProduct{}, pageErr
	}
	return m.fromHTML(page.HTML, id, finalURL)
}

func (m *MercadoLivre) fromAPI(item mlItem, id, finalURL string) models.RawProduct {
	active := item.Status == "active"

	var v float64
	var ok bool
	if active && item.Price != nil {
		v, ok = price.FromNumber(*item.Price)
	}
	if active {
		now := m.now()
		best := 0.0
		for _, p := range item.Prices.Prices {
			if p.Type != "promotion" || p.Amount <= 0 || !inWindow(now, p.Conditions.StartTime, p.Conditions.EndTime) {
				continue
			}
			if best == 0 || p.Amount < best {
				best = p.Amount
			}
		}
		if best > 0 {
			if pv, pok := price.FromNumber(best); pok {
				v, ok = pv, true
			}
		}
	}

	var brand, gtin, model string
	for _, a := range item.Attributes {
		switch {
		case brand == "" && mlBrandAttr.MatchString(a.ID+" "+a.Name):
			brand = a.ValueName
		case gtin == "" && mlGTINAttr.MatchString(a.ID+" "+a.Name):
			gtin = identity.DigitsOnly(a.ValueName)
		case model == "" && mlModelAttr.MatchString(a.ID+" "+a.Name):
			model = a.ValueName
		}
	}

	image := item.Thumbnail
	if len(item.Pictures) > 0 {
		image = orDefault(item.Pictures[0].SecureURL, item.Pictures[0].URL)
	}

	return models.NewRawProduct(
		finalURL,
		identity.Domain(finalURL),
		orDefault(item.Title, "Produto Mercado Livre"),
		image,
		price.Ptr(v, ok),
		canonical(gtin, id, "", brand, model),
	)
}

func (m *MercadoLivre) fromHTML(htmlContent, id, finalURL string) (models.RawProduct, error) {
	doc, err := parseDoc(htmlContent)
	if err != nil {
		return models.RawProduct{}, err
	}

	v, ok := 0.0, false
	for _, p := range extractJSONLD(htmlContent) {
		if v, ok = p.Price(offerFilter{}); ok {
			break
		}
	}

	table := specTable(doc)
	gtin := lookup(table, "EAN", "Código de barras", "GTIN")
	if gtin == "" {
		if mm := mlEANText.FindStringSubmatch(visibleText(doc)); mm != nil {
			gtin = mm[1]
		}
	}

	title := orDefault(firstText(doc, "h1"), meta(doc, "og:title"))
	return models.NewRawProduct(
		finalURL,
		identity.Domain(finalURL),
		orDefault(title, "Produto Mercado Livre"),
		meta(doc, "og:image"),
		price.Ptr(v, ok),
		canonical(gtin, id, "", lookup(table, "Marca"), lookup(table, "Modelo")),
	), nil
}

// inWindow reports whether now falls inside [start, end]. Empty bounds are
// open; unparsable bounds exclude the promotion.
func inWindow(now time.Time, start, end string) bool {
	if start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil || now.Before(t) {
			return false
		}
	}
	if end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil || now.After(t) {
			return false
		}
	}
	return true
}
