package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/lukman83/pricealert/internal/httputil"
	"github.com/lukman83/pricealert/internal/identity"
	"github.com/lukman83/pricealert/internal/metrics"
	"github.com/lukman83/pricealert/internal/models"
	"github.com/lukman83/pricealert/internal/price"
)

const (
	// DefaultSERPEndpoint is Serper's Google search API.
	DefaultSERPEndpoint = "https://google.serper.dev/search"
	// DefaultSERPShoppingEndpoint is Serper's Google Shopping API.
	DefaultSERPShoppingEndpoint = "https://google.serper.dev/shopping"
)

const (
	serpResultsPerQuery    = 12
	serpMaxURLs            = 12
	serpShoppingConfidence = 0.8
	serpSites              = "site:amazon.com.br OR site:mercadolivre.com.br OR site:magazineluiza.com.br OR site:kabum.com.br"
)

// SERPConfig configures SERPProvider. An empty APIKey disables it.
type SERPConfig struct {
	APIKey           string
	Endpoint         string
	ShoppingEndpoint string
	Client           *http.Client
	Logger           *slog.Logger
}

// SERPProvider runs identifier queries against Serper and keeps the organic
// links that point at supported stores. Shopping asks the engine's shopping
// mode instead, which answers with prices.
type SERPProvider struct {
	apiKey           string
	endpoint         string
	shoppingEndpoint string
	client           *http.Client
	logger           *slog.Logger
}

func NewSERPProvider(cfg SERPConfig) *SERPProvider {
	p := &SERPProvider{
		apiKey:           cfg.APIKey,
		endpoint:         cfg.Endpoint,
		shoppingEndpoint: cfg.ShoppingEndpoint,
		client:           cfg.Client,
		logger:           cfg.Logger,
	}
	if p.endpoint == "" {
		p.endpoint = DefaultSERPEndpoint
	}
	if p.shoppingEndpoint == "" {
		p.shoppingEndpoint = DefaultSERPShoppingEndpoint
	}
	if p.client == nil {
		p.client = httputil.NewHTTPClient(nil)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

func (p *SERPProvider) Name() string { return "serp" }

type serpRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
	GL  string `json:"gl"`
	HL  string `json:"hl"`
}

type serpResponse struct {
	Organic []struct {
		Title string `json:"title"`
		Link  string `json:"link"`
	} `json:"organic"`
}

type serpShoppingResponse struct {
	Shopping []struct {
		Title    string `json:"title"`
		Source   string `json:"source"`
		Link     string `json:"link"`
		Price    string `json:"price"`
		ImageURL string `json:"imageUrl"`
	} `json:"shopping"`
}

func (p *SERPProvider) Search(ctx context.Context, q Query) (Result, error) {
	if p.apiKey == "" {
		return Result{}, ErrDisabled
	}

	var urls []string
	seen := map[string]bool{}
	for _, query := range serpQueries(q) {
		links, err := p.query(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			p.logger.Warn("serp query failed", "query", query, "err", err)
			continue
		}
		for _, l := range links {
			if seen[l] || !IsAllowed(l) {
				continue
			}
			seen[l] = true
			urls = append(urls, l)
		}
		if len(urls) >= serpMaxURLs {
			urls = urls[:serpMaxURLs]
			break
		}
	}

	res := Result{URLs: urls}
	if len(urls) > 0 {
		res.Confidence = 0.7
	}
	return res, nil
}

// serpQueries lists the queries to run, strongest identifier first.
func serpQueries(q Query) []string {
	c := q.Canonical
	var out []string
	if c.GTIN != "" {
		out = append(out, fmt.Sprintf("%q (%s)", c.GTIN, serpSites))
	}
	if c.Brand != "" && c.Model != "" {
		out = append(out, fmt.Sprintf("%q (%s)", c.Brand+" "+c.Model, serpSites))
	}
	if c.MarketplaceID != "" && !strings.HasPrefix(strings.ToUpper(c.MarketplaceID), "ML") {
		out = append(out, fmt.Sprintf("%q site:amazon.com.br", c.MarketplaceID))
	}
	return out
}

func (p *SERPProvider) query(ctx context.Context, query string) ([]string, error) {
	var out serpResponse
	if err := p.post(ctx, p.endpoint, query, &out); err != nil {
		return nil, err
	}
	links := make([]string, 0, len(out.Organic))
	for _, o := range out.Organic {
		if o.Link != "" {
			links = append(links, o.Link)
		}
	}
	return links, nil
}

// Shopping runs q through the shopping mode and returns up to maxResults
// priced offers from supported stores in Items, cheapest first. URLs lists
// the same offers' links. Offers without a parsable BRL price are dropped.
func (p *SERPProvider) Shopping(ctx context.Context, q Query, maxResults int) (Result, error) {
	if p.apiKey == "" {
		return Result{}, ErrDisabled
	}
	term := Term(q)
	if term == "" {
		return Result{}, nil
	}

	var out serpShoppingResponse
	if err := p.post(ctx, p.shoppingEndpoint, term, &out); err != nil {
		metrics.ProviderCalls.WithLabelValues("serp-shopping", "error").Inc()
		return Result{}, err
	}

	var items []models.ProductSearchResult
	seen := map[string]bool{}
	for _, o := range out.Shopping {
		if seen[o.Link] || !IsAllowed(o.Link) {
			continue
		}
		v, ok := price.Parse(o.Price)
		if !ok {
			continue
		}
		seen[o.Link] = true
		items = append(items, models.ProductSearchResult{
			Title:      strings.TrimSpace(o.Title),
			Price:      v,
			Currency:   "BRL",
			Domain:     identity.Domain(o.Link),
			URL:        o.Link,
			ImageURL:   o.ImageURL,
			Confidence: serpShoppingConfidence,
		})
	}
	if len(items) == 0 {
		metrics.ProviderCalls.WithLabelValues("serp-shopping", "empty").Inc()
		return Result{}, nil
	}
	metrics.ProviderCalls.WithLabelValues("serp-shopping", "items").Inc()

	sort.SliceStable(items, func(i, j int) bool { return items[i].Price < items[j].Price })
	if maxResults > 0 && len(items) > maxResults {
		items = items[:maxResults]
	}
	res := Result{Items: items, Confidence: serpShoppingConfidence}
	for _, it := range items {
		res.URLs = append(res.URLs, it.URL)
	}
	return res, nil
}

// post sends one Serper query to endpoint and decodes the JSON answer into out.
func (p *SERPProvider) post(ctx context.Context, endpoint, query string, out any) error {
	body, err := json.Marshal(serpRequest{Q: query, Num: serpResultsPerQuery, GL: "br", HL: "pt-br"})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("X-API-KEY", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httputil.DoWithRetry(p.client, req, 1)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &httputil.FetchError{URL: endpoint, Status: resp.StatusCode}
	}
	raw, err := httputil.ReadBody(resp)
	if err != nil {
		return fmt.Errorf("read serp body: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode serp response: %w", err)
	}
	return nil
}
