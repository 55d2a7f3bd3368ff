package models

import (
	"strings"
	"time"
)

// DataQuality tags how much of a product's identity was confirmed.
type DataQuality string

const (
	QualityVerified DataQuality = "verified"
	QualityPartial  DataQuality = "partial"
)

// CurrencyBRL is the only currency the stores in scope quote in.
const CurrencyBRL = "BRL"

// CanonicalIDs holds the durable identifiers of a product. Empty fields are absent.
type CanonicalIDs struct {
	GTIN          string `json:"gtin,omitempty"`
	MarketplaceID string `json:"marketplace_id,omitempty"`
	MPN           string `json:"mpn,omitempty"`
	Brand         string `json:"brand,omitempty"`
	Model         string `json:"model,omitempty"`
}

// HasDurableID reports whether a gtin or marketplace ID is present.
func (c CanonicalIDs) HasDurableID() bool {
	return c.GTIN != "" || c.MarketplaceID != ""
}

// IsZero reports whether no identifier is set.
func (c CanonicalIDs) IsZero() bool {
	return c == CanonicalIDs{}
}

// Key joins the identifying fields as gtin:marketplaceId:brand:model.
func (c CanonicalIDs) Key() string {
	return strings.Join([]string{c.GTIN, c.MarketplaceID, c.Brand, c.Model}, ":")
}

// RawProduct is what an adapter extracted from one product page.
// Treat it as a value: the With* helpers return modified copies.
type RawProduct struct {
	SourceURL string       `json:"source_url"`
	Domain    string       `json:"domain"`
	Title     string       `json:"title"`
	ImageURL  string       `json:"image_url,omitempty"`
	Price     *float64     `json:"price"`
	Currency  string       `json:"currency"`
	Canonical CanonicalIDs `json:"canonical"`
	Quality   DataQuality  `json:"data_quality"`
}

// NewRawProduct builds a RawProduct and derives its quality tag from the identifiers.
func NewRawProduct(sourceURL, domain, title, imageURL string, price *float64, ids CanonicalIDs) RawProduct {
	return RawProduct{
		SourceURL: sourceURL,
		Domain:    domain,
		Title:     title,
		ImageURL:  imageURL,
		Price:     price,
		Currency:  CurrencyBRL,
		Canonical: ids,
		Quality:   qualityFor(ids),
	}
}

// WithCanonical returns a copy carrying ids, with the quality tag recomputed.
func (r RawProduct) WithCanonical(ids CanonicalIDs) RawProduct {
	r.Canonical = ids
	r.Quality = qualityFor(ids)
	if r.Price != nil {
		p := *r.Price
		r.Price = &p
	}
	return r
}

// HasPrice reports whether a positive price was extracted.
func (r RawProduct) HasPrice() bool {
	return r.Price != nil && *r.Price > 0
}

// PriceValue returns the price or 0 when absent.
func (r RawProduct) PriceValue() float64 {
	if r.Price == nil {
		return 0
	}
	return *r.Price
}

func qualityFor(ids CanonicalIDs) DataQuality {
	if ids.HasDurableID() {
		return QualityVerified
	}
	return QualityPartial
}

// MarketItem is one observed offer at one point in time.
type MarketItem struct {
	Domain      string    `json:"domain"`
	URL         string    `json:"url"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	Confidence  float64   `json:"confidence"`
	CollectedAt time.Time `json:"collected_at"`
}

// MatchResult is the outcome of comparing two listings.
type MatchResult struct {
	IsMatch    bool    `json:"is_match"`
	Confidence float64 `json:"confidence"`
}

// Product is the persisted canonical record.
type Product struct {
	ID              int64        `json:"id"`
	SourceURL       string       `json:"source_url"`
	Domain          string       `json:"domain"`
	Title           string       `json:"title"`
	ImageURL        string       `json:"image_url,omitempty"`
	Canonical       CanonicalIDs `json:"canonical"`
	LastPrice       *float64     `json:"last_price"`
	Currency        string       `json:"currency"`
	Quality         DataQuality  `json:"data_quality"`
	LastCollectedAt time.Time    `json:"last_collected_at"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// PricePoint is one entry of a product's price history.
type PricePoint struct {
	ProductID  int64     `json:"product_id"`
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	CapturedAt time.Time `json:"captured_at"`
}

// ProductSearchResult is a priced hit from a free-text product search.
type ProductSearchResult struct {
	Title      string  `json:"title"`
	Price      float64 `json:"price"`
	Currency   string  `json:"currency"`
	Domain     string  `json:"domain"`
	URL        string  `json:"url"`
	ImageURL   string  `json:"image_url,omitempty"`
	Confidence float64 `json:"confidence"`
}
