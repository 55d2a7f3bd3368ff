// Package ingest turns a product URL into a stored product with a price
// history, deduplicating by URL and by canonical identifier.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lukman83/pricealert/internal/cache"
	"github.com/lukman83/pricealert/internal/equivalence"
	"github.com/lukman83/pricealert/internal/metrics"
	"github.com/lukman83/pricealert/internal/models"
	"github.com/lukman83/pricealert/internal/pool"
	"github.com/lukman83/pricealert/internal/progress"
	"github.com/lukman83/pricealert/internal/store"
)

// DefaultTimeout bounds one extraction.
const DefaultTimeout = 12 * time.Second

// NoPriceError is returned when the page was read but carried no usable
// price.
type NoPriceError struct {
	Title  string
	Domain string
	URL    string
}

func (e *NoPriceError) Error() string {
	return fmt.Sprintf("no price extracted from %s (%s)", e.URL, e.Domain)
}

// FetchFailedError is returned when the product page could not be read.
type FetchFailedError struct {
	URL string
	Err error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch failed for %s: %v", e.URL, e.Err)
}

func (e *FetchFailedError) Unwrap() error { return e.Err }

// Extractor turns a URL into a product. *adapters.Registry satisfies it.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (models.RawProduct, error)
}

// EquivalenceFinder resolves cross-store offers. *equivalence.Resolver
// satisfies it.
type EquivalenceFinder interface {
	FindEquivalents(ctx context.Context, canonical models.CanonicalIDs, title string, maxResults int) (equivalence.Result, error)
}

// Config wires an Orchestrator. Extractor and Store are required.
type Config struct {
	Extractor Extractor
	Store     store.Store
	// Redirects, Cache and Finder are optional.
	Redirects RedirectResolver
	Cache     cache.Store
	Finder    EquivalenceFinder
	Logger    *slog.Logger

	Timeout         time.Duration
	RedirectTimeout time.Duration
}

// Result describes one ingestion. Existing is set when the product was
// already stored under the same URL or the same canonical identifier. Title
// and Canonical are filled from the stored product when nothing was
// extracted.
type Result struct {
	ProductID    int64               `json:"product_id"`
	URL          string              `json:"url"`
	Title        string              `json:"title"`
	Canonical    models.CanonicalIDs `json:"canonical"`
	Raw          models.RawProduct   `json:"raw"`
	Created      bool                `json:"created"`
	Existing     bool                `json:"existing"`
	PriceChanged bool                `json:"price_changed,omitempty"`
}

// Orchestrator runs ingestions. It is safe for concurrent use.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func New(cfg Config) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RedirectTimeout <= 0 {
		cfg.RedirectTimeout = DefaultRedirectTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, logger: logger, now: time.Now}
}

// Ingest stores the product behind rawURL, or refreshes the price of the
// product it duplicates.
func (o *Orchestrator) Ingest(ctx context.Context, rawURL string) (Result, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		metrics.Ingests.WithLabelValues("error").Inc()
		return Result{}, err
	}
	final := ResolveRedirects(ctx, o.cfg.Redirects, normalized, o.cfg.RedirectTimeout)
	log := o.logger.With("url", final)

	existing, err := o.cfg.Store.FindByURL(ctx, final)
	switch {
	case err == nil:
		metrics.Ingests.WithLabelValues("existing").Inc()
		log.Info("product already ingested", "product_id", existing.ID)
		return Result{
			ProductID: existing.ID,
			URL:       final,
			Title:     existing.Title,
			Canonical: existing.Canonical,
			Existing:  true,
		}, nil
	case !errors.Is(err, store.ErrNotFound):
		metrics.Ingests.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("lookup %s: %w", final, err)
	}

	raw, err := o.extract(ctx, rawURL, final)
	if err != nil {
		if ctx.Err() != nil {
			metrics.Ingests.WithLabelValues("error").Inc()
			return Result{}, ctx.Err()
		}
		metrics.Ingests.WithLabelValues("fetch_failed").Inc()
		return Result{}, &FetchFailedError{URL: final, Err: err}
	}
	if !raw.HasPrice() {
		metrics.Ingests.WithLabelValues("no_price").Inc()
		return Result{}, &NoPriceError{Title: raw.Title, Domain: raw.Domain, URL: final}
	}
	progress.Reportf(ctx, "%s: %.2f", raw.Domain, raw.PriceValue())

	res, outcome, err := o.persist(ctx, final, raw)
	if err != nil {
		metrics.Ingests.WithLabelValues("error").Inc()
		return Result{}, err
	}
	metrics.Ingests.WithLabelValues(outcome).Inc()
	log.Info("product ingested",
		"product_id", res.ProductID,
		"outcome", outcome,
		"price", raw.PriceValue(),
		"quality", raw.Quality,
	)
	return res, nil
}

// extract reads the raw cache by input URL, falling back to the adapters.
func (o *Orchestrator) extract(ctx context.Context, input, final string) (models.RawProduct, error) {
	key := cache.ProductRawKey(input)
	if o.cfg.Cache != nil {
		var raw models.RawProduct
		ok, err := o.cfg.Cache.Get(ctx, key, &raw)
		if err != nil {
			o.logger.Warn("raw product cache read failed", "key", key, "err", err)
		} else if ok {
			return raw, nil
		}
	}

	label := "ingest-" + o.cfg.Timeout.String()
	raw, err := pool.WithTimeout(ctx, o.cfg.Timeout, label, func(ctx context.Context) (models.RawProduct, error) {
		return o.cfg.Extractor.Extract(ctx, final)
	})
	if err != nil {
		return models.RawProduct{}, err
	}
	if o.cfg.Cache != nil {
		if err := o.cfg.Cache.Set(ctx, key, raw, cache.ProductRawTTL); err != nil {
			o.logger.Warn("raw product cache write failed", "key", key, "err", err)
		}
	}
	return raw, nil
}

func (o *Orchestrator) persist(ctx context.Context, final string, raw models.RawProduct) (Result, string, error) {
	now := o.now().UTC()
	price := raw.PriceValue()

	dup, err := o.findCanonical(ctx, raw.Canonical)
	if err != nil {
		return Result{}, "", err
	}
	if dup != nil {
		changed := dup.LastPrice == nil || *dup.LastPrice != price
		if err := o.cfg.Store.UpdateLatestPrice(ctx, dup.ID, price, now); err != nil {
			return Result{}, "", fmt.Errorf("update product %d: %w", dup.ID, err)
		}
		if changed {
			if err := o.appendPoint(ctx, dup.ID, price, now); err != nil {
				return Result{}, "", err
			}
		}
		outcome := "existing"
		if changed {
			outcome = "updated"
		}
		res := resultFor(dup.ID, final, raw)
		res.Existing, res.PriceChanged = true, changed
		return res, outcome, nil
	}

	p := &models.Product{
		SourceURL:       final,
		Domain:          raw.Domain,
		Title:           raw.Title,
		ImageURL:        raw.ImageURL,
		Canonical:       raw.Canonical,
		LastPrice:       &price,
		Currency:        models.CurrencyBRL,
		Quality:         raw.Quality,
		LastCollectedAt: now,
	}
	id, err := o.cfg.Store.Create(ctx, p)
	if errors.Is(err, store.ErrDuplicateURL) {
		// Lost a race with a concurrent ingestion of the same URL.
		winner, ferr := o.cfg.Store.FindByURL(ctx, final)
		if ferr != nil {
			return Result{}, "", fmt.Errorf("re-read %s: %w", final, ferr)
		}
		res := resultFor(winner.ID, final, raw)
		res.Existing = true
		return res, "existing", nil
	}
	if err != nil {
		return Result{}, "", fmt.Errorf("create product: %w", err)
	}
	if err := o.appendPoint(ctx, id, price, now); err != nil {
		return Result{}, "", err
	}
	res := resultFor(id, final, raw)
	res.Created = true
	return res, "created", nil
}

func resultFor(id int64, final string, raw models.RawProduct) Result {
	return Result{ProductID: id, URL: final, Title: raw.Title, Canonical: raw.Canonical, Raw: raw}
}

// findCanonical looks the product up by GTIN, then by marketplace id.
func (o *Orchestrator) findCanonical(ctx context.Context, ids models.CanonicalIDs) (*models.Product, error) {
	lookups := []struct{ field, value string }{
		{store.FieldGTIN, ids.GTIN},
		{store.FieldMarketplaceID, ids.MarketplaceID},
	}
	for _, l := range lookups {
		if l.value == "" {
			continue
		}
		p, err := o.cfg.Store.FindByCanonical(ctx, l.field, l.value)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("lookup %s %s: %w", l.field, l.value, err)
		}
	}
	return nil, nil
}

func (o *Orchestrator) appendPoint(ctx context.Context, id int64, price float64, at time.Time) error {
	err := o.cfg.Store.AppendPricePoint(ctx, models.PricePoint{
		ProductID:  id,
		Price:      price,
		Currency:   models.CurrencyBRL,
		CapturedAt: at,
	})
	if err != nil {
		return fmt.Errorf("append price point for %d: %w", id, err)
	}
	return nil
}

// Snapshot is a market snapshot stored for a product.
type Snapshot struct {
	ID string `json:"snapshot_id,omitempty"`
	equivalence.Result
}

// SnapshotMarket resolves the offers for a stored product and records them
// under a new snapshot id. Nothing is written when no offer was found.
func (o *Orchestrator) SnapshotMarket(ctx context.Context, productID int64, canonical models.CanonicalIDs, title string, maxResults int) (Snapshot, error) {
	if o.cfg.Finder == nil {
		return Snapshot{}, errors.New("ingest: no equivalence finder configured")
	}
	res, err := o.cfg.Finder.FindEquivalents(ctx, canonical, title, maxResults)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Result: res}
	if len(res.Items) == 0 {
		return snap, nil
	}
	snap.ID = uuid.NewString()
	if err := o.cfg.Store.AppendMarketItems(ctx, productID, snap.ID, res.Items); err != nil {
		return Snapshot{}, fmt.Errorf("store snapshot %s: %w", snap.ID, err)
	}
	o.logger.Info("market snapshot stored",
		"product_id", productID,
		"snapshot_id", snap.ID,
		"items", len(res.Items),
		"method", res.Method,
	)
	return snap, nil
}
