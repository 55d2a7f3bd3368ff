// Package equivalence finds the same product on other stores and returns
// their offers, cheapest first.
package equivalence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lukman83/pricealert/internal/cache"
	"github.com/lukman83/pricealert/internal/identity"
	"github.com/lukman83/pricealert/internal/match"
	"github.com/lukman83/pricealert/internal/metrics"
	"github.com/lukman83/pricealert/internal/models"
	"github.com/lukman83/pricealert/internal/pool"
	"github.com/lukman83/pricealert/internal/progress"
	"github.com/lukman83/pricealert/internal/search"
)

// Methods reported in Result.Method.
const (
	MethodCache    = "cache"
	MethodDisabled = "disabled"
	MethodNone     = "none"
)

// DefaultMaxResults applies when FindEquivalents is called with max <= 0.
const DefaultMaxResults = 8

// Options holds every threshold and budget of a resolution.
type Options struct {
	// Budget stops new candidates from starting once exceeded.
	Budget        time.Duration
	PerURLTimeout time.Duration
	AITimeout     time.Duration
	MaxCandidates int
	MinConfidence float64
	// PartialBelow marks results with fewer items as partial.
	PartialBelow int
	MaxRetries   int
	RetryBase    time.Duration
}

func DefaultOptions() Options {
	return Options{
		Budget:        8 * time.Second,
		PerURLTimeout: 3 * time.Second,
		AITimeout:     5 * time.Second,
		MaxCandidates: 12,
		MinConfidence: 0.7,
		PartialBelow:  3,
		MaxRetries:    pool.DefaultMaxRetries,
		RetryBase:     pool.DefaultRetryBase,
	}
}

// withDefaults fills zero fields from DefaultOptions. MaxRetries is taken
// as given: zero means no retry.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Budget <= 0 {
		o.Budget = d.Budget
	}
	if o.PerURLTimeout <= 0 {
		o.PerURLTimeout = d.PerURLTimeout
	}
	if o.AITimeout <= 0 {
		o.AITimeout = d.AITimeout
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = d.MaxCandidates
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = d.MinConfidence
	}
	if o.PartialBelow <= 0 {
		o.PartialBelow = d.PartialBelow
	}
	if o.RetryBase <= 0 {
		o.RetryBase = d.RetryBase
	}
	return o
}

// Extractor turns a candidate URL into a product. *adapters.Registry
// satisfies it.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (models.RawProduct, error)
}

// Providers are the search strategies in priority order. A nil AI or SERP
// provider means its credential is not configured; with both nil the
// resolver reports itself disabled.
type Providers struct {
	AI       search.Provider
	SERP     search.Provider
	Fallback search.Provider
}

// Result is the outcome of a resolution.
type Result struct {
	Items    []models.MarketItem `json:"items"`
	Partial  bool                `json:"partial"`
	Disabled bool                `json:"disabled,omitempty"`
	Method   string              `json:"method"`
}

// Resolver runs equivalence resolutions. It is safe for concurrent use.
type Resolver struct {
	extractor Extractor
	providers Providers
	cache     cache.Store
	pool      *pool.DomainPool
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// NewResolver wires a Resolver. store may be nil to disable snapshot
// caching; a nil pool gets the default per-domain cap. Zero option fields
// take their defaults.
func NewResolver(ext Extractor, providers Providers, store cache.Store, p *pool.DomainPool, opts Options, logger *slog.Logger) *Resolver {
	if p == nil {
		p = pool.New(0, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if providers.Fallback == nil {
		providers.Fallback = search.NewFallbackProvider()
	}
	return &Resolver{
		extractor: ext,
		providers: providers,
		cache:     store,
		pool:      p,
		opts:      opts.withDefaults(),
		logger:    logger,
		now:       time.Now,
	}
}

// Enabled reports whether at least one credentialed provider is configured.
func (r *Resolver) Enabled() bool {
	return r.providers.AI != nil || r.providers.SERP != nil
}

// FindEquivalents looks for offers of the product identified by canonical
// and title. Per-candidate failures never fail the call; the error return is
// reserved for a cancelled ctx.
func (r *Resolver) FindEquivalents(ctx context.Context, canonical models.CanonicalIDs, title string, maxResults int) (Result, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	key := cache.MarketSnapshotKey(canonical.Key())

	if items, ok := r.cached(ctx, key); ok {
		if len(items) > maxResults {
			items = items[:maxResults]
		}
		metrics.Equivalences.WithLabelValues(MethodCache).Inc()
		return Result{Items: items, Partial: len(items) < r.opts.PartialBelow, Method: MethodCache}, nil
	}

	if !r.Enabled() {
		metrics.Equivalences.WithLabelValues(MethodDisabled).Inc()
		return Result{Items: []models.MarketItem{}, Disabled: true, Method: MethodDisabled}, nil
	}

	start := r.now()
	log := r.logger.With("run_id", uuid.NewString())
	q := search.Query{Canonical: canonical, Title: title}
	found, method, err := search.Chain(ctx, log, q, r.providerList()...)
	if err != nil && ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	if method == "" {
		method = MethodNone
	}
	progress.Reportf(ctx, "%d candidate URLs via %s", len(found.URLs), method)

	items, err := r.collect(ctx, log, start, found.URLs, canonical, title, maxResults)
	if err != nil {
		return Result{}, err
	}

	items = match.DedupeSort(items)
	if len(items) > maxResults {
		items = items[:maxResults]
	}
	if len(items) > 0 && r.cache != nil {
		if err := r.cache.Set(ctx, key, items, cache.MarketSnapshotTTL); err != nil {
			log.Warn("market snapshot cache write failed", "key", key, "err", err)
		}
	}

	metrics.Equivalences.WithLabelValues(method).Inc()
	metrics.EquivalenceItems.Observe(float64(len(items)))
	log.Info("equivalents resolved",
		"method", method,
		"candidates", len(found.URLs),
		"items", len(items),
		"elapsed", r.now().Sub(start).Round(time.Millisecond),
	)
	return Result{Items: items, Partial: len(items) < r.opts.PartialBelow, Method: method}, nil
}

func (r *Resolver) cached(ctx context.Context, key string) ([]models.MarketItem, bool) {
	if r.cache == nil {
		return nil, false
	}
	var items []models.MarketItem
	ok, err := r.cache.Get(ctx, key, &items)
	if err != nil {
		r.logger.Warn("market snapshot cache read failed", "key", key, "err", err)
		return nil, false
	}
	return items, ok && len(items) > 0
}

func (r *Resolver) providerList() []search.Provider {
	var out []search.Provider
	if r.providers.AI != nil {
		out = append(out, timeoutProvider{Provider: r.providers.AI, d: r.opts.AITimeout})
	}
	if r.providers.SERP != nil {
		out = append(out, r.providers.SERP)
	}
	return append(out, r.providers.Fallback)
}

// collect processes candidates one at a time in provider order.
func (r *Resolver) collect(ctx context.Context, log *slog.Logger, start time.Time, urls []string, canonical models.CanonicalIDs, title string, maxResults int) ([]models.MarketItem, error) {
	if len(urls) > r.opts.MaxCandidates {
		urls = urls[:r.opts.MaxCandidates]
	}
	label := fmt.Sprintf("equivalent-url-%s", r.opts.PerURLTimeout)
	source := match.Subject{Canonical: canonical, Title: title}

	var items []models.MarketItem
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if seen[u] {
			continue
		}
		if r.now().Sub(start) > r.opts.Budget {
			log.Info("equivalence budget exhausted", "budget", r.opts.Budget, "accepted", len(items))
			break
		}
		seen[u] = true

		item, err := pool.Run(ctx, r.pool, u, func(ctx context.Context) (*models.MarketItem, error) {
			return pool.WithRetry(ctx, func(ctx context.Context) (*models.MarketItem, error) {
				return pool.WithTimeout(ctx, r.opts.PerURLTimeout, label, func(ctx context.Context) (*models.MarketItem, error) {
					return r.candidate(ctx, u, source)
				})
			}, r.opts.MaxRetries, r.opts.RetryBase)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Debug("candidate failed", "url", u, "err", err)
			continue
		}
		if item == nil {
			continue
		}
		items = append(items, *item)
		progress.Reportf(ctx, "%s: %.2f", item.Domain, item.Price)
		if len(items) >= maxResults {
			break
		}
	}
	return items, nil
}

// candidate extracts u and returns an offer when it is the same product with
// a price, or nil when it is not.
func (r *Resolver) candidate(ctx context.Context, u string, source match.Subject) (*models.MarketItem, error) {
	raw, err := r.extractor.Extract(ctx, u)
	if err != nil {
		return nil, err
	}
	m := match.Match(source, match.Subject{Canonical: raw.Canonical, Title: raw.Title})
	if !m.IsMatch || m.Confidence < r.opts.MinConfidence || !raw.HasPrice() {
		return nil, nil
	}
	domain := identity.Domain(u)
	if domain == "" {
		domain = raw.Domain
	}
	return &models.MarketItem{
		Domain:      domain,
		URL:         u,
		Price:       raw.PriceValue(),
		Currency:    models.CurrencyBRL,
		Confidence:  m.Confidence,
		CollectedAt: r.now().UTC(),
	}, nil
}

// timeoutProvider bounds a provider call.
type timeoutProvider struct {
	search.Provider
	d time.Duration
}

func (p timeoutProvider) Search(ctx context.Context, q search.Query) (search.Result, error) {
	if p.d <= 0 {
		return p.Provider.Search(ctx, q)
	}
	ctx, cancel := context.WithTimeout(ctx, p.d)
	defer cancel()
	return p.Provider.Search(ctx, q)
}
