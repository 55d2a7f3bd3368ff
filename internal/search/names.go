package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/lukman83/pricealert/internal/adapters"
	"github.com/lukman83/pricealert/internal/httputil"
	"github.com/lukman83/pricealert/internal/models"
	"github.com/lukman83/pricealert/internal/pool"
	"github.com/lukman83/pricealert/internal/progress"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultNameResults     = 5
	DefaultNamePageTimeout = 10 * time.Second
	DefaultNameBudget      = 30 * time.Second

	nameSearchConcurrency = 5
	nameResultConfidence  = 0.9
)

// ErrEmptyQuery is returned by NameSearcher.Search for a blank query.
var ErrEmptyQuery = errors.New("search: empty query")

// ShoppingSource answers a name query with priced offers.
type ShoppingSource interface {
	Shopping(ctx context.Context, q Query, maxResults int) (Result, error)
}

// NameSearcher looks a product up by name and returns offers cheapest first.
// When Shopping is set its offers are used; otherwise, or when it fails or
// comes back empty, the first card of every store's search page is read.
type NameSearcher struct {
	fetcher *httputil.Fetcher
	pool    *pool.DomainPool
	logger  *slog.Logger

	PageTimeout time.Duration
	Budget      time.Duration
	// URLs builds the pages to read for a query.
	URLs     func(term string) []StoreURL
	Shopping ShoppingSource
}

func NewNameSearcher(fetcher *httputil.Fetcher, p *pool.DomainPool, logger *slog.Logger) *NameSearcher {
	if logger == nil {
		logger = slog.Default()
	}
	if p == nil {
		p = pool.New(0, 0)
	}
	return &NameSearcher{
		fetcher:     fetcher,
		pool:        p,
		logger:      logger,
		PageTimeout: DefaultNamePageTimeout,
		Budget:      DefaultNameBudget,
		URLs:        StoreSearchURLs,
	}
}

// Search returns at most maxResults products (DefaultNameResults when
// maxResults <= 0). Stores that fail or time out are left out; only a blank
// query or a cancelled ctx is an error.
func (s *NameSearcher) Search(ctx context.Context, query string, maxResults int) ([]models.ProductSearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if maxResults <= 0 {
		maxResults = DefaultNameResults
	}

	ctx, cancel := context.WithTimeout(ctx, s.Budget)
	defer cancel()

	if s.Shopping != nil {
		if items := s.shopping(ctx, query, maxResults); len(items) > 0 {
			return items, nil
		}
	}

	pages := s.URLs(query)
	found := make([]*models.ProductSearchResult, len(pages))
	label := "search-page-" + s.PageTimeout.String()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(nameSearchConcurrency)
	for i, page := range pages {
		g.Go(func() error {
			res, err := pool.Run(gctx, s.pool, page.URL, func(ctx context.Context) (models.ProductSearchResult, error) {
				return pool.WithTimeout(ctx, s.PageTimeout, label, func(ctx context.Context) (models.ProductSearchResult, error) {
					return adapters.FirstFromSearchPage(ctx, s.fetcher, page.URL)
				})
			})
			if err != nil {
				s.logger.Warn("search page failed", "store", page.Store, "url", page.URL, "err", err)
				return nil
			}
			res.Confidence = nameResultConfidence
			found[i] = &res
			progress.Reportf(ctx, "%s: %s", page.Store, res.Title)
			return nil
		})
	}
	// Jobs never return errors; only the budget can cut them short.
	_ = g.Wait()

	var out []models.ProductSearchResult
	for _, r := range found {
		if r != nil {
			out = append(out, *r)
		}
	}
	if len(out) == 0 {
		if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

func (s *NameSearcher) shopping(ctx context.Context, query string, maxResults int) []models.ProductSearchResult {
	ctx, cancel := context.WithTimeout(ctx, s.PageTimeout)
	defer cancel()

	res, err := s.Shopping.Shopping(ctx, Query{Text: query}, maxResults)
	if err != nil {
		if !errors.Is(err, ErrDisabled) {
			s.logger.Warn("shopping search failed, reading store pages", "query", query, "err", err)
		}
		return nil
	}
	for _, it := range res.Items {
		progress.Reportf(ctx, "%s: %s", it.Domain, it.Title)
	}
	return res.Items
}
