package store

import (
	"context"
	"sync"
	"time"

	"github.com/lukman83/pricealert/internal/models"
)

// MarketRecord is a stored market snapshot entry.
type MarketRecord struct {
	ProductID  int64
	SnapshotID string
	Item       models.MarketItem
}

// Memory keeps everything in process maps. It is used by the CLI when no
// database is configured, and by tests.
type Memory struct {
	mu       sync.RWMutex
	nextID   int64
	products map[int64]*models.Product
	byURL    map[string]int64
	points   map[int64][]models.PricePoint
	market   []MarketRecord
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		products: make(map[int64]*models.Product),
		byURL:    make(map[string]int64),
		points:   make(map[int64][]models.PricePoint),
		now:      time.Now,
	}
}

func (m *Memory) FindByURL(_ context.Context, sourceURL string) (*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byURL[sourceURL]
	if !ok {
		return nil, ErrNotFound
	}
	p := *m.products[id]
	return &p, nil
}

func (m *Memory) FindByCanonical(_ context.Context, field, value string) (*models.Product, error) {
	if err := checkField(field); err != nil {
		return nil, err
	}
	if value == "" {
		return nil, ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *models.Product
	for _, p := range m.products {
		if canonicalField(p.Canonical, field) != value {
			continue
		}
		// Oldest record wins, like ORDER BY id.
		if found == nil || p.ID < found.ID {
			found = p
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	p := *found
	return &p, nil
}

func canonicalField(c models.CanonicalIDs, field string) string {
	switch field {
	case FieldGTIN:
		return c.GTIN
	case FieldMarketplaceID:
		return c.MarketplaceID
	case FieldMPN:
		return c.MPN
	}
	return ""
}

func (m *Memory) Create(_ context.Context, p *models.Product) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.byURL[p.SourceURL]; dup {
		return 0, ErrDuplicateURL
	}

	m.nextID++
	now := m.now().UTC()
	cp := *p
	cp.ID = m.nextID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.products[cp.ID] = &cp
	m.byURL[cp.SourceURL] = cp.ID
	return cp.ID, nil
}

func (m *Memory) UpdateLatestPrice(_ context.Context, id int64, price float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return ErrNotFound
	}
	v := price
	p.LastPrice = &v
	p.LastCollectedAt = at
	p.UpdatedAt = m.now().UTC()
	return nil
}

func (m *Memory) AppendPricePoint(_ context.Context, pp models.PricePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[pp.ProductID]; !ok {
		return ErrNotFound
	}
	m.points[pp.ProductID] = append(m.points[pp.ProductID], pp)
	return nil
}

func (m *Memory) AppendMarketItems(_ context.Context, productID int64, snapshotID string, items []models.MarketItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[productID]; !ok {
		return ErrNotFound
	}
	for _, it := range items {
		m.market = append(m.market, MarketRecord{ProductID: productID, SnapshotID: snapshotID, Item: it})
	}
	return nil
}

func (m *Memory) PriceHistory(_ context.Context, productID int64, limit int) ([]models.PricePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pts := m.points[productID]

	out := make([]models.PricePoint, 0, len(pts))
	for i := len(pts) - 1; i >= 0; i-- {
		out = append(out, pts[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Market returns every stored snapshot entry of productID in insertion order.
func (m *Memory) Market(productID int64) []MarketRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []MarketRecord
	for _, r := range m.market {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	return out
}

func (m *Memory) Close() error { return nil }
