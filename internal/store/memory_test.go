package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lukman83/pricealert/internal/models"
)

func newProduct(url, gtin string) *models.Product {
	price := 100.0
	return &models.Product{
		SourceURL: url,
		Domain:    "kabum.com.br",
		Title:     "Mouse",
		Canonical: models.CanonicalIDs{GTIN: gtin},
		LastPrice: &price,
		Currency:  models.CurrencyBRL,
		Quality:   models.QualityVerified,
	}
}

func TestMemoryCreateAndFind(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.Create(ctx, newProduct("https://kabum.com.br/produto/1", "7891234567895"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != 1 {
		t.Errorf("expected first id 1, got %d", id)
	}

	got, err := m.FindByURL(ctx, "https://kabum.com.br/produto/1")
	if err != nil || got.ID != id || got.CreatedAt.IsZero() {
		t.Fatalf("find by url: %+v %v", got, err)
	}
	got.Title = "mutated"
	again, _ := m.FindByURL(ctx, "https://kabum.com.br/produto/1")
	if again.Title != "Mouse" {
		t.Error("expected FindByURL to return a copy")
	}

	if _, err := m.FindByCanonical(ctx, FieldGTIN, "7891234567895"); err != nil {
		t.Errorf("find by gtin: %v", err)
	}
	if _, err := m.FindByCanonical(ctx, FieldMarketplaceID, "MLB1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.FindByCanonical(ctx, FieldGTIN, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected empty value to match nothing, got %v", err)
	}
	if _, err := m.FindByCanonical(ctx, "title", "Mouse"); err == nil {
		t.Error("expected unsupported field error")
	}
	if _, err := m.FindByURL(ctx, "https://nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryDuplicateURL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.Create(ctx, newProduct("https://a/1", "")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create(ctx, newProduct("https://a/1", "")); !errors.Is(err, ErrDuplicateURL) {
		t.Errorf("expected ErrDuplicateURL, got %v", err)
	}
}

func TestMemoryConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created, dups := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Create(ctx, newProduct("https://a/same", ""))
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrDuplicateURL) {
				dups++
			} else if err == nil {
				created++
			}
		}()
	}
	wg.Wait()
	if created != 1 || dups != 19 {
		t.Errorf("expected 1 create and 19 duplicates, got %d/%d", created, dups)
	}
}

func TestMemoryPricesAndMarket(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, _ := m.Create(ctx, newProduct("https://a/1", ""))

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, p := range []float64{100, 95, 90} {
		if err := m.AppendPricePoint(ctx, models.PricePoint{ProductID: id, Price: p, Currency: models.CurrencyBRL, CapturedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.UpdateLatestPrice(ctx, id, 90, base.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}

	hist, _ := m.PriceHistory(ctx, id, 2)
	if len(hist) != 2 || hist[0].Price != 90 || hist[1].Price != 95 {
		t.Errorf("expected newest two points first, got %+v", hist)
	}
	p, _ := m.FindByURL(ctx, "https://a/1")
	if p.LastPrice == nil || *p.LastPrice != 90 {
		t.Errorf("expected last price 90, got %v", p.LastPrice)
	}

	items := []models.MarketItem{{Domain: "b.com.br", Price: 80}, {Domain: "c.com.br", Price: 85}}
	if err := m.AppendMarketItems(ctx, id, "snap-1", items); err != nil {
		t.Fatal(err)
	}
	if got := m.Market(id); len(got) != 2 || got[0].SnapshotID != "snap-1" || got[1].Item.Domain != "c.com.br" {
		t.Errorf("unexpected market records %+v", got)
	}

	if err := m.UpdateLatestPrice(ctx, 99, 1, base); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown product, got %v", err)
	}
	if err := m.AppendMarketItems(ctx, 99, "x", items); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown product, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), "", "")
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("expected memory backend, got %T", s)
	}
	if _, err := Open(context.Background(), BackendPostgres, ""); err == nil {
		t.Error("expected error without dsn")
	}
	if _, err := Open(context.Background(), "sqlite", ""); err == nil {
		t.Error("expected unknown backend error")
	}
}
