// Package store persists ingested products, their price history and the
// market snapshots taken for them.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lukman83/pricealert/internal/models"
)

var (
	// ErrNotFound is returned by lookups that match no product.
	ErrNotFound = errors.New("store: product not found")
	// ErrDuplicateURL is returned by Create when a product with the same
	// source URL already exists.
	ErrDuplicateURL = errors.New("store: duplicate source url")
)

// Canonical identifier fields accepted by FindByCanonical.
const (
	FieldGTIN          = "gtin"
	FieldMarketplaceID = "marketplace_id"
	FieldMPN           = "mpn"
)

// Store is the persistence collaborator of the ingest pipeline.
type Store interface {
	FindByURL(ctx context.Context, sourceURL string) (*models.Product, error)
	FindByCanonical(ctx context.Context, field, value string) (*models.Product, error)
	// Create inserts p and returns its new ID.
	Create(ctx context.Context, p *models.Product) (int64, error)
	UpdateLatestPrice(ctx context.Context, id int64, price float64, at time.Time) error
	AppendPricePoint(ctx context.Context, pp models.PricePoint) error
	AppendMarketItems(ctx context.Context, productID int64, snapshotID string, items []models.MarketItem) error
	// PriceHistory returns the newest limit points, newest first. limit <= 0
	// returns everything.
	PriceHistory(ctx context.Context, productID int64, limit int) ([]models.PricePoint, error)
	Close() error
}

// Backends accepted by Open.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Open returns the backend named by backend. Postgres connects to dsn and
// applies the schema.
func Open(ctx context.Context, backend, dsn string) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendPostgres:
		if dsn == "" {
			return nil, errors.New("store: postgres backend needs DATABASE_URL")
		}
		pg, err := NewPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q (expected memory or postgres)", backend)
	}
}

func checkField(field string) error {
	switch field {
	case FieldGTIN, FieldMarketplaceID, FieldMPN:
		return nil
	}
	return fmt.Errorf("store: unsupported canonical field %q", field)
}
