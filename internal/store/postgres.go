package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lukman83/pricealert/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id                BIGSERIAL PRIMARY KEY,
	source_url        TEXT NOT NULL,
	domain            TEXT NOT NULL,
	title             TEXT NOT NULL,
	image_url         TEXT NOT NULL DEFAULT '',
	gtin              TEXT NOT NULL DEFAULT '',
	marketplace_id    TEXT NOT NULL DEFAULT '',
	mpn               TEXT NOT NULL DEFAULT '',
	brand             TEXT NOT NULL DEFAULT '',
	model             TEXT NOT NULL DEFAULT '',
	last_price        NUMERIC(12,2),
	currency          TEXT NOT NULL DEFAULT 'BRL',
	data_quality      TEXT NOT NULL,
	last_collected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT products_source_url_key UNIQUE (source_url)
);
CREATE INDEX IF NOT EXISTS products_gtin_idx ON products (gtin) WHERE gtin <> '';
CREATE INDEX IF NOT EXISTS products_marketplace_id_idx ON products (marketplace_id) WHERE marketplace_id <> '';

CREATE TABLE IF NOT EXISTS price_points (
	id          BIGSERIAL PRIMARY KEY,
	product_id  BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	price       NUMERIC(12,2) NOT NULL,
	currency    TEXT NOT NULL DEFAULT 'BRL',
	captured_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS price_points_product_idx ON price_points (product_id, captured_at DESC);

CREATE TABLE IF NOT EXISTS market_prices (
	id           BIGSERIAL PRIMARY KEY,
	product_id   BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	snapshot_id  UUID NOT NULL,
	domain       TEXT NOT NULL,
	url          TEXT NOT NULL,
	price        NUMERIC(12,2) NOT NULL,
	currency     TEXT NOT NULL DEFAULT 'BRL',
	confidence   DOUBLE PRECISION NOT NULL,
	collected_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS market_prices_product_idx ON market_prices (product_id, collected_at DESC);
`

const productColumns = `id, source_url, domain, title, image_url, gtin, marketplace_id, mpn, brand, model,
	last_price::float8, currency, data_quality, last_collected_at, created_at, updated_at`

// Postgres is a Store over a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn. Call Migrate before first use on an empty
// database.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Migrate creates the tables if they do not exist.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Postgres) FindByURL(ctx context.Context, sourceURL string) (*models.Product, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE source_url = $1`, sourceURL)
	return scanProduct(row)
}

func (s *Postgres) FindByCanonical(ctx context.Context, field, value string) (*models.Product, error) {
	if err := checkField(field); err != nil {
		return nil, err
	}
	if value == "" {
		return nil, ErrNotFound
	}
	// field is one of the whitelisted column names above.
	row := s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE `+field+` = $1 ORDER BY id LIMIT 1`, value)
	return scanProduct(row)
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	var quality string
	err := row.Scan(
		&p.ID, &p.SourceURL, &p.Domain, &p.Title, &p.ImageURL,
		&p.Canonical.GTIN, &p.Canonical.MarketplaceID, &p.Canonical.MPN, &p.Canonical.Brand, &p.Canonical.Model,
		&p.LastPrice, &p.Currency, &quality, &p.LastCollectedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan product: %w", err)
	}
	p.Quality = models.DataQuality(quality)
	return &p, nil
}

func (s *Postgres) Create(ctx context.Context, p *models.Product) (int64, error) {
	collected := p.LastCollectedAt
	if collected.IsZero() {
		collected = time.Now().UTC()
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO products (source_url, domain, title, image_url, gtin, marketplace_id, mpn, brand, model,
			last_price, currency, data_quality, last_collected_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id`,
		p.SourceURL, p.Domain, p.Title, p.ImageURL,
		p.Canonical.GTIN, p.Canonical.MarketplaceID, p.Canonical.MPN, p.Canonical.Brand, p.Canonical.Model,
		p.LastPrice, p.Currency, string(p.Quality), collected,
	).Scan(&id)
	if isUniqueViolation(err, "products_source_url_key") {
		return 0, ErrDuplicateURL
	}
	if err != nil {
		return 0, fmt.Errorf("insert product: %w", err)
	}
	return id, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

func (s *Postgres) UpdateLatestPrice(ctx context.Context, id int64, price float64, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET last_price = $2, last_collected_at = $3, updated_at = now() WHERE id = $1`,
		id, price, at)
	if err != nil {
		return fmt.Errorf("update price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) AppendPricePoint(ctx context.Context, pp models.PricePoint) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO price_points (product_id, price, currency, captured_at) VALUES ($1,$2,$3,$4)`,
		pp.ProductID, pp.Price, pp.Currency, pp.CapturedAt)
	if err != nil {
		return fmt.Errorf("insert price point: %w", err)
	}
	return nil
}

// AppendMarketItems writes a snapshot in one round trip.
func (s *Postgres) AppendMarketItems(ctx context.Context, productID int64, snapshotID string, items []models.MarketItem) error {
	if len(items) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, it := range items {
		b.Queue(`
			INSERT INTO market_prices (product_id, snapshot_id, domain, url, price, currency, confidence, collected_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			productID, snapshotID, it.Domain, it.URL, it.Price, it.Currency, it.Confidence, it.CollectedAt,
		)
	}
	br := s.pool.SendBatch(ctx, b)
	for range items {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert market item: %w", err)
		}
	}
	return br.Close()
}

func (s *Postgres) PriceHistory(ctx context.Context, productID int64, limit int) ([]models.PricePoint, error) {
	q := `SELECT product_id, price::float8, currency, captured_at FROM price_points
		WHERE product_id = $1 ORDER BY captured_at DESC, id DESC`
	args := []any{productID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	defer rows.Close()

	var out []models.PricePoint
	for rows.Next() {
		var pp models.PricePoint
		if err := rows.Scan(&pp.ProductID, &pp.Price, &pp.Currency, &pp.CapturedAt); err != nil {
			return nil, fmt.Errorf("scan price point: %w", err)
		}
		out = append(out, pp)
	}
	return out, rows.Err()
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
