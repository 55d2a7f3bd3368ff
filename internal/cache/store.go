package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lukman83/pricealert/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// Entry lifetimes per kind of cached data.
const (
	ProductRawTTL     = 24 * time.Hour
	MarketSnapshotTTL = time.Hour
	HTMLTTL           = time.Hour
)

// ProductRawKey is the key for an adapter result by input URL.
func ProductRawKey(url string) string { return "raw:" + url }

// MarketSnapshotKey is the key for an equivalence result by canonical key.
func MarketSnapshotKey(canonicalKey string) string { return "market:" + canonicalKey }

// HTMLKey is the key for a fetched page body.
func HTMLKey(url string) string { return "html:" + url }

// Store is a JSON-valued expiring cache shared by the orchestrators.
// Values are encoded on Set, so callers always get back their own copy.
type Store interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Memory is a process-local Store.
type Memory struct {
	ttl *TTL[[]byte]
}

// NewMemory creates an in-memory Store.
func NewMemory() *Memory {
	return &Memory{ttl: NewTTL[[]byte]()}
}

// TTL exposes the underlying map so the caller can run its sweeper.
func (m *Memory) TTL() *TTL[[]byte] { return m.ttl }

func (m *Memory) Get(_ context.Context, key string, dst any) (bool, error) {
	b, ok := m.ttl.Get(key)
	if !ok {
		metrics.CacheLookups.WithLabelValues("memory", "miss").Inc()
		return false, nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	metrics.CacheLookups.WithLabelValues("memory", "hit").Inc()
	return true, nil
}

func (m *Memory) Set(_ context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	m.ttl.Set(key, b, ttl)
	return nil
}

// Redis is a Store backed by a redis server, for sharing cached pages and
// snapshots between processes.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps client. Every key is prefixed with prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// DialRedis parses a redis:// URL and verifies the server answers.
func DialRedis(ctx context.Context, rawURL, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, prefix), nil
}

func (r *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheLookups.WithLabelValues("redis", "miss").Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	metrics.CacheLookups.WithLabelValues("redis", "hit").Inc()
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.prefix+key, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close releases the redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
