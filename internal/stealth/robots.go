package stealth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lukman83/pricealert/internal/cache"
	"github.com/temoto/robotstxt"
)

// ErrDisallowed is returned by the transport for paths robots.txt forbids.
var ErrDisallowed = errors.New("blocked by robots.txt")

const robotsTTL = time.Hour

// RobotsChecker fetches and caches robots.txt per origin.
type RobotsChecker struct {
	client  *http.Client
	rules   *cache.TTL[*robotstxt.RobotsData]
	enabled bool
}

// NewRobotsChecker creates a checker. client must not itself route through
// a checker, or every robots.txt fetch would recurse.
func NewRobotsChecker(client *http.Client, enabled bool) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &RobotsChecker{
		client:  client,
		rules:   cache.NewTTL[*robotstxt.RobotsData](),
		enabled: enabled,
	}
}

// IsAllowed reports whether userAgent may fetch rawURL. An unreachable or
// unparsable robots.txt allows everything.
func (r *RobotsChecker) IsAllowed(ctx context.Context, userAgent, rawURL string) (bool, error) {
	if r == nil || !r.enabled {
		return true, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, err
	}

	data, err := r.robots(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return true, nil
	}
	return data.FindGroup(userAgent).Test(u.EscapedPath()), nil
}

// CrawlDelay returns the Crawl-delay declared for userAgent at origin.
func (r *RobotsChecker) CrawlDelay(ctx context.Context, userAgent, origin string) time.Duration {
	if r == nil || !r.enabled {
		return 0
	}
	data, err := r.robots(ctx, origin)
	if err != nil {
		return 0
	}
	return data.FindGroup(userAgent).CrawlDelay
}

func (r *RobotsChecker) robots(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	if data, ok := r.rules.Get(origin); ok {
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}
	// FromStatusAndBytes treats 4xx as allow-all and 5xx as disallow-all.
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.rules.Set(origin, data, robotsTTL)
	return data, nil
}
