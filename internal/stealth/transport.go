package stealth

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxCrawlDelay caps the Crawl-delay honoured per host.
const maxCrawlDelay = 10 * time.Second

// Transport is an http.RoundTripper that dresses each request as a browser
// and paces it before sending:
// Fingerprint → RobotsCheck → CrawlDelay → RateLimiter → HumanDelay → Proxy → Send.
// Every stage except the fingerprint is optional. A Crawl-delay from
// robots.txt spaces requests to the same host, capped at maxCrawlDelay.
type Transport struct {
	Base        http.RoundTripper
	Robots      *RobotsChecker
	Fingerprint *FingerprintPool
	Proxy       *ProxyRotator
	Delay       *HumanDelay
	RateLimiter *rate.Limiter

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())

	fp := t.fingerprint().Next()
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", fp.UserAgent)
	}
	for key, vals := range fp.Headers {
		if req.Header.Get(key) == "" {
			for _, v := range vals {
				req.Header.Add(key, v)
			}
		}
	}

	if t.Robots != nil {
		allowed, err := t.Robots.IsAllowed(req.Context(), req.Header.Get("User-Agent"), req.URL.String())
		if err == nil && !allowed {
			return nil, fmt.Errorf("%w: %s", ErrDisallowed, req.URL.Path)
		}

		origin := req.URL.Scheme + "://" + req.URL.Host
		if d := t.Robots.CrawlDelay(req.Context(), req.Header.Get("User-Agent"), origin); d > 0 {
			if err := t.hostLimiter(req.URL.Host, d).Wait(req.Context()); err != nil {
				return nil, fmt.Errorf("crawl delay: %w", err)
			}
		}
	}

	if t.RateLimiter != nil {
		if err := t.RateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	if err := t.Delay.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("delay: %w", err)
	}

	transport := t.Base
	if t.Proxy != nil {
		transport = t.Proxy.Next().Transport()
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return transport.RoundTrip(req)
}

// hostLimiter returns the limiter pacing host at one request per d.
func (t *Transport) hostLimiter(host string, d time.Duration) *rate.Limiter {
	d = min(d, maxCrawlDelay)
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hosts == nil {
		t.hosts = make(map[string]*rate.Limiter)
	}
	l, ok := t.hosts[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(d), 1)
		t.hosts[host] = l
	} else if l.Limit() != rate.Every(d) {
		l.SetLimit(rate.Every(d))
	}
	return l
}

var defaultFingerprints = NewFingerprintPool()

func (t *Transport) fingerprint() *FingerprintPool {
	if t.Fingerprint == nil {
		return defaultFingerprints
	}
	return t.Fingerprint
}
