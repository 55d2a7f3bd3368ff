package ingest

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidURL is returned for input that is not an absolute http(s) URL.
var ErrInvalidURL = errors.New("ingest: invalid url")

// DefaultRedirectTimeout bounds redirect resolution.
const DefaultRedirectTimeout = 5 * time.Second

var trackingPrefixes = []string{"utm_", "mkt_", "camp", "aff"}

var trackingKeys = map[string]bool{
	"ref":    true,
	"tag":    true,
	"fbclid": true,
	"gclid":  true,
	"sc":     true,
	"s":      true,
	"psc":    true,
}

func isTracking(key string) bool {
	k := strings.ToLower(key)
	if trackingKeys[k] {
		return true
	}
	for _, p := range trackingPrefixes {
		if strings.HasPrefix(k, p) {
			return true
		}
	}
	return false
}

// NormalizeURL drops tracking parameters, the fragment, trailing slashes
// and a leading "www." so that the same page always maps to one string.
// Remaining query parameters are sorted by key.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", ErrInvalidURL
	}

	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""
	u.RawFragment = ""

	q := u.Query()
	for k := range q {
		if isTracking(k) {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()

	if p := strings.TrimRight(u.Path, "/"); p != "" {
		u.Path = p
		u.RawPath = ""
	} else {
		u.Path = "/"
		u.RawPath = ""
	}
	return u.String(), nil
}

// RedirectResolver follows redirects. *httputil.Fetcher satisfies it.
type RedirectResolver interface {
	FinalURL(ctx context.Context, rawURL string, timeout time.Duration) (string, error)
}

// ResolveRedirects returns the normalized landing URL of normalized. When
// resolution fails the input is returned unchanged.
func ResolveRedirects(ctx context.Context, r RedirectResolver, normalized string, timeout time.Duration) string {
	if r == nil {
		return normalized
	}
	if timeout <= 0 {
		timeout = DefaultRedirectTimeout
	}
	final, err := r.FinalURL(ctx, normalized, timeout)
	if err != nil {
		return normalized
	}
	out, err := NormalizeURL(final)
	if err != nil {
		return normalized
	}
	return out
}
