package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lukman83/pricealert/internal/cache"
	"github.com/lukman83/pricealert/internal/metrics"
)

// DefaultFetchTimeout bounds a single page fetch.
const DefaultFetchTimeout = 6 * time.Second

// Page is a fetched document.
type Page struct {
	// URL is the final URL after redirects.
	URL    string `json:"url"`
	Status int    `json:"status"`
	HTML   string `json:"html"`
}

// Fetcher performs browser-like GETs with a per-fetch deadline. It never
// retries; callers that want retries wrap it with pool.WithRetry.
type Fetcher struct {
	Client  *http.Client
	Timeout time.Duration
	// Cache, when set, keeps 2xx pages for cache.HTMLTTL.
	Cache  cache.Store
	Logger *slog.Logger
}

// NewFetcher creates a Fetcher over client with the default timeout.
func NewFetcher(client *http.Client, store cache.Store, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = NewHTTPClient(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{Client: client, Timeout: DefaultFetchTimeout, Cache: store, Logger: logger}
}

// Fetch GETs rawURL on behalf of store (used for timeout labels and
// metrics). A non-2xx status returns *FetchError with Status set; running
// out of time returns *FetchError{Timeout: true} labelled
// "<store>-fetch-<timeout>".
func (f *Fetcher) Fetch(ctx context.Context, store, rawURL string) (*Page, error) {
	if f.Cache != nil {
		var p Page
		ok, err := f.Cache.Get(ctx, cache.HTMLKey(rawURL), &p)
		if err != nil {
			f.logger().Warn("html cache read failed", "url", rawURL, "err", err)
		}
		if ok {
			return &p, nil
		}
	}

	timeout := f.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	req.Header = BrowserHeaders()

	start := time.Now()
	page, err := f.do(req)
	metrics.FetchDuration.WithLabelValues(store).Observe(time.Since(start).Seconds())
	if err != nil {
		err = classify(ctx, err, rawURL, fmt.Sprintf("%s-fetch-%s", store, timeout))
		metrics.Fetches.WithLabelValues(store, outcome(err)).Inc()
		return nil, err
	}
	metrics.Fetches.WithLabelValues(store, "ok").Inc()

	if f.Cache != nil {
		if err := f.Cache.Set(ctx, cache.HTMLKey(rawURL), page, cache.HTMLTTL); err != nil {
			f.logger().Warn("html cache write failed", "url", rawURL, "err", err)
		}
	}
	return page, nil
}

func (f *Fetcher) do(req *http.Request) (*Page, error) {
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: req.URL.String(), Status: resp.StatusCode}
	}
	body, err := ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Page{URL: resp.Request.URL.String(), Status: resp.StatusCode, HTML: string(body)}, nil
}

// GetJSON GETs rawURL and decodes a 2xx JSON body into dst.
func (f *Fetcher) GetJSON(ctx context.Context, store, rawURL string, dst any) error {
	timeout := f.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &FetchError{URL: rawURL, Err: err}
	}
	req.Header = JSONHeaders()

	resp, err := f.Client.Do(req)
	if err != nil {
		return classify(ctx, err, rawURL, fmt.Sprintf("%s-api-%s", store, timeout))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FetchError{URL: rawURL, Status: resp.StatusCode}
	}
	body, err := ReadBody(resp)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// FinalURL follows redirects with a HEAD request and returns where they
// end. Servers that reject HEAD are retried with GET.
func (f *Fetcher) FinalURL(ctx context.Context, rawURL string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, method := range []string{http.MethodHead, http.MethodGet} {
		req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
		if err != nil {
			return "", &FetchError{URL: rawURL, Err: err}
		}
		req.Header = BrowserHeaders()
		resp, err := f.Client.Do(req)
		if err != nil {
			return "", classify(ctx, err, rawURL, "redirect-"+timeout.String())
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
			continue
		}
		return resp.Request.URL.String(), nil
	}
	return "", &FetchError{URL: rawURL, Status: http.StatusMethodNotAllowed}
}

func (f *Fetcher) timeout() time.Duration {
	if f.Timeout <= 0 {
		return DefaultFetchTimeout
	}
	return f.Timeout
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

// classify turns a transport error into a *FetchError. A deadline on ctx
// becomes a labelled timeout.
func classify(ctx context.Context, err error, rawURL, label string) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{URL: rawURL, Timeout: true, Label: label, Err: err}
	}
	return &FetchError{URL: rawURL, Err: err}
}

func outcome(err error) string {
	var fe *FetchError
	switch {
	case errors.As(err, &fe) && fe.Timeout:
		return "timeout"
	case errors.As(err, &fe) && fe.Status != 0:
		return "http_error"
	}
	return "error"
}
