package stealth

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
)

// ProxyProvider is one egress route.
type ProxyProvider interface {
	Transport() http.RoundTripper
	Name() string
}

// ProxyRotator cycles through providers round-robin.
type ProxyRotator struct {
	mu        sync.Mutex
	providers []ProxyProvider
	idx       int
}

// NewProxyRotator returns nil when providers is empty, which the transport
// treats as "no proxy".
func NewProxyRotator(providers []ProxyProvider) *ProxyRotator {
	if len(providers) == 0 {
		return nil
	}
	return &ProxyRotator{providers: providers}
}

// Next returns the next provider.
func (p *ProxyRotator) Next() ProxyProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	provider := p.providers[p.idx%len(p.providers)]
	p.idx++
	return provider
}

// DirectProvider sends traffic without a proxy. Mixing it into a rotator
// lets part of the traffic leave from the host's own address.
type DirectProvider struct {
	transport http.RoundTripper
}

// NewDirectProvider wraps base, or http.DefaultTransport when base is nil.
func NewDirectProvider(base http.RoundTripper) *DirectProvider {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DirectProvider{transport: base}
}

func (d *DirectProvider) Transport() http.RoundTripper { return d.transport }
func (d *DirectProvider) Name() string                 { return "direct" }

// HTTPProxyProvider routes through an http, https or socks5 proxy URL.
type HTTPProxyProvider struct {
	proxyURL  *url.URL
	transport *http.Transport
}

// NewHTTPProxyProvider validates rawURL and builds the proxied transport.
func NewHTTPProxyProvider(rawURL string) (*HTTPProxyProvider, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("proxy %q: unsupported scheme %q", u.Redacted(), u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy %q: missing host", u.Redacted())
	}
	return &HTTPProxyProvider{
		proxyURL: u,
		transport: &http.Transport{
			Proxy: http.ProxyURL(u),
			// Rotating residential gateways hand out a new exit per connection.
			DisableKeepAlives: true,
		},
	}, nil
}

func (h *HTTPProxyProvider) Transport() http.RoundTripper { return h.transport }

// Name is the proxy URL with the password masked.
func (h *HTTPProxyProvider) Name() string { return h.proxyURL.Redacted() }

// ParseProxies builds providers from a comma or newline separated list.
// The literal entry "direct" adds a DirectProvider.
func ParseProxies(list string, base http.RoundTripper) ([]ProxyProvider, error) {
	var providers []ProxyProvider
	for _, entry := range strings.FieldsFunc(list, func(r rune) bool { return r == ',' || r == '\n' }) {
		entry = strings.TrimSpace(entry)
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		if entry == "direct" {
			providers = append(providers, NewDirectProvider(base))
			continue
		}
		p, err := NewHTTPProxyProvider(entry)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// LoadProxyFile reads one proxy URL per line. Blank lines and lines starting
// with # are skipped.
func LoadProxyFile(path string, base http.RoundTripper) ([]ProxyProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open proxy file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read proxy file: %w", err)
	}
	return ParseProxies(strings.Join(lines, "\n"), base)
}
