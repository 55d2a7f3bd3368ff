package stealth

import (
	"net/http"
	"sync"
)

// acceptLanguage is sent on every request. Brazilian stores localize prices
// and sometimes hide the buy box for other locales.
const acceptLanguage = "pt-BR,pt;q=0.9,en-US;q=0.7,en;q=0.6"

// Fingerprint is a browser identity: a User-Agent plus the headers that
// browser would send with it.
type Fingerprint struct {
	UserAgent string
	Headers   http.Header
}

// FingerprintPool hands out fingerprints round-robin.
type FingerprintPool struct {
	mu           sync.Mutex
	fingerprints []Fingerprint
	idx          int
}

// NewFingerprintPool creates a pool over fps, or over the built-in desktop
// browsers when fps is empty.
func NewFingerprintPool(fps ...Fingerprint) *FingerprintPool {
	if len(fps) == 0 {
		fps = desktopFingerprints()
	}
	return &FingerprintPool{fingerprints: fps}
}

// Next returns the next fingerprint.
func (fp *FingerprintPool) Next() Fingerprint {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	f := fp.fingerprints[fp.idx%len(fp.fingerprints)]
	fp.idx++
	return f
}

// Len returns the number of fingerprints in the pool.
func (fp *FingerprintPool) Len() int {
	return len(fp.fingerprints)
}

func desktopFingerprints() []Fingerprint {
	return []Fingerprint{
		{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
			Headers:   chromiumHeaders("Google Chrome", "138", "Windows"),
		},
		{
			UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
			Headers:   chromiumHeaders("Google Chrome", "138", "macOS"),
		},
		{
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36",
			Headers:   chromiumHeaders("Google Chrome", "137", "Linux"),
		},
		{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36 Edg/138.0.0.0",
			Headers:   chromiumHeaders("Microsoft Edge", "138", "Windows"),
		},
		{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:140.0) Gecko/20100101 Firefox/140.0",
			Headers:   geckoHeaders(),
		},
		{
			UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.5 Safari/605.1.15",
			Headers:   safariHeaders(),
		},
	}
}

func navigationHeaders(accept string) http.Header {
	h := http.Header{}
	h.Set("Accept", accept)
	h.Set("Accept-Language", acceptLanguage)
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Upgrade-Insecure-Requests", "1")
	return h
}

func chromiumHeaders(brand, version, platform string) http.Header {
	h := navigationHeaders("text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	h.Set("Sec-Ch-Ua", `"Not)A;Brand";v="8", "Chromium";v="`+version+`", "`+brand+`";v="`+version+`"`)
	h.Set("Sec-Ch-Ua-Mobile", "?0")
	h.Set("Sec-Ch-Ua-Platform", `"`+platform+`"`)
	return h
}

func geckoHeaders() http.Header {
	return navigationHeaders("text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
}

func safariHeaders() http.Header {
	h := navigationHeaders("text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Del("Sec-Fetch-User")
	return h
}
