package httputil

import "net/http"

// BrowserHeaders returns the headers of a pt-BR desktop browser navigating
// to a page. The stealth transport fills in the User-Agent.
func BrowserHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.7,en;q=0.6")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Cache-Control", "no-cache")
	h.Set("Upgrade-Insecure-Requests", "1")
	return h
}

// JSONHeaders returns headers for public JSON APIs such as the Mercado
// Livre items endpoint.
func JSONHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Accept-Language", "pt-BR,pt;q=0.9")
	return h
}
