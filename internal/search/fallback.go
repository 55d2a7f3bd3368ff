package search

import (
	"context"
	"net/url"
)

// StoreURL is a store search page for a term.
type StoreURL struct {
	Store string
	URL   string
}

// StoreSearchURLs builds the search page URL of every supported store.
func StoreSearchURLs(term string) []StoreURL {
	path := url.PathEscape(term)
	return []StoreURL{
		{"amazon", "https://www.amazon.com.br/s?k=" + url.QueryEscape(term)},
		{"mercadolivre", "https://lista.mercadolivre.com.br/" + path},
		{"magalu", "https://www.magazineluiza.com.br/busca/" + path + "/"},
		{"kabum", "https://www.kabum.com.br/busca/" + path},
		{"americanas", "https://www.americanas.com.br/busca/" + path},
	}
}

// FallbackProvider returns store search pages for the query without any
// network call. It never comes back empty unless the query has no usable
// term at all.
type FallbackProvider struct{}

func NewFallbackProvider() *FallbackProvider { return &FallbackProvider{} }

func (FallbackProvider) Name() string { return "fallback" }

func (FallbackProvider) Search(_ context.Context, q Query) (Result, error) {
	term := Term(q)
	if term == "" {
		return Result{}, nil
	}
	pages := StoreSearchURLs(term)
	urls := make([]string, len(pages))
	for i, p := range pages {
		urls[i] = p.URL
	}
	return Result{URLs: urls, Confidence: 0.3}, nil
}
