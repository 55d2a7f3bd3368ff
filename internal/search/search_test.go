package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lukman83/pricealert/internal/httputil"
	"github.com/lukman83/pricealert/internal/models"
	"github.com/lukman83/pricealert/internal/pool"
)

func TestTerm(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		want string
	}{
		{"gtin first", Query{Canonical: models.CanonicalIDs{GTIN: "7891234567895", Brand: "LG", Model: "55UR"}}, "7891234567895"},
		{"brand and model", Query{Canonical: models.CanonicalIDs{Brand: "LG", Model: "55UR"}, Title: "Smart TV"}, "LG 55UR"},
		{"title words", Query{Title: "Smart TV LG 55\" 4K, UHD ThinQ"}, "smart thinq"},
		{"title keeps first three", Query{Title: "Fone de Ouvido Bluetooth JBL Tune Preto"}, "fone ouvido bluetooth"},
		{"free text wins", Query{Text: " geladeira frost free ", Canonical: models.CanonicalIDs{GTIN: "1"}}, "geladeira frost free"},
		{"nothing usable", Query{Title: "TV 4K"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Term(tt.q); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFallbackProvider(t *testing.T) {
	res, err := NewFallbackProvider().Search(context.Background(), Query{Canonical: models.CanonicalIDs{Brand: "Samsung", Model: "SM-A546E"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	want := []string{
		"https://www.amazon.com.br/s?k=Samsung+SM-A546E",
		"https://lista.mercadolivre.com.br/Samsung%20SM-A546E",
		"https://www.magazineluiza.com.br/busca/Samsung%20SM-A546E/",
		"https://www.kabum.com.br/busca/Samsung%20SM-A546E",
		"https://www.americanas.com.br/busca/Samsung%20SM-A546E",
	}
	if len(res.URLs) != len(want) {
		t.Fatalf("expected %d urls, got %v", len(want), res.URLs)
	}
	for i := range want {
		if res.URLs[i] != want[i] {
			t.Errorf("url %d: expected %s, got %s", i, want[i], res.URLs[i])
		}
	}
	if res.Confidence != 0.3 {
		t.Errorf("expected confidence 0.3, got %v", res.Confidence)
	}
}

func TestExtractURLs(t *testing.T) {
	text := `Aqui estão:
1. https://www.amazon.com.br/dp/B0ABC12345.
2. https://produto.mercadolivre.com.br/MLB-123-x, https://www.amazon.com.br/dp/B0ABC12345
3. https://www.lojaqualquer.com.br/p/1
4. (https://www.kabum.com.br/produto/1/mouse)`
	got := extractURLs(text, 8)
	want := []string{
		"https://www.amazon.com.br/dp/B0ABC12345",
		"https://produto.mercadolivre.com.br/MLB-123-x",
		"https://www.kabum.com.br/produto/1/mouse",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("expected %v, got %v", want, got)
	}
	if got := extractURLs(text, 1); len(got) != 1 {
		t.Errorf("expected limit to apply, got %v", got)
	}
}

func TestIsAllowed(t *testing.T) {
	tests := map[string]bool{
		"https://www.casasbahia.com.br/x":      true,
		"https://kabum.com.br/produto/1":       true,
		"https://notkabum.com.br/produto/1":    false,
		"https://amazon.com.br.evil.com/dp/x":  false,
		"not a url":                            false,
	}
	for in, want := range tests {
		if got := IsAllowed(in); got != want {
			t.Errorf("IsAllowed(%q) = %v, want %v", in, got, want)
		}
	}
}

func newFakeChatServer(t *testing.T, content string, gotReq *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if gotReq != nil {
			json.Unmarshal(body, gotReq)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   DefaultAIModel,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAIProvider(t *testing.T) {
	var req map[string]any
	srv := newFakeChatServer(t, "https://www.amazon.com.br/dp/B0ABC12345\nhttps://www.exemplo.com/p/1\nhttps://www.kabum.com.br/produto/9/x", &req)

	p := NewAIProvider(AIConfig{APIKey: "test-key", BaseURL: srv.URL})
	res, err := p.Search(context.Background(), Query{
		Canonical: models.CanonicalIDs{GTIN: "7891234567895"},
		Title:     "Mouse Gamer",
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.URLs) != 2 || res.URLs[1] != "https://www.kabum.com.br/produto/9/x" {
		t.Errorf("unexpected urls %v", res.URLs)
	}
	if res.Confidence != 0.85 {
		t.Errorf("expected confidence 0.85, got %v", res.Confidence)
	}
	if req["model"] != DefaultAIModel || req["max_tokens"] != float64(500) {
		t.Errorf("unexpected request %v", req)
	}
	if temp, _ := req["temperature"].(float64); temp < 0.09 || temp > 0.11 {
		t.Errorf("expected temperature 0.1, got %v", req["temperature"])
	}
	msgs, _ := req["messages"].([]any)
	if len(msgs) != 2 || !strings.Contains(fmt.Sprint(msgs[1]), "7891234567895") {
		t.Errorf("expected gtin in user prompt, got %v", msgs)
	}
}

func TestAIProviderNoURLs(t *testing.T) {
	srv := newFakeChatServer(t, "Não encontrei nada.", nil)
	res, err := NewAIProvider(AIConfig{APIKey: "test-key", BaseURL: srv.URL}).Search(context.Background(), Query{Title: "x"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.URLs) != 0 || res.Confidence != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestAIProviderDisabled(t *testing.T) {
	_, err := NewAIProvider(AIConfig{}).Search(context.Background(), Query{Title: "x"})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestSERPProvider(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("X-API-KEY") != "serp-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var body serpRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.Num != 12 || body.GL != "br" || body.HL != "pt-br" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		queries = append(queries, body.Q)

		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(body.Q, "7891234567895") {
			fmt.Fprint(w, `{"organic":[
				{"link":"https://www.kabum.com.br/produto/1/x"},
				{"link":"https://www.blog.com.br/review"},
				{"link":"https://www.amazon.com.br/dp/B0ABC12345"}]}`)
			return
		}
		fmt.Fprint(w, `{"organic":[{"link":"https://www.amazon.com.br/dp/B0ABC12345"},{"link":"https://www.magazineluiza.com.br/x/p/1/"}]}`)
	}))
	defer srv.Close()

	p := NewSERPProvider(SERPConfig{APIKey: "serp-key", Endpoint: srv.URL})
	res, err := p.Search(context.Background(), Query{Canonical: models.CanonicalIDs{GTIN: "7891234567895", Brand: "LG", Model: "55UR"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	want := []string{
		"https://www.kabum.com.br/produto/1/x",
		"https://www.amazon.com.br/dp/B0ABC12345",
		"https://www.magazineluiza.com.br/x/p/1/",
	}
	if strings.Join(res.URLs, "|") != strings.Join(want, "|") {
		t.Errorf("expected %v, got %v", want, res.URLs)
	}
	if len(queries) != 2 || !strings.HasPrefix(queries[0], `"7891234567895" (site:amazon.com.br`) || !strings.HasPrefix(queries[1], `"LG 55UR"`) {
		t.Errorf("unexpected queries %q", queries)
	}
}

func TestSERPProviderSkipsFailingQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body serpRequest
		json.NewDecoder(r.Body).Decode(&body)
		if strings.Contains(body.Q, "B0ABC12345") {
			fmt.Fprint(w, `{"organic":[{"link":"https://www.amazon.com.br/dp/B0ABC12345"}]}`)
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewSERPProvider(SERPConfig{APIKey: "k", Endpoint: srv.URL})
	res, err := p.Search(context.Background(), Query{Canonical: models.CanonicalIDs{Brand: "Amazon", Model: "Echo", MarketplaceID: "B0ABC12345"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.URLs) != 1 {
		t.Errorf("expected the asin query to survive, got %v", res.URLs)
	}
}

func TestSERPProviderDisabled(t *testing.T) {
	_, err := NewSERPProvider(SERPConfig{}).Search(context.Background(), Query{})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

type stubProvider struct {
	name  string
	res   Result
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Search(context.Context, Query) (Result, error) {
	s.calls++
	return s.res, s.err
}

func TestChain(t *testing.T) {
	disabled := &stubProvider{name: "ai", err: ErrDisabled}
	failing := &stubProvider{name: "serp", err: errors.New("boom")}
	empty := &stubProvider{name: "empty"}
	good := &stubProvider{name: "fallback", res: Result{URLs: []string{"https://a"}}}
	never := &stubProvider{name: "never", res: Result{URLs: []string{"https://b"}}}

	res, name, err := Chain(context.Background(), nil, Query{}, disabled, failing, empty, good, never)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if name != "fallback" || len(res.URLs) != 1 {
		t.Errorf("expected fallback result, got %s %+v", name, res)
	}
	if never.calls != 0 {
		t.Error("expected chain to stop at the first result with urls")
	}

	_, name, err = Chain(context.Background(), nil, Query{}, disabled, failing)
	if err == nil || name != "" {
		t.Errorf("expected last error, got %q %v", name, err)
	}
	_, _, err = Chain(context.Background(), nil, Query{}, disabled, empty)
	if err != nil {
		t.Errorf("expected no error when providers are only empty, got %v", err)
	}
}

func TestNameSearcher(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		card := func(title, price string) string {
			return fmt.Sprintf(`<html><body><a class="product-link" href="/p%s"><h2 class="product-title">%s</h2></a><span>%s</span></body></html>`,
				r.URL.Path, title, price)
		}
		switch r.URL.Path {
		case "/a":
			fmt.Fprint(w, card("Fone A", "R$ 199,90"))
		case "/b":
			fmt.Fprint(w, card("Fone B", "R$ 149,90"))
		case "/c":
			fmt.Fprint(w, card("Fone C", "R$ 179,00"))
		case "/slow":
			time.Sleep(300 * time.Millisecond)
			fmt.Fprint(w, card("Fone Lento", "R$ 1,00"))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	s := NewNameSearcher(httputil.NewFetcher(srv.Client(), nil, nil), pool.New(5, 10*time.Millisecond), nil)
	s.PageTimeout = 100 * time.Millisecond
	s.URLs = func(string) []StoreURL {
		return []StoreURL{
			{"a", srv.URL + "/a"},
			{"b", srv.URL + "/b"},
			{"c", srv.URL + "/c"},
			{"broken", srv.URL + "/broken"},
			{"slow", srv.URL + "/slow"},
		}
	}

	got, err := s.Search(context.Background(), "fone bluetooth", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %+v", got)
	}
	if got[0].Title != "Fone B" || got[0].Price != 149.9 || got[1].Title != "Fone C" {
		t.Errorf("expected cheapest first, got %+v", got)
	}
	if got[0].Confidence != 0.9 || got[0].URL != srv.URL+"/p/b" {
		t.Errorf("unexpected result %+v", got[0])
	}
	if hits.Load() != 5 {
		t.Errorf("expected every page fetched once, got %d", hits.Load())
	}

	if _, err := s.Search(context.Background(), "  ", 0); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestSERPShopping(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "serp-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var body serpRequest
		json.NewDecoder(r.Body).Decode(&body)
		gotPath, gotQuery = r.URL.Path, body.Q

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"shopping":[
			{"title":"Fone JBL Tune 520BT","source":"Magazine Luiza","link":"https://www.magazineluiza.com.br/fone-jbl/p/1/","price":"R$ 299,00","imageUrl":"https://a/1.jpg"},
			{"title":"Fone JBL Tune 520BT Preto","source":"KaBuM!","link":"https://www.kabum.com.br/produto/2/fone","price":"R$ 249,90"},
			{"title":"Fone JBL","source":"Blog","link":"https://www.blog.com.br/jbl","price":"R$ 10,00"},
			{"title":"Fone JBL usado","source":"Amazon","link":"https://www.amazon.com.br/dp/B0ABC12345","price":"Ver preço"},
			{"title":"Fone JBL parcelado","source":"Mercado Livre","link":"https://www.mercadolivre.com.br/p/MLB1","price":"10x de R$ 30,00"},
			{"title":"Fone JBL Tune 520BT","source":"Amazon","link":"https://www.amazon.com.br/dp/B0JBL52000","price":"R$ 1.279,90"}]}`)
	}))
	defer srv.Close()

	p := NewSERPProvider(SERPConfig{APIKey: "serp-key", ShoppingEndpoint: srv.URL + "/shopping"})
	res, err := p.Shopping(context.Background(), Query{Text: "fone jbl tune 520bt"}, 2)
	if err != nil {
		t.Fatalf("shopping: %v", err)
	}
	if gotPath != "/shopping" || gotQuery != "fone jbl tune 520bt" {
		t.Errorf("unexpected request %s %q", gotPath, gotQuery)
	}
	if len(res.Items) != 2 {
		t.Fatalf("expected 2 items, got %+v", res.Items)
	}
	first := res.Items[0]
	if first.Price != 249.9 || first.Domain != "kabum.com.br" || first.Currency != "BRL" || first.Confidence != 0.8 {
		t.Errorf("expected cheapest kabum offer first, got %+v", first)
	}
	if res.Items[1].Price != 299 || res.Items[1].ImageURL != "https://a/1.jpg" {
		t.Errorf("unexpected second item %+v", res.Items[1])
	}
	if len(res.URLs) != 2 || res.URLs[0] != first.URL {
		t.Errorf("expected urls to follow items, got %v", res.URLs)
	}

	all, err := p.Shopping(context.Background(), Query{Text: "fone jbl tune 520bt"}, 0)
	if err != nil {
		t.Fatalf("shopping: %v", err)
	}
	if len(all.Items) != 3 || all.Items[2].Price != 1279.9 {
		t.Errorf("expected 3 priced store offers, got %+v", all.Items)
	}
}

func TestSERPShoppingErrors(t *testing.T) {
	if _, err := NewSERPProvider(SERPConfig{}).Shopping(context.Background(), Query{Text: "x"}, 1); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewSERPProvider(SERPConfig{APIKey: "bad", ShoppingEndpoint: srv.URL}).Shopping(context.Background(), Query{Text: "x"}, 1)
	var fe *httputil.FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusUnauthorized {
		t.Errorf("expected 401 FetchError, got %v", err)
	}
}

type stubShopping struct {
	res   Result
	err   error
	calls int
}

func (s *stubShopping) Shopping(context.Context, Query, int) (Result, error) {
	s.calls++
	return s.res, s.err
}

func TestNameSearcherPrefersShopping(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `<html><body><a class="product-link" href="/p"><h2 class="product-title">Fone Loja</h2></a><span>R$ 99,00</span></body></html>`)
	}))
	defer srv.Close()

	newSearcher := func(src ShoppingSource) *NameSearcher {
		s := NewNameSearcher(httputil.NewFetcher(srv.Client(), nil, nil), nil, nil)
		s.URLs = func(string) []StoreURL { return []StoreURL{{"loja", srv.URL + "/busca"}} }
		s.Shopping = src
		return s
	}

	offers := &stubShopping{res: Result{Items: []models.ProductSearchResult{
		{Title: "Fone Shopping", Price: 89.9, Domain: "kabum.com.br", Confidence: 0.8},
	}}}
	got, err := newSearcher(offers).Search(context.Background(), "fone", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Fone Shopping" {
		t.Errorf("expected shopping offers, got %+v", got)
	}
	if hits.Load() != 0 {
		t.Errorf("expected no store pages read, got %d", hits.Load())
	}

	tests := []struct {
		name string
		src  *stubShopping
	}{
		{"shopping failed", &stubShopping{err: errors.New("quota exceeded")}},
		{"shopping empty", &stubShopping{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits.Store(0)
			got, err := newSearcher(tt.src).Search(context.Background(), "fone", 3)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if tt.src.calls != 1 {
				t.Errorf("expected shopping asked once, got %d", tt.src.calls)
			}
			if len(got) != 1 || got[0].Title != "Fone Loja" || hits.Load() != 1 {
				t.Errorf("expected store page fallback, got %+v (%d hits)", got, hits.Load())
			}
		})
	}
}
