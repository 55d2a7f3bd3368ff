package httputil

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/lukman83/pricealert/internal/cache"
)

func TestFetchOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusMovedPermanently)
			return
		}
		if got := r.Header.Get("Accept-Language"); !strings.HasPrefix(got, "pt-BR") {
			t.Errorf("expected pt-BR Accept-Language, got %q", got)
		}
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), nil, nil)
	page, err := f.Fetch(context.Background(), "test", srv.URL+"/old")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.HTML != "<html>ok</html>" {
		t.Errorf("unexpected body %q", page.HTML)
	}
	if page.URL != srv.URL+"/new" {
		t.Errorf("expected final URL after redirect, got %q", page.URL)
	}
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), nil, nil)
	_, err := f.Fetch(context.Background(), "test", srv.URL)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T %v", err, err)
	}
	if fe.Status != 429 {
		t.Errorf("expected status 429, got %d", fe.Status)
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status in message, got %q", err.Error())
	}
	if StatusOf(err) != 429 {
		t.Errorf("expected StatusOf 429, got %d", StatusOf(err))
	}
}

func TestFetchTimeoutIsLabelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := NewFetcher(srv.Client(), nil, nil)
	f.Timeout = 50 * time.Millisecond

	_, err := f.Fetch(context.Background(), "kabum", srv.URL)
	if !IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if err.Error() != "timeout: kabum-fetch-50ms" {
		t.Errorf("unexpected label %q", err.Error())
	}
}

func TestFetchUsesHTMLCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("cached body"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), cache.NewMemory(), nil)
	for i := 0; i < 2; i++ {
		page, err := f.Fetch(context.Background(), "test", srv.URL)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if page.HTML != "cached body" {
			t.Errorf("fetch %d: unexpected body %q", i, page.HTML)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("expected one network hit, got %d", hits.Load())
	}
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"MLB1","price":10.5}`))
	}))
	defer srv.Close()

	var out struct {
		ID    string  `json:"id"`
		Price float64 `json:"price"`
	}
	f := NewFetcher(srv.Client(), nil, nil)
	if err := f.GetJSON(context.Background(), "api", srv.URL, &out); err != nil {
		t.Fatalf("get json: %v", err)
	}
	if out.ID != "MLB1" || out.Price != 10.5 {
		t.Errorf("unexpected decode %+v", out)
	}
}

func TestFinalURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/short" {
			http.Redirect(w, r, "/produto/1", http.StatusFound)
			return
		}
		if r.Method == http.MethodHead && r.URL.Path == "/nohead" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), nil, nil)
	got, err := f.FinalURL(context.Background(), srv.URL+"/short", time.Second)
	if err != nil {
		t.Fatalf("final url: %v", err)
	}
	if got != srv.URL+"/produto/1" {
		t.Errorf("expected redirect target, got %q", got)
	}

	got, err = f.FinalURL(context.Background(), srv.URL+"/nohead", time.Second)
	if err != nil || got != srv.URL+"/nohead" {
		t.Errorf("expected GET fallback, got %q %v", got, err)
	}
}

func TestReadBody(t *testing.T) {
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte("gzip payload"))
	zw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	bw.Write([]byte("brotli payload"))
	bw.Close()

	tests := []struct {
		encoding string
		body     []byte
		want     string
	}{
		{"", []byte("plain payload"), "plain payload"},
		{"gzip", gz.Bytes(), "gzip payload"},
		{"br", br.Bytes(), "brotli payload"},
	}
	for _, tt := range tests {
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": {tt.encoding}},
			Body:   io.NopCloser(bytes.NewReader(tt.body)),
		}
		got, err := ReadBody(resp)
		if err != nil {
			t.Fatalf("%q: %v", tt.encoding, err)
		}
		if string(got) != tt.want {
			t.Errorf("%q: expected %q, got %q", tt.encoding, tt.want, got)
		}
	}
}

func TestDoWithRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "payload" {
			t.Errorf("attempt %d: expected body replayed, got %q", calls.Load()+1, body)
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("payload"))
	resp, err := DoWithRetry(srv.Client(), req, 2)
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	resp.Body.Close()
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestFetchErrorMessages(t *testing.T) {
	tests := []struct {
		err  *FetchError
		want string
	}{
		{&FetchError{URL: "u", Status: 403}, "fetch u: HTTP 403"},
		{&FetchError{Timeout: true, Label: "ingest-12s"}, "timeout: ingest-12s"},
		{&FetchError{URL: "u", Err: errors.New("boom")}, "fetch u: boom"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
}
