package identity

import (
	"testing"

	"github.com/lukman83/pricealert/internal/models"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		raw  models.CanonicalIDs
		url  string
		want models.CanonicalIDs
	}{
		{
			name: "amazon dp path",
			url:  "https://www.amazon.com.br/Echo-Dot/dp/B08X6PZQL1/ref=sr_1_1",
			want: models.CanonicalIDs{MarketplaceID: "B08X6PZQL1"},
		},
		{
			name: "amazon gp product path",
			url:  "https://amazon.com.br/gp/product/b08x6pzql1?th=1",
			want: models.CanonicalIDs{MarketplaceID: "B08X6PZQL1"},
		},
		{
			name: "adapter value wins",
			raw:  models.CanonicalIDs{MarketplaceID: "B000000001", GTIN: "7891234567895"},
			url:  "https://www.amazon.com.br/dp/B08X6PZQL1",
			want: models.CanonicalIDs{MarketplaceID: "B000000001", GTIN: "7891234567895"},
		},
		{
			name: "mercado livre hyphenated id",
			url:  "https://produto.mercadolivre.com.br/MLB-3456789012-smartphone-_JM",
			want: models.CanonicalIDs{MarketplaceID: "MLB3456789012"},
		},
		{
			name: "mercado livre antibot redirect",
			url:  "https://www.mercadolivre.com.br/gz/account-verification?go=https%3A%2F%2Fproduto.mercadolivre.com.br%2FMLB-123456-x",
			want: models.CanonicalIDs{MarketplaceID: "MLB123456"},
		},
		{
			name: "unknown store keeps nothing",
			url:  "https://www.lojaqualquer.com.br/produto/123",
			want: models.CanonicalIDs{},
		},
		{
			name: "brand and model carried over",
			raw:  models.CanonicalIDs{Brand: "Samsung", Model: "SM-A546"},
			url:  "https://www.kabum.com.br/produto/123",
			want: models.CanonicalIDs{Brand: "Samsung", Model: "SM-A546"},
		},
		{
			name: "invalid url",
			url:  "::not a url",
			want: models.CanonicalIDs{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := models.RawProduct{Canonical: tt.raw}
			got := Resolve(raw, tt.url)
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestMLIDFromHTML(t *testing.T) {
	html := `<html><head><meta property="og:url" content="https://produto.mercadolivre.com.br/MLB-98765-fone"></head></html>`
	if got := MLIDFromHTML(html); got != "MLB98765" {
		t.Errorf("expected MLB98765, got %q", got)
	}
	canon := `<link rel="canonical" href="https://www.mercadolivre.com.br/p/MLB1234567">`
	if got := MLIDFromHTML(canon); got != "MLB1234567" {
		t.Errorf("expected MLB1234567, got %q", got)
	}
	if got := MLIDFromHTML("<html></html>"); got != "" {
		t.Errorf("expected empty id, got %q", got)
	}
}

func TestGoTarget(t *testing.T) {
	got := GoTarget("https://www.mercadolivre.com.br/gz/account-verification?go=https%3A%2F%2Fa.com%2Fx")
	if got != "https://a.com/x" {
		t.Errorf("expected decoded target, got %q", got)
	}
	if got := GoTarget("https://www.mercadolivre.com.br/MLB-1"); got != "" {
		t.Errorf("expected no target, got %q", got)
	}
}

func TestExtractGTIN(t *testing.T) {
	tests := map[string]string{
		"EAN: 7891234567895":                 "7891234567895",
		"codigo 12345678 e 789123456789":     "789123456789",
		"upc 012345678905 ean 7891234567895": "7891234567895",
		"apenas 12345678":                    "12345678",
		"sem codigo 123456":                  "",
	}
	for in, want := range tests {
		if got := ExtractGTIN(in); got != want {
			t.Errorf("ExtractGTIN(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidGTIN(t *testing.T) {
	if got := ValidGTIN("789.1234.56789-5"); got != "7891234567895" {
		t.Errorf("expected cleaned gtin, got %q", got)
	}
	if got := ValidGTIN("12345"); got != "" {
		t.Errorf("expected short code rejected, got %q", got)
	}
}

func TestNormalizeBrandAndModel(t *testing.T) {
	if got := NormalizeBrand(" samsung "); got != "Samsung" {
		t.Errorf("expected Samsung, got %q", got)
	}
	if got := NormalizeBrand("Gradiente"); got != "Gradiente" {
		t.Errorf("expected unknown brand untouched, got %q", got)
	}
	if got := NormalizeModel("Modelo sm-a546e"); got != "SM-A546E" {
		t.Errorf("expected SM-A546E, got %q", got)
	}
}

func TestStoreName(t *testing.T) {
	tests := map[string]string{
		"https://www.amazon.com.br/dp/B08X6PZQL1":   "amazon",
		"https://produto.mercadolivre.com.br/MLB-1": "mercadolivre",
		"https://www.magazineluiza.com.br/p/abc":    "magalu",
		"https://www.kabum.com.br/produto/1":        "kabum",
		"https://www.casasbahia.com.br/x":           "casasbahia",
		"https://www.lojinha.com.br/x":              "lojinha.com.br",
		"not a url":                                 "unknown",
	}
	for in, want := range tests {
		if got := StoreName(in); got != want {
			t.Errorf("StoreName(%q) = %q, want %q", in, got, want)
		}
	}
}
