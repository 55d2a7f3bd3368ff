package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Defaults for the OpenAI-compatible endpoint. Groq serves the model fast
// enough to fit the equivalence budget.
const (
	DefaultAIBaseURL = "https://api.groq.com/openai/v1"
	DefaultAIModel   = "llama-3.1-8b-instant"
	DefaultAITimeout = 5 * time.Second

	aiMaxURLs = 8
)

// AIConfig configures AIProvider. An empty APIKey disables the provider.
type AIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// AIProvider asks a chat model for product page URLs on Brazilian stores.
// Only allow-listed domains survive; the model's answer is never trusted
// beyond that.
type AIProvider struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewAIProvider builds the provider. Search returns ErrDisabled when
// cfg.APIKey is empty.
func NewAIProvider(cfg AIConfig) *AIProvider {
	p := &AIProvider{model: cfg.Model, timeout: cfg.Timeout}
	if p.model == "" {
		p.model = DefaultAIModel
	}
	if p.timeout <= 0 {
		p.timeout = DefaultAITimeout
	}
	if cfg.APIKey == "" {
		return p
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL
	if oc.BaseURL == "" {
		oc.BaseURL = DefaultAIBaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	p.client = openai.NewClientWithConfig(oc)
	return p
}

func (p *AIProvider) Name() string { return "ai" }

func (p *AIProvider) Search(ctx context.Context, q Query) (Result, error) {
	if p.client == nil {
		return Result{}, ErrDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: aiSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(q)},
		},
		Temperature: 0.1,
		MaxTokens:   500,
	})
	if err != nil {
		return Result{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, nil
	}

	urls := extractURLs(resp.Choices[0].Message.Content, aiMaxURLs)
	res := Result{URLs: urls}
	if len(urls) > 0 {
		res.Confidence = 0.85
	}
	return res, nil
}

const aiSystemPrompt = "Você encontra páginas de produto em lojas online brasileiras. " +
	"Responda somente com URLs de produto, uma por linha, sem comentários."

func buildPrompt(q Query) string {
	c := q.Canonical
	var b strings.Builder

	b.WriteString("Produto procurado:\n")
	fmt.Fprintf(&b, "Título: %q\n", q.Title)
	if c.GTIN != "" {
		fmt.Fprintf(&b, "EAN/GTIN: %s (use para busca exata)\n", c.GTIN)
	}
	if c.MarketplaceID != "" {
		fmt.Fprintf(&b, "Código do anúncio: %s\n", c.MarketplaceID)
	}
	if c.Brand != "" && c.Model != "" {
		fmt.Fprintf(&b, "Marca: %s\nModelo: %s\n", c.Brand, c.Model)
	}

	b.WriteString("\nListe URLs diretas do MESMO produto, apenas nestas lojas:\n")
	for _, d := range AllowedDomains {
		b.WriteString("- " + d + "\n")
	}
	b.WriteString("\nUma URL por linha, no máximo 8.\n")
	b.WriteString("Não inclua páginas de busca (/s?k=, /busca/, ?q=), de categoria ou de listagem.\n")
	b.WriteString("Não invente URLs: retorne apenas as que você sabe que existem.\n")
	return b.String()
}
