package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lukman83/pricealert/internal/equivalence"
	"github.com/lukman83/pricealert/internal/ingest"
	"github.com/lukman83/pricealert/internal/models"
	"github.com/lukman83/pricealert/internal/search"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type tools struct {
	svc Services
}

func registerTools(s *server.MCPServer, svc Services) {
	t := &tools{svc: svc}

	// ingest_product
	ingestTool := mcp.NewTool("ingest_product",
		mcp.WithDescription("Extract a product from a Brazilian store URL and record its current price"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Product page URL"),
		),
		mcp.WithBoolean("market",
			mcp.Description("Also look up the same product on other stores (default: false)"),
		),
		mcp.WithNumber("max",
			mcp.Description("Maximum market offers (default: 8)"),
		),
	)
	s.AddTool(ingestTool, t.handleIngestProduct)

	// find_equivalents
	equivTool := mcp.NewTool("find_equivalents",
		mcp.WithDescription("Find offers for the same product on other stores, cheapest first"),
		mcp.WithString("gtin",
			mcp.Description("EAN/GTIN barcode"),
		),
		mcp.WithString("marketplace_id",
			mcp.Description("Store listing id (ASIN or MLB id)"),
		),
		mcp.WithString("brand",
			mcp.Description("Brand name"),
		),
		mcp.WithString("model",
			mcp.Description("Model name or number"),
		),
		mcp.WithString("title",
			mcp.Description("Product title"),
		),
		mcp.WithNumber("max",
			mcp.Description("Maximum offers (default: 8)"),
		),
	)
	s.AddTool(equivTool, t.handleFindEquivalents)

	// search_products
	searchTool := mcp.NewTool("search_products",
		mcp.WithDescription("Search a product by name across the supported stores"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Product name"),
		),
		mcp.WithNumber("max",
			mcp.Description("Maximum results (default: 5)"),
		),
	)
	s.AddTool(searchTool, t.handleSearchProducts)
}

type ingestOutput struct {
	ingest.Result
	Market *ingest.Snapshot `json:"market,omitempty"`
}

func (t *tools) handleIngestProduct(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url := request.GetString("url", "")
	if url == "" {
		return mcp.NewToolResultError("url is required"), nil
	}
	if t.svc.Ingester == nil {
		return mcp.NewToolResultError("ingestion is not configured"), nil
	}

	res, err := t.svc.Ingester.Ingest(ctx, url)
	if err != nil {
		return mcp.NewToolResultError(ingestErrorText(err)), nil
	}
	out := ingestOutput{Result: res}

	if request.GetBool("market", false) {
		snap, err := t.svc.Ingester.SnapshotMarket(ctx, res.ProductID, res.Canonical, res.Title, request.GetInt("max", equivalence.DefaultMaxResults))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("market error: %v", err)), nil
		}
		out.Market = &snap
	}

	data, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func ingestErrorText(err error) string {
	var noPrice *ingest.NoPriceError
	var fetch *ingest.FetchFailedError
	switch {
	case errors.Is(err, ingest.ErrInvalidURL):
		return "invalid url: expected an absolute http(s) product URL"
	case errors.As(err, &noPrice):
		return fmt.Sprintf("no price found for %q on %s", noPrice.Title, noPrice.Domain)
	case errors.As(err, &fetch):
		return fmt.Sprintf("fetch error: %v", fetch.Err)
	}
	return fmt.Sprintf("ingest error: %v", err)
}

func (t *tools) handleFindEquivalents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := models.CanonicalIDs{
		GTIN:          request.GetString("gtin", ""),
		MarketplaceID: request.GetString("marketplace_id", ""),
		Brand:         request.GetString("brand", ""),
		Model:         request.GetString("model", ""),
	}
	title := request.GetString("title", "")
	if ids.IsZero() && title == "" {
		return mcp.NewToolResultError("one of gtin, marketplace_id, brand+model or title is required"), nil
	}
	if t.svc.Finder == nil {
		return mcp.NewToolResultError("equivalence search is not configured"), nil
	}

	res, err := t.svc.Finder.FindEquivalents(ctx, ids, title, request.GetInt("max", equivalence.DefaultMaxResults))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("equivalence error: %v", err)), nil
	}

	data, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (t *tools) handleSearchProducts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	if t.svc.Searcher == nil {
		return mcp.NewToolResultError("search is not configured"), nil
	}

	results, err := t.svc.Searcher.Search(ctx, query, request.GetInt("max", search.DefaultNameResults))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
	}
	if results == nil {
		results = []models.ProductSearchResult{}
	}

	data, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}
