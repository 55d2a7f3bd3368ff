package mcp

import (
	"context"

	"github.com/lukman83/pricealert/internal/equivalence"
	"github.com/lukman83/pricealert/internal/ingest"
	"github.com/lukman83/pricealert/internal/models"
	"github.com/mark3labs/mcp-go/server"
)

const (
	serverName    = "pricealert"
	serverVersion = "1.0.0"
)

// Ingester is the ingest pipeline as seen by the tools.
type Ingester interface {
	Ingest(ctx context.Context, rawURL string) (ingest.Result, error)
	SnapshotMarket(ctx context.Context, productID int64, canonical models.CanonicalIDs, title string, maxResults int) (ingest.Snapshot, error)
}

// EquivalenceFinder resolves cross-store offers.
type EquivalenceFinder interface {
	FindEquivalents(ctx context.Context, canonical models.CanonicalIDs, title string, maxResults int) (equivalence.Result, error)
}

// ProductSearcher looks products up by name.
type ProductSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]models.ProductSearchResult, error)
}

// Services are the pipelines the tools call into.
type Services struct {
	Ingester Ingester
	Finder   EquivalenceFinder
	Searcher ProductSearcher
}

func newServer(svc Services) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
	)
	registerTools(s, svc)
	return s
}

// Serve starts the MCP stdio server with all tools registered.
func Serve(svc Services) error {
	return server.ServeStdio(newServer(svc))
}
