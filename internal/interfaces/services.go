package interfaces

import (
	"context"

	"github.com/bmcnabb/tickerwatch/internal/models"
)

// QuoteService reconciles cached and freshly fetched quotes for a batch of
// symbols. The result map is keyed by SymbolKey.String(); a symbol is absent
// only when no data has ever been obtained for it.
type QuoteService interface {
	GetQuotes(ctx context.Context, keys []models.SymbolKey) map[string]*models.Quote
}

// RankService builds the canonical rank lists for a market and fans the
// classification out to the persisted symbol universe.
type RankService interface {
	// RebuildMarket runs one full build-validate-write cycle. An
	// insufficient-data outcome blocks the write and is reported in the
	// result status, not as a silent empty list.
	RebuildMarket(ctx context.Context, market string) (*models.RankRebuildResult, error)

	// Markets returns the markets with a configured authoritative rank source.
	Markets() []string
}

// EnrichService reconciles sector/industry/tier attributes for a batch of
// symbols under the strict source-precedence order.
type EnrichService interface {
	// Reconcile produces metadata for every input symbol. Persistence side
	// effects happen only when persist is true; an unauthorized caller still
	// receives the computed in-memory metadata.
	Reconcile(ctx context.Context, reqs []models.SymbolRequest, persist bool) []*models.AttributeMetadata
}
