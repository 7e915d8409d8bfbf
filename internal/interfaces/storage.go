package interfaces

import (
	"context"

	"github.com/bmcnabb/tickerwatch/internal/models"
)

// StorageManager coordinates all storage backends.
type StorageManager interface {
	SymbolStore() SymbolStore
	WatchStore() WatchStore
	Close() error
}

// SymbolStore manages the persisted symbol universe keyed by
// (ticker, market), including tier assignments.
type SymbolStore interface {
	// Get retrieves one symbol row, or nil when absent.
	Get(ctx context.Context, ticker, market string) (*models.Symbol, error)

	// Save upserts one symbol row.
	Save(ctx context.Context, symbol *models.Symbol) error

	// ListByMarket enumerates the full universe of symbols known for a market.
	ListByMarket(ctx context.Context, market string) ([]*models.Symbol, error)

	// GetBatch retrieves symbol rows for multiple keys; absent keys are omitted.
	GetBatch(ctx context.Context, keys []models.SymbolKey) ([]*models.Symbol, error)

	// UpsertTiers writes one chunk of tier assignments. The chunk either
	// commits as a whole or fails as a whole; chunking is the caller's job.
	UpsertTiers(ctx context.Context, assignments []*models.TierAssignment) error

	// HasRankTiers reports whether any rank-based tier has been written for
	// the market, i.e. whether an authoritative classification source exists.
	HasRankTiers(ctx context.Context, market string) (bool, error)

	// UpdateAttributes sets sector/industry (and tier when source permits)
	// for one symbol.
	UpdateAttributes(ctx context.Context, meta *models.AttributeMetadata) error
}

// WatchStore manages watchlist rows. The engine consumes it for per-row
// enrichment updates only; watchlist CRUD lives elsewhere.
type WatchStore interface {
	Save(ctx context.Context, entry *models.WatchEntry) error
	ListByUser(ctx context.Context, userID string) ([]*models.WatchEntry, error)

	// UpdateEnrichmentBySymbol writes sector/tier onto every watch row for
	// the symbol. Returns the number of rows touched.
	UpdateEnrichmentBySymbol(ctx context.Context, ticker, market, sector string, tier models.Tier) (int, error)
}
