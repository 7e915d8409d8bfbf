package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bmcnabb/tickerwatch/internal/common"
	"github.com/bmcnabb/tickerwatch/internal/interfaces"
	"github.com/bmcnabb/tickerwatch/internal/models"
)

// SymbolStore implements interfaces.SymbolStore using SurrealDB.
type SymbolStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewSymbolStore(db *surrealdb.DB, logger *common.Logger) *SymbolStore {
	return &SymbolStore{db: db, logger: logger}
}

// symbolID builds a SurrealDB record ID from ticker and market.
// Sanitizes dots and slashes to underscores for safe record IDs.
func symbolID(ticker, market string) string {
	key := models.NewSymbolKey(ticker, market)
	return strings.NewReplacer(".", "_", "/", "_").Replace(key.Ticker + "_" + key.Market)
}

func (s *SymbolStore) Get(ctx context.Context, ticker, market string) (*models.Symbol, error) {
	row, err := surrealdb.Select[models.Symbol](ctx, s.db, surrealmodels.NewRecordID("symbol", symbolID(ticker, market)))
	if err != nil {
		return nil, fmt.Errorf("failed to select symbol: %w", err)
	}
	if row == nil || row.Ticker == "" {
		return nil, nil
	}
	return row, nil
}

func (s *SymbolStore) Save(ctx context.Context, symbol *models.Symbol) error {
	sql := "UPSERT type::record('symbol', $id) CONTENT $symbol"
	vars := map[string]any{
		"id":     symbolID(symbol.Ticker, symbol.Market),
		"symbol": symbol,
	}

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.Symbol](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		if attempt == 3 {
			return fmt.Errorf("failed to save symbol after retries: %w", err)
		}
	}
	return nil
}

func (s *SymbolStore) ListByMarket(ctx context.Context, market string) ([]*models.Symbol, error) {
	sql := "SELECT * FROM symbol WHERE market = $market"
	vars := map[string]any{"market": strings.ToUpper(market)}

	results, err := surrealdb.Query[[]models.Symbol](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols for %s: %w", market, err)
	}

	if results != nil && len(*results) > 0 {
		var mapped []*models.Symbol
		for i := range (*results)[0].Result {
			mapped = append(mapped, &(*results)[0].Result[i])
		}
		return mapped, nil
	}
	return nil, nil
}

func (s *SymbolStore) GetBatch(ctx context.Context, keys []models.SymbolKey) ([]*models.Symbol, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	ids := make([]any, len(keys))
	for i, k := range keys {
		ids[i] = surrealmodels.NewRecordID("symbol", symbolID(k.Ticker, k.Market))
	}

	sql := "SELECT * FROM symbol WHERE id IN $ids"
	vars := map[string]any{"ids": ids}

	results, err := surrealdb.Query[[]models.Symbol](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to batch select symbols: %w", err)
	}

	if results != nil && len(*results) > 0 {
		var mapped []*models.Symbol
		for i := range (*results)[0].Result {
			mapped = append(mapped, &(*results)[0].Result[i])
		}
		return mapped, nil
	}
	return nil, nil
}

// UpsertTiers commits one chunk of tier assignments atomically. Rows are
// merged so attributes written by the reconciler survive a tier rewrite.
func (s *SymbolStore) UpsertTiers(ctx context.Context, assignments []*models.TierAssignment) error {
	if len(assignments) == 0 {
		return nil
	}

	rows := make([]map[string]any, len(assignments))
	for i, a := range assignments {
		rows[i] = map[string]any{
			"id":         symbolID(a.Ticker, a.Market),
			"ticker":     strings.ToUpper(a.Ticker),
			"market":     strings.ToUpper(a.Market),
			"tier":       string(a.Tier),
			"source":     string(a.Source),
			"updated_at": a.UpdatedAt,
		}
	}

	sql := `BEGIN TRANSACTION;
FOR $row IN $rows {
	UPSERT type::record('symbol', $row.id) MERGE {
		ticker: $row.ticker,
		market: $row.market,
		tier: $row.tier,
		tier_source: $row.source,
		tier_updated_at: $row.updated_at
	};
};
COMMIT TRANSACTION;`
	vars := map[string]any{"rows": rows}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to upsert %d tier assignments: %w", len(assignments), err)
	}
	return nil
}

func (s *SymbolStore) HasRankTiers(ctx context.Context, market string) (bool, error) {
	sql := "SELECT ticker FROM symbol WHERE market = $market AND tier_source = $source LIMIT 1"
	vars := map[string]any{
		"market": strings.ToUpper(market),
		"source": string(models.TierSourceRankBased),
	}

	results, err := surrealdb.Query[[]models.Symbol](ctx, s.db, sql, vars)
	if err != nil {
		return false, fmt.Errorf("failed to check rank tiers for %s: %w", market, err)
	}
	return results != nil && len(*results) > 0 && len((*results)[0].Result) > 0, nil
}

// UpdateAttributes merges sector/industry onto the symbol row. The tier is
// written in a second guarded statement so a weaker source can never
// overwrite a rank-based assignment.
func (s *SymbolStore) UpdateAttributes(ctx context.Context, meta *models.AttributeMetadata) error {
	content := map[string]any{
		"ticker":           strings.ToUpper(meta.Ticker),
		"market":           strings.ToUpper(meta.Market),
		"last_enriched_at": time.Now().UTC(),
	}
	if meta.Name != "" {
		content["name"] = meta.Name
	}
	if meta.Sector != "" {
		content["sector"] = meta.Sector
	}
	if meta.Industry != "" {
		content["industry"] = meta.Industry
	}

	id := symbolID(meta.Ticker, meta.Market)

	sql := "UPSERT type::record('symbol', $id) MERGE $content"
	vars := map[string]any{"id": id, "content": content}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to update attributes for %s.%s: %w", meta.Ticker, meta.Market, err)
	}

	if meta.CapSource == models.TierSourceUnknown || meta.CapTier == models.TierUnknown {
		return nil
	}

	tierSQL := `UPDATE type::record('symbol', $id)
		SET tier = $tier, tier_source = $source, tier_updated_at = $now
		WHERE tier_source != $rank OR $source = $rank`
	tierVars := map[string]any{
		"id":     id,
		"tier":   string(meta.CapTier),
		"source": string(meta.CapSource),
		"rank":   string(models.TierSourceRankBased),
		"now":    time.Now().UTC(),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, tierSQL, tierVars); err != nil {
		return fmt.Errorf("failed to update tier for %s.%s: %w", meta.Ticker, meta.Market, err)
	}
	return nil
}

// Compile-time check
var _ interfaces.SymbolStore = (*SymbolStore)(nil)
