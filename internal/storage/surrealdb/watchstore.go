package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"

	"github.com/bmcnabb/tickerwatch/internal/common"
	"github.com/bmcnabb/tickerwatch/internal/interfaces"
	"github.com/bmcnabb/tickerwatch/internal/models"
)

// WatchStore implements interfaces.WatchStore using SurrealDB.
type WatchStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewWatchStore(db *surrealdb.DB, logger *common.Logger) *WatchStore {
	return &WatchStore{db: db, logger: logger}
}

func (s *WatchStore) Save(ctx context.Context, entry *models.WatchEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.Ticker = strings.ToUpper(entry.Ticker)
	entry.Market = strings.ToUpper(entry.Market)
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	sql := "UPSERT type::record('watch_entry', $id) CONTENT $entry"
	vars := map[string]any{"id": entry.ID, "entry": entry}

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.WatchEntry](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		if attempt == 3 {
			return fmt.Errorf("failed to save watch entry after retries: %w", err)
		}
	}
	return nil
}

func (s *WatchStore) ListByUser(ctx context.Context, userID string) ([]*models.WatchEntry, error) {
	sql := "SELECT * FROM watch_entry WHERE user_id = $user_id ORDER BY created_at ASC"
	vars := map[string]any{"user_id": userID}

	results, err := surrealdb.Query[[]models.WatchEntry](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list watch entries: %w", err)
	}

	if results != nil && len(*results) > 0 {
		var mapped []*models.WatchEntry
		for i := range (*results)[0].Result {
			mapped = append(mapped, &(*results)[0].Result[i])
		}
		return mapped, nil
	}
	return nil, nil
}

// UpdateEnrichmentBySymbol writes sector/tier onto every watch row holding
// the symbol, across all users.
func (s *WatchStore) UpdateEnrichmentBySymbol(ctx context.Context, ticker, market, sector string, tier models.Tier) (int, error) {
	sql := "UPDATE watch_entry SET sector = $sector, cap_tier = $tier, updated_at = $now WHERE ticker = $ticker AND market = $market"
	vars := map[string]any{
		"ticker": strings.ToUpper(ticker),
		"market": strings.ToUpper(market),
		"sector": sector,
		"tier":   string(tier),
		"now":    time.Now().UTC(),
	}

	results, err := surrealdb.Query[[]models.WatchEntry](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to update watch enrichment for %s.%s: %w", ticker, market, err)
	}

	count := 0
	if results != nil && len(*results) > 0 {
		count = len((*results)[0].Result)
	}
	return count, nil
}

// Compile-time check
var _ interfaces.WatchStore = (*WatchStore)(nil)
