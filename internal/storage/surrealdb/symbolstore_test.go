package surrealdb

import (
	"context"
	"testing"
	"time"

	"github.com/bmcnabb/tickerwatch/internal/models"
)

func TestSymbolStore_SaveAndGet(t *testing.T) {
	db := testDB(t)
	store := NewSymbolStore(db, testLogger())
	ctx := context.Background()

	sym := &models.Symbol{
		Ticker:     "005930",
		Market:     "KOSPI",
		Name:       "Samsung Electronics",
		Sector:     "Technology",
		Industry:   "Semiconductors",
		Tier:       models.TierLarge,
		TierSource: models.TierSourceRankBased,
	}

	if err := store.Save(ctx, sym); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "005930", "KOSPI")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected symbol, got nil")
	}
	if got.Name != "Samsung Electronics" {
		t.Errorf("expected name Samsung Electronics, got %s", got.Name)
	}
	if got.Tier != models.TierLarge {
		t.Errorf("expected tier large, got %s", got.Tier)
	}
	if got.TierSource != models.TierSourceRankBased {
		t.Errorf("expected source rank-based, got %s", got.TierSource)
	}
}

func TestSymbolStore_GetMissingReturnsNil(t *testing.T) {
	db := testDB(t)
	store := NewSymbolStore(db, testLogger())

	got, err := store.Get(context.Background(), "NOPE", "KOSPI")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for absent symbol, got %+v", got)
	}
}

func TestSymbolStore_GetBatchOmitsAbsent(t *testing.T) {
	db := testDB(t)
	store := NewSymbolStore(db, testLogger())
	ctx := context.Background()

	store.Save(ctx, &models.Symbol{Ticker: "AAPL", Market: "NASDAQ"})
	store.Save(ctx, &models.Symbol{Ticker: "MSFT", Market: "NASDAQ"})

	rows, err := store.GetBatch(ctx, []models.SymbolKey{
		models.NewSymbolKey("AAPL", "NASDAQ"),
		models.NewSymbolKey("MSFT", "NASDAQ"),
		models.NewSymbolKey("GONE", "NASDAQ"),
	})
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}

func TestSymbolStore_UpsertTiersAndHasRankTiers(t *testing.T) {
	db := testDB(t)
	store := NewSymbolStore(db, testLogger())
	ctx := context.Background()

	has, err := store.HasRankTiers(ctx, "KOSPI")
	if err != nil {
		t.Fatalf("HasRankTiers failed: %v", err)
	}
	if has {
		t.Error("expected no rank tiers before first write")
	}

	now := time.Now().UTC()
	assignments := []*models.TierAssignment{
		{Ticker: "005930", Market: "KOSPI", Tier: models.TierLarge, Source: models.TierSourceRankBased, UpdatedAt: now},
		{Ticker: "035420", Market: "KOSPI", Tier: models.TierMid, Source: models.TierSourceRankBased, UpdatedAt: now},
		{Ticker: "123456", Market: "KOSPI", Tier: models.TierSmall, Source: models.TierSourceRankBased, UpdatedAt: now},
	}
	if err := store.UpsertTiers(ctx, assignments); err != nil {
		t.Fatalf("UpsertTiers failed: %v", err)
	}

	has, err = store.HasRankTiers(ctx, "KOSPI")
	if err != nil {
		t.Fatalf("HasRankTiers failed: %v", err)
	}
	if !has {
		t.Error("expected rank tiers after write")
	}

	rows, err := store.ListByMarket(ctx, "KOSPI")
	if err != nil {
		t.Fatalf("ListByMarket failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
}

func TestSymbolStore_UpsertTiersPreservesAttributes(t *testing.T) {
	db := testDB(t)
	store := NewSymbolStore(db, testLogger())
	ctx := context.Background()

	store.Save(ctx, &models.Symbol{
		Ticker: "005930", Market: "KOSPI",
		Sector: "Technology", Industry: "Semiconductors",
	})

	err := store.UpsertTiers(ctx, []*models.TierAssignment{
		{Ticker: "005930", Market: "KOSPI", Tier: models.TierLarge, Source: models.TierSourceRankBased, UpdatedAt: time.Now().UTC()},
	})
	if err != nil {
		t.Fatalf("UpsertTiers failed: %v", err)
	}

	got, err := store.Get(ctx, "005930", "KOSPI")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Sector != "Technology" {
		t.Errorf("expected sector preserved through tier rewrite, got %q", got.Sector)
	}
	if got.Tier != models.TierLarge {
		t.Errorf("expected tier large, got %s", got.Tier)
	}
}

func TestSymbolStore_UpdateAttributesGuardsRankTier(t *testing.T) {
	db := testDB(t)
	store := NewSymbolStore(db, testLogger())
	ctx := context.Background()

	err := store.UpsertTiers(ctx, []*models.TierAssignment{
		{Ticker: "005930", Market: "KOSPI", Tier: models.TierLarge, Source: models.TierSourceRankBased, UpdatedAt: time.Now().UTC()},
	})
	if err != nil {
		t.Fatalf("UpsertTiers failed: %v", err)
	}

	// A generative-sourced tier must not displace the rank-based one.
	err = store.UpdateAttributes(ctx, &models.AttributeMetadata{
		Ticker: "005930", Market: "KOSPI",
		Sector:    "Technology",
		CapTier:   models.TierSmall,
		CapSource: models.TierSourceGenerative,
	})
	if err != nil {
		t.Fatalf("UpdateAttributes failed: %v", err)
	}

	got, err := store.Get(ctx, "005930", "KOSPI")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Tier != models.TierLarge || got.TierSource != models.TierSourceRankBased {
		t.Errorf("rank-based tier displaced: tier=%s source=%s", got.Tier, got.TierSource)
	}
	if got.Sector != "Technology" {
		t.Errorf("expected sector written, got %q", got.Sector)
	}

	// A fresh rank-based write still goes through.
	err = store.UpdateAttributes(ctx, &models.AttributeMetadata{
		Ticker: "005930", Market: "KOSPI",
		CapTier:   models.TierMid,
		CapSource: models.TierSourceRankBased,
	})
	if err != nil {
		t.Fatalf("UpdateAttributes failed: %v", err)
	}
	got, _ = store.Get(ctx, "005930", "KOSPI")
	if got.Tier != models.TierMid {
		t.Errorf("expected rank-based rewrite to apply, got %s", got.Tier)
	}
}

func TestSymbolStore_UpdateAttributesThresholdTier(t *testing.T) {
	db := testDB(t)
	store := NewSymbolStore(db, testLogger())
	ctx := context.Background()

	err := store.UpdateAttributes(ctx, &models.AttributeMetadata{
		Ticker: "AAPL", Market: "NASDAQ",
		Sector:    "Technology",
		Industry:  "Consumer Electronics",
		CapTier:   models.TierLarge,
		CapSource: models.TierSourceThreshold,
	})
	if err != nil {
		t.Fatalf("UpdateAttributes failed: %v", err)
	}

	got, err := store.Get(ctx, "AAPL", "NASDAQ")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected row created by attribute upsert")
	}
	if got.Tier != models.TierLarge || got.TierSource != models.TierSourceThreshold {
		t.Errorf("expected threshold tier, got tier=%s source=%s", got.Tier, got.TierSource)
	}
	if got.LastEnrichedAt.IsZero() {
		t.Error("expected LastEnrichedAt to be set")
	}
}
