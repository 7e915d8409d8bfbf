package rank

import (
	"context"
	"strings"
	"time"

	"github.com/bmcnabb/tickerwatch/internal/common"
	"github.com/bmcnabb/tickerwatch/internal/interfaces"
	"github.com/bmcnabb/tickerwatch/internal/models"
)

// DefaultChunkSize bounds one bulk storage write.
const DefaultChunkSize = 500

// Writer partitions a market's symbol universe into rank tiers and persists
// the assignments in bulk. The write is best-effort per chunk, not a single
// atomic transaction.
type Writer struct {
	store     interfaces.SymbolStore
	logger    *common.Logger
	chunkSize int
	now       func() time.Time
}

// NewWriter creates a classification writer.
func NewWriter(store interfaces.SymbolStore, logger *common.Logger, chunkSize int) *Writer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Writer{
		store:     store,
		logger:    logger,
		chunkSize: chunkSize,
		now:       time.Now,
	}
}

// ApplyRankLists classifies every symbol known for the market: members of
// the Large/Mid sets get their tier, everything else is Small — an explicit
// default, not an omission. Assignments are written with source=rank-based
// in fixed-size chunks; a chunk failure is counted and logged but does not
// abort the remaining chunks.
func (w *Writer) ApplyRankLists(ctx context.Context, lists *models.RankList) (*models.BulkWriteReport, error) {
	universe, err := w.store.ListByMarket(ctx, lists.Market)
	if err != nil {
		return nil, err
	}

	largeSet := lists.LargeSet()
	midSet := lists.MidSet()
	now := w.now()

	report := &models.BulkWriteReport{Market: lists.Market}
	assignments := make([]*models.TierAssignment, 0, len(universe))
	for _, sym := range universe {
		ticker := strings.ToUpper(sym.Ticker)
		tier := models.TierSmall
		switch {
		case largeSet[ticker]:
			tier = models.TierLarge
			report.LargeCount++
		case midSet[ticker]:
			tier = models.TierMid
			report.MidCount++
		default:
			report.SmallCount++
		}
		assignments = append(assignments, &models.TierAssignment{
			Ticker:    ticker,
			Market:    lists.Market,
			Tier:      tier,
			Source:    models.TierSourceRankBased,
			UpdatedAt: now,
		})
	}

	for start := 0; start < len(assignments); start += w.chunkSize {
		end := start + w.chunkSize
		if end > len(assignments) {
			end = len(assignments)
		}
		chunk := assignments[start:end]
		report.Chunks++

		if err := w.store.UpsertTiers(ctx, chunk); err != nil {
			report.Failed += len(chunk)
			w.logger.Error().
				Str("market", lists.Market).
				Int("chunk", report.Chunks).
				Int("size", len(chunk)).
				Err(err).
				Msg("Tier chunk write failed, continuing with remaining chunks")
			continue
		}
		report.Updated += len(chunk)
	}

	w.logger.Info().
		Str("market", lists.Market).
		Int("large", report.LargeCount).
		Int("mid", report.MidCount).
		Int("small", report.SmallCount).
		Int("updated", report.Updated).
		Int("failed", report.Failed).
		Msg("Rank classification written")

	return report, nil
}
