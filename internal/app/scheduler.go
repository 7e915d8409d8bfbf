package app

import (
	"context"
	"time"

	"github.com/bmcnabb/tickerwatch/internal/common"
	"github.com/bmcnabb/tickerwatch/internal/interfaces"
)

// startRankScheduler rebuilds rank classifications on a fixed interval so
// the authoritative tiers track index reconstitutions without operator
// intervention.
func startRankScheduler(ctx context.Context, rankService interfaces.RankService, logger *common.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Rank scheduler: stopped")
			return
		case <-ticker.C:
			refreshRanks(ctx, rankService, logger)
		}
	}
}

func refreshRanks(ctx context.Context, rankService interfaces.RankService, logger *common.Logger) {
	start := time.Now()

	markets := rankService.Markets()
	if len(markets) == 0 {
		return
	}

	for _, market := range markets {
		result, err := rankService.RebuildMarket(ctx, market)
		if err != nil {
			logger.Warn().Str("market", market).Err(err).Msg("Rank refresh: rebuild failed")
			continue
		}
		logger.Info().
			Str("market", market).
			Str("run_id", result.RunID).
			Str("status", string(result.Status)).
			Msg("Rank refresh: market rebuilt")
	}

	logger.Info().
		Int("markets", len(markets)).
		Dur("elapsed", time.Since(start)).
		Msg("Rank refresh: complete")
}
