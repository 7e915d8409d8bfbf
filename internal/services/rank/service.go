package rank

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/bmcnabb/tickerwatch/internal/common"
	"github.com/bmcnabb/tickerwatch/internal/interfaces"
	"github.com/bmcnabb/tickerwatch/internal/models"
)

// Service runs the full build-validate-write rank cycle per market.
type Service struct {
	builder *Builder
	writer  *Writer
	engine  *common.EngineConfig
	logger  *common.Logger
}

// NewService creates a rank service.
func NewService(builder *Builder, writer *Writer, engine *common.EngineConfig, logger *common.Logger) *Service {
	return &Service{
		builder: builder,
		writer:  writer,
		engine:  engine,
		logger:  logger,
	}
}

// Markets returns the markets with a configured authoritative rank source.
func (s *Service) Markets() []string {
	out := make([]string, 0, len(s.engine.RankMarkets))
	for _, rm := range s.engine.RankMarkets {
		out = append(out, rm.Market)
	}
	return out
}

// RebuildMarket builds the rank lists for a market and, when they pass the
// validation gate, fans the classification out to the symbol universe.
// Insufficient data blocks the write and leaves previously persisted tiers
// untouched; it is surfaced as an explicit status, never as a silent empty
// result.
func (s *Service) RebuildMarket(ctx context.Context, market string) (*models.RankRebuildResult, error) {
	result := &models.RankRebuildResult{
		RunID:  uuid.NewString(),
		Market: market,
	}

	cfg := s.engine.RankMarket(market)
	if cfg == nil {
		result.Status = models.RankRebuildFailed
		result.Error = "no rank source configured for market"
		return result, errors.New(result.Error)
	}

	s.logger.Info().Str("run_id", result.RunID).Str("market", market).Msg("Starting rank rebuild")

	lists, err := s.builder.BuildRankLists(ctx, cfg)
	if err != nil {
		if errors.Is(err, ErrInsufficientRankData) {
			result.Status = models.RankRebuildInsufficient
			result.Error = err.Error()
			s.logger.Warn().Str("run_id", result.RunID).Str("market", market).Err(err).Msg("Rank rebuild blocked: insufficient data")
			return result, err
		}
		result.Status = models.RankRebuildFailed
		result.Error = err.Error()
		return result, err
	}
	result.Lists = lists

	report, err := s.writer.ApplyRankLists(ctx, lists)
	if err != nil {
		result.Status = models.RankRebuildFailed
		result.Error = err.Error()
		return result, err
	}
	result.Report = report
	result.Status = models.RankRebuildOK

	s.logger.Info().
		Str("run_id", result.RunID).
		Str("market", market).
		Str("large_source", string(lists.LargeSource)).
		Str("mid_source", string(lists.MidSource)).
		Int("updated", report.Updated).
		Msg("Rank rebuild complete")

	return result, nil
}

// Ensure Service implements RankService
var _ interfaces.RankService = (*Service)(nil)
