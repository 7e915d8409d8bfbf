package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bmcnabb/tickerwatch/internal/clients/gemini"
	"github.com/bmcnabb/tickerwatch/internal/common"
	"github.com/bmcnabb/tickerwatch/internal/interfaces"
	"github.com/bmcnabb/tickerwatch/internal/models"
)

// Service implements EnrichService: the Attribute Reconciler.
type Service struct {
	store      interfaces.SymbolStore
	watch      interfaces.WatchStore
	quotes     interfaces.QuoteClient
	generative interfaces.GenerativeClient
	engine     *common.EngineConfig
	logger     *common.Logger

	strategies  []TierStrategy
	symbolFor   func(models.SymbolKey) string
	concurrency int
}

// NewService creates an attribute reconciliation service. generative may be
// nil; the last-resort sector fallback is then skipped.
func NewService(store interfaces.SymbolStore, watch interfaces.WatchStore, quotes interfaces.QuoteClient, generative interfaces.GenerativeClient, engine *common.EngineConfig, symbolFor func(models.SymbolKey) string, logger *common.Logger) *Service {
	concurrency := engine.FetchConcurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Service{
		store:       store,
		watch:       watch,
		quotes:      quotes,
		generative:  generative,
		engine:      engine,
		logger:      logger,
		strategies:  defaultStrategies(engine.LargeCapFloor, engine.MidCapFloor),
		symbolFor:   symbolFor,
		concurrency: concurrency,
	}
}

// Reconcile produces attribute metadata for every input symbol. Tier
// precedence is enforced by the ordered strategy fold; the sector chain is
// lookup table, then provider sector, then previously stored value, then one
// batched generative call for whatever is still unresolved. Persistence
// happens only when persist is true and never blocks sibling symbols.
func (s *Service) Reconcile(ctx context.Context, reqs []models.SymbolRequest, persist bool) []*models.AttributeMetadata {
	if len(reqs) == 0 {
		return nil
	}

	inputs := s.gather(ctx, reqs)

	results := make([]*models.AttributeMetadata, len(reqs))
	var unresolved []int // indexes still missing a sector

	for i, in := range inputs {
		meta := &models.AttributeMetadata{
			Ticker:    strings.ToUpper(in.Request.Ticker),
			Market:    strings.ToUpper(in.Request.Market),
			Name:      in.Request.DisplayName,
			CapTier:   models.TierUnknown,
			CapSource: models.TierSourceUnknown,
		}

		for _, strat := range s.strategies {
			if d, ok := strat.Classify(in); ok {
				meta.CapTier = d.Tier
				meta.CapSource = d.Source
				break
			}
		}

		if in.Provider != nil {
			meta.MarketCap = in.Provider.MarketCap
			meta.Industry = in.Provider.Industry
		}

		meta.Sector = s.resolveSector(in)
		if meta.Sector == "" {
			unresolved = append(unresolved, i)
		}

		results[i] = meta
	}

	if len(unresolved) > 0 {
		s.generativeSectors(ctx, inputs, results, unresolved)
	}

	if persist {
		s.persistAll(ctx, results)
	}

	return results
}

// gather loads stored rows, determines rank coverage per market, and fetches
// provider observations with bounded parallelism.
func (s *Service) gather(ctx context.Context, reqs []models.SymbolRequest) []*StrategyInput {
	keys := make([]models.SymbolKey, len(reqs))
	for i, r := range reqs {
		keys[i] = models.NewSymbolKey(r.Ticker, r.Market)
	}

	stored := map[models.SymbolKey]*models.Symbol{}
	if rows, err := s.store.GetBatch(ctx, keys); err != nil {
		s.logger.Warn().Err(err).Msg("Symbol batch read failed, reconciling without stored rows")
	} else {
		for _, row := range rows {
			stored[row.Key()] = row
		}
	}

	// A market counts as rank-covered only when it is configured for a rank
	// source and the Classification Writer has actually written for it.
	rankCovered := map[string]bool{}
	for _, k := range keys {
		if _, seen := rankCovered[k.Market]; seen {
			continue
		}
		covered := false
		if s.engine.RankMarket(k.Market) != nil {
			has, err := s.store.HasRankTiers(ctx, k.Market)
			if err != nil {
				s.logger.Warn().Str("market", k.Market).Err(err).Msg("Rank coverage check failed, assuming covered")
				has = true // fail safe: never let a guess overwrite rank ground truth
			}
			covered = has
		}
		rankCovered[k.Market] = covered
	}

	inputs := make([]*StrategyInput, len(reqs))
	for i := range reqs {
		inputs[i] = &StrategyInput{
			Request:     reqs[i],
			Stored:      stored[keys[i]],
			RankCovered: rankCovered[keys[i].Market],
		}
	}

	// Provider observations, bounded fan-out. A symbol whose tier is already
	// rank-based and whose sector is stored does not need a provider call.
	// Fetch goroutines publish through the buffered channel only; inputs is
	// written solely by this goroutine, so a batch abandoned on cancellation
	// leaves the stragglers with nothing shared to touch.
	type fetchResult struct {
		idx int
		obs *models.ProviderQuote
	}
	semaphore := make(chan struct{}, s.concurrency)
	fetched := make(chan fetchResult, len(inputs))
	dispatched := 0
	for i, in := range inputs {
		if s.quotes == nil || !s.needsProvider(in) {
			continue
		}
		dispatched++
		go func(idx int, key models.SymbolKey) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			obs, err := s.quotes.GetQuote(ctx, s.symbolFor(key))
			if err != nil {
				s.logger.Debug().Str("symbol", key.String()).Err(err).Msg("Provider hint fetch failed")
				obs = nil
			}
			fetched <- fetchResult{idx: idx, obs: obs}
		}(i, keys[i])
	}
	for n := 0; n < dispatched; n++ {
		select {
		case res := <-fetched:
			if res.obs != nil {
				inputs[res.idx].Provider = res.obs
			}
		case <-ctx.Done():
			return inputs
		}
	}

	return inputs
}

func (s *Service) needsProvider(in *StrategyInput) bool {
	if in.Stored == nil {
		return true
	}
	if in.Stored.TierSource != models.TierSourceRankBased && !in.RankCovered {
		return true
	}
	return in.Stored.Sector == ""
}

// resolveSector applies the structured chain short of the generative step.
func (s *Service) resolveSector(in *StrategyInput) string {
	if in.Provider != nil {
		if sector := SectorForIndustry(in.Provider.Industry); sector != "" {
			return sector
		}
		if in.Provider.Sector != "" {
			return in.Provider.Sector
		}
	}
	if in.Stored != nil && in.Stored.Sector != "" {
		return in.Stored.Sector
	}
	return ""
}

type generativeAttribute struct {
	Ticker   string `json:"ticker"`
	Market   string `json:"market"`
	Sector   string `json:"sector"`
	Industry string `json:"industry,omitempty"`
	Tier     string `json:"tier,omitempty"`
}

// generativeSectors resolves the remaining symbols with one batched call.
// The response may suggest a tier, but a suggestion is only accepted for a
// market without a rank-based source and only when no stronger source
// already answered — generative output never overrides rank ground truth.
func (s *Service) generativeSectors(ctx context.Context, inputs []*StrategyInput, results []*models.AttributeMetadata, unresolved []int) {
	if s.generative == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString("Classify these listed companies. Respond with a single JSON array, one object per company: ")
	sb.WriteString(`[{"ticker": "...", "market": "...", "sector": "...", "industry": "...", "tier": "large|mid|small"}]` + "\n")
	sb.WriteString("Echo the ticker and market exactly as given; the same ticker may be listed on more than one market.\n")
	sb.WriteString("Use GICS-style sector names (Technology, Financials, Healthcare, Industrials, Materials, Energy, Utilities, Real Estate, Consumer Cyclical, Consumer Defensive, Communication Services).\n\nCompanies:\n")
	for _, i := range unresolved {
		r := inputs[i].Request
		name := r.DisplayName
		if name == "" {
			name = r.Ticker
		}
		fmt.Fprintf(&sb, "- %s (%s, %s)\n", name, strings.ToUpper(r.Ticker), strings.ToUpper(r.Market))
	}

	response, err := s.generative.GenerateContent(ctx, sb.String())
	if err != nil {
		s.logger.Warn().Int("symbols", len(unresolved)).Err(err).Msg("Generative sector fallback failed")
		return
	}

	var parsed []generativeAttribute
	if err := json.Unmarshal([]byte(gemini.ExtractJSON(response)), &parsed); err != nil {
		s.logger.Warn().Err(err).Msg("Generative sector response unparseable")
		return
	}

	// Match responses back by (ticker, market): tickers are not globally
	// unique, so a bare-ticker entry is honored only when the ticker appears
	// once in the unresolved set.
	byKey := make(map[models.SymbolKey]*generativeAttribute, len(parsed))
	for i := range parsed {
		byKey[models.NewSymbolKey(parsed[i].Ticker, parsed[i].Market)] = &parsed[i]
	}
	tickerCount := map[string]int{}
	for _, i := range unresolved {
		tickerCount[results[i].Ticker]++
	}

	for _, i := range unresolved {
		meta := results[i]
		attr, ok := byKey[models.NewSymbolKey(meta.Ticker, meta.Market)]
		if !ok && tickerCount[meta.Ticker] == 1 {
			attr, ok = byKey[models.NewSymbolKey(meta.Ticker, "")]
		}
		if !ok {
			continue
		}
		if attr.Sector != "" {
			meta.Sector = attr.Sector
		}
		if attr.Industry != "" && meta.Industry == "" {
			meta.Industry = attr.Industry
		}

		// Never-override invariant: a generative tier is accepted only for
		// markets without a rank source and only when nothing stronger
		// answered.
		if inputs[i].RankCovered || meta.CapSource != models.TierSourceUnknown {
			continue
		}
		switch models.Tier(strings.ToLower(attr.Tier)) {
		case models.TierLarge, models.TierMid, models.TierSmall:
			meta.CapTier = models.Tier(strings.ToLower(attr.Tier))
			meta.CapSource = models.TierSourceGenerative
		}
	}
}

// persistAll writes each symbol's attributes independently; one failure is
// logged and never blocks the rest of the batch.
func (s *Service) persistAll(ctx context.Context, results []*models.AttributeMetadata) {
	start := time.Now()
	failed := 0
	for _, meta := range results {
		if err := s.store.UpdateAttributes(ctx, meta); err != nil {
			failed++
			s.logger.Warn().Str("ticker", meta.Ticker).Str("market", meta.Market).Err(err).Msg("Attribute persist failed")
			continue
		}
		if s.watch != nil && (meta.Sector != "" || meta.CapTier != models.TierUnknown) {
			if _, err := s.watch.UpdateEnrichmentBySymbol(ctx, meta.Ticker, meta.Market, meta.Sector, meta.CapTier); err != nil {
				s.logger.Debug().Str("ticker", meta.Ticker).Err(err).Msg("Watchlist enrichment update failed")
			}
		}
	}
	s.logger.Info().Int("symbols", len(results)).Int("failed", failed).Dur("elapsed", time.Since(start)).Msg("Attribute batch persisted")
}

// Ensure Service implements EnrichService
var _ interfaces.EnrichService = (*Service)(nil)
