package enrich

import (
	"github.com/bmcnabb/tickerwatch/internal/models"
)

// TierDecision is one strategy's answer for a symbol's capitalization tier.
type TierDecision struct {
	Tier   models.Tier
	Source models.TierSource
}

// StrategyInput is everything a tier strategy may consult for one symbol.
type StrategyInput struct {
	Request models.SymbolRequest

	// Stored is the persisted symbol row, nil when the symbol is unknown.
	Stored *models.Symbol

	// Provider is the live quote observation, nil when the fetch failed.
	Provider *models.ProviderQuote

	// RankCovered reports whether the symbol's market has an authoritative
	// rank-based classification source that has actually run.
	RankCovered bool
}

// TierStrategy attempts to classify one symbol's tier. The reconciler folds
// over an ordered strategy list taking the first answer, which makes the
// source-precedence invariant structural rather than convention-based.
type TierStrategy interface {
	Name() string
	Classify(in *StrategyInput) (TierDecision, bool)
}

// storedRankStrategy serves the persisted rank-based tier. It is first in
// the fold: once a symbol carries source=rank-based, nothing downstream can
// change it.
type storedRankStrategy struct{}

func (storedRankStrategy) Name() string { return "stored-rank" }

func (storedRankStrategy) Classify(in *StrategyInput) (TierDecision, bool) {
	if in.Stored == nil || in.Stored.TierSource != models.TierSourceRankBased {
		return TierDecision{}, false
	}
	return TierDecision{Tier: in.Stored.Tier, Source: models.TierSourceRankBased}, true
}

// thresholdStrategy classifies by raw market capitalization against fixed
// cutoffs. It never applies to a rank-covered market: an absent stored row
// there means the symbol is pending the next rank write, not fair game for
// a live-quote guess.
type thresholdStrategy struct {
	largeFloor float64
	midFloor   float64
}

func (thresholdStrategy) Name() string { return "cap-threshold" }

func (s thresholdStrategy) Classify(in *StrategyInput) (TierDecision, bool) {
	if in.RankCovered {
		return TierDecision{}, false
	}
	if in.Provider == nil || in.Provider.MarketCap <= 0 {
		return TierDecision{}, false
	}

	tier := models.TierSmall
	switch {
	case in.Provider.MarketCap >= s.largeFloor:
		tier = models.TierLarge
	case in.Provider.MarketCap >= s.midFloor:
		tier = models.TierMid
	}
	return TierDecision{Tier: tier, Source: models.TierSourceThreshold}, true
}

// storedTierStrategy reuses any previously persisted non-rank tier so a
// transient provider outage does not flap a symbol back to unknown.
type storedTierStrategy struct{}

func (storedTierStrategy) Name() string { return "stored-tier" }

func (storedTierStrategy) Classify(in *StrategyInput) (TierDecision, bool) {
	if in.Stored == nil || in.Stored.Tier == "" || in.Stored.Tier == models.TierUnknown {
		return TierDecision{}, false
	}
	return TierDecision{Tier: in.Stored.Tier, Source: in.Stored.TierSource}, true
}

// defaultStrategies returns the ordered fold for the reconciler.
func defaultStrategies(largeFloor, midFloor float64) []TierStrategy {
	return []TierStrategy{
		storedRankStrategy{},
		thresholdStrategy{largeFloor: largeFloor, midFloor: midFloor},
		storedTierStrategy{},
	}
}
