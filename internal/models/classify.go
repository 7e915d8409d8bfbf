package models

import "time"

// Tier is the market-capitalization tier of a symbol.
type Tier string

const (
	TierLarge   Tier = "large"
	TierMid     Tier = "mid"
	TierSmall   Tier = "small"
	TierUnknown Tier = "unknown"
)

// TierSource records how a tier was determined. Rank-based assignments are
// ground truth and are never downgraded by threshold or generative passes.
type TierSource string

const (
	TierSourceRankBased  TierSource = "rank-based"
	TierSourceThreshold  TierSource = "threshold"
	TierSourceGenerative TierSource = "generative"
	TierSourceUnknown    TierSource = "unknown"
)

// RankProvenance records which path produced a rank list tier.
type RankProvenance string

const (
	RankSourceOfficial   RankProvenance = "official"
	RankSourceGenerative RankProvenance = "generative-fallback"
)

// RankList holds the canonical Large/Mid member sets for one market,
// produced per compute cycle. Large and Mid are disjoint; any symbol in
// neither is implicitly Small.
type RankList struct {
	Market      string         `json:"market"`
	Large       []string       `json:"large"`
	Mid         []string       `json:"mid"`
	LargeSource RankProvenance `json:"large_source"`
	MidSource   RankProvenance `json:"mid_source"`
	BuiltAt     time.Time      `json:"built_at"`
}

// LargeSet returns the Large members as a lookup set.
func (r *RankList) LargeSet() map[string]bool {
	return toSet(r.Large)
}

// MidSet returns the Mid members as a lookup set.
func (r *RankList) MidSet() map[string]bool {
	return toSet(r.Mid)
}

func toSet(members []string) map[string]bool {
	set := make(map[string]bool, len(members))
	for _, m := range members {
		set[m] = true
	}
	return set
}

// TierAssignment is the persisted tier for one (ticker, market) pair.
type TierAssignment struct {
	Ticker    string     `json:"ticker"`
	Market    string     `json:"market"`
	Tier      Tier       `json:"tier"`
	Source    TierSource `json:"source"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// BulkWriteReport summarizes a chunked bulk tier write so callers can detect
// partial failure.
type BulkWriteReport struct {
	Market     string `json:"market"`
	LargeCount int    `json:"large_count"`
	MidCount   int    `json:"mid_count"`
	SmallCount int    `json:"small_count"`
	Updated    int    `json:"updated"`
	Failed     int    `json:"failed"`
	Chunks     int    `json:"chunks"`
}

// RankRebuildStatus describes the outcome of a rank rebuild cycle.
type RankRebuildStatus string

const (
	RankRebuildOK           RankRebuildStatus = "ok"
	RankRebuildInsufficient RankRebuildStatus = "insufficient_data"
	RankRebuildFailed       RankRebuildStatus = "failed"
)

// RankRebuildResult is the outcome of building and applying rank lists for
// one market.
type RankRebuildResult struct {
	RunID  string            `json:"run_id"`
	Market string            `json:"market"`
	Status RankRebuildStatus `json:"status"`
	Lists  *RankList         `json:"lists,omitempty"`
	Report *BulkWriteReport  `json:"report,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// SymbolRequest is one entry in an attribute reconciliation batch.
type SymbolRequest struct {
	Ticker      string `json:"ticker"`
	Market      string `json:"market"`
	DisplayName string `json:"display_name,omitempty"`
}

// AttributeMetadata is the output contract of the Attribute Reconciler.
// It is built per request and is not itself a stored entity.
type AttributeMetadata struct {
	Ticker    string     `json:"ticker"`
	Market    string     `json:"market"`
	Name      string     `json:"name,omitempty"`
	Sector    string     `json:"sector,omitempty"`
	Industry  string     `json:"industry,omitempty"`
	MarketCap float64    `json:"market_cap,omitempty"`
	CapTier   Tier       `json:"cap_tier"`
	CapSource TierSource `json:"cap_source"`
}
