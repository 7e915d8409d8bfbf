package models

import "time"

// Symbol is one row of the persisted symbol universe, keyed by
// (ticker, market).
type Symbol struct {
	Ticker         string     `json:"ticker"`
	Market         string     `json:"market"`
	Name           string     `json:"name,omitempty"`
	Sector         string     `json:"sector,omitempty"`
	Industry       string     `json:"industry,omitempty"`
	Tier           Tier       `json:"tier,omitempty"`
	TierSource     TierSource `json:"tier_source,omitempty"`
	TierUpdatedAt  time.Time  `json:"tier_updated_at,omitempty"`
	LastEnrichedAt time.Time  `json:"last_enriched_at,omitempty"`
}

// Key returns the symbol's key.
func (s *Symbol) Key() SymbolKey {
	return NewSymbolKey(s.Ticker, s.Market)
}
