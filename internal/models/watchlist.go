package models

import "time"

// WatchEntry is one watchlist row. The engine does not own watchlist CRUD;
// it only updates sector/tier enrichment on existing rows when the caller is
// authorized to persist.
type WatchEntry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Ticker      string    `json:"ticker"`
	Market      string    `json:"market"`
	DisplayName string    `json:"display_name,omitempty"`
	Sector      string    `json:"sector,omitempty"`
	CapTier     Tier      `json:"cap_tier,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}
