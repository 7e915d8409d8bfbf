// Package models defines the core data types for Tickerwatch
package models

import (
	"fmt"
	"strings"
	"time"
)

// SymbolKey identifies one tradable instrument. Tickers are not globally
// unique; the market qualifier is mandatory everywhere.
type SymbolKey struct {
	Ticker string `json:"ticker"`
	Market string `json:"market"`
}

// NewSymbolKey builds a normalized (uppercased, trimmed) symbol key.
func NewSymbolKey(ticker, market string) SymbolKey {
	return SymbolKey{
		Ticker: strings.ToUpper(strings.TrimSpace(ticker)),
		Market: strings.ToUpper(strings.TrimSpace(market)),
	}
}

// String returns the canonical "TICKER.MARKET" form used as a map/cache key.
func (k SymbolKey) String() string {
	return fmt.Sprintf("%s.%s", k.Ticker, k.Market)
}

// Quote is a reconciled price snapshot for a symbol. When MarketClosed is
// true, Price still reflects the last known traded price whenever any
// historical quote existed.
type Quote struct {
	Ticker        string    `json:"ticker"`
	Market        string    `json:"market"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	PreviousClose float64   `json:"previous_close"`
	MarketClosed  bool      `json:"market_closed"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// ProviderQuote is the raw observation returned by the upstream quote
// provider. Any numeric field may be zero/absent to signal no data.
type ProviderQuote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	MarketCap     float64   `json:"market_cap"`
	Sector        string    `json:"sector"`
	Industry      string    `json:"industry"`
	ObservedAt    time.Time `json:"observed_at"`
}

// HasPrice reports whether the observation carries a usable current price.
func (q *ProviderQuote) HasPrice() bool {
	return q != nil && q.Price > 0
}

// HasPreviousClose reports whether the observation carries a usable previous close.
func (q *ProviderQuote) HasPreviousClose() bool {
	return q != nil && q.PreviousClose > 0
}
