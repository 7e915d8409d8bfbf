// Package quote reconciles cached and freshly fetched quotes for batches of
// symbols, with a market-status heuristic and a staleness-aware cache.
package quote

import (
	"time"

	"github.com/bmcnabb/tickerwatch/internal/models"
)

// Classify turns a raw provider observation into a Quote, inferring whether
// the market is closed. It returns ok=false when the observation carries no
// usable price at all; the caller must then fall back to the cache.
//
// The market-closed heuristic, in order:
//  1. no usable current price and no usable previous close -> no data
//  2. display price is the current price, else the previous close
//  3. an observation older than staleAfter means the provider handed back a
//     previous-session figure, so the market is treated as closed even when
//     the price itself is nonzero
//  4. a current price exactly at the previous close with zero reported
//     change also means closed
func Classify(key models.SymbolKey, obs *models.ProviderQuote, now time.Time, staleAfter time.Duration) (*models.Quote, bool) {
	if obs == nil || (!obs.HasPrice() && !obs.HasPreviousClose()) {
		return nil, false
	}

	displayPrice := obs.Price
	if !obs.HasPrice() {
		displayPrice = obs.PreviousClose
	}

	isStale := obs.ObservedAt.IsZero() || now.Sub(obs.ObservedAt) > staleAfter
	isUnchanged := obs.Change == 0 && obs.ChangePercent == 0

	closed := !obs.HasPrice() ||
		isStale ||
		(obs.HasPrice() && obs.HasPreviousClose() && obs.Price == obs.PreviousClose && isUnchanged)

	var change, changePct float64
	switch {
	case obs.HasPrice() && obs.HasPreviousClose():
		// Prefer the upstream-supplied change figures when present.
		change = obs.Change
		changePct = obs.ChangePercent
		if change == 0 && changePct == 0 && obs.Price != obs.PreviousClose {
			change = obs.Price - obs.PreviousClose
			changePct = (change / obs.PreviousClose) * 100
		}
	case obs.HasPrice():
		change = obs.Change
		changePct = obs.ChangePercent
	default:
		// Previous close only: there is no current-session movement to report.
		change = 0
		changePct = 0
	}

	observedAt := obs.ObservedAt
	if observedAt.IsZero() {
		observedAt = now
	}

	return &models.Quote{
		Ticker:        key.Ticker,
		Market:        key.Market,
		Price:         displayPrice,
		Change:        change,
		ChangePercent: changePct,
		PreviousClose: obs.PreviousClose,
		MarketClosed:  closed,
		LastUpdatedAt: observedAt,
	}, true
}
