package quote

import (
	"context"
	"time"

	"github.com/bmcnabb/tickerwatch/internal/common"
	"github.com/bmcnabb/tickerwatch/internal/interfaces"
	"github.com/bmcnabb/tickerwatch/internal/models"
)

// Service implements QuoteService: request-scoped parallel fan-out over a
// symbol batch, merging cache hits with fresh fetches and degrading to
// last-known-good data on fetch failure.
type Service struct {
	client interfaces.QuoteClient
	cache  *Cache
	logger *common.Logger

	symbolFor     func(models.SymbolKey) string
	staleAfter    time.Duration
	concurrency   int
	retryDebounce time.Duration

	now func() time.Time // injectable clock for testing
}

// Options tunes the service. Zero values fall back to the engine defaults.
type Options struct {
	StalenessThreshold time.Duration
	Concurrency        int
	RetryDebounce      time.Duration
}

// NewService creates a quote reconciliation service. symbolFor maps a symbol
// key to the provider's symbol string.
func NewService(client interfaces.QuoteClient, cache *Cache, symbolFor func(models.SymbolKey) string, logger *common.Logger, opts Options) *Service {
	s := &Service{
		client:        client,
		cache:         cache,
		logger:        logger,
		symbolFor:     symbolFor,
		staleAfter:    opts.StalenessThreshold,
		concurrency:   opts.Concurrency,
		retryDebounce: opts.RetryDebounce,
		now:           time.Now,
	}
	if s.staleAfter <= 0 {
		s.staleAfter = time.Hour
	}
	if s.concurrency <= 0 {
		s.concurrency = 5
	}
	if s.retryDebounce <= 0 {
		s.retryDebounce = 15 * time.Second
	}
	return s
}

// GetQuotes resolves a batch of symbols to quotes. A symbol is absent from
// the result only when no data has ever been obtained for it — a price is
// never fabricated. Already-resolved symbols are returned even when the
// caller's context is cancelled mid-batch.
func (s *Service) GetQuotes(ctx context.Context, keys []models.SymbolKey) map[string]*models.Quote {
	results := make(map[string]*models.Quote, len(keys))
	if len(keys) == 0 {
		return results
	}

	type symbolResult struct {
		key   models.SymbolKey
		quote *models.Quote
	}

	// Bounded fan-out: at most s.concurrency upstream calls in flight.
	semaphore := make(chan struct{}, s.concurrency)
	resultChan := make(chan symbolResult, len(keys))

	for _, key := range keys {
		go func(k models.SymbolKey) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			resultChan <- symbolResult{key: k, quote: s.resolve(ctx, k)}
		}(key)
	}

	for range keys {
		select {
		case r := <-resultChan:
			if r.quote != nil {
				results[r.key.String()] = r.quote
			}
		case <-ctx.Done():
			// Return whatever has resolved so far rather than discarding
			// all progress.
			s.logger.Warn().Int("resolved", len(results)).Int("requested", len(keys)).Msg("Quote batch cancelled, returning partial results")
			return results
		}
	}

	return results
}

// resolve applies the per-symbol algorithm: fresh cache hit, else fetch and
// classify, else degrade to the expired entry with market-closed forced.
func (s *Service) resolve(ctx context.Context, key models.SymbolKey) *models.Quote {
	entry, cached := s.cache.Get(key)
	if cached && s.cache.Fresh(entry) {
		q := entry.Quote
		return &q
	}

	// A recent failed fetch debounces further attempts; serve the stale
	// entry (if any) without touching the upstream.
	if !s.cache.RetryAllowed(key) {
		return s.degraded(key, entry)
	}

	// No provider configured: last-known-good is all there is.
	if s.client == nil {
		return s.degraded(key, entry)
	}

	obs, err := s.client.GetQuote(ctx, s.symbolFor(key))
	if err != nil {
		s.logger.Warn().Str("symbol", key.String()).Err(err).Msg("Quote fetch failed, degrading to cache")
		s.cache.Debounce(key, s.now().Add(s.retryDebounce))
		return s.degraded(key, entry)
	}

	quote, ok := Classify(key, obs, s.now(), s.staleAfter)
	if !ok {
		// Provider answered but carried no usable data.
		s.cache.Debounce(key, s.now().Add(s.retryDebounce))
		return s.degraded(key, entry)
	}

	s.cache.Put(key, *quote)
	return quote
}

// degraded returns the last-known-good quote with MarketClosed forced true,
// resubmitting it to the cache so siblings see the reduced-confidence value.
// Returns nil when nothing was ever cached for the key.
func (s *Service) degraded(key models.SymbolKey, entry *Entry) *models.Quote {
	if entry == nil || entry.StoredAt.IsZero() || entry.Quote.Price == 0 {
		return nil
	}

	forced := entry.Quote
	if !forced.MarketClosed {
		forced.MarketClosed = true
		s.cache.Put(key, forced)
		s.cache.Debounce(key, s.now().Add(s.retryDebounce))
	}
	return &forced
}

// Ensure Service implements QuoteService
var _ interfaces.QuoteService = (*Service)(nil)
