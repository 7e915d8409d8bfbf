package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/bmcnabb/tickerwatch/internal/models"
)

const apiVersion = "v1"

// --- Quote handlers ---

type quoteRequest struct {
	Symbols []models.SymbolRequest `json:"symbols"`
}

// handleQuotes serves POST /api/quotes: batch symbols in, quote map out.
// Symbols for which no data has ever been obtained are listed in "missing"
// rather than failing the batch.
func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req quoteRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.Symbols) == 0 {
		WriteError(w, http.StatusBadRequest, "symbols is required")
		return
	}

	keys := make([]models.SymbolKey, 0, len(req.Symbols))
	for _, sym := range req.Symbols {
		if sym.Ticker == "" || sym.Market == "" {
			WriteError(w, http.StatusBadRequest, "each symbol requires ticker and market")
			return
		}
		keys = append(keys, models.NewSymbolKey(sym.Ticker, sym.Market))
	}

	quotes := s.app.QuoteService.GetQuotes(r.Context(), keys)

	var missing []string
	for _, k := range keys {
		if _, ok := quotes[k.String()]; !ok {
			missing = append(missing, k.String())
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version": apiVersion,
		"quotes":  quotes,
		"missing": missing,
	})
}

// --- Attribute handlers ---

type attributeRequest struct {
	Symbols []models.SymbolRequest `json:"symbols"`
	Persist bool                   `json:"persist"`
}

// handleAttributes serves POST /api/attributes. Persistence requires a
// bearer token with the enrich:persist scope; an unauthorized caller still
// receives the reconciled metadata.
func (s *Server) handleAttributes(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req attributeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.Symbols) == 0 {
		WriteError(w, http.StatusBadRequest, "symbols is required")
		return
	}
	for _, sym := range req.Symbols {
		if sym.Ticker == "" || sym.Market == "" {
			WriteError(w, http.StatusBadRequest, "each symbol requires ticker and market")
			return
		}
	}

	persist := req.Persist && PersistAuthorized(r.Context())
	attrs := s.app.EnrichService.Reconcile(r.Context(), req.Symbols, persist)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":    apiVersion,
		"attributes": attrs,
		"persisted":  persist,
	})
}

// --- Rank handlers ---

type rankRebuildRequest struct {
	Market string `json:"market"`
}

// handleRankRebuild serves POST /api/rank/rebuild. With an empty market the
// rebuild runs for every configured rank market; per-market outcomes are
// reported individually so one failed market does not mask the others.
func (s *Server) handleRankRebuild(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req rankRebuildRequest
	if r.Body != nil && r.ContentLength != 0 {
		if !DecodeJSON(w, r, &req) {
			return
		}
	}

	markets := s.app.RankService.Markets()
	if req.Market != "" {
		markets = []string{strings.ToUpper(req.Market)}
	}
	if len(markets) == 0 {
		WriteError(w, http.StatusBadRequest, "no rank markets configured")
		return
	}

	results := make([]*models.RankRebuildResult, 0, len(markets))
	for _, market := range markets {
		result, err := s.app.RankService.RebuildMarket(r.Context(), market)
		if err != nil {
			s.logger.Warn().Str("market", market).Err(err).Msg("Rank rebuild failed")
		}
		if result != nil {
			results = append(results, result)
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version": apiVersion,
		"results": results,
	})
}

func (s *Server) handleRankMarkets(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version": apiVersion,
		"markets": s.app.RankService.Markets(),
	})
}

// --- Watchlist handlers ---

// routeWatchlists dispatches /api/watchlists/{userID} to the list handler.
func (s *Server) routeWatchlists(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimPrefix(r.URL.Path, "/api/watchlists/")
	if userID == "" {
		s.handleWatchlistSave(w, r)
		return
	}
	s.handleWatchlistList(w, r, userID)
}

func (s *Server) handleWatchlistList(w http.ResponseWriter, r *http.Request, userID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	entries, err := s.app.Storage.WatchStore().ListByUser(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Sprintf("Error listing watchlist: %v", err))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version": apiVersion,
		"user_id": userID,
		"entries": entries,
	})
}

func (s *Server) handleWatchlistSave(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var entry models.WatchEntry
	if !DecodeJSON(w, r, &entry) {
		return
	}
	if entry.UserID == "" || entry.Ticker == "" || entry.Market == "" {
		WriteError(w, http.StatusBadRequest, "user_id, ticker and market are required")
		return
	}

	if err := s.app.Storage.WatchStore().Save(r.Context(), &entry); err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Sprintf("Error saving watch entry: %v", err))
		return
	}

	WriteJSON(w, http.StatusCreated, entry)
}
