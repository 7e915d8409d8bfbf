// Package rank builds authoritative market-capitalization rank lists and
// fans tier assignments out to the persisted symbol universe.
package rank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bmcnabb/tickerwatch/internal/clients/gemini"
	"github.com/bmcnabb/tickerwatch/internal/common"
	"github.com/bmcnabb/tickerwatch/internal/interfaces"
	"github.com/bmcnabb/tickerwatch/internal/models"
)

// DefaultMinMembers is the validation gate: a tier list smaller than this is
// implausible and must not drive a destructive write.
const DefaultMinMembers = 50

// ErrInsufficientRankData reports that a tier list stayed implausibly small
// after both the official source and the generative fallback. Callers must
// not proceed to a write.
var ErrInsufficientRankData = errors.New("insufficient rank data")

// Builder obtains the canonical Large/Mid member sets for a market, with a
// generative fallback per tier when the official source fails or returns an
// implausibly small list.
type Builder struct {
	index      interfaces.IndexClient
	generative interfaces.GenerativeClient
	logger     *common.Logger
	minMembers int
	now        func() time.Time
}

// NewBuilder creates a rank list builder. generative may be nil, in which
// case the fallback path is skipped.
func NewBuilder(index interfaces.IndexClient, generative interfaces.GenerativeClient, logger *common.Logger, minMembers int) *Builder {
	if minMembers <= 0 {
		minMembers = DefaultMinMembers
	}
	return &Builder{
		index:      index,
		generative: generative,
		logger:     logger,
		minMembers: minMembers,
		now:        time.Now,
	}
}

// BuildRankLists fetches both tier lists for a market. Each tier is
// independent: one tier may come from the official source while the other
// used the generative fallback. Large and Mid are made disjoint, Large
// winning. If either tier is still below the member gate the whole build
// reports ErrInsufficientRankData.
func (b *Builder) BuildRankLists(ctx context.Context, cfg *common.RankMarketConfig) (*models.RankList, error) {
	large, largeSource, largeErr := b.buildTier(ctx, cfg, models.TierLarge, cfg.LargeIndex)
	mid, midSource, midErr := b.buildTier(ctx, cfg, models.TierMid, cfg.MidIndex)

	if largeErr != nil || midErr != nil {
		return nil, fmt.Errorf("%w for %s: large=%d mid=%d", ErrInsufficientRankData, cfg.Market, len(large), len(mid))
	}

	// Disjointness: a symbol ranked Large never also appears Mid.
	largeSet := make(map[string]bool, len(large))
	for _, t := range large {
		largeSet[t] = true
	}
	disjointMid := make([]string, 0, len(mid))
	for _, t := range mid {
		if !largeSet[t] {
			disjointMid = append(disjointMid, t)
		}
	}

	if len(disjointMid) < b.minMembers {
		return nil, fmt.Errorf("%w for %s: mid tier reduced to %d after overlap removal", ErrInsufficientRankData, cfg.Market, len(disjointMid))
	}

	return &models.RankList{
		Market:      strings.ToUpper(cfg.Market),
		Large:       large,
		Mid:         disjointMid,
		LargeSource: largeSource,
		MidSource:   midSource,
		BuiltAt:     b.now(),
	}, nil
}

// buildTier runs the primary path and, when the result is missing or
// implausible, the generative fallback for one tier.
func (b *Builder) buildTier(ctx context.Context, cfg *common.RankMarketConfig, tier models.Tier, indexCode string) ([]string, models.RankProvenance, error) {
	// The member gate counts distinct tickers; a list padded with duplicates
	// must not pass.
	var official []string
	members, err := b.index.GetConstituents(ctx, indexCode)
	if err != nil {
		b.logger.Warn().Str("market", cfg.Market).Str("index", indexCode).Err(err).Msg("Official index source failed")
	} else {
		official = normalize(members)
		if len(official) < b.minMembers {
			b.logger.Warn().Str("market", cfg.Market).Str("index", indexCode).Int("members", len(official)).Msg("Official index list implausibly small")
		} else {
			return official, models.RankSourceOfficial, nil
		}
	}

	fallback, fbErr := b.generativeTier(ctx, cfg, tier)
	if fbErr != nil {
		b.logger.Warn().Str("market", cfg.Market).Str("tier", string(tier)).Err(fbErr).Msg("Generative rank fallback failed")
	}
	fallback = normalize(fallback)
	if len(fallback) >= b.minMembers {
		return fallback, models.RankSourceGenerative, nil
	}

	// Prefer whichever non-empty list we got even though it fails the gate,
	// so the error message carries the observed sizes.
	best := official
	if len(fallback) > len(best) {
		best = fallback
	}
	return best, models.RankSourceOfficial, fmt.Errorf("tier %s below member gate: %d < %d", tier, len(best), b.minMembers)
}

type generativeRankResponse struct {
	Tickers []string `json:"tickers"`
}

// generativeTier asks the generative classifier for the tier's member list,
// anchoring the prompt with known canonical members.
func (b *Builder) generativeTier(ctx context.Context, cfg *common.RankMarketConfig, tier models.Tier) ([]string, error) {
	if b.generative == nil {
		return nil, errors.New("no generative client configured")
	}

	prompt := buildRankPrompt(cfg, tier)
	response, err := b.generative.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate rank list: %w", err)
	}

	var parsed generativeRankResponse
	if err := json.Unmarshal([]byte(gemini.ExtractJSON(response)), &parsed); err != nil {
		return nil, fmt.Errorf("parse rank list response: %w", err)
	}

	return parsed.Tickers, nil
}

func buildRankPrompt(cfg *common.RankMarketConfig, tier models.Tier) string {
	var sb strings.Builder
	rankBand := "ranked 1-100 by market capitalization"
	if tier == models.TierMid {
		rankBand = "ranked 101-250 by market capitalization"
	}

	fmt.Fprintf(&sb, "List the ticker codes of %s constituents %s on the %s market.\n\n", cfg.Market, rankBand, cfg.Market)
	sb.WriteString("Rules:\n")
	sb.WriteString("- Respond with a single JSON object: {\"tickers\": [\"...\", ...]}\n")
	sb.WriteString("- Use exchange ticker codes only, no company names.\n")
	sb.WriteString("- Include every constituent of the band, nothing outside it.\n")

	if len(cfg.Anchors) > 0 && tier == models.TierLarge {
		fmt.Fprintf(&sb, "\nKnown members to anchor on (these are definitely in the top band): %s\n", strings.Join(cfg.Anchors, ", "))
	}
	return sb.String()
}

func normalize(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
