package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Engine.FetchConcurrency != 5 {
		t.Errorf("expected fetch concurrency 5, got %d", cfg.Engine.FetchConcurrency)
	}
	if got := cfg.Engine.GetOpenTTL(); got != 30*time.Second {
		t.Errorf("expected open TTL 30s, got %v", got)
	}
	if got := cfg.Engine.GetClosedTTL(); got != 24*time.Hour {
		t.Errorf("expected closed TTL 24h, got %v", got)
	}
	if got := cfg.Engine.GetStalenessThreshold(); got != time.Hour {
		t.Errorf("expected staleness threshold 1h, got %v", got)
	}
	if cfg.Engine.WriteChunkSize != 500 {
		t.Errorf("expected write chunk size 500, got %d", cfg.Engine.WriteChunkSize)
	}
	if cfg.Engine.MinRankMembers != 50 {
		t.Errorf("expected min rank members 50, got %d", cfg.Engine.MinRankMembers)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tickerwatch.toml")

	content := `
environment = "production"

[server]
port = 9090

[engine]
open_ttl = "10s"
fetch_concurrency = 3

[[engine.rank_markets]]
market = "KOSPI"
large_index = "1028"
mid_index = "1003"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if !cfg.IsProduction() {
		t.Error("expected production environment")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if got := cfg.Engine.GetOpenTTL(); got != 10*time.Second {
		t.Errorf("expected open TTL 10s, got %v", got)
	}
	if cfg.Engine.FetchConcurrency != 3 {
		t.Errorf("expected fetch concurrency 3, got %d", cfg.Engine.FetchConcurrency)
	}
	// Defaults survive a partial file
	if got := cfg.Engine.GetClosedTTL(); got != 24*time.Hour {
		t.Errorf("expected closed TTL default 24h, got %v", got)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/tickerwatch.toml")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TICKERWATCH_PORT", "7001")
	t.Setenv("TICKERWATCH_LOG_LEVEL", "debug")
	t.Setenv("TICKERWATCH_QUOTEAPI_KEY", "test-key")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != 7001 {
		t.Errorf("expected port 7001, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Clients.QuoteAPI.APIKey != "test-key" {
		t.Errorf("expected quote API key override, got %s", cfg.Clients.QuoteAPI.APIKey)
	}
}

func TestProviderSymbol(t *testing.T) {
	cfg := NewDefaultConfig()

	if got := cfg.Clients.QuoteAPI.ProviderSymbol("005930", "KOSPI"); got != "005930.KS" {
		t.Errorf("expected 005930.KS, got %s", got)
	}
	if got := cfg.Clients.QuoteAPI.ProviderSymbol("aapl", "NASDAQ"); got != "AAPL" {
		t.Errorf("expected AAPL, got %s", got)
	}
}

func TestRankMarketLookup(t *testing.T) {
	cfg := NewDefaultConfig()

	if rm := cfg.Engine.RankMarket("kospi"); rm == nil || rm.LargeIndex != "1028" {
		t.Errorf("expected KOSPI rank market with large index 1028, got %+v", rm)
	}
	if rm := cfg.Engine.RankMarket("NASDAQ"); rm != nil {
		t.Errorf("expected no rank market for NASDAQ, got %+v", rm)
	}
}
