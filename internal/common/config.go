// Package common provides shared utilities for Tickerwatch
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Tickerwatch
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Clients     ClientsConfig `toml:"clients"`
	Engine      EngineConfig  `toml:"engine"`
	Auth        AuthConfig    `toml:"auth"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds SurrealDB connection configuration.
type StorageConfig struct {
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	QuoteAPI QuoteAPIConfig `toml:"quoteapi"`
	KRX      KRXConfig      `toml:"krx"`
	Gemini   GeminiConfig   `toml:"gemini"`
}

// QuoteAPIConfig holds quote provider configuration.
type QuoteAPIConfig struct {
	BaseURL     string `toml:"base_url"`
	APIKey      string `toml:"api_key"`
	RateLimit   int    `toml:"rate_limit"`
	Timeout     string `toml:"timeout"`
	MaxRetries  int    `toml:"max_retries"`  // retries after the initial attempt
	BackoffBase string `toml:"backoff_base"` // first retry delay, doubles per attempt

	// MarketSuffixes maps a market code to the provider's symbol suffix,
	// e.g. KOSPI -> ".KS" so that "005930"/KOSPI becomes "005930.KS".
	MarketSuffixes map[string]string `toml:"market_suffixes"`
}

// GetTimeout parses and returns the timeout duration
func (c *QuoteAPIConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetBackoffBase parses and returns the base backoff delay.
func (c *QuoteAPIConfig) GetBackoffBase() time.Duration {
	d, err := time.ParseDuration(c.BackoffBase)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// ProviderSymbol maps a (ticker, market) pair to the provider's symbol string.
func (c *QuoteAPIConfig) ProviderSymbol(ticker, market string) string {
	suffix := c.MarketSuffixes[strings.ToUpper(market)]
	return strings.ToUpper(ticker) + suffix
}

// KRXConfig holds index-constituent source configuration.
type KRXConfig struct {
	BaseURL    string `toml:"base_url"`
	RateLimit  int    `toml:"rate_limit"`
	Timeout    string `toml:"timeout"`
	SessionTTL string `toml:"session_ttl"`
}

// GetTimeout parses and returns the timeout duration
func (c *KRXConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetSessionTTL parses and returns how long a handshake session is reused.
func (c *KRXConfig) GetSessionTTL() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// RankMarketConfig declares one market with an authoritative rank-based
// classification source.
type RankMarketConfig struct {
	Market     string   `toml:"market"`
	LargeIndex string   `toml:"large_index"` // index code for ranks 1-100
	MidIndex   string   `toml:"mid_index"`   // index code for ranks 101-250
	Anchors    []string `toml:"anchors"`     // canonical members used to anchor the generative fallback
}

// EngineConfig holds the reconciliation engine tuning knobs. The staleness
// threshold and cache TTLs are deliberately plain durations; no
// trading-calendar awareness.
type EngineConfig struct {
	StalenessThreshold string  `toml:"staleness_threshold"` // quote observation age that implies market closed
	OpenTTL            string  `toml:"open_ttl"`            // cache freshness while market open
	ClosedTTL          string  `toml:"closed_ttl"`          // cache freshness while market closed
	RetryDebounce      string  `toml:"retry_debounce"`      // do-not-retry window after a failed fetch
	FetchConcurrency   int     `toml:"fetch_concurrency"`   // simultaneous upstream calls per batch
	CacheMaxEntries    int     `toml:"cache_max_entries"`   // 0 = unbounded
	WriteChunkSize     int     `toml:"write_chunk_size"`    // bulk tier writes per storage call
	MinRankMembers     int     `toml:"min_rank_members"`    // validation gate per tier
	LargeCapFloor      float64 `toml:"large_cap_floor"`     // threshold classification, Large
	MidCapFloor        float64 `toml:"mid_cap_floor"`       // threshold classification, Mid
	RefreshInterval    string  `toml:"refresh_interval"`    // scheduled rank rebuild cadence

	RankMarkets []RankMarketConfig `toml:"rank_markets"`
}

// GetStalenessThreshold parses the staleness threshold duration.
func (c *EngineConfig) GetStalenessThreshold() time.Duration {
	d, err := time.ParseDuration(c.StalenessThreshold)
	if err != nil {
		return time.Hour
	}
	return d
}

// GetOpenTTL parses the open-market cache freshness window.
func (c *EngineConfig) GetOpenTTL() time.Duration {
	d, err := time.ParseDuration(c.OpenTTL)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetClosedTTL parses the closed-market cache freshness window.
func (c *EngineConfig) GetClosedTTL() time.Duration {
	d, err := time.ParseDuration(c.ClosedTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// GetRetryDebounce parses the failed-fetch debounce window.
func (c *EngineConfig) GetRetryDebounce() time.Duration {
	d, err := time.ParseDuration(c.RetryDebounce)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// GetRefreshInterval parses the scheduled rank rebuild cadence.
func (c *EngineConfig) GetRefreshInterval() time.Duration {
	d, err := time.ParseDuration(c.RefreshInterval)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// RankMarket returns the rank configuration for a market, or nil.
func (c *EngineConfig) RankMarket(market string) *RankMarketConfig {
	for i := range c.RankMarkets {
		if strings.EqualFold(c.RankMarkets[i].Market, market) {
			return &c.RankMarkets[i]
		}
	}
	return nil
}

// AuthConfig holds the JWT settings used to authorize persistence.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Address:   "ws://localhost:8000",
			Namespace: "tickerwatch",
			Database:  "tickerwatch",
			Username:  "root",
			Password:  "root",
		},
		Clients: ClientsConfig{
			QuoteAPI: QuoteAPIConfig{
				BaseURL:     "https://quoteapi.tickerwatch.dev/v1",
				RateLimit:   10,
				Timeout:     "30s",
				MaxRetries:  2,
				BackoffBase: "500ms",
				MarketSuffixes: map[string]string{
					"KOSPI":  ".KS",
					"KOSDAQ": ".KQ",
					"NYSE":   "",
					"NASDAQ": "",
				},
			},
			KRX: KRXConfig{
				BaseURL:    "https://data.krx.co.kr",
				RateLimit:  5,
				Timeout:    "30s",
				SessionTTL: "10m",
			},
			Gemini: GeminiConfig{
				Model: "gemini-2.0-flash",
			},
		},
		Engine: EngineConfig{
			StalenessThreshold: "1h",
			OpenTTL:            "30s",
			ClosedTTL:          "24h",
			RetryDebounce:      "15s",
			FetchConcurrency:   5,
			CacheMaxEntries:    0,
			WriteChunkSize:     500,
			MinRankMembers:     50,
			LargeCapFloor:      10_000_000_000,
			MidCapFloor:        2_000_000_000,
			RefreshInterval:    "24h",
			RankMarkets: []RankMarketConfig{
				{
					Market:     "KOSPI",
					LargeIndex: "1028", // KOSPI 100
					MidIndex:   "1003", // KOSPI Mid 200 band, ranks 101-250
					Anchors:    []string{"005930", "000660", "373220", "207940", "005380"},
				},
			},
		},
		Auth: AuthConfig{
			JWTSecret: "dev-jwt-secret-change-in-production",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// Later files override earlier ones; missing files are skipped.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TICKERWATCH_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("TICKERWATCH_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("TICKERWATCH_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("TICKERWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if addr := os.Getenv("TICKERWATCH_STORAGE_ADDRESS"); addr != "" {
		config.Storage.Address = addr
	}

	if v := os.Getenv("TICKERWATCH_QUOTEAPI_KEY"); v != "" {
		config.Clients.QuoteAPI.APIKey = v
	}
	if v := os.Getenv("TICKERWATCH_GEMINI_KEY"); v != "" {
		config.Clients.Gemini.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && config.Clients.Gemini.APIKey == "" {
		config.Clients.Gemini.APIKey = v
	}

	if v := os.Getenv("TICKERWATCH_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
