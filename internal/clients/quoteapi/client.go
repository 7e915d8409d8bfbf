// Package quoteapi provides a client for the upstream quote provider
package quoteapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/bmcnabb/tickerwatch/internal/common"
	"github.com/bmcnabb/tickerwatch/internal/interfaces"
	"github.com/bmcnabb/tickerwatch/internal/models"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultRateLimit   = 10 // requests per second
	DefaultMaxRetries  = 2  // retries after the initial attempt
	DefaultBackoffBase = 500 * time.Millisecond
)

// flexFloat64 handles JSON values that may be either a number or a string.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" || s == "N/A" {
			*f = 0
			return nil
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

// APIError represents a fetch failure after retry exhaustion. Callers branch
// on it explicitly rather than treating it as control flow.
type APIError struct {
	StatusCode int
	Message    string
	Symbol     string
	Attempts   int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("quote API error for %s: %s (status: %d, attempts: %d)", e.Symbol, e.Message, e.StatusCode, e.Attempts)
}

// Client implements the QuoteClient interface
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	logger      *common.Logger
	limiter     *rate.Limiter
	maxRetries  uint64
	backoffBase time.Duration
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithRetries sets the retry count and the base backoff delay. The delay
// doubles per attempt.
func WithRetries(maxRetries int, base time.Duration) ClientOption {
	return func(c *Client) {
		if maxRetries >= 0 {
			c.maxRetries = uint64(maxRetries)
		}
		if base > 0 {
			c.backoffBase = base
		}
	}
}

// NewClient creates a new quote provider client
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		maxRetries:  DefaultMaxRetries,
		backoffBase: DefaultBackoffBase,
		logger:      common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// quoteResponse is the provider wire format. Numeric fields tolerate
// string-typed values; zero means absent.
type quoteResponse struct {
	Symbol        string      `json:"symbol"`
	Price         flexFloat64 `json:"price"`
	PreviousClose flexFloat64 `json:"previousClose"`
	Change        flexFloat64 `json:"change"`
	ChangePercent flexFloat64 `json:"changePercent"`
	MarketCap     flexFloat64 `json:"marketCap"`
	Sector        string      `json:"sector"`
	Industry      string      `json:"industry"`
	Timestamp     int64       `json:"timestamp"`
}

// GetQuote retrieves the raw quote observation for one provider symbol.
// Non-success statuses and transport errors are retried with exponential
// backoff; the final failure surfaces as *APIError.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*models.ProviderQuote, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if c.apiKey != "" {
		params.Set("api_token", c.apiKey)
	}

	reqURL := fmt.Sprintf("%s/quote?%s", c.baseURL, params.Encode())

	var resp quoteResponse
	attempts := 0
	lastStatus := 0

	operation := func() error {
		attempts++

		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limit wait: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to execute request: %w", err)
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			lastStatus = httpResp.StatusCode
			body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
			return fmt.Errorf("status %d: %s", httpResp.StatusCode, string(body))
		}

		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.backoffBase
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 30 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx))
	if err != nil {
		c.logger.Warn().Str("symbol", symbol).Int("attempts", attempts).Err(err).Msg("Quote fetch exhausted retries")
		return nil, &APIError{
			StatusCode: lastStatus,
			Message:    err.Error(),
			Symbol:     symbol,
			Attempts:   attempts,
		}
	}

	observed := time.Now()
	if resp.Timestamp > 0 {
		observed = time.Unix(resp.Timestamp, 0)
	}

	c.logger.Debug().Str("symbol", symbol).Float64("price", float64(resp.Price)).Msg("Quote API response")

	return &models.ProviderQuote{
		Symbol:        symbol,
		Price:         float64(resp.Price),
		PreviousClose: float64(resp.PreviousClose),
		Change:        float64(resp.Change),
		ChangePercent: float64(resp.ChangePercent),
		MarketCap:     float64(resp.MarketCap),
		Sector:        resp.Sector,
		Industry:      resp.Industry,
		ObservedAt:    observed,
	}, nil
}

// Ensure Client implements QuoteClient
var _ interfaces.QuoteClient = (*Client)(nil)
