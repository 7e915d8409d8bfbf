// Package krx provides a client for the KRX index-constituent endpoints
package krx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bmcnabb/tickerwatch/internal/common"
	"github.com/bmcnabb/tickerwatch/internal/interfaces"
)

const (
	DefaultBaseURL    = "https://data.krx.co.kr"
	DefaultTimeout    = 30 * time.Second
	DefaultRateLimit  = 5 // requests per second
	DefaultSessionTTL = 10 * time.Minute
)

// Client implements the IndexClient interface against the KRX data portal.
// The portal requires a session handshake: a GET that sets cookies and
// returns a one-time token, which subsequent constituent downloads present.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	sessionTTL time.Duration

	mu          sync.Mutex
	token       string
	tokenIssued time.Time

	now func() time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

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

// WithSessionTTL sets how long a handshake session is reused before a fresh
// handshake is performed.
func WithSessionTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.sessionTTL = ttl
	}
}

// NewClient creates a new KRX client. No API key is required, but requests
// must carry the session cookie obtained from the handshake.
func NewClient(opts ...ClientOption) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Jar:     jar,
		},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		sessionTTL: DefaultSessionTTL,
		logger:     common.NewSilentLogger(),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type handshakeResponse struct {
	Token string `json:"token"`
}

// handshake obtains a one-time token and session cookies. The token is
// reused until sessionTTL elapses.
func (c *Client) handshake(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Sub(c.tokenIssued) < c.sessionTTL {
		return c.token, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + "/comm/session/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create handshake request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("handshake failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("handshake error: status %d", resp.StatusCode)
	}

	var hs handshakeResponse
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return "", fmt.Errorf("failed to decode handshake response: %w", err)
	}
	if hs.Token == "" {
		return "", fmt.Errorf("handshake returned empty token")
	}

	c.token = hs.Token
	c.tokenIssued = c.now()
	c.logger.Debug().Msg("KRX session handshake completed")
	return c.token, nil
}

type constituentsResponse struct {
	Members []struct {
		Ticker string `json:"ticker"`
		Name   string `json:"name"`
	} `json:"members"`
}

// GetConstituents returns the member tickers of a named index, uppercased
// and deduplicated, preserving source order.
func (c *Client) GetConstituents(ctx context.Context, indexCode string) ([]string, error) {
	token, err := c.handshake(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("indexCode", indexCode)
	params.Set("otp", token)

	reqURL := fmt.Sprintf("%s/comm/index/constituents?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Error().Err(err).Str("index", indexCode).Dur("elapsed", elapsed).Msg("KRX constituents request failed")
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Session expired server-side; drop the cached token so the next
		// call performs a fresh handshake.
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		c.logger.Warn().Str("index", indexCode).Int("status", resp.StatusCode).Msg("KRX constituents non-OK response")
		return nil, fmt.Errorf("KRX API error: status %d for index %s: %s", resp.StatusCode, indexCode, string(body))
	}

	var apiResp constituentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	seen := make(map[string]bool, len(apiResp.Members))
	members := make([]string, 0, len(apiResp.Members))
	for _, m := range apiResp.Members {
		ticker := strings.ToUpper(strings.TrimSpace(m.Ticker))
		if ticker == "" || seen[ticker] {
			continue
		}
		seen[ticker] = true
		members = append(members, ticker)
	}

	c.logger.Info().Str("index", indexCode).Int("members", len(members)).Dur("elapsed", elapsed).Msg("KRX constituents fetched")
	return members, nil
}

// Ensure Client implements IndexClient
var _ interfaces.IndexClient = (*Client)(nil)
