// Package coingecko is a small client for the CoinGecko historical price
// endpoint, used as the remote fallback when a token has no local price.
package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3"
	requestTimeout = 10 * time.Second
	historyLayout  = "02-01-2006"
	apiKeyHeader   = "x-cg-demo-api-key"
)

// ErrRateLimited is returned when the API answers 429.
var ErrRateLimited = errors.New("coingecko: rate limited")

// DefaultCoinIDs maps display symbols to CoinGecko coin IDs.
var DefaultCoinIDs = map[string]string{
	"OSMO":  "osmosis",
	"ATOM":  "cosmos",
	"ION":   "ion",
	"PAGE":  "page",
	"USDC":  "usd-coin",
	"USDT":  "tether",
	"STARS": "stargaze",
	"JUNO":  "juno-network",
	"AKT":   "akash-network",
	"SCRT":  "secret",
	"TIA":   "celestia",
	"NTRN":  "neutron-3",
	"UMEE":  "umee",
	"ETH":   "ethereum",
	"WETH":  "weth",
	"BTC":   "bitcoin",
	"WBTC":  "wrapped-bitcoin",
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RequestsPerMinute throttles outgoing calls. Zero disables throttling.
	RequestsPerMinute int
}

// DefaultConfig returns the public API endpoint with the free-tier limit.
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		Timeout:           requestTimeout,
		RequestsPerMinute: 30,
	}
}

// Client fetches historical USD prices.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client from cfg, filling zero fields from
// DefaultConfig.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c
}

type historyResponse struct {
	ID         string `json:"id"`
	MarketData *struct {
		CurrentPrice map[string]float64 `json:"current_price"`
	} `json:"market_data"`
}

// HistoricalPrice returns the USD price of coin id on the given day.
// found is false when the API knows no price for that day.
func (c *Client) HistoricalPrice(ctx context.Context, id string, date time.Time) (price float64, found bool, err error) {
	if id == "" {
		return 0, false, nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, false, err
		}
	}

	endpoint := fmt.Sprintf("%s/coins/%s/history?date=%s&localization=false",
		c.baseURL, url.PathEscape(id), date.UTC().Format(historyLayout))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("fetch %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return 0, false, ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return 0, false, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, false, fmt.Errorf("coingecko status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var hr historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return 0, false, fmt.Errorf("decode response: %w", err)
	}
	if hr.MarketData == nil {
		return 0, false, nil
	}
	usd, ok := hr.MarketData.CurrentPrice["usd"]
	if !ok || usd < 0 {
		return 0, false, nil
	}
	return usd, true, nil
}
