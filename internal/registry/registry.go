// Package registry maps on-chain denominations to display symbols and
// decimal precision.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/PageDAO/DAO-Tools/internal/logging"
)

// Token describes a denomination.
type Token struct {
	Denom    string `json:"denom" yaml:"denom"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals int    `json:"decimals" yaml:"decimals"`
}

// Registry is a read-only denom lookup table. The zero value and a nil
// *Registry are both empty registries.
type Registry struct {
	tokens map[string]Token
	order  []string
}

// New builds a registry. Later entries for the same denom replace earlier ones.
func New(tokens ...Token) *Registry {
	r := &Registry{tokens: make(map[string]Token, len(tokens))}
	for _, t := range tokens {
		if t.Denom == "" {
			continue
		}
		if t.Decimals < 0 {
			t.Decimals = 0
		}
		if _, exists := r.tokens[t.Denom]; !exists {
			r.order = append(r.order, t.Denom)
		}
		r.tokens[t.Denom] = t
	}
	return r
}

// Lookup returns the token for denom.
func (r *Registry) Lookup(denom string) (Token, bool) {
	if r == nil {
		return Token{}, false
	}
	t, ok := r.tokens[denom]
	return t, ok
}

// Decimals returns the precision for denom, or 0 when unknown.
func (r *Registry) Decimals(denom string) int {
	t, _ := r.Lookup(denom)
	return t.Decimals
}

// Symbols returns the known symbols in registration order.
func (r *Registry) Symbols() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.order))
	for _, d := range r.order {
		if s := r.tokens[d].Symbol; s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of registered denoms.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.tokens)
}

// assetEntry matches the chain asset-list entries published by explorers.
type assetEntry struct {
	Denom     string          `json:"denom"`
	BaseDenom string          `json:"base_denom"`
	Symbol    string          `json:"symbol"`
	Decimals  json.RawMessage `json:"decimals"`
	Decimal   json.RawMessage `json:"decimal"`
}

// Parse decodes an asset list. Both a bare array and an object with an
// "assets" array are accepted.
func Parse(data []byte) (*Registry, error) {
	var entries []assetEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		var wrapped struct {
			Assets []assetEntry `json:"assets"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("parse asset list: %w", err)
		}
		entries = wrapped.Assets
	}

	tokens := make([]Token, 0, len(entries))
	for _, e := range entries {
		denom := e.Denom
		if denom == "" {
			denom = e.BaseDenom
		}
		decimals := parseDecimals(e.Decimals)
		if decimals == 0 {
			decimals = parseDecimals(e.Decimal)
		}
		tokens = append(tokens, Token{Denom: denom, Symbol: e.Symbol, Decimals: decimals})
	}
	return New(tokens...), nil
}

func parseDecimals(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var v int
		if _, err := fmt.Sscanf(s, "%d", &v); err == nil {
			return v
		}
	}
	return 0
}

// LoadFile reads an asset list from disk. A missing file yields an empty
// registry.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read asset list: %w", err)
	}
	return Parse(data)
}

// Fetch downloads an asset list over HTTP.
func Fetch(ctx context.Context, client *http.Client, url string) (*Registry, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build asset list request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch asset list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch asset list: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read asset list: %w", err)
	}
	return Parse(data)
}

// Load resolves the registry from a file, then a URL. Any failure is logged
// and degrades to an empty registry, in which case every denom scales by 0
// decimals.
func Load(ctx context.Context, logger *logging.Logger, path, url string) *Registry {
	logger = logging.OrDefault(logger)
	if strings.TrimSpace(path) != "" {
		reg, err := LoadFile(path)
		if err == nil && reg.Len() > 0 {
			logger.InfoContext(ctx, "token registry loaded", logging.Path(path), logging.Count(reg.Len()))
			return reg
		}
		if err != nil {
			logger.WarnContext(ctx, "token registry file unusable", logging.Path(path), logging.Error(err))
		}
	}
	if strings.TrimSpace(url) != "" {
		reg, err := Fetch(ctx, nil, url)
		if err == nil {
			logger.InfoContext(ctx, "token registry fetched", logging.URL(url), logging.Count(reg.Len()))
			return reg
		}
		logger.WarnContext(ctx, "token registry fetch failed", logging.URL(url), logging.Error(err))
	}
	return New()
}
