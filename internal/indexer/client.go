// Package indexer fetches proposals, sub-DAOs and members from the DAO DAO
// indexer.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/PageDAO/DAO-Tools/internal/logging"
	"github.com/PageDAO/DAO-Tools/internal/proposal"
)

const (
	DefaultBaseURL = "https://indexer.daodao.zone"
	DefaultNetwork = "osmosis-1"
	// DefaultMainDAO is the PageDAO core contract on Osmosis.
	DefaultMainDAO = "osmo1a40j922z0kwqhw2nn0nx66ycyk88vyzcs73fyjrd092cjgyvyjksrd8dp7"
	// DefaultCoreTeamDAO is the PageDAO core team sub-DAO.
	DefaultCoreTeamDAO = "osmo18pl3nq7r5xht260jsm245j3c8xjhu2nd7ucasllfj4waqehrw3zsll9zgq"

	// MainDAOName labels the main DAO when its state carries no name.
	MainDAOName = "Main DAO"
)

var (
	// ErrNotFound is returned when the indexer has no data for a contract.
	ErrNotFound = errors.New("indexer: not found")
	// ErrUnexpectedResponse is returned for bodies that are neither a list
	// nor a known wrapper object.
	ErrUnexpectedResponse = errors.New("indexer: unexpected response")
)

// Config holds indexer client configuration.
type Config struct {
	BaseURL    string
	Network    string
	Timeout    time.Duration
	Attempts   uint
	RetryDelay time.Duration
	// ProposalFilter is passed as ?filter= to allProposals.
	ProposalFilter string
}

// DefaultConfig returns the public indexer settings for Osmosis.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		Network:        DefaultNetwork,
		Timeout:        30 * time.Second,
		Attempts:       3,
		RetryDelay:     500 * time.Millisecond,
		ProposalFilter: "passed",
	}
}

// Client talks to the indexer's contract query routes.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a client, filling zero fields from DefaultConfig.
func NewClient(cfg Config, logger *logging.Logger) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Network == "" {
		cfg.Network = def.Network
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.OrDefault(logger).With(logging.Component("indexer")),
	}
}

// statusError is a non-2xx answer.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("indexer status %d: %s", e.code, e.body)
}

func (c *Client) contractURL(addr, route string) string {
	return fmt.Sprintf("%s/%s/contract/%s/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.Network), url.PathEscape(addr), route)
}

// get fetches a JSON document, retrying transport errors, 429 and 5xx.
func (c *Client) get(ctx context.Context, endpoint string) (any, error) {
	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("request %s: %w", endpoint, err)
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			switch {
			case resp.StatusCode == http.StatusNotFound:
				return retry.Unrecoverable(ErrNotFound)
			case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
				return &statusError{code: resp.StatusCode, body: truncate(data)}
			case resp.StatusCode >= 300:
				return retry.Unrecoverable(&statusError{code: resp.StatusCode, body: truncate(data)})
			}
			body = data
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.cfg.Attempts),
		retry.Delay(c.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.WarnContext(ctx, "retrying indexer request", logging.URL(endpoint), "attempt", n+1, logging.Error(err))
		}),
	)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return v, nil
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}

// listFrom accepts a bare list, an object wrapping a list under key or
// "data", or a single object.
func listFrom(v any, key string) ([]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return t, nil
	case map[string]any:
		if inner, ok := t[key]; ok {
			if list, ok := inner.([]any); ok {
				return list, nil
			}
			if inner == nil {
				return nil, nil
			}
		}
		if inner, ok := t["data"]; ok {
			if list, ok := inner.([]any); ok {
				return list, nil
			}
			return []any{inner}, nil
		}
		return []any{t}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedResponse, v)
	}
}

// Proposals returns the DAO's proposals matching the configured filter.
func (c *Client) Proposals(ctx context.Context, addr string) ([]proposal.Tree, error) {
	endpoint := c.contractURL(addr, "daoCore/allProposals")
	if c.cfg.ProposalFilter != "" {
		endpoint += "?filter=" + url.QueryEscape(c.cfg.ProposalFilter)
	}
	v, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch proposals for %s: %w", addr, err)
	}
	items, err := listFrom(v, "proposals")
	if err != nil {
		return nil, fmt.Errorf("fetch proposals for %s: %w", addr, err)
	}
	out := make([]proposal.Tree, 0, len(items))
	for _, item := range items {
		if t, ok := proposal.AsTree(item); ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// SubDAO is one entry of a DAO's sub-DAO list.
type SubDAO struct {
	Name    string `json:"name" yaml:"name"`
	Address string `json:"address" yaml:"address"`
	Charter string `json:"charter,omitempty" yaml:"charter,omitempty"`
}

// SubDAOs lists the DAO's registered sub-DAOs.
func (c *Client) SubDAOs(ctx context.Context, addr string) ([]SubDAO, error) {
	v, err := c.get(ctx, c.contractURL(addr, "daoCore/listSubDaos"))
	if err != nil {
		return nil, fmt.Errorf("fetch sub-DAOs for %s: %w", addr, err)
	}
	items, err := listFrom(v, "subDaos")
	if err != nil {
		return nil, fmt.Errorf("fetch sub-DAOs for %s: %w", addr, err)
	}

	var out []SubDAO
	for _, item := range items {
		t, ok := proposal.AsTree(item)
		if !ok {
			continue
		}
		sd := SubDAO{Address: t.String("addr", "address"), Charter: t.String("charter")}
		if sd.Address == "" {
			continue
		}
		sd.Name = daoName(t)
		out = append(out, sd)
	}
	return out, nil
}

// daoName checks the shapes the indexer uses for a DAO's display name.
func daoName(t proposal.Tree) string {
	if name := t.String("name", "dao_name"); name != "" {
		return name
	}
	for _, key := range []string{"config", "info"} {
		if inner, ok := t.Map(key); ok {
			if name := inner.String("name"); name != "" {
				return name
			}
		}
	}
	return ""
}

// DAOInfo returns the dumpState document for a DAO.
func (c *Client) DAOInfo(ctx context.Context, addr string) (proposal.Tree, error) {
	v, err := c.get(ctx, c.contractURL(addr, "daoCore/dumpState"))
	if err != nil {
		return nil, fmt.Errorf("fetch state for %s: %w", addr, err)
	}
	t, ok := proposal.AsTree(v)
	if !ok {
		return nil, fmt.Errorf("fetch state for %s: %w", addr, ErrUnexpectedResponse)
	}
	return t, nil
}

// DAOName resolves a display name through dumpState. It returns "" when
// the state is unavailable or unnamed.
func (c *Client) DAOName(ctx context.Context, addr string) string {
	info, err := c.DAOInfo(ctx, addr)
	if err != nil {
		c.logger.DebugContext(ctx, "dao state unavailable", logging.Address(addr), logging.Error(err))
		return ""
	}
	return daoName(info)
}

// Members returns the member addresses of a DAO. Entries may carry the
// address under addr, address, member.addr or member.address.
func (c *Client) Members(ctx context.Context, addr string) ([]string, error) {
	v, err := c.get(ctx, c.contractURL(addr, "daoCore/listMembers"))
	if err != nil {
		return nil, fmt.Errorf("fetch members for %s: %w", addr, err)
	}
	items, err := listFrom(v, "members")
	if err != nil {
		return nil, fmt.Errorf("fetch members for %s: %w", addr, err)
	}

	var out []string
	seen := make(map[string]bool)
	for _, item := range items {
		t, ok := proposal.AsTree(item)
		if !ok {
			continue
		}
		member := t.String("addr", "address")
		if member == "" {
			if inner, ok := t.Map("member"); ok {
				member = inner.String("addr", "address")
			}
		}
		if member == "" || seen[member] {
			continue
		}
		seen[member] = true
		out = append(out, member)
	}
	return out, nil
}
