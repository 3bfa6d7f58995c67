// Package search indexes ledger transactions into OpenSearch for ad-hoc
// exploration across runs.
package search

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"

	"github.com/PageDAO/DAO-Tools/internal/logging"
	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

// Config holds OpenSearch client configuration.
type Config struct {
	URL         string
	Username    string
	Password    string
	Insecure    bool
	IndexPrefix string
	Workers     int
}

// DefaultConfig returns default OpenSearch configuration.
func DefaultConfig() Config {
	return Config{
		URL:         "https://localhost:9200",
		Username:    "admin",
		IndexPrefix: "daoledger",
		Workers:     2,
	}
}

// Client writes transaction documents to OpenSearch.
type Client struct {
	os     *opensearch.Client
	cfg    Config
	logger *logging.Logger
}

// NewClient creates a Client. It does not contact the cluster.
func NewClient(cfg Config, logger *logging.Logger) (*Client, error) {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = def.IndexPrefix
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: cfg.Insecure, // #nosec G402 -- opt-in for self-signed dev clusters
	}

	osClient, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return &Client{
		os:     osClient,
		cfg:    cfg,
		logger: logging.OrDefault(logger).With(logging.Component("search")),
	}, nil
}

// IndexName is the index holding transactions from every run.
func (c *Client) IndexName() string {
	return c.cfg.IndexPrefix + "-transactions"
}

// EnsureTemplate installs the index template for the transactions index.
func (c *Client) EnsureTemplate(ctx context.Context) error {
	template := map[string]any{
		"index_patterns": []string{c.IndexName() + "*"},
		"template": map[string]any{
			"settings": map[string]any{
				"number_of_shards":   1,
				"number_of_replicas": 0,
			},
			"mappings": transactionMappings(),
		},
	}
	body, err := json.Marshal(template)
	if err != nil {
		return fmt.Errorf("marshal index template: %w", err)
	}

	res, err := c.os.Indices.PutIndexTemplate(
		c.cfg.IndexPrefix+"-transactions-template",
		bytes.NewReader(body),
		c.os.Indices.PutIndexTemplate.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("put index template: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("put index template: %s: %s", res.Status(), msg)
	}
	c.logger.DebugContext(ctx, "index template installed", "index", c.IndexName())
	return nil
}

func transactionMappings() map[string]any {
	keyword := map[string]any{"type": "keyword"}
	return map[string]any{
		"properties": map[string]any{
			"run_id":               keyword,
			"seq":                  map[string]any{"type": "integer"},
			"proposal_id":          keyword,
			"proposal_title":       map[string]any{"type": "text"},
			"proposal_date":        map[string]any{"type": "date", "format": "yyyy-MM-dd"},
			"subunit_name":         keyword,
			"subunit_address":      keyword,
			"recipient":            keyword,
			"raw_amount":           keyword,
			"denom":                keyword,
			"message_kind":         keyword,
			"contract_address":     keyword,
			"contract_method":      keyword,
			"adjusted_amount":      map[string]any{"type": "double"},
			"display_symbol":       keyword,
			"payment_type":         keyword,
			"recipient_type":       keyword,
			"transaction_category": keyword,
			"amount_category":      keyword,
			"tags":                 keyword,
			"usd_value":            map[string]any{"type": "double"},
			"indexed_at":           map[string]any{"type": "date"},
		},
	}
}

// Document is the indexed form of one transaction.
type Document struct {
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`
	IndexedAt time.Time `json:"indexed_at"`
	ledger.Transaction
}

// DocumentID is stable per run and position so re-indexing a run overwrites
// instead of duplicating.
func DocumentID(runID string, seq int) string {
	return runID + "-" + strconv.Itoa(seq)
}

// IndexResult summarizes one bulk indexing pass.
type IndexResult struct {
	Indexed int
	Failed  int
	Errors  []string
}

// IndexTransactions bulk-indexes txs under runID.
func (c *Client) IndexTransactions(ctx context.Context, runID string, txs []ledger.Transaction) (IndexResult, error) {
	var (
		mu     sync.Mutex
		result IndexResult
	)
	if len(txs) == 0 {
		return result, nil
	}

	bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
		Client:     c.os,
		Index:      c.IndexName(),
		NumWorkers: c.cfg.Workers,
		OnError: func(ctx context.Context, err error) {
			c.logger.ErrorContext(ctx, "bulk indexer error", logging.Error(err))
		},
	})
	if err != nil {
		return result, fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	now := time.Now().UTC()
	for i, tx := range txs {
		data, err := json.Marshal(Document{RunID: runID, Seq: i, IndexedAt: now, Transaction: tx})
		if err != nil {
			mu.Lock()
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("seq %d: %v", i, err))
			mu.Unlock()
			continue
		}

		err = bi.Add(ctx, opensearchutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: DocumentID(runID, i),
			Body:       bytes.NewReader(data),
			OnSuccess: func(context.Context, opensearchutil.BulkIndexerItem, opensearchutil.BulkIndexerResponseItem) {
				mu.Lock()
				result.Indexed++
				mu.Unlock()
			},
			OnFailure: func(_ context.Context, item opensearchutil.BulkIndexerItem, res opensearchutil.BulkIndexerResponseItem, err error) {
				msg := res.Error.Reason
				if err != nil {
					msg = err.Error()
				}
				mu.Lock()
				result.Failed++
				result.Errors = append(result.Errors, item.DocumentID+": "+msg)
				mu.Unlock()
			},
		})
		if err != nil {
			_ = bi.Close(ctx)
			return result, fmt.Errorf("failed to add document to bulk indexer: %w", err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return result, fmt.Errorf("failed to close bulk indexer: %w", err)
	}

	c.logger.InfoContext(ctx, "indexed transactions",
		"index", c.IndexName(),
		"run_id", runID,
		"indexed", result.Indexed,
		"failed", result.Failed,
	)
	return result, nil
}
