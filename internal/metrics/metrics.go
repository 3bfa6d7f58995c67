package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// Extraction metrics
	ProposalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daoledger_proposals_total",
			Help: "Total number of proposals scanned",
		},
		[]string{"subunit", "status"},
	)

	MessagesScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "daoledger_messages_scanned_total",
			Help: "Total number of proposal messages scanned",
		},
	)

	PaymentsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daoledger_payments_extracted_total",
			Help: "Total number of payments extracted by message kind",
		},
		[]string{"kind"},
	)

	DecodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "daoledger_message_decode_failures_total",
			Help: "Total number of messages whose payload could not be decoded",
		},
	)

	SubunitsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "daoledger_subunits_skipped_total",
			Help: "Total number of sub-units skipped because of fetch errors",
		},
	)

	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "daoledger_extraction_duration_seconds",
			Help:    "Duration of per-proposal extraction in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Valuation metrics
	ValuationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daoledger_valuations_total",
			Help: "Total number of valuation attempts by outcome",
		},
		[]string{"source", "outcome"},
	)

	RemotePriceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daoledger_remote_price_requests_total",
			Help: "Total number of remote price lookups by result",
		},
		[]string{"result"},
	)

	RemotePriceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "daoledger_remote_price_duration_seconds",
			Help:    "Duration of remote price lookups in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Run metrics
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "daoledger_run_duration_seconds",
			Help:    "Duration of complete batch runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	LedgerUSDTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "daoledger_ledger_usd_total",
			Help: "Total resolved USD value of the last run's ledger",
		},
	)

	UnresolvedTransactions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "daoledger_unresolved_transactions",
			Help: "Number of transactions without a USD value in the last run",
		},
	)

	// Sink metrics
	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daoledger_sink_errors_total",
			Help: "Total number of errors writing results to sinks",
		},
		[]string{"sink"},
	)
)

// Push sends the default registry to a Prometheus Pushgateway. Batch runs
// exit before a scrape could happen, so this is how their metrics leave
// the process. An empty url disables pushing.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if job == "" {
		job = "daoledger"
	}
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
