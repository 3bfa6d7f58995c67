// Package pipeline runs a batch: extract payments from every proposal of
// every sub-unit, normalize them, then price them.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/PageDAO/DAO-Tools/internal/dlq"
	"github.com/PageDAO/DAO-Tools/internal/extractor"
	"github.com/PageDAO/DAO-Tools/internal/logging"
	"github.com/PageDAO/DAO-Tools/internal/metrics"
	"github.com/PageDAO/DAO-Tools/internal/normalizer"
	"github.com/PageDAO/DAO-Tools/internal/proposal"
	"github.com/PageDAO/DAO-Tools/internal/registry"
	"github.com/PageDAO/DAO-Tools/internal/valuation"
	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

// Pipeline orchestrates extraction, normalization and valuation. A single
// Pipeline may run several batches; each call to ProcessAll is independent.
type Pipeline struct {
	extractor *extractor.Extractor
	registry  *registry.Registry
	resolver  *valuation.Resolver
	dlq       *dlq.Queue
	logger    *logging.Logger
	now       func() time.Time

	prefix           string
	workers          int
	valuationWorkers int

	runs      atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers sets how many proposals are extracted concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// WithValuationWorkers sets how many transactions are priced concurrently.
func WithValuationWorkers(n int) Option {
	return func(p *Pipeline) { p.valuationWorkers = n }
}

// WithDLQ sends failed proposals to q.
func WithDLQ(q *dlq.Queue) Option {
	return func(p *Pipeline) { p.dlq = q }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock overrides the run timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithAddressPrefix sets the bech32 prefix used to classify recipients.
func WithAddressPrefix(prefix string) Option {
	return func(p *Pipeline) { p.prefix = prefix }
}

// New creates a pipeline. A nil extractor uses the default decoders; a nil
// resolver prices nothing.
func New(ext *extractor.Extractor, reg *registry.Registry, resolver *valuation.Resolver, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:        ext,
		registry:         reg,
		resolver:         resolver,
		now:              time.Now,
		prefix:           extractor.DefaultOptions().AddressPrefix,
		workers:          1,
		valuationWorkers: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	base := logging.OrDefault(p.logger)
	p.logger = base.With(logging.Component("pipeline"))
	if p.extractor == nil {
		p.extractor = extractor.New(nil, extractor.WithLogger(base))
	}
	if p.resolver == nil {
		p.resolver = valuation.New(nil, valuation.WithLogger(base))
	}
	return p
}

type job struct {
	subunit  int
	proposal proposal.Tree
}

type outcome struct {
	result extractor.Result
	err    error
}

// ProcessAll runs one batch. Sub-units carrying a fetch error are skipped
// and recorded verbatim. Undecodable messages are only counted; a proposal
// that fails as a whole is recorded, dead-lettered, and the batch
// continues. Output order follows input order regardless of worker count.
func (p *Pipeline) ProcessAll(ctx context.Context, subunits []proposal.Subunit, coreTeam []string) ([]ledger.Transaction, ledger.Diagnostics) {
	runID := logging.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logging.ContextWithRunID(ctx, runID)
	}
	p.runs.Add(1)

	diag := ledger.Diagnostics{
		RunID:     runID,
		StartedAt: p.now().UTC(),
		Subunits:  make([]ledger.SubunitStats, len(subunits)),
	}
	p.logger.InfoContext(ctx, "batch started", logging.Count(len(subunits)))

	var jobs []job
	for i, s := range subunits {
		diag.Subunits[i] = ledger.SubunitStats{Name: s.Name, Address: s.Address, Error: s.Error}
		if s.Error != "" {
			continue
		}
		for _, prop := range s.Proposals {
			jobs = append(jobs, job{subunit: i, proposal: prop})
		}
	}

	outcomes := p.extractAll(ctx, subunits, jobs)

	var raws []ledger.RawPayment
	for i, j := range jobs {
		s := subunits[j.subunit]
		stats := &diag.Subunits[j.subunit]
		out := outcomes[i]

		stats.Proposals++
		stats.Payments += len(out.result.Payments)
		stats.DecodeFailures += out.result.DecodeFailures
		diag.MessagesScanned += out.result.Messages
		diag.DecodeFailures += out.result.DecodeFailures
		raws = append(raws, out.result.Payments...)

		metrics.MessagesScanned.Add(float64(out.result.Messages))
		metrics.DecodeFailures.Add(float64(out.result.DecodeFailures))
		for _, pay := range out.result.Payments {
			metrics.PaymentsExtracted.WithLabelValues(string(pay.Kind)).Inc()
		}

		if out.err == nil {
			p.processed.Add(1)
			metrics.ProposalsTotal.WithLabelValues(s.Name, "ok").Inc()
			continue
		}
		p.failed.Add(1)
		metrics.ProposalsTotal.WithLabelValues(s.Name, "failed").Inc()
		diag.ProposalErrors = append(diag.ProposalErrors, ledger.ProposalError{
			Subunit:    s.Name,
			ProposalID: j.proposal.ID(),
			Error:      out.err.Error(),
		})
		if ctx.Err() == nil {
			if err := p.dlq.Write(ctx, s.Name, s.Address, j.proposal, out.err, "extract"); err != nil {
				p.logger.ErrorContext(ctx, "failed to write dlq entry", logging.Error(err))
			}
		}
	}

	for _, stats := range diag.Subunits {
		if stats.Error != "" {
			metrics.SubunitsSkipped.Inc()
			p.logger.WarnContext(ctx, "sub-unit skipped",
				logging.Subunit(stats.Name), logging.Address(stats.Address), "fetch_error", stats.Error)
			continue
		}
		p.logger.InfoContext(ctx, "sub-unit processed",
			logging.Subunit(stats.Name), "proposals", stats.Proposals, "payments", stats.Payments,
			"decode_failures", stats.DecodeFailures)
	}
	diag.PaymentsExtracted = len(raws)

	norm := normalizer.New(p.registry, coreTeam, p.prefix)
	txs := norm.NormalizeAll(raws)
	p.resolver.ResolveAll(ctx, txs, p.valuationWorkers)

	var total float64
	unresolved := 0
	for _, tx := range txs {
		if v, ok := tx.USD.Get(); ok {
			total += v
		} else {
			unresolved++
		}
	}
	metrics.LedgerUSDTotal.Set(total)
	metrics.UnresolvedTransactions.Set(float64(unresolved))

	diag.FinishedAt = p.now().UTC()
	metrics.RunDuration.Observe(diag.FinishedAt.Sub(diag.StartedAt).Seconds())
	p.logger.InfoContext(ctx, "batch finished",
		"transactions", len(txs),
		"unresolved", unresolved,
		"proposal_errors", len(diag.ProposalErrors),
		logging.Duration(diag.FinishedAt.Sub(diag.StartedAt).Milliseconds()))

	return txs, diag
}

// extractAll runs every job and returns outcomes indexed like jobs.
func (p *Pipeline) extractAll(ctx context.Context, subunits []proposal.Subunit, jobs []job) []outcome {
	outcomes := make([]outcome, len(jobs))
	run := func(i int) {
		j := jobs[i]
		s := subunits[j.subunit]
		start := time.Now()
		res, err := p.extractor.Extract(ctx, j.proposal, s.Name, s.Address)
		metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
		outcomes[i] = outcome{result: res, err: err}
	}

	workers := p.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}
	if workers <= 1 {
		for i := range jobs {
			run(i)
		}
		return outcomes
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				run(i)
			}
		}()
	}
	for i := range jobs {
		indexes <- i
	}
	close(indexes)
	wg.Wait()
	return outcomes
}

// Stats is a snapshot of pipeline counters across runs.
type Stats struct {
	Runs      uint64    `json:"runs"`
	Processed uint64    `json:"processed"`
	Failed    uint64    `json:"failed"`
	DLQ       dlq.Stats `json:"dlq"`
}

// Stats returns counters accumulated since the pipeline was created.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Runs:      p.runs.Load(),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		DLQ:       p.dlq.Stats(),
	}
}
