package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/PageDAO/DAO-Tools/internal/coingecko"
	"github.com/PageDAO/DAO-Tools/internal/config"
	"github.com/PageDAO/DAO-Tools/internal/dlq"
	"github.com/PageDAO/DAO-Tools/internal/extractor"
	"github.com/PageDAO/DAO-Tools/internal/indexer"
	"github.com/PageDAO/DAO-Tools/internal/logging"
	"github.com/PageDAO/DAO-Tools/internal/messaging"
	"github.com/PageDAO/DAO-Tools/internal/metrics"
	"github.com/PageDAO/DAO-Tools/internal/output"
	"github.com/PageDAO/DAO-Tools/internal/pipeline"
	"github.com/PageDAO/DAO-Tools/internal/pricecache"
	"github.com/PageDAO/DAO-Tools/internal/pricing"
	"github.com/PageDAO/DAO-Tools/internal/proposal"
	"github.com/PageDAO/DAO-Tools/internal/registry"
	"github.com/PageDAO/DAO-Tools/internal/report"
	"github.com/PageDAO/DAO-Tools/internal/search"
	"github.com/PageDAO/DAO-Tools/internal/storage"
	"github.com/PageDAO/DAO-Tools/internal/valuation"
	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

var (
	runInput     string
	runSubDAOs   []string
	runNoMain    bool
	runWorkers   int
	runCoreTeam  []string
	runSkipSinks bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the payment ledger",
	Long: `Fetch passed proposals (or read them from --input), extract every payment,
value it in USD and write the reports.

Examples:
  # Main DAO and every sub-DAO from the indexer
  daoledger run

  # Replay a saved batch without touching the network
  daoledger run --input proposals.yaml --skip-sinks

  # Only two sub-DAOs, JSON summary on stdout
  daoledger run --subdao "Writers Guild" --subdao osmo1xyz... --no-main -o json`,
	RunE: runLedger,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "read proposals from a JSON or YAML file instead of the indexer")
	runCmd.Flags().StringSliceVar(&runSubDAOs, "subdao", nil, "only process these sub-DAOs (name or address)")
	runCmd.Flags().BoolVar(&runNoMain, "no-main", false, "skip the main DAO's own proposals")
	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", 0, "proposals extracted concurrently")
	runCmd.Flags().StringSliceVar(&runCoreTeam, "core-team", nil, "additional core team addresses")
	runCmd.Flags().BoolVar(&runSkipSinks, "skip-sinks", false, "do not persist, index or publish the run")
}

func runLedger(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("input") {
		cfg.Input.File = runInput
	}
	if cmd.Flags().Changed("subdao") {
		cfg.Indexer.SubDAOs = runSubDAOs
	}
	if cmd.Flags().Changed("no-main") {
		cfg.Indexer.IncludeMain = !runNoMain
	}
	if cmd.Flags().Changed("workers") {
		cfg.Pipeline.Workers = runWorkers
	}
	if cmd.Flags().Changed("core-team") {
		cfg.CoreTeam.Addresses = append(cfg.CoreTeam.Addresses, runCoreTeam...)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	r := &runner{cfg: cfg, logger: logger, printer: printer, skipSinks: runSkipSinks}
	return r.run(cmd.Context())
}

// runner carries one ledger run from input to sinks.
type runner struct {
	cfg       *config.Config
	logger    *logging.Logger
	printer   *output.Printer
	skipSinks bool
	now       func() time.Time
}

func (r *runner) run(ctx context.Context) error {
	if r.now == nil {
		r.now = time.Now
	}
	started := r.now()
	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	r.logger.InfoContext(ctx, "run started")

	var idx *indexer.Client
	if r.cfg.Input.File == "" || r.cfg.CoreTeam.Auto {
		idx = indexer.NewClient(indexer.Config{
			BaseURL:        r.cfg.Indexer.BaseURL,
			Network:        r.cfg.Indexer.Network,
			Timeout:        r.cfg.Indexer.Timeout,
			Attempts:       r.cfg.Indexer.Retries,
			RetryDelay:     r.cfg.Indexer.RetryDelay,
			ProposalFilter: r.cfg.Indexer.ProposalFilter,
		}, r.logger)
	}

	subunits, err := r.subunits(ctx, idx)
	if err != nil {
		return err
	}
	coreTeam, err := r.coreTeam(ctx, idx)
	if err != nil {
		return err
	}

	reg := registry.Load(ctx, r.logger, r.cfg.Registry.File, r.cfg.Registry.URL)
	table := pricing.LoadFiles(ctx, r.logger, r.cfg.Prices.Files...)

	resolver, closeCache := r.resolver(ctx, table)
	defer closeCache()

	var queue *dlq.Queue
	if r.cfg.DLQ.Enabled {
		queue, err = dlq.NewQueue(r.cfg.DLQ.Path, r.logger)
		if err != nil {
			return err
		}
	}

	ext := extractor.New(
		extractor.DefaultRegistry(extractor.Options{
			AddressPrefix: r.cfg.Extract.AddressPrefix,
			DefaultDenom:  r.cfg.Extract.DefaultDenom,
		}),
		extractor.WithLogger(r.logger),
		extractor.WithClock(r.now),
	)
	p := pipeline.New(ext, reg, resolver,
		pipeline.WithWorkers(r.cfg.Pipeline.Workers),
		pipeline.WithValuationWorkers(r.cfg.Pipeline.ValuationWorkers),
		pipeline.WithDLQ(queue),
		pipeline.WithLogger(r.logger),
		pipeline.WithClock(r.now),
		pipeline.WithAddressPrefix(r.cfg.Extract.AddressPrefix),
	)

	txs, diag := p.ProcessAll(ctx, subunits, coreTeam)
	if err := ctx.Err(); err != nil {
		return err
	}

	rep := report.Build(txs, diag)
	rep.TopRecipients = report.TopRecipients(txs, r.cfg.Report.TopRecipients)

	if err := r.writeFiles(rep, txs); err != nil {
		return err
	}
	if err := r.printReport(rep); err != nil {
		return err
	}

	if !r.skipSinks {
		r.sinks(ctx, diag, txs, rep.Summary)
	}
	if err := metrics.Push(ctx, r.cfg.Metrics.PushgatewayURL, r.cfg.Metrics.Job); err != nil {
		r.logger.WarnContext(ctx, "metrics push failed", logging.Error(err))
	}

	if failed := diag.FailedSubunits(); len(failed) > 0 {
		r.printer.Warn("%d sub-unit(s) skipped because their proposals could not be fetched", len(failed))
	}
	if n := diag.DecodeFailures; n > 0 {
		r.printer.Warn("%d message(s) could not be decoded and contributed no payments", n)
	}
	if n := len(diag.ProposalErrors); n > 0 {
		r.printer.Warn("%d proposal(s) could not be processed; see the dead-letter queue", n)
	}
	r.logger.InfoContext(ctx, "run finished", logging.Count(len(txs)),
		logging.Duration(r.now().Sub(started).Milliseconds()))
	return nil
}

func (r *runner) subunits(ctx context.Context, idx *indexer.Client) ([]proposal.Subunit, error) {
	if r.cfg.Input.File != "" {
		subunits, err := proposal.LoadFile(r.cfg.Input.File)
		if err != nil {
			return nil, err
		}
		r.logger.InfoContext(ctx, "proposals loaded from file", logging.Path(r.cfg.Input.File), logging.Count(len(subunits)))
		return subunits, nil
	}
	return idx.FetchSubunits(ctx, r.cfg.Indexer.MainDAO, indexer.Selection{
		IncludeMain: r.cfg.Indexer.IncludeMain,
		Only:        r.cfg.Indexer.SubDAOs,
	})
}

// coreTeam returns the configured addresses, falling back to the core team
// sub-DAO's members when none are configured and auto is on.
func (r *runner) coreTeam(ctx context.Context, idx *indexer.Client) ([]string, error) {
	static, err := r.cfg.CoreTeam.StaticAddresses()
	if err != nil {
		return nil, err
	}
	if len(static) > 0 || !r.cfg.CoreTeam.Auto || idx == nil {
		return static, nil
	}
	members, err := idx.CoreTeamMembers(ctx, r.cfg.Indexer.MainDAO, r.cfg.Indexer.CoreTeamSubDAO)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.logger.WarnContext(ctx, "core team lookup failed; no payments will be tagged core team", logging.Error(err))
		return nil, nil
	}
	r.logger.InfoContext(ctx, "core team members fetched", logging.Count(len(members)))
	return members, nil
}

func (r *runner) resolver(ctx context.Context, table *pricing.Table) (*valuation.Resolver, func()) {
	opts := []valuation.Option{valuation.WithLogger(r.logger)}
	closeFn := func() {}

	cg := r.cfg.Prices.CoinGecko
	if cg.Enabled {
		client := coingecko.NewClient(coingecko.Config{
			BaseURL:           cg.BaseURL,
			APIKey:            cg.APIKey,
			Timeout:           cg.Timeout,
			RequestsPerMinute: cg.RequestsPerMinute,
		})

		var cache pricecache.Cache
		if r.cfg.Cache.Enabled {
			redisCache, err := pricecache.Dial(ctx, r.cfg.Cache.RedisURL, r.cfg.Cache.TTL)
			if err != nil {
				r.logger.WarnContext(ctx, "price cache unavailable; using in-memory cache", logging.Error(err))
			} else {
				cache = redisCache
				closeFn = func() { _ = redisCache.Close() }
			}
		}
		opts = append(opts,
			valuation.WithRemote(client, cache, coingecko.DefaultCoinIDs),
			valuation.WithTimeout(cg.Timeout),
		)
	}
	return valuation.New(table, opts...), closeFn
}

func (r *runner) writeFiles(rep report.Report, txs []ledger.Transaction) error {
	out := r.cfg.Output
	writes := []struct {
		path  string
		write func(io.Writer) error
	}{
		{out.Path(out.CSV), func(w io.Writer) error { return report.WriteCSV(w, txs) }},
		{out.Path(out.DetailedCSV), func(w io.Writer) error {
			return report.WriteCSV(w, report.Detailed(txs, r.cfg.Report.IncludeZeroUSD))
		}},
		{out.Path(out.JSON), func(w io.Writer) error { return report.WriteJSON(w, rep) }},
	}
	for _, wr := range writes {
		if wr.path == "" {
			continue
		}
		if err := writeFile(wr.path, wr.write); err != nil {
			return err
		}
		r.printer.Success("Wrote %s", wr.path)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (r *runner) printReport(rep report.Report) error {
	switch r.printer.Format {
	case output.FormatJSON:
		return report.WriteJSON(r.printer.Out, rep)
	case output.FormatYAML:
		// Transactions are in the CSV; the terminal gets the aggregates.
		rep.Transactions = nil
		return r.printer.YAML(rep)
	}
	return report.WriteText(r.printer.Out, rep)
}

// sinks persists, indexes and announces the run. Sink failures are logged
// and counted; the reports on disk are the run's primary output.
func (r *runner) sinks(ctx context.Context, diag ledger.Diagnostics, txs []ledger.Transaction, summary report.Summary) {
	if r.cfg.Database.Enabled {
		if err := r.persist(ctx, diag, txs); err != nil {
			metrics.SinkErrors.WithLabelValues("postgres").Inc()
			r.printer.Error("Failed to persist run: %v", err)
		} else {
			r.printer.Success("Stored run %s", diag.RunID)
		}
	}

	if r.cfg.OpenSearch.Enabled {
		res, err := r.index(ctx, diag.RunID, txs)
		switch {
		case err != nil:
			metrics.SinkErrors.WithLabelValues("opensearch").Inc()
			r.printer.Error("Failed to index transactions: %v", err)
		case res.Failed > 0:
			metrics.SinkErrors.WithLabelValues("opensearch").Add(float64(res.Failed))
			r.printer.Warn("Indexed %d transactions, %d failed", res.Indexed, res.Failed)
		default:
			r.printer.Success("Indexed %d transactions", res.Indexed)
		}
	}

	if r.cfg.NATS.Enabled {
		if err := r.publish(ctx, diag, summary); err != nil {
			metrics.SinkErrors.WithLabelValues("nats").Inc()
			r.printer.Error("Failed to publish run event: %v", err)
		}
	}
}

func (r *runner) persist(ctx context.Context, diag ledger.Diagnostics, txs []ledger.Transaction) error {
	repo, err := storage.NewPostgresRepository(ctx, r.cfg.Database.Postgres.DSN())
	if err != nil {
		return err
	}
	defer repo.Close()
	err = repo.SaveRun(ctx, diag, txs)
	if errors.Is(err, storage.ErrRunExists) {
		r.logger.WarnContext(ctx, "run already stored")
		return nil
	}
	return err
}

func (r *runner) index(ctx context.Context, runID string, txs []ledger.Transaction) (search.IndexResult, error) {
	osCfg := r.cfg.OpenSearch
	client, err := search.NewClient(search.Config{
		URL:         osCfg.URL,
		Username:    osCfg.Username,
		Password:    osCfg.Password,
		Insecure:    osCfg.Insecure,
		IndexPrefix: osCfg.IndexPrefix,
	}, r.logger)
	if err != nil {
		return search.IndexResult{}, err
	}
	if err := client.EnsureTemplate(ctx); err != nil {
		r.logger.WarnContext(ctx, "index template not installed", logging.Error(err))
	}
	return client.IndexTransactions(ctx, runID, txs)
}

func (r *runner) publish(ctx context.Context, diag ledger.Diagnostics, summary report.Summary) error {
	natsCfg := messaging.DefaultNATSConfig()
	natsCfg.URL = r.cfg.NATS.URL
	natsCfg.MaxReconnects = r.cfg.NATS.MaxReconnects
	natsCfg.ReconnectWait = r.cfg.NATS.ReconnectWait

	client, err := messaging.NewNATSClient(natsCfg, r.logger)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	n := messaging.NewNotifier(client, r.cfg.NATS.Subject, r.logger)
	return n.Notify(ctx, messaging.NewRunCompleted(diag, summary))
}
