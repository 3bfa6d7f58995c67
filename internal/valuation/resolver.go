// Package valuation converts normalized amounts into USD using the local
// price table, with an optional memoized remote fallback.
package valuation

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/PageDAO/DAO-Tools/internal/logging"
	"github.com/PageDAO/DAO-Tools/internal/metrics"
	"github.com/PageDAO/DAO-Tools/internal/pricecache"
	"github.com/PageDAO/DAO-Tools/internal/pricing"
	"github.com/PageDAO/DAO-Tools/internal/proposal"
	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

const (
	SourceTable  = "table"
	SourceRemote = "remote"

	defaultRemoteTimeout = 10 * time.Second
)

// symbolAliases folds base-unit and wrapped spellings onto the symbol the
// price table uses.
var symbolAliases = map[string]string{
	"UOSMO":  "OSMO",
	"UION":   "ION",
	"UATOM":  "ATOM",
	"USTARS": "STARS",
	"UJUNO":  "JUNO",
	"UAKT":   "AKT",
	"USCRT":  "SCRT",
	"UUSDC":  "USDC",
	"UTIA":   "TIA",
	"UNTRN":  "NTRN",
	"UUMEE":  "UMEE",

	"AXLUSDC": "USDC",
	"USDCAXL": "USDC",
}

// PriceSource answers historical USD price queries for a price-service
// coin ID. found is false when no price exists.
type PriceSource interface {
	HistoricalPrice(ctx context.Context, id string, date time.Time) (price float64, found bool, err error)
}

// Price is a resolved unit price.
type Price struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"`
	Price  float64 `json:"price"`
	Source string  `json:"source"`
	Exact  bool    `json:"exact"`
}

// Resolver prices transactions. It is safe for concurrent use.
type Resolver struct {
	table   *pricing.Table
	remote  PriceSource
	cache   pricecache.Cache
	coinIDs map[string]string
	timeout time.Duration
	logger  *logging.Logger

	// failed records lookups that errored during this run. Errors are not
	// written to the shared cache since they may be transient.
	mu     sync.Mutex
	failed map[pricecache.Key]struct{}
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRemote enables the remote fallback. coinIDs maps display symbols to
// the source's identifiers. A nil cache gets an in-memory one.
func WithRemote(src PriceSource, cache pricecache.Cache, coinIDs map[string]string) Option {
	return func(r *Resolver) {
		r.remote = src
		r.cache = cache
		r.coinIDs = make(map[string]string, len(coinIDs))
		for sym, id := range coinIDs {
			r.coinIDs[strings.ToUpper(sym)] = id
		}
	}
}

// WithTimeout bounds each remote lookup.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a resolver over table. A nil table behaves as empty.
func New(table *pricing.Table, opts ...Option) *Resolver {
	if table == nil {
		table = pricing.NewTable()
	}
	r := &Resolver{
		table:   table,
		timeout: defaultRemoteTimeout,
		failed:  make(map[pricecache.Key]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.remote != nil && r.cache == nil {
		r.cache = pricecache.NewMemory()
	}
	r.logger = logging.OrDefault(r.logger).With(logging.Component("valuation"))
	return r
}

// Candidates returns the symbol spellings tried against the price table,
// in order, without duplicates.
func Candidates(symbol string) []string {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil
	}
	raw := []string{symbol, strings.ToUpper(symbol), strings.ToLower(symbol)}
	if i := strings.LastIndex(symbol, "/"); i >= 0 && i < len(symbol)-1 {
		raw = append(raw, strings.ToUpper(symbol[i+1:]))
	}
	raw = append(raw, strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, symbol)))

	seen := make(map[string]bool, len(raw))
	var out []string
	for _, c := range raw {
		if alias, ok := symbolAliases[strings.ToUpper(c)]; ok {
			c = alias
		}
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Quote returns the unit price for symbol on date. The local table wins;
// the remote source is consulted only when no candidate symbol is in it.
func (r *Resolver) Quote(ctx context.Context, symbol, date string) (Price, bool) {
	day, ok := proposal.ParseDate(date)
	if strings.TrimSpace(symbol) == "" || !ok {
		return Price{}, false
	}
	candidates := Candidates(symbol)

	for _, c := range candidates {
		if !r.table.Has(c) {
			continue
		}
		q, ok := r.table.Lookup(c, date)
		if !ok {
			continue
		}
		return Price{Symbol: q.Symbol, Date: q.Date, Price: q.Price, Source: SourceTable, Exact: q.Exact}, true
	}

	if r.remote == nil {
		return Price{}, false
	}
	for _, c := range candidates {
		id, ok := r.coinIDs[strings.ToUpper(c)]
		if !ok {
			continue
		}
		price, found := r.remoteLookup(ctx, pricecache.Key{CoinID: id, Date: day.Format(proposal.DateLayout)}, day)
		if !found {
			return Price{}, false
		}
		return Price{Symbol: strings.ToUpper(c), Date: day.Format(proposal.DateLayout), Price: price, Source: SourceRemote, Exact: true}, true
	}
	return Price{}, false
}

func (r *Resolver) remoteLookup(ctx context.Context, key pricecache.Key, day time.Time) (float64, bool) {
	r.mu.Lock()
	_, failed := r.failed[key]
	r.mu.Unlock()
	if failed {
		return 0, false
	}

	if e, ok, err := r.cache.Get(ctx, key); err != nil {
		r.logger.WarnContext(ctx, "price cache read failed", logging.Error(err))
	} else if ok {
		metrics.RemotePriceRequests.WithLabelValues("cache_hit").Inc()
		return e.Price, e.Found
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	price, found, err := r.remote.HistoricalPrice(lookupCtx, key.CoinID, day)
	metrics.RemotePriceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RemotePriceRequests.WithLabelValues("error").Inc()
		r.logger.DebugContext(ctx, "remote price lookup failed",
			"coin_id", key.CoinID, logging.Date(key.Date), logging.Error(err))
		r.mu.Lock()
		r.failed[key] = struct{}{}
		r.mu.Unlock()
		return 0, false
	}

	if found {
		metrics.RemotePriceRequests.WithLabelValues("found").Inc()
	} else {
		metrics.RemotePriceRequests.WithLabelValues("not_found").Inc()
	}
	if err := r.cache.Set(ctx, key, pricecache.Entry{Price: price, Found: found}); err != nil {
		r.logger.WarnContext(ctx, "price cache write failed", logging.Error(err))
	}
	return price, found
}

// ResolveUSD returns the USD value of tx. It is unresolved when the symbol or
// date is missing, the amount is not a finite number, or no price exists.
// A zero amount with a known price is a resolved zero.
func (r *Resolver) ResolveUSD(ctx context.Context, tx ledger.Transaction) ledger.USD {
	amount := tx.AdjustedAmount
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		metrics.ValuationsTotal.WithLabelValues("none", "invalid").Inc()
		return ledger.Unresolved()
	}
	p, ok := r.Quote(ctx, tx.DisplaySymbol, tx.ProposalDate)
	if !ok {
		metrics.ValuationsTotal.WithLabelValues("none", "unresolved").Inc()
		return ledger.Unresolved()
	}
	metrics.ValuationsTotal.WithLabelValues(p.Source, "resolved").Inc()
	return ledger.Resolved(amount * p.Price)
}

// ResolveAll sets USD on every transaction in place using up to workers
// goroutines. Order is untouched.
func (r *Resolver) ResolveAll(ctx context.Context, txs []ledger.Transaction, workers int) {
	if workers <= 1 || len(txs) < 2 {
		for i := range txs {
			txs[i].USD = r.ResolveUSD(ctx, txs[i])
		}
		return
	}
	if workers > len(txs) {
		workers = len(txs)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				txs[i].USD = r.ResolveUSD(ctx, txs[i])
			}
		}()
	}
	for i := range txs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}
