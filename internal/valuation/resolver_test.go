package valuation_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PageDAO/DAO-Tools/internal/logging"
	"github.com/PageDAO/DAO-Tools/internal/pricecache"
	"github.com/PageDAO/DAO-Tools/internal/pricing"
	"github.com/PageDAO/DAO-Tools/internal/valuation"
	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

type fakeSource struct {
	calls  atomic.Int32
	prices map[string]float64
	err    error
}

func (f *fakeSource) HistoricalPrice(_ context.Context, id string, _ time.Time) (float64, bool, error) {
	f.calls.Add(1)
	if f.err != nil {
		return 0, false, f.err
	}
	p, ok := f.prices[id]
	return p, ok, nil
}

func tx(symbol, date string, amount float64) ledger.Transaction {
	t := ledger.Transaction{DisplaySymbol: symbol, AdjustedAmount: amount}
	t.ProposalDate = date
	return t
}

func TestResolveUSD_ExactDate(t *testing.T) {
	r := valuation.New(pricing.NewTable(pricing.Entry{Token: "OSMO", Date: "2024-01-01", Price: 1.25}))

	usd := r.ResolveUSD(context.Background(), tx("OSMO", "2024-01-01", 5.0))
	v, ok := usd.Get()
	require.True(t, ok)
	assert.Equal(t, 6.25, v)
}

func TestResolveUSD_NearestDateTieGoesEarlier(t *testing.T) {
	r := valuation.New(pricing.NewTable(
		pricing.Entry{Token: "OSMO", Date: "2024-01-01", Price: 1.0},
		pricing.Entry{Token: "OSMO", Date: "2024-01-05", Price: 2.0},
	))

	v, ok := r.ResolveUSD(context.Background(), tx("OSMO", "2024-01-03", 10)).Get()
	require.True(t, ok)
	assert.Equal(t, 10.0, v)

	v, ok = r.ResolveUSD(context.Background(), tx("OSMO", "2024-01-04", 10)).Get()
	require.True(t, ok)
	assert.Equal(t, 20.0, v)
}

func TestResolveUSD_Deterministic(t *testing.T) {
	r := valuation.New(pricing.NewTable(
		pricing.Entry{Token: "OSMO", Date: "2024-01-01", Price: 1.0},
		pricing.Entry{Token: "OSMO", Date: "2024-01-05", Price: 2.0},
	))

	first := r.ResolveUSD(context.Background(), tx("OSMO", "2024-01-03", 7))
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, r.ResolveUSD(context.Background(), tx("OSMO", "2024-01-03", 7)))
	}
}

func TestResolveUSD_Unresolved(t *testing.T) {
	r := valuation.New(pricing.NewTable(pricing.Entry{Token: "OSMO", Date: "2024-01-01", Price: 1.25}))

	tests := []struct {
		name string
		tx   ledger.Transaction
	}{
		{name: "unknown symbol", tx: tx("NOPE", "2024-01-01", 1)},
		{name: "empty symbol", tx: tx("", "2024-01-01", 1)},
		{name: "empty date", tx: tx("OSMO", "", 1)},
		{name: "bad date", tx: tx("OSMO", "yesterday", 1)},
		{name: "nan amount", tx: tx("OSMO", "2024-01-01", math.NaN())},
		{name: "infinite amount", tx: tx("OSMO", "2024-01-01", math.Inf(1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, r.ResolveUSD(context.Background(), tt.tx).IsResolved())
		})
	}
}

func TestResolveUSD_ZeroAmountIsResolvedZero(t *testing.T) {
	r := valuation.New(pricing.NewTable(pricing.Entry{Token: "OSMO", Date: "2024-01-01", Price: 1.25}))

	usd := r.ResolveUSD(context.Background(), tx("OSMO", "2024-01-01", 0))
	v, ok := usd.Get()
	assert.True(t, ok, "zero is a value, not a missing one")
	assert.Equal(t, 0.0, v)
}

func TestResolveUSD_CandidateSpellings(t *testing.T) {
	r := valuation.New(pricing.NewTable(
		pricing.Entry{Token: "OSMO", Date: "2024-01-01", Price: 2},
		pricing.Entry{Token: "USDC", Date: "2024-01-01", Price: 1},
	))

	for _, symbol := range []string{"osmo", "uosmo", "factory/xyz/osmo", "USDC.axl", "axlUSDC"} {
		assert.True(t, r.ResolveUSD(context.Background(), tx(symbol, "2024-01-01", 1)).IsResolved(), symbol)
	}
}

func TestCandidates(t *testing.T) {
	assert.Equal(t, []string{"osmo", "OSMO"}, valuation.Candidates("osmo"))
	assert.Equal(t, []string{"OSMO"}, valuation.Candidates("uosmo"))
	assert.Equal(t, []string{"factory/abc/Page", "FACTORY/ABC/PAGE", "factory/abc/page", "PAGE", "FACTORYABCPAGE"},
		valuation.Candidates("factory/abc/Page"))
	assert.Nil(t, valuation.Candidates("  "))
}

func TestRemoteFallback_CachedOncePerKey(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"osmosis": 0.5}}
	cache := pricecache.NewMemory()
	r := valuation.New(pricing.NewTable(),
		valuation.WithRemote(src, cache, map[string]string{"osmo": "osmosis", "PAGE": "page"}),
		valuation.WithLogger(logging.Discard()),
	)

	for i := 0; i < 5; i++ {
		v, ok := r.ResolveUSD(context.Background(), tx("OSMO", "2024-02-01", 4)).Get()
		require.True(t, ok)
		assert.Equal(t, 2.0, v)
	}
	assert.Equal(t, int32(1), src.calls.Load())

	// A "no price" answer is cached too.
	for i := 0; i < 3; i++ {
		assert.False(t, r.ResolveUSD(context.Background(), tx("PAGE", "2024-02-01", 4)).IsResolved())
	}
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, 2, cache.Len())
}

func TestRemoteFallback_TableWins(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"osmosis": 99}}
	r := valuation.New(pricing.NewTable(pricing.Entry{Token: "OSMO", Date: "2023-06-01", Price: 1}),
		valuation.WithRemote(src, nil, map[string]string{"OSMO": "osmosis"}),
	)

	p, ok := r.Quote(context.Background(), "OSMO", "2024-02-01")
	require.True(t, ok)
	assert.Equal(t, valuation.SourceTable, p.Source)
	assert.False(t, p.Exact)
	assert.Equal(t, "2023-06-01", p.Date)
	assert.Zero(t, src.calls.Load())
}

func TestRemoteFallback_ErrorsSwallowed(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	cache := pricecache.NewMemory()
	r := valuation.New(nil,
		valuation.WithRemote(src, cache, map[string]string{"OSMO": "osmosis"}),
		valuation.WithLogger(logging.Discard()),
		valuation.WithTimeout(time.Second),
	)

	for i := 0; i < 3; i++ {
		assert.False(t, r.ResolveUSD(context.Background(), tx("OSMO", "2024-02-01", 1)).IsResolved())
	}
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Zero(t, cache.Len(), "failures are not written to the shared cache")
}

func TestResolveAll_ConcurrentMatchesSequential(t *testing.T) {
	table := pricing.NewTable(
		pricing.Entry{Token: "OSMO", Date: "2024-01-01", Price: 1.5},
		pricing.Entry{Token: "ATOM", Date: "2024-01-10", Price: 8},
	)
	src := &fakeSource{prices: map[string]float64{"page": 0.01}}
	r := valuation.New(table, valuation.WithRemote(src, nil, map[string]string{"PAGE": "page"}))

	var txs []ledger.Transaction
	symbols := []string{"OSMO", "ATOM", "PAGE", "NONE"}
	for i := 0; i < 200; i++ {
		txs = append(txs, tx(symbols[i%len(symbols)], "2024-01-05", float64(i)))
	}
	sequential := make([]ledger.Transaction, len(txs))
	copy(sequential, txs)

	r.ResolveAll(context.Background(), sequential, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.ResolveAll(context.Background(), txs, 8)
	}()
	wg.Wait()

	for i := range txs {
		assert.Equal(t, sequential[i].USD, txs[i].USD, "index %d", i)
		assert.Equal(t, float64(i), txs[i].AdjustedAmount)
	}
}
