package report_test

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PageDAO/DAO-Tools/internal/normalizer"
	"github.com/PageDAO/DAO-Tools/internal/report"
	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

func txn(subunit, recipient string, pt ledger.PaymentType, amount float64, usd ledger.USD) ledger.Transaction {
	tx := ledger.Transaction{
		AdjustedAmount:      amount,
		DisplaySymbol:       "OSMO",
		PaymentType:         pt,
		TransactionCategory: normalizer.TransactionCategory(amount, pt),
		AmountCategory:      normalizer.AmountCategory(amount),
		USD:                 usd,
	}
	tx.SubunitName = subunit
	tx.Recipient = recipient
	tx.ProposalID = recipient + "-p"
	tx.RawAmount = big.NewInt(int64(amount * 1e6))
	tx.Denom = "uosmo"
	tx.Kind = ledger.KindBankSend
	return tx
}

func fixture() []ledger.Transaction {
	return []ledger.Transaction{
		txn("Main DAO", "osmo1a", ledger.PaymentCoreTeam, 100, ledger.Resolved(300)),
		txn("Main DAO", "osmo1b", ledger.PaymentRegular, 20000, ledger.Resolved(600)),
		txn("Dev", "osmo1c", ledger.PaymentRegular, 5, ledger.Unresolved()),
		txn("Dev", "osmo1a", ledger.PaymentCoreTeam, 50, ledger.Resolved(100)),
	}
}

func TestSummarize(t *testing.T) {
	s := report.Summarize(fixture())

	assert.Equal(t, 4, s.Transactions)
	assert.Equal(t, 3, s.Resolved)
	assert.Equal(t, 1, s.Unresolved)
	assert.Equal(t, 2, s.Subunits)
	assert.Equal(t, 2, s.CoreTeamCount)
	assert.InDelta(t, 1000.0, s.TotalUSD, 1e-9)
	assert.InDelta(t, 400.0, s.CoreTeamUSD, 1e-9)
	assert.InDelta(t, 40.0, s.CoreTeamPercent, 1e-9)
	assert.InDelta(t, 1000.0/3, s.MeanUSD, 1e-9)
	assert.InDelta(t, 300.0, s.MedianUSD, 1e-9)
}

func TestSummarize_CoreTeamPercentage(t *testing.T) {
	tests := []struct {
		name string
		txs  []ledger.Transaction
		want float64
	}{
		{name: "empty", txs: nil, want: 0},
		{name: "no resolved value", txs: []ledger.Transaction{txn("a", "x", ledger.PaymentCoreTeam, 1, ledger.Unresolved())}, want: 0},
		{name: "all core", txs: []ledger.Transaction{txn("a", "x", ledger.PaymentCoreTeam, 1, ledger.Resolved(10))}, want: 100},
		{name: "quarter", txs: []ledger.Transaction{
			txn("a", "x", ledger.PaymentCoreTeam, 1, ledger.Resolved(25)),
			txn("a", "y", ledger.PaymentRegular, 1, ledger.Resolved(75)),
		}, want: 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, report.Summarize(tt.txs).CoreTeamPercent, 1e-9)
		})
	}
}

func TestSummarize_EvenMedian(t *testing.T) {
	s := report.Summarize([]ledger.Transaction{
		txn("a", "x", ledger.PaymentRegular, 1, ledger.Resolved(1)),
		txn("a", "y", ledger.PaymentRegular, 1, ledger.Resolved(4)),
	})
	assert.InDelta(t, 2.5, s.MedianUSD, 1e-9)
}

func TestBySubunit(t *testing.T) {
	got := report.BySubunit(fixture())
	require.Len(t, got, 2)
	assert.Equal(t, "Main DAO", got[0].Name)
	assert.Equal(t, 2, got[0].Transactions)
	assert.InDelta(t, 900.0, got[0].TotalUSD, 1e-9)
	assert.Equal(t, "Dev", got[1].Name)
	assert.Equal(t, 1, got[1].Unresolved)
	assert.InDelta(t, 100.0, got[1].CoreTeamUSD, 1e-9)
}

func TestByAmountCategory_FixedOrder(t *testing.T) {
	got := report.ByAmountCategory(fixture())
	require.Len(t, got, len(normalizer.AmountCategoryOrder()))
	for i, label := range normalizer.AmountCategoryOrder() {
		assert.Equal(t, label, got[i].Label)
	}
	assert.Equal(t, 1, got[2].Transactions, "20000 falls in the 10K-50K bucket")
	assert.Equal(t, 2, got[5].Transactions)
	assert.Equal(t, 0, got[0].Transactions)
}

func TestByCategory_SortedByUSD(t *testing.T) {
	got := report.ByCategory(fixture())
	require.NotEmpty(t, got)
	assert.Equal(t, "Large External Payment", got[0].Label)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].TotalUSD, got[i].TotalUSD)
	}
}

func TestTopRecipientsAndLargest(t *testing.T) {
	top := report.TopRecipients(fixture(), 2)
	require.Len(t, top, 2)
	assert.Equal(t, "osmo1b", top[0].Address)
	assert.Equal(t, "osmo1a", top[1].Address)
	assert.Equal(t, 2, top[1].Transactions)

	largest, ok := report.Largest(fixture())
	require.True(t, ok)
	assert.Equal(t, "osmo1b", largest.Recipient)

	_, ok = report.Largest([]ledger.Transaction{txn("a", "x", ledger.PaymentRegular, 1, ledger.Unresolved())})
	assert.False(t, ok)
}

func TestDetailed(t *testing.T) {
	txs := fixture()
	txs = append(txs, txs[0])

	assert.Len(t, report.Detailed(txs, false), 3)
	assert.Len(t, report.Detailed(txs, true), 4)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf, fixture()))

	df := dataframe.ReadCSV(strings.NewReader(buf.String()), dataframe.DetectTypes(false))
	require.NoError(t, df.Err)
	assert.Equal(t, report.CSVColumns, df.Names())
	assert.Equal(t, 4, df.Nrow())
	assert.Equal(t, "300.00", df.Col("usd_value").Records()[0])
	assert.Equal(t, "Core Team", df.Col("payment_type").Records()[0])
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf, nil))
	assert.Equal(t, strings.Join(report.CSVColumns, ",")+"\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	r := report.Build(fixture(), ledger.Diagnostics{RunID: "run-1"})
	require.NoError(t, report.WriteJSON(&buf, r))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded, "summary")
	txs := decoded["transactions"].([]any)
	require.Len(t, txs, 4)
	assert.Nil(t, txs[2].(map[string]any)["usd_value"], "unresolved encodes as null")
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	r := report.Build(fixture(), ledger.Diagnostics{
		RunID:          "run-1",
		Subunits:       []ledger.SubunitStats{{Name: "Broken", Error: "timeout"}},
		DecodeFailures: 3,
	})
	require.NoError(t, report.WriteText(&buf, r))

	out := buf.String()
	assert.Contains(t, out, "Run run-1")
	assert.Contains(t, out, "$1,000.00")
	assert.Contains(t, out, "(40.0%)")
	assert.Contains(t, out, "skipped: timeout")
	assert.Contains(t, out, "Undecoded messages:  3")
}
