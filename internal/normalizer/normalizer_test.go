package normalizer_test

import (
	"math"
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PageDAO/DAO-Tools/internal/normalizer"
	"github.com/PageDAO/DAO-Tools/internal/registry"
	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

const (
	wallet   = "osmo1recipientarecipientarecipientarecipien"
	contract = "osmo1contract99contract99contract99contract99contract99contract"
	pageIBC  = "ibc/23A62409E4AD8133116C249B1FA38EED30E500A115D7B153109462CD82C1CD99"
)

func testRegistry() *registry.Registry {
	return registry.New(
		registry.Token{Denom: "uosmo", Symbol: "OSMO", Decimals: 6},
		registry.Token{Denom: pageIBC, Symbol: "PAGE", Decimals: 8},
		registry.Token{Denom: "factory/abc/ustable", Symbol: "", Decimals: 6},
		registry.Token{Denom: "uweird", Symbol: "WEIRDCOIN", Decimals: 6},
	)
}

func TestNormalize_OSMO(t *testing.T) {
	n := normalizer.New(testRegistry(), nil, "")

	tx := n.Normalize(ledger.RawPayment{
		Recipient: wallet,
		RawAmount: big.NewInt(5000000),
		Denom:     "uosmo",
		Kind:      ledger.KindBankSend,
	})

	assert.Equal(t, 5.0, tx.AdjustedAmount)
	assert.Equal(t, "OSMO", tx.DisplaySymbol)
	assert.Equal(t, ledger.PaymentRegular, tx.PaymentType)
	assert.Equal(t, ledger.RecipientWallet, tx.RecipientType)
	assert.Equal(t, "Micro Payment", tx.TransactionCategory)
	assert.Equal(t, normalizer.AmountMicro, tx.AmountCategory)
	assert.Equal(t, []string{"Direct Transfer", "Micro Payment", "Wallet Address"}, tx.Tags)
	assert.Equal(t, "Direct Transfer | Micro Payment | Wallet Address", tx.TagString())
	assert.False(t, tx.USD.IsResolved())
}

func TestNormalize_CoreTeamContractPayment(t *testing.T) {
	n := normalizer.New(testRegistry(), []string{" " + contract + " ", ""}, "osmo")

	tx := n.Normalize(ledger.RawPayment{
		Recipient: contract,
		RawAmount: big.NewInt(25_000_000_000),
		Denom:     "uosmo",
		Kind:      ledger.KindContractExecuteFunds,
	})

	assert.Equal(t, 25000.0, tx.AdjustedAmount)
	assert.Equal(t, ledger.PaymentCoreTeam, tx.PaymentType)
	assert.True(t, tx.IsCoreTeam())
	assert.Equal(t, ledger.RecipientContract, tx.RecipientType)
	assert.Equal(t, "Large Core Team Payment", tx.TransactionCategory)
	assert.Equal(t, normalizer.AmountMedium, tx.AmountCategory)
	assert.Equal(t, []string{"Smart Contract", "Significant Payment", "Contract Address"}, tx.Tags)
}

func TestNormalize_UnknownDenomHasNoScaling(t *testing.T) {
	n := normalizer.New(registry.New(), nil, "")

	tx := n.Normalize(ledger.RawPayment{Recipient: "cosmos1xyz", RawAmount: big.NewInt(1234), Denom: "mystery/denom", Kind: ledger.KindOther})
	assert.Equal(t, 1234.0, tx.AdjustedAmount)
	assert.Equal(t, "mystery/denom", tx.DisplaySymbol)
	assert.Equal(t, ledger.RecipientOther, tx.RecipientType)
	assert.Equal(t, []string{"Standard Payment"}, tx.Tags)
}

func TestAdjustAmount_MatchesDivision(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		raw := rng.Int63n(1 << 52)
		decimals := rng.Intn(19)
		got := normalizer.AdjustAmount(big.NewInt(raw), decimals)
		want := float64(raw) / math.Pow10(decimals)
		require.Equal(t, want, got, "raw=%d decimals=%d", raw, decimals)
	}

	assert.Equal(t, 0.0, normalizer.AdjustAmount(nil, 6))
	assert.Equal(t, 12.0, normalizer.AdjustAmount(big.NewInt(12), -3))
}

func TestDisplaySymbol(t *testing.T) {
	n := normalizer.New(testRegistry(), nil, "osmo")

	tests := []struct {
		name  string
		denom string
		want  string
	}{
		{name: "registry exact", denom: pageIBC, want: "PAGE"},
		{name: "micro alias", denom: "uion", want: "ION"},
		{name: "micro alias case insensitive", denom: "UATOM", want: "ATOM"},
		{name: "registry symbol contained in denom", denom: "gamm/pool/osmo-lp", want: "OSMO"},
		{name: "denom contained in registry symbol", denom: "weirdc", want: "WEIRDCOIN"},
		{name: "short alphabetic uppercased", denom: "juno", want: "JUNO"},
		{name: "empty registry symbol falls through", denom: "factory/abc/ustable", want: "factory/abc/ustable"},
		{name: "unknown ibc hash returned raw", denom: "ibc/ABCDEF", want: "ibc/ABCDEF"},
		{name: "contract denom returned raw", denom: contract, want: contract},
		{name: "long alphanumeric returned raw", denom: "token123", want: "token123"},
		{name: "empty", denom: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.DisplaySymbol(tt.denom))
		})
	}
}

func TestClassifyRecipient(t *testing.T) {
	tests := []struct {
		addr string
		want ledger.RecipientType
	}{
		{addr: "", want: ledger.RecipientUnknown},
		{addr: wallet, want: ledger.RecipientWallet},
		{addr: contract, want: ledger.RecipientContract},
		{addr: "cosmos1abc", want: ledger.RecipientOther},
		{addr: "osmo", want: ledger.RecipientOther},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizer.ClassifyRecipient(tt.addr, "osmo"))
		})
	}
}

func TestTransactionCategory(t *testing.T) {
	tests := []struct {
		amount float64
		pt     ledger.PaymentType
		want   string
	}{
		{10000, ledger.PaymentCoreTeam, "Large Core Team Payment"},
		{10000, ledger.PaymentRegular, "Large External Payment"},
		{9999.99, ledger.PaymentCoreTeam, "Medium Core Team Payment"},
		{1000, ledger.PaymentRegular, "Medium External Payment"},
		{100, ledger.PaymentCoreTeam, "Small Core Team Payment"},
		{999, ledger.PaymentRegular, "Small External Payment"},
		{99.99, ledger.PaymentCoreTeam, "Micro Payment"},
		{0, ledger.PaymentRegular, "Micro Payment"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizer.TransactionCategory(tt.amount, tt.pt), "amount=%v", tt.amount)
	}
}

func TestAmountCategory_TotalAndOrdered(t *testing.T) {
	order := normalizer.AmountCategoryOrder()
	require.Equal(t, []string{
		"Very Large (100K+ OSMO)",
		"Large (50K-100K OSMO)",
		"Medium (10K-50K OSMO)",
		"Small (1K-10K OSMO)",
		"Minor (100-1K OSMO)",
		"Micro (<100 OSMO)",
	}, order)

	index := map[string]int{}
	for i, label := range order {
		index[label] = i
	}

	boundaries := []float64{0, 99.999, 100, 999.99, 1000, 9999.99, 10000, 49999.99, 50000, 99999.99, 100000, 1e12}
	prev := len(order)
	for _, amount := range boundaries {
		label := normalizer.AmountCategory(amount)
		i, ok := index[label]
		require.True(t, ok, "amount %v produced unknown label %q", amount, label)
		assert.LessOrEqual(t, i, prev, "buckets must not shrink as amounts grow")
		prev = i
	}

	assert.Equal(t, normalizer.AmountMicro, normalizer.AmountCategory(0))
	assert.Equal(t, normalizer.AmountMinor, normalizer.AmountCategory(100))
	assert.Equal(t, normalizer.AmountVeryLarge, normalizer.AmountCategory(100000))
}

func TestAmountTag(t *testing.T) {
	assert.Equal(t, "Major Expenditure", normalizer.AmountTag(50000))
	assert.Equal(t, "Significant Payment", normalizer.AmountTag(10000))
	assert.Equal(t, "Standard Payment", normalizer.AmountTag(1000))
	assert.Equal(t, "Minor Payment", normalizer.AmountTag(100))
	assert.Equal(t, "Micro Payment", normalizer.AmountTag(99))
}

func TestKindTag(t *testing.T) {
	assert.Equal(t, "Direct Transfer", normalizer.KindTag(ledger.KindBankSend))
	assert.Equal(t, "Protocol Operation", normalizer.KindTag(ledger.KindProtocolRaw))
	assert.Equal(t, "Smart Contract", normalizer.KindTag(ledger.KindContractInstantiate))
	assert.Equal(t, "", normalizer.KindTag(ledger.KindOther))
}

func TestTransaction_TagStringEmpty(t *testing.T) {
	assert.Equal(t, "Standard", ledger.Transaction{}.TagString())
}

func TestNormalizeAll_PreservesOrder(t *testing.T) {
	n := normalizer.New(testRegistry(), nil, "")
	raws := []ledger.RawPayment{
		{Recipient: "a", RawAmount: big.NewInt(1), Denom: "uosmo"},
		{Recipient: "b", RawAmount: big.NewInt(2), Denom: "uosmo"},
		{Recipient: "c", RawAmount: big.NewInt(3), Denom: "uosmo"},
	}

	txs := n.NormalizeAll(raws)
	require.Len(t, txs, 3)
	for i, tx := range txs {
		assert.Equal(t, raws[i].Recipient, tx.Recipient)
	}
}
