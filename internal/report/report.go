// Package report derives summaries and breakdowns from a priced ledger and
// exports them as CSV, JSON or plain text.
package report

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/PageDAO/DAO-Tools/internal/normalizer"
	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

// Summary holds headline figures for a ledger. Only resolved USD values
// contribute to USD totals and statistics.
type Summary struct {
	Transactions    int     `json:"transactions"`
	Resolved        int     `json:"resolved"`
	Unresolved      int     `json:"unresolved"`
	LowConfidence   int     `json:"low_confidence"`
	Subunits        int     `json:"subunits"`
	CoreTeamCount   int     `json:"core_team_transactions"`
	TotalUSD        float64 `json:"total_usd"`
	CoreTeamUSD     float64 `json:"core_team_usd"`
	CoreTeamPercent float64 `json:"core_team_percent"`
	MeanUSD         float64 `json:"mean_usd"`
	MedianUSD       float64 `json:"median_usd"`
	TotalAmount     float64 `json:"total_amount"`
}

// Breakdown aggregates transactions sharing a label.
type Breakdown struct {
	Label        string  `json:"label"`
	Transactions int     `json:"transactions"`
	TotalUSD     float64 `json:"total_usd"`
}

// SubunitSummary aggregates one sub-unit's transactions.
type SubunitSummary struct {
	Name         string  `json:"name"`
	Transactions int     `json:"transactions"`
	Unresolved   int     `json:"unresolved"`
	TotalUSD     float64 `json:"total_usd"`
	CoreTeamUSD  float64 `json:"core_team_usd"`
}

// Recipient aggregates payments to one address.
type Recipient struct {
	Address      string  `json:"address"`
	Transactions int     `json:"transactions"`
	TotalUSD     float64 `json:"total_usd"`
}

// Summarize computes headline figures. The core-team share is
// 100 * core-team USD / total USD, and 0 when the total is 0.
func Summarize(txs []ledger.Transaction) Summary {
	var s Summary
	s.Transactions = len(txs)

	subunits := make(map[string]struct{})
	var values []float64
	for _, tx := range txs {
		subunits[tx.SubunitName] = struct{}{}
		s.TotalAmount += tx.AdjustedAmount
		if tx.Kind.LowConfidence() {
			s.LowConfidence++
		}
		if tx.IsCoreTeam() {
			s.CoreTeamCount++
		}

		v, ok := tx.USD.Get()
		if !ok {
			s.Unresolved++
			continue
		}
		s.Resolved++
		s.TotalUSD += v
		values = append(values, v)
		if tx.IsCoreTeam() {
			s.CoreTeamUSD += v
		}
	}
	s.Subunits = len(subunits)

	if s.TotalUSD != 0 {
		s.CoreTeamPercent = 100 * s.CoreTeamUSD / s.TotalUSD
	}
	if len(values) > 0 {
		sort.Float64s(values)
		s.MeanUSD = stat.Mean(values, nil)
		s.MedianUSD = median(values)
	}
	return s
}

// median of sorted values; even lengths average the two middle values.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return stat.Quantile(0.5, stat.Empirical, sorted, nil)
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// BySubunit groups by sub-unit in order of first appearance.
func BySubunit(txs []ledger.Transaction) []SubunitSummary {
	index := make(map[string]int)
	var out []SubunitSummary
	for _, tx := range txs {
		i, ok := index[tx.SubunitName]
		if !ok {
			i = len(out)
			index[tx.SubunitName] = i
			out = append(out, SubunitSummary{Name: tx.SubunitName})
		}
		s := &out[i]
		s.Transactions++
		v, ok := tx.USD.Get()
		if !ok {
			s.Unresolved++
			continue
		}
		s.TotalUSD += v
		if tx.IsCoreTeam() {
			s.CoreTeamUSD += v
		}
	}
	return out
}

// ByCategory groups by transaction category, largest USD total first.
func ByCategory(txs []ledger.Transaction) []Breakdown {
	out := group(txs, func(tx ledger.Transaction) string { return tx.TransactionCategory })
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalUSD != out[j].TotalUSD {
			return out[i].TotalUSD > out[j].TotalUSD
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// ByAmountCategory groups by amount bucket in the fixed bucket order.
// Empty buckets are included.
func ByAmountCategory(txs []ledger.Transaction) []Breakdown {
	grouped := group(txs, func(tx ledger.Transaction) string { return tx.AmountCategory })
	byLabel := make(map[string]Breakdown, len(grouped))
	for _, b := range grouped {
		byLabel[b.Label] = b
	}

	order := normalizer.AmountCategoryOrder()
	out := make([]Breakdown, 0, len(order))
	for _, label := range order {
		b := byLabel[label]
		b.Label = label
		out = append(out, b)
	}
	return out
}

// ByPaymentType splits core-team and regular payments.
func ByPaymentType(txs []ledger.Transaction) []Breakdown {
	out := group(txs, func(tx ledger.Transaction) string { return string(tx.PaymentType) })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// TopRecipients returns up to n recipients ranked by resolved USD.
func TopRecipients(txs []ledger.Transaction, n int) []Recipient {
	grouped := group(txs, func(tx ledger.Transaction) string { return tx.Recipient })
	out := make([]Recipient, 0, len(grouped))
	for _, b := range grouped {
		out = append(out, Recipient{Address: b.Label, Transactions: b.Transactions, TotalUSD: b.TotalUSD})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalUSD != out[j].TotalUSD {
			return out[i].TotalUSD > out[j].TotalUSD
		}
		return out[i].Address < out[j].Address
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Largest returns the transaction with the highest resolved USD value.
func Largest(txs []ledger.Transaction) (ledger.Transaction, bool) {
	var best ledger.Transaction
	found := false
	for _, tx := range txs {
		v, ok := tx.USD.Get()
		if !ok {
			continue
		}
		if !found || v > best.USD.Or(0) {
			best, found = tx, true
		}
	}
	return best, found
}

// Detailed filters the ledger for the detailed export. Unless includeZero
// is set, rows without a positive USD value are dropped. Rows repeating
// the same proposal, recipient and raw amount are collapsed.
func Detailed(txs []ledger.Transaction, includeZero bool) []ledger.Transaction {
	type key struct{ proposal, recipient, amount string }
	seen := make(map[key]bool)
	var out []ledger.Transaction
	for _, tx := range txs {
		if !includeZero {
			if v, ok := tx.USD.Get(); !ok || v <= 0 {
				continue
			}
		}
		amount := ""
		if tx.RawAmount != nil {
			amount = tx.RawAmount.String()
		}
		k := key{tx.ProposalID, tx.Recipient, amount}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, tx)
	}
	return out
}

func group(txs []ledger.Transaction, label func(ledger.Transaction) string) []Breakdown {
	index := make(map[string]int)
	var out []Breakdown
	for _, tx := range txs {
		l := label(tx)
		i, ok := index[l]
		if !ok {
			i = len(out)
			index[l] = i
			out = append(out, Breakdown{Label: l})
		}
		out[i].Transactions++
		out[i].TotalUSD += tx.USD.Or(0)
	}
	return out
}

// Report bundles every view of one run.
type Report struct {
	Summary          Summary              `json:"summary"`
	Subunits         []SubunitSummary     `json:"subunits"`
	Categories       []Breakdown          `json:"categories"`
	AmountCategories []Breakdown          `json:"amount_categories"`
	PaymentTypes     []Breakdown          `json:"payment_types"`
	TopRecipients    []Recipient          `json:"top_recipients"`
	Diagnostics      ledger.Diagnostics   `json:"diagnostics"`
	Transactions     []ledger.Transaction `json:"transactions"`
}

// Build assembles a Report.
func Build(txs []ledger.Transaction, diag ledger.Diagnostics) Report {
	return Report{
		Summary:          Summarize(txs),
		Subunits:         BySubunit(txs),
		Categories:       ByCategory(txs),
		AmountCategories: ByAmountCategory(txs),
		PaymentTypes:     ByPaymentType(txs),
		TopRecipients:    TopRecipients(txs, 10),
		Diagnostics:      diag,
		Transactions:     txs,
	}
}
