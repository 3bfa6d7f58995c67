package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

// CSVColumns is the ledger export header.
var CSVColumns = []string{
	"proposal_date",
	"proposal_id",
	"proposal_title",
	"subunit",
	"recipient",
	"recipient_type",
	"payment_type",
	"message_kind",
	"raw_amount",
	"denom",
	"amount",
	"symbol",
	"usd_value",
	"transaction_category",
	"amount_category",
	"tags",
	"contract_address",
	"contract_method",
	"category",
}

func csvRecord(tx ledger.Transaction) []string {
	raw := ""
	if tx.RawAmount != nil {
		raw = tx.RawAmount.String()
	}
	usd := ""
	if v, ok := tx.USD.Get(); ok {
		usd = strconv.FormatFloat(v, 'f', 2, 64)
	}
	return []string{
		tx.ProposalDate,
		tx.ProposalID,
		tx.ProposalTitle,
		tx.SubunitName,
		tx.Recipient,
		string(tx.RecipientType),
		string(tx.PaymentType),
		string(tx.Kind),
		raw,
		tx.Denom,
		strconv.FormatFloat(tx.AdjustedAmount, 'f', -1, 64),
		tx.DisplaySymbol,
		usd,
		tx.TransactionCategory,
		tx.AmountCategory,
		tx.TagString(),
		tx.ContractAddress,
		tx.ContractMethod,
		tx.Category,
	}
}

// Frame loads the ledger into a dataframe with one string column per
// CSVColumns entry. Unresolved USD values are empty strings.
func Frame(txs []ledger.Transaction) dataframe.DataFrame {
	records := make([][]string, 0, len(txs)+1)
	records = append(records, CSVColumns)
	for _, tx := range txs {
		records = append(records, csvRecord(tx))
	}
	return dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
}

// WriteCSV writes the ledger as CSV with a header row.
func WriteCSV(w io.Writer, txs []ledger.Transaction) error {
	if len(txs) == 0 {
		_, err := io.WriteString(w, strings.Join(CSVColumns, ",")+"\n")
		return err
	}
	df := Frame(txs)
	if df.Err != nil {
		return fmt.Errorf("build ledger frame: %w", df.Err)
	}
	if err := df.WriteCSV(w); err != nil {
		return fmt.Errorf("write ledger csv: %w", err)
	}
	return nil
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteText renders the summary tables for a terminal.
func WriteText(w io.Writer, r Report) error {
	p := message.NewPrinter(language.English)
	s := r.Summary

	lines := []struct {
		format string
		args   []any
	}{
		{"Run %s\n", []any{r.Diagnostics.RunID}},
		{"Transactions:        %d (%d unresolved, %d low confidence)\n", []any{s.Transactions, s.Unresolved, s.LowConfidence}},
		{"Sub-units:           %d\n", []any{s.Subunits}},
		{"Total USD:           $%.2f\n", []any{s.TotalUSD}},
		{"Core team USD:       $%.2f (%.1f%%)\n", []any{s.CoreTeamUSD, s.CoreTeamPercent}},
		{"Mean / median USD:   $%.2f / $%.2f\n", []any{s.MeanUSD, s.MedianUSD}},
		{"Messages scanned:    %d\n", []any{r.Diagnostics.MessagesScanned}},
		{"Undecoded messages:  %d\n", []any{r.Diagnostics.DecodeFailures}},
		{"Proposal errors:     %d\n", []any{len(r.Diagnostics.ProposalErrors)}},
	}
	for _, l := range lines {
		if _, err := p.Fprintf(w, l.format, l.args...); err != nil {
			return err
		}
	}

	if _, err := p.Fprintf(w, "\nBy sub-unit\n"); err != nil {
		return err
	}
	for _, su := range r.Subunits {
		if _, err := p.Fprintf(w, "  %-32s %6d tx  $%14.2f\n", su.Name, su.Transactions, su.TotalUSD); err != nil {
			return err
		}
	}
	for _, failed := range r.Diagnostics.FailedSubunits() {
		if _, err := p.Fprintf(w, "  %-32s skipped: %s\n", failed.Name, failed.Error); err != nil {
			return err
		}
	}

	if _, err := p.Fprintf(w, "\nBy amount\n"); err != nil {
		return err
	}
	for _, b := range r.AmountCategories {
		if _, err := p.Fprintf(w, "  %-32s %6d tx  $%14.2f\n", b.Label, b.Transactions, b.TotalUSD); err != nil {
			return err
		}
	}

	if _, err := p.Fprintf(w, "\nBy category\n"); err != nil {
		return err
	}
	for _, b := range r.Categories {
		if _, err := p.Fprintf(w, "  %-32s %6d tx  $%14.2f\n", b.Label, b.Transactions, b.TotalUSD); err != nil {
			return err
		}
	}
	return nil
}
