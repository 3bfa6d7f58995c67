package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/PageDAO/DAO-Tools/internal/pricing"
)

var (
	pricesFiles  []string
	pricesRemote bool
	pricesOut    string
)

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Price history commands",
}

var pricesLookupCmd = &cobra.Command{
	Use:   "lookup <symbol> <date>",
	Short: "Look up the USD price used for a symbol on a date",
	Long: `Resolve a unit price the same way a run does: the exact date from the
price files, else the nearest date, else the remote fallback when --remote
is set.

Examples:
  daoledger prices lookup OSMO 2024-03-01
  daoledger prices lookup uosmo 2024-03-01 --remote`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := cfg.Prices.Files
		if cmd.Flags().Changed("file") {
			files = pricesFiles
		}
		table := pricing.LoadFiles(cmd.Context(), logger, files...)

		r := &runner{cfg: cfg, logger: logger, printer: printer}
		if !pricesRemote {
			cfg.Prices.CoinGecko.Enabled = false
		}
		resolver, closeCache := r.resolver(cmd.Context(), table)
		defer closeCache()

		q, ok := resolver.Quote(cmd.Context(), args[0], args[1])
		if !ok {
			return fmt.Errorf("no price for %s on %s", args[0], args[1])
		}
		if done, err := printer.Structured(q); done {
			return err
		}
		printer.KeyValues([][]string{
			{"Symbol", q.Symbol},
			{"Date", q.Date},
			{"Price (USD)", strconv.FormatFloat(q.Price, 'f', -1, 64)},
			{"Source", q.Source},
			{"Exact date", strconv.FormatBool(q.Exact)},
		})
		return nil
	},
}

var pricesImportCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Merge price files into one JSON price history",
	Long: `Read JSON and CSV price files, merge them (later files win on the same
symbol and date) and write a single JSON array of {date, token, price}.

Examples:
  daoledger prices import osmo.csv page.csv --out data/prices/osmo_prices.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b := pricing.NewBuilder()
		for _, path := range args {
			entries, err := pricing.ReadFile(path)
			if err != nil {
				return err
			}
			b.AddEntries(entries...)
			printer.Info("Read %d prices from %s", len(entries), path)
		}
		table := b.Build()
		if n := b.Skipped(); n > 0 {
			printer.Warn("Skipped %d rows with an empty symbol or unparsable date", n)
		}

		if pricesOut == "" {
			return pricing.WriteJSON(printer.Out, table)
		}
		if err := writeFile(pricesOut, func(w io.Writer) error { return pricing.WriteJSON(w, table) }); err != nil {
			return err
		}
		printer.Success("Wrote %d prices for %d symbols to %s", len(table.Entries()), table.Len(), pricesOut)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pricesCmd)
	pricesCmd.AddCommand(pricesLookupCmd)
	pricesCmd.AddCommand(pricesImportCmd)

	pricesLookupCmd.Flags().StringSliceVarP(&pricesFiles, "file", "f", nil, "price files (default: prices.files from config)")
	pricesLookupCmd.Flags().BoolVar(&pricesRemote, "remote", false, "fall back to CoinGecko when the files have no price")
	pricesImportCmd.Flags().StringVar(&pricesOut, "out", "", "output file (default: stdout)")
}
