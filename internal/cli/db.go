package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/PageDAO/DAO-Tools/internal/report"
	"github.com/PageDAO/DAO-Tools/internal/storage"
)

var (
	runsLimit int
	runsCSV   string
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the ledger database schema",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(storage.Up), string(storage.Down)},
	RunE: func(_ *cobra.Command, args []string) error {
		dir := storage.Up
		if len(args) == 1 {
			dir = storage.Direction(args[0])
		}
		version, err := storage.Migrate(cfg.Database.Postgres.DSN(), dir)
		if err != nil {
			return err
		}
		printer.Success("Schema %s complete, version %d", dir, version)
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Browse stored runs",
}

func openRepository(ctx context.Context) (*storage.PostgresRepository, error) {
	return storage.NewPostgresRepository(ctx, cfg.Database.Postgres.DSN())
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Close()

		runs, err := repo.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		if done, err := printer.Structured(runs); done {
			return err
		}
		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			rows = append(rows, []string{
				r.ID,
				r.StartedAt.Format(time.RFC3339),
				strconv.Itoa(r.Transactions),
				strconv.Itoa(r.Unresolved),
				strconv.FormatFloat(r.TotalUSD, 'f', 2, 64),
			})
		}
		printer.Table([]string{"Run", "Started", "Transactions", "Unresolved", "Total USD"}, rows)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Rebuild the report of a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		repo, err := openRepository(ctx)
		if err != nil {
			return err
		}
		defer repo.Close()

		if _, err := repo.GetRun(ctx, args[0]); err != nil {
			return err
		}
		txs, err := repo.Transactions(ctx, args[0])
		if err != nil {
			return err
		}
		diag, err := repo.Diagnostics(ctx, args[0])
		if err != nil {
			return err
		}

		rep := report.Build(txs, diag)
		rep.TopRecipients = report.TopRecipients(txs, cfg.Report.TopRecipients)
		if runsCSV != "" {
			if err := writeFile(runsCSV, func(w io.Writer) error { return report.WriteCSV(w, txs) }); err != nil {
				return err
			}
			printer.Success("Wrote %s", runsCSV)
		}
		r := &runner{cfg: cfg, logger: logger, printer: printer}
		return r.printReport(rep)
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a stored run and its transactions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Close()
		if err := repo.DeleteRun(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		printer.Success("Deleted run %s", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsDeleteCmd)

	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum runs to list")
	runsShowCmd.Flags().StringVar(&runsCSV, "csv", "", "also write the run's transactions to this CSV file")
}
