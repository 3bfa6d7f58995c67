package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/PageDAO/DAO-Tools/internal/dlq"
	"github.com/PageDAO/DAO-Tools/internal/proposal"
)

var (
	dlqLimit  int
	dlqOut    string
	dlqFormat string
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect proposals that failed extraction",
}

func openQueue() (*dlq.Queue, error) {
	if !cfg.DLQ.Enabled {
		return nil, dlq.ErrDisabled
	}
	return dlq.NewQueue(cfg.DLQ.Path, logger)
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List failed proposals, oldest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		q, err := openQueue()
		if err != nil {
			return err
		}
		entries, err := q.List(cmd.Context(), dlqLimit)
		if err != nil {
			return err
		}
		if done, err := printer.Structured(entries); done {
			return err
		}
		if len(entries) == 0 {
			printer.Info("Dead-letter queue is empty")
			return nil
		}
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{
				e.ID,
				e.Timestamp.Format(time.RFC3339),
				e.Subunit,
				e.ProposalID,
				e.Reason,
				e.Error,
			})
		}
		printer.Table([]string{"ID", "Time", "Sub-unit", "Proposal", "Reason", "Error"}, rows)
		return nil
	},
}

var dlqStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dead-letter queue state",
	RunE: func(_ *cobra.Command, _ []string) error {
		q, err := openQueue()
		if err != nil {
			return err
		}
		s := q.Stats()
		if done, err := printer.Structured(s); done {
			return err
		}
		printer.KeyValues([][]string{
			{"Path", s.BasePath},
			{"Pending", fmt.Sprint(s.PendingFiles)},
		})
		return nil
	},
}

var dlqDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete entries by ID",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := openQueue()
		if err != nil {
			return err
		}
		for _, id := range args {
			if err := q.Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			printer.Success("Deleted %s", id)
		}
		return nil
	},
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every entry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		q, err := openQueue()
		if err != nil {
			return err
		}
		n, err := q.Purge(cmd.Context())
		if err != nil {
			return err
		}
		printer.Success("Purged %d entries", n)
		return nil
	},
}

var dlqExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write failed proposals as a batch for run --input",
	Long: `Group dead-letter entries by sub-unit and write them in the proposal batch
format, so a fixed decoder can reprocess them:

  daoledger dlq export --out retry.json
  daoledger run --input retry.json --skip-sinks`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		q, err := openQueue()
		if err != nil {
			return err
		}
		entries, err := q.List(cmd.Context(), 0)
		if err != nil {
			return err
		}
		subunits := dlqBatch(entries)

		format := dlqFormat
		if format == "" {
			format = proposal.FormatFromPath(dlqOut)
		}
		if dlqOut == "" {
			return proposal.WriteInput(printer.Out, format, subunits)
		}
		if err := writeFile(dlqOut, func(w io.Writer) error {
			return proposal.WriteInput(w, format, subunits)
		}); err != nil {
			return err
		}
		printer.Success("Exported %d proposals to %s", len(entries), dlqOut)
		return nil
	},
}

// dlqBatch groups failed proposals by sub-unit address, keeping first-seen
// order. Proposals already present for a sub-unit are not repeated.
func dlqBatch(entries []dlq.FailedProposal) []proposal.Subunit {
	index := make(map[string]int)
	seen := make(map[string]struct{})
	var out []proposal.Subunit
	for _, e := range entries {
		key := e.Address + "\x00" + e.Subunit
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, proposal.Subunit{Name: e.Subunit, Address: e.Address})
		}
		pk := key + "\x00" + e.ProposalID
		if _, dup := seen[pk]; dup && e.ProposalID != "" {
			continue
		}
		seen[pk] = struct{}{}
		out[i].Proposals = append(out[i].Proposals, e.Proposal)
	}
	return out
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(dlqListCmd, dlqStatsCmd, dlqDeleteCmd, dlqPurgeCmd, dlqExportCmd)

	dlqListCmd.Flags().IntVarP(&dlqLimit, "limit", "n", 0, "maximum entries to show (0 = all)")
	dlqExportCmd.Flags().StringVar(&dlqOut, "out", "", "output file (default: stdout)")
	dlqExportCmd.Flags().StringVar(&dlqFormat, "format", "", "json or yaml (default: from --out extension)")
}
