// Package cli implements the daoledger command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PageDAO/DAO-Tools/internal/config"
	"github.com/PageDAO/DAO-Tools/internal/logging"
	"github.com/PageDAO/DAO-Tools/internal/output"
)

var (
	cfgFile      string
	envFiles     []string
	logLevel     string
	outputFormat string

	cfg     *config.Config
	logger  *logging.Logger
	printer *output.Printer
)

var rootCmd = &cobra.Command{
	Use:   "daoledger",
	Short: "DAO treasury payment ledger",
	Long: `daoledger reconstructs the payment ledger of a DAO and its sub-DAOs.

It scans passed governance proposals, extracts every payment they carry,
normalizes token amounts, values them in USD and writes reports.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./daoledger.yaml or ~/.daoledger/daoledger.yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "env files to load before reading DAOLEDGER_* variables (default: ./.env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: text, json, yaml")
}

func initConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(cfgFile, envFiles...)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg = loaded

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if cmd.Flags().Changed("output") {
		cfg.Output.Format = outputFormat
	}

	logger = logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)

	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	printer = &output.Printer{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr(), Format: format}
	return nil
}
