package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/PageDAO/DAO-Tools/internal/normalizer"
	"github.com/PageDAO/DAO-Tools/internal/registry"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Token registry commands",
}

type denomInfo struct {
	Denom         string `json:"denom" yaml:"denom"`
	Registered    bool   `json:"registered" yaml:"registered"`
	Symbol        string `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Decimals      int    `json:"decimals" yaml:"decimals"`
	DisplaySymbol string `json:"display_symbol" yaml:"display_symbol"`
}

var registryShowCmd = &cobra.Command{
	Use:   "show <denom>...",
	Short: "Show how denoms resolve to symbols and decimals",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := registry.Load(cmd.Context(), logger, cfg.Registry.File, cfg.Registry.URL)
		norm := normalizer.New(reg, nil, cfg.Extract.AddressPrefix)

		infos := make([]denomInfo, 0, len(args))
		for _, denom := range args {
			tok, ok := reg.Lookup(denom)
			infos = append(infos, denomInfo{
				Denom:         denom,
				Registered:    ok,
				Symbol:        tok.Symbol,
				Decimals:      reg.Decimals(denom),
				DisplaySymbol: norm.DisplaySymbol(denom),
			})
		}

		if done, err := printer.Structured(infos); done {
			return err
		}
		rows := make([][]string, 0, len(infos))
		for _, info := range infos {
			rows = append(rows, []string{
				info.Denom,
				strconv.FormatBool(info.Registered),
				info.DisplaySymbol,
				strconv.Itoa(info.Decimals),
			})
		}
		printer.Table([]string{"Denom", "Registered", "Symbol", "Decimals"}, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(registryCmd)
	registryCmd.AddCommand(registryShowCmd)
}
