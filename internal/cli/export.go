package cli

import (
	"github.com/spf13/cobra"

	"fundingwatch/internal/app"
)

var (
	exportPNGPath string
	exportCSVPath string
	exportPairs   []string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the persisted funding rate history as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), app.ExportOptions{
			PNGPath: exportPNGPath,
			CSVPath: exportCSVPath,
			Pairs:   exportPairs,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().StringSliceVar(&exportPairs, "pair", nil, "Restrict to these pairs (repeatable, defaults to all)")
}
