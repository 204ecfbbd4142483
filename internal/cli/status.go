package cli

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the persisted settings, daily stats and latest samples",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Status(cmd.Context(), cmd.OutOrStdout())
	},
}
