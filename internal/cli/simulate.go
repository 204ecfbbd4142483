package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulatePair string
	simulateRate float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次资金费率评估并按配置发送告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePair == "" {
			return errors.New("--pair 必须指定")
		}
		return getApp().SimulateAlert(cmd.Context(), cmd.OutOrStdout(), simulatePair, simulateRate)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePair, "pair", "", "合约名称, 例如 BTC_USDT")
	simulateCmd.Flags().Float64Var(&simulateRate, "rate", 0, "模拟的资金费率, 例如 -0.0015")
}
