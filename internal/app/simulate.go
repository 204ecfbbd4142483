package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"fundingwatch/internal/alerting"
	"fundingwatch/internal/fetcher"
	"fundingwatch/internal/service"
	"fundingwatch/internal/state"
	"fundingwatch/internal/storage"
)

// SimulateAlert 以给定费率跑一次评估流程，告警照常发送但状态不落盘。
func (a *App) SimulateAlert(ctx context.Context, w io.Writer, pair string, rate float64) error {
	pair = state.NormalizePair(pair)
	if pair == "" {
		return errors.New("--pair 不能为空")
	}

	defaults := a.defaults()
	defaults.MonitoredPairs[pair] = struct{}{}
	opts := a.stateOptions(nil)
	opts.Defaults = defaults
	st := state.New(storage.Nop{}, opts, a.Logger)

	svc := service.New(st, fetcher.Static{pair: rate}, a.newNotifier(), service.Options{
		SqueezeThreshold: a.Config.Monitor.SqueezeThreshold,
	}, a.Logger)

	report, err := svc.Tick(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	if len(report.Alerts) == 0 {
		fmt.Fprintf(w, "%s %s: no alert (long %s, short %s)\n", pair, alerting.FormatRate(rate),
			alerting.FormatThreshold(defaults.LongThreshold), alerting.FormatThreshold(defaults.ShortThreshold))
		return nil
	}
	for _, alert := range report.Alerts {
		fmt.Fprintf(w, "%s %s: %s alert, sent=%t\n", alert.Pair, alerting.FormatRate(alert.Rate), alert.Side, report.Sent > 0)
	}
	return nil
}
