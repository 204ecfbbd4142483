package app

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"fundingwatch/internal/alerting"
	"fundingwatch/internal/state"
)

// loadState reads the persisted document, falling back to configured defaults.
func (a *App) loadState(ctx context.Context) *state.AppState {
	store, closeStore := a.openStore(ctx)
	defer closeStore()
	return state.Load(ctx, store, a.stateOptions(nil), a.Logger)
}

// Status prints the persisted settings, daily stats and latest sample per pair.
func (a *App) Status(ctx context.Context, w io.Writer) error {
	snap := a.loadState(ctx).Snapshot()
	writeStatus(w, snap)
	return nil
}

func writeStatus(w io.Writer, snap state.PersistedState) {
	settings := tablewriter.NewWriter(w)
	settings.SetHeader([]string{"Setting", "Value"})
	settings.Append([]string{"alerts_enabled", strconv.FormatBool(snap.Settings.AlertsEnabled)})
	settings.Append([]string{"long_threshold", alerting.FormatThreshold(snap.Settings.LongThreshold)})
	settings.Append([]string{"short_threshold", alerting.FormatThreshold(snap.Settings.ShortThreshold)})
	settings.Append([]string{"alert_count", strconv.Itoa(snap.DailyStats.AlertCount)})
	settings.Append([]string{"max_long", formatExtreme(snap.DailyStats.MaxLong)})
	settings.Append([]string{"max_short", formatExtreme(snap.DailyStats.MaxShort)})
	settings.Render()

	fmt.Fprintln(w)

	pairs := tablewriter.NewWriter(w)
	pairs.SetHeader([]string{"Pair", "Samples", "Last rate", "Last seen (UTC)", "Trend"})
	for _, pair := range snap.Settings.Pairs() {
		window := snap.History[pair]
		row := []string{pair, strconv.Itoa(len(window)), "-", "-", string(state.TrendOf(window))}
		if n := len(window); n > 0 {
			last := window[n-1]
			row[2] = alerting.FormatRate(last.Rate)
			row[3] = last.Timestamp.UTC().Format(time.RFC3339)
		}
		pairs.Append(row)
	}
	pairs.Render()
}

func formatExtreme(e *state.Extreme) string {
	if e == nil {
		return "-"
	}
	return fmt.Sprintf("%s %s", e.Pair, alerting.FormatRate(e.Rate))
}
