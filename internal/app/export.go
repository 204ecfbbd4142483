package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/samber/lo"

	"fundingwatch/internal/alerting"
	"fundingwatch/internal/chart"
	"fundingwatch/internal/state"
)

// ExportOptions hold parameters for exporting the persisted history windows.
type ExportOptions struct {
	CSVPath string
	PNGPath string
	Pairs   []string
}

// Export renders the persisted history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	snap := a.loadState(ctx).Snapshot()
	history := filterHistory(snap.History, opts.Pairs)
	if len(history) == 0 {
		a.Logger.Info().Msg("no samples found for export")
		return nil
	}

	total := lo.SumBy(lo.Values(history), func(w []state.Sample) int { return len(w) })
	a.Logger.Info().Int("pairs", len(history)).Int("samples", total).Msg("exporting history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, history); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		long, short := snap.Settings.LongThreshold, snap.Settings.ShortThreshold
		if err := chart.WriteFile(opts.PNGPath, chart.FromHistory(history), chart.Options{
			Width:          1280,
			Height:         720,
			Title:          "Funding rate history",
			LongThreshold:  &long,
			ShortThreshold: &short,
		}); err != nil {
			return err
		}
	}

	return nil
}

func filterHistory(history map[string][]state.Sample, pairs []string) map[string][]state.Sample {
	if len(pairs) == 0 {
		return lo.PickBy(history, func(_ string, w []state.Sample) bool { return len(w) > 0 })
	}
	wanted := lo.Map(pairs, func(p string, _ int) string { return state.NormalizePair(p) })
	return lo.PickBy(history, func(pair string, w []state.Sample) bool {
		return len(w) > 0 && lo.Contains(wanted, pair)
	})
}

func writeHistoryCSV(path string, history map[string][]state.Sample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"pair", "timestamp", "funding_rate"}); err != nil {
		return err
	}

	pairs := lo.Keys(history)
	sort.Strings(pairs)
	for _, pair := range pairs {
		for _, sample := range history[pair] {
			record := []string{pair, sample.Timestamp.UTC().Format(time.RFC3339), alerting.FormatRate(sample.Rate)}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
