package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fundingwatch/internal/storage"
)

var (
	// ErrUnknownPair rejects a pair the exchange did not report.
	ErrUnknownPair = errors.New("unknown pair")
	// ErrAlreadyMonitored rejects adding a pair twice.
	ErrAlreadyMonitored = errors.New("pair already monitored")
	// ErrNotMonitored rejects removing a pair that is not monitored.
	ErrNotMonitored = errors.New("pair not monitored")
)

// Options configure an AppState.
type Options struct {
	Defaults      Settings
	HistorySize   int
	ThresholdStep float64
	// OnSaveError is called after a failed save, e.g. to count failures.
	OnSaveError func(error)
}

// Tx exposes the guarded state to a function running under the state lock.
type Tx struct {
	Settings *Settings
	History  *History
	Daily    *DailyAggregator
}

// AppState owns settings, history and daily stats for the process lifetime.
// Ticks, the digest job and command handlers run on different goroutines, so
// every read and mutation goes through mu; a mutation and its save happen
// under the same critical section.
type AppState struct {
	mu       sync.Mutex
	settings Settings
	history  *History
	daily    *DailyAggregator

	defaults Settings
	step     float64
	store    storage.BlobStore
	onSave   func(error)
	logger   zerolog.Logger
}

// New builds an AppState from defaults without touching the store.
func New(store storage.BlobStore, opts Options, logger zerolog.Logger) *AppState {
	if store == nil {
		store = storage.Nop{}
	}
	step := opts.ThresholdStep
	if step <= 0 {
		step = DefaultThresholdStep
	}
	return &AppState{
		settings: opts.Defaults.Clone(),
		history:  NewHistory(opts.HistorySize),
		daily:    NewDailyAggregator(),
		defaults: opts.Defaults.Clone(),
		step:     step,
		store:    store,
		onSave:   opts.OnSaveError,
		logger:   logger.With().Str("component", "state").Logger(),
	}
}

// Load builds an AppState and restores the persisted document. Any load or
// decode failure leaves the defaults in place; it is logged, never returned.
func Load(ctx context.Context, store storage.BlobStore, opts Options, logger zerolog.Logger) *AppState {
	a := New(store, opts, logger)

	raw, err := a.store.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		a.logger.Info().Msg("no persisted state; using defaults")
		return a
	case err != nil:
		a.logger.Warn().Err(err).Msg("load persisted state failed; using defaults")
		return a
	}

	ps, err := DecodeDocument(raw, a.history.Size())
	if err != nil {
		a.logger.Warn().Err(err).Msg("persisted state rejected; using defaults")
		return a
	}

	a.settings = ps.Settings
	a.history.restore(ps.History)
	a.daily.restore(ps.DailyStats)

	a.logger.Info().
		Bool("alerts_enabled", ps.Settings.AlertsEnabled).
		Float64("long_threshold", ps.Settings.LongThreshold).
		Float64("short_threshold", ps.Settings.ShortThreshold).
		Strs("pairs", ps.Settings.Pairs()).
		Msg("persisted state restored")
	return a
}

// Step returns the threshold nudge size.
func (a *AppState) Step() float64 {
	return a.step
}

// Settings returns a copy of the current settings.
func (a *AppState) Settings() Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings.Clone()
}

// HistoryOf returns the window and trend for pair.
func (a *AppState) HistoryOf(pair string) ([]Sample, Trend) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.history.Window(pair), a.history.Trend(pair)
}

// DailySnapshot returns the stats accumulated since the last flush.
func (a *AppState) DailySnapshot() DailyStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.daily.Snapshot()
}

// Snapshot returns a deep copy of the combined state.
func (a *AppState) Snapshot() PersistedState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *AppState) snapshotLocked() PersistedState {
	return PersistedState{
		Settings:   a.settings.Clone(),
		History:    a.history.snapshot(),
		DailyStats: a.daily.Snapshot(),
	}
}

// Do runs fn under the state lock.
func (a *AppState) Do(fn func(tx Tx)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(Tx{Settings: &a.settings, History: a.history, Daily: a.daily})
}

// ToggleAlerts flips the alert switch and saves.
func (a *AppState) ToggleAlerts(ctx context.Context) Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings.AlertsEnabled = !a.settings.AlertsEnabled
	a.saveLocked(ctx)
	return a.settings.Clone()
}

// AdjustThreshold adds delta to the threshold for side and saves. The result is not clamped.
func (a *AppState) AdjustThreshold(ctx context.Context, side Side, delta float64) Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings.adjust(side, delta)
	a.saveLocked(ctx)
	return a.settings.Clone()
}

// AddPair starts monitoring pair if it appears in available, the result of a
// fresh fetch. Rejections leave the state untouched and skip the save.
func (a *AppState) AddPair(ctx context.Context, pair string, available map[string]float64) error {
	pair = NormalizePair(pair)
	if _, ok := available[pair]; !ok || pair == "" {
		return fmt.Errorf("%w: %s", ErrUnknownPair, pair)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.settings.Monitors(pair) {
		return fmt.Errorf("%w: %s", ErrAlreadyMonitored, pair)
	}
	a.settings.MonitoredPairs[pair] = struct{}{}
	a.saveLocked(ctx)
	return nil
}

// RemovePair stops monitoring pair. A pair unknown to both the exchange and
// the monitored set is rejected as unknown; a monitored pair the exchange
// delisted can still be removed.
func (a *AppState) RemovePair(ctx context.Context, pair string, available map[string]float64) error {
	pair = NormalizePair(pair)

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.settings.Monitors(pair) {
		if _, listed := available[pair]; !listed {
			return fmt.Errorf("%w: %s", ErrUnknownPair, pair)
		}
		return fmt.Errorf("%w: %s", ErrNotMonitored, pair)
	}
	delete(a.settings.MonitoredPairs, pair)
	a.saveLocked(ctx)
	return nil
}

// Reset restores the default settings and saves. History and daily stats are kept.
func (a *AppState) Reset(ctx context.Context) Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings = a.defaults.Clone()
	a.saveLocked(ctx)
	return a.settings.Clone()
}

// FlushDaily returns the accumulated daily stats, resets them and saves.
func (a *AppState) FlushDaily(ctx context.Context) DailyStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats := a.daily.Flush()
	a.saveLocked(ctx)
	return stats
}

// Persist saves the combined state. Failures are logged and returned; the
// in-memory state stays authoritative either way.
func (a *AppState) Persist(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saveLocked(ctx)
}

func (a *AppState) saveLocked(ctx context.Context) error {
	start := time.Now()
	payload, err := EncodeDocument(a.snapshotLocked())
	if err == nil {
		err = a.store.Save(ctx, payload)
	}
	if err != nil {
		a.logger.Warn().Err(err).Msg("persist state failed; keeping in-memory copy")
		if a.onSave != nil {
			a.onSave(err)
		}
		return err
	}
	a.logger.Debug().Dur("took", time.Since(start)).Int("bytes", len(payload)).Msg("state persisted")
	return nil
}
