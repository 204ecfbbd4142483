package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingwatch/internal/alerting"
	"fundingwatch/internal/fetcher"
	"fundingwatch/internal/state"
)

type countingSource struct {
	rates fetcher.Static
	calls int
}

func (c *countingSource) FetchRates(ctx context.Context) map[string]float64 {
	c.calls++
	return c.rates.FetchRates(ctx)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []alerting.Message
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, msg alerting.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

type memoryStore struct {
	payload []byte
	saves   int
	saveErr error
}

func (m *memoryStore) Load(context.Context) ([]byte, error) { return m.payload, nil }

func (m *memoryStore) Save(_ context.Context, payload []byte) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.payload = payload
	return nil
}

var tickAt = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func newFixture(enabled bool, pairs []string, rates fetcher.Static) (*Service, *state.AppState, *countingSource, *recordingNotifier, *memoryStore) {
	store := &memoryStore{}
	st := state.New(store, state.Options{
		Defaults: state.NewSettings(enabled, -0.001, 0.001, pairs),
	}, zerolog.Nop())
	source := &countingSource{rates: rates}
	notifier := &recordingNotifier{}
	svc := New(st, source, notifier, Options{}, zerolog.Nop())
	return svc, st, source, notifier, store
}

func TestClassify(t *testing.T) {
	cases := []struct {
		rate  float64
		side  state.Side
		alert bool
	}{
		{-0.0015, state.SideLong, true},
		{-0.001, state.SideLong, true},
		{-0.0009, "", false},
		{0.0009, "", false},
		{0.001, state.SideShort, true},
		{0.002, state.SideShort, true},
	}
	for _, tc := range cases {
		side, ok := Classify(tc.rate, -0.001, 0.001)
		assert.Equal(t, tc.alert, ok, "rate %v", tc.rate)
		assert.Equal(t, tc.side, side, "rate %v", tc.rate)
	}
}

func TestClassifyLongWinsWhenThresholdsOverlap(t *testing.T) {
	side, ok := Classify(0.0005, 0.001, 0)
	require.True(t, ok)
	assert.Equal(t, state.SideLong, side)
}

func TestTickLongAlert(t *testing.T) {
	svc, st, _, notifier, store := newFixture(true, []string{"BTC_USDT"}, fetcher.Static{"BTC_USDT": -0.0015, "ETH_USDT": 0.0001})

	report, err := svc.Tick(context.Background(), tickAt)
	require.NoError(t, err)

	require.Len(t, report.Alerts, 1)
	assert.Equal(t, state.SideLong, report.Alerts[0].Side)
	assert.Equal(t, "BTC_USDT", report.Alerts[0].Pair)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Evaluated)

	require.Len(t, notifier.msgs, 1)
	assert.Contains(t, notifier.msgs[0].Text, "LONG CRITICAL ALERT")
	assert.NotContains(t, notifier.msgs[0].Text, "SHORT")

	daily := st.DailySnapshot()
	assert.Equal(t, 1, daily.AlertCount)
	require.NotNil(t, daily.MaxLong)
	assert.Equal(t, "BTC_USDT", daily.MaxLong.Pair)
	assert.Nil(t, daily.MaxShort)

	window, _ := st.HistoryOf("BTC_USDT")
	require.Len(t, window, 1)
	assert.Equal(t, -0.0015, window[0].Rate)

	empty, _ := st.HistoryOf("ETH_USDT")
	assert.Empty(t, empty, "unmonitored pairs are not recorded")

	assert.Equal(t, 1, store.saves)
	assert.Equal(t, PhaseIdle, svc.Phase())
}

func TestTickShortAlert(t *testing.T) {
	svc, st, _, notifier, _ := newFixture(true, []string{"ETH_USDT"}, fetcher.Static{"ETH_USDT": 0.002})

	report, err := svc.Tick(context.Background(), tickAt)
	require.NoError(t, err)
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, state.SideShort, report.Alerts[0].Side)
	assert.Contains(t, notifier.msgs[0].Text, "SHORT CRITICAL ALERT")
	assert.Equal(t, 1, st.DailySnapshot().AlertCount)
}

func TestTickDisabledIsNoop(t *testing.T) {
	svc, st, source, notifier, store := newFixture(false, []string{"BTC_USDT"}, fetcher.Static{"BTC_USDT": -0.0015})

	report, err := svc.Tick(context.Background(), tickAt)
	require.NoError(t, err)

	assert.True(t, report.Skipped)
	assert.Zero(t, source.calls, "disabled ticks must not fetch")
	assert.Empty(t, notifier.msgs)
	assert.Zero(t, store.saves)
	assert.True(t, st.DailySnapshot().IsZero())
	window, _ := st.HistoryOf("BTC_USDT")
	assert.Empty(t, window)
}

func TestTickEmptyFetchEvaluatesNothing(t *testing.T) {
	svc, st, source, notifier, store := newFixture(true, []string{"BTC_USDT"}, fetcher.Static{})

	report, err := svc.Tick(context.Background(), tickAt)
	require.NoError(t, err)

	assert.Equal(t, 1, source.calls)
	assert.Zero(t, report.Evaluated)
	assert.Equal(t, []string{"BTC_USDT"}, report.Missing)
	assert.Empty(t, notifier.msgs)
	assert.True(t, st.DailySnapshot().IsZero())
	assert.Equal(t, 1, store.saves)
}

func TestTickSendFailureStillCounts(t *testing.T) {
	svc, st, _, notifier, store := newFixture(true, []string{"BTC_USDT", "SOL_USDT"}, fetcher.Static{"BTC_USDT": -0.002, "SOL_USDT": 0.003})
	notifier.err = errors.New("telegram down")

	report, err := svc.Tick(context.Background(), tickAt)
	require.NoError(t, err)

	assert.Len(t, report.Alerts, 2)
	assert.Zero(t, report.Sent)
	assert.Equal(t, 2, st.DailySnapshot().AlertCount)
	assert.Equal(t, 1, store.saves)
}

func TestTickPersistFailureReturned(t *testing.T) {
	svc, st, _, _, store := newFixture(true, []string{"BTC_USDT"}, fetcher.Static{"BTC_USDT": 0})
	store.saveErr = errors.New("bin unavailable")

	_, err := svc.Tick(context.Background(), tickAt)
	require.Error(t, err)

	window, _ := st.HistoryOf("BTC_USDT")
	assert.Len(t, window, 1, "in-memory state stays authoritative")
}

func TestTickAlertsInSortedOrder(t *testing.T) {
	svc, _, _, _, _ := newFixture(true, []string{"SOL_USDT", "BTC_USDT", "ETH_USDT"}, fetcher.Static{
		"SOL_USDT": -0.005,
		"BTC_USDT": -0.002,
		"ETH_USDT": 0.004,
	})

	report, err := svc.Tick(context.Background(), tickAt)
	require.NoError(t, err)
	require.Len(t, report.Alerts, 3)
	assert.Equal(t, "BTC_USDT", report.Alerts[0].Pair)
	assert.Equal(t, "ETH_USDT", report.Alerts[1].Pair)
	assert.Equal(t, "SOL_USDT", report.Alerts[2].Pair)
}

func TestDigestFlushesAndSends(t *testing.T) {
	svc, st, _, notifier, store := newFixture(true, []string{"BTC_USDT"}, fetcher.Static{"BTC_USDT": -0.0015})

	_, err := svc.Tick(context.Background(), tickAt)
	require.NoError(t, err)

	stats, err := svc.Digest(context.Background(), tickAt)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AlertCount)

	require.Len(t, notifier.msgs, 2)
	assert.Equal(t, alerting.KindDigest, notifier.msgs[1].Kind)
	assert.Contains(t, notifier.msgs[1].Text, "BTC_USDT")

	assert.True(t, st.DailySnapshot().IsZero())
	assert.Equal(t, 2, store.saves)
}

func TestDigestQuietDay(t *testing.T) {
	svc, _, _, notifier, _ := newFixture(true, []string{"BTC_USDT"}, fetcher.Static{})

	stats, err := svc.Digest(context.Background(), tickAt)
	require.NoError(t, err)
	assert.True(t, stats.IsZero())
	require.Len(t, notifier.msgs, 1)
	assert.Contains(t, notifier.msgs[0].Text, "Quiet day")
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "persisting", PhasePersisting.String())
}
