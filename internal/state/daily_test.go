package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyAggregatorExtrema(t *testing.T) {
	agg := NewDailyAggregator()
	agg.Record("BTC_USDT", -0.0005)
	agg.Record("ETH_USDT", -0.002)
	agg.Record("SOL_USDT", 0.003)
	agg.Record("XRP_USDT", 0.001)

	stats := agg.Snapshot()
	require.NotNil(t, stats.MaxLong)
	require.NotNil(t, stats.MaxShort)
	assert.Equal(t, Extreme{Rate: -0.002, Pair: "ETH_USDT"}, *stats.MaxLong)
	assert.Equal(t, Extreme{Rate: 0.003, Pair: "SOL_USDT"}, *stats.MaxShort)
}

func TestDailyAggregatorFirstSeenWinsTies(t *testing.T) {
	agg := NewDailyAggregator()
	agg.Record("AAA_USDT", 0.004)
	agg.Record("BBB_USDT", 0.004)

	assert.Equal(t, "AAA_USDT", agg.Snapshot().MaxShort.Pair)
}

func TestDailyAggregatorFlush(t *testing.T) {
	agg := NewDailyAggregator()
	agg.Record("BTC_USDT", -0.003)
	agg.IncrementAlertCount()
	agg.IncrementAlertCount()

	flushed := agg.Flush()
	assert.Equal(t, 2, flushed.AlertCount)
	require.NotNil(t, flushed.MaxLong)
	assert.Equal(t, "BTC_USDT", flushed.MaxLong.Pair)

	assert.True(t, agg.Snapshot().IsZero())

	again := agg.Flush()
	assert.True(t, again.IsZero())
	assert.Equal(t, DailyStats{}, again)
}

func TestDailySnapshotIsDeepCopy(t *testing.T) {
	agg := NewDailyAggregator()
	agg.Record("BTC_USDT", 0.001)
	snap := agg.Snapshot()
	snap.MaxShort.Rate = 42

	assert.Equal(t, 0.001, agg.Snapshot().MaxShort.Rate)
}

func TestDailyAggregatorSignedBaseline(t *testing.T) {
	agg := NewDailyAggregator()
	agg.Record("BTC_USDT", -0.0015)

	stats := agg.Snapshot()
	require.NotNil(t, stats.MaxLong)
	assert.Equal(t, Extreme{Rate: -0.0015, Pair: "BTC_USDT"}, *stats.MaxLong)
	assert.Nil(t, stats.MaxShort, "a negative rate is never the most positive one")

	agg = NewDailyAggregator()
	agg.Record("ETH_USDT", 0.0007)
	agg.Record("SOL_USDT", 0)

	stats = agg.Snapshot()
	assert.Nil(t, stats.MaxLong, "a positive rate is never the most negative one")
	require.NotNil(t, stats.MaxShort)
	assert.Equal(t, "ETH_USDT", stats.MaxShort.Pair)
}

func TestDailyAggregatorZeroRateLeavesExtremaUnset(t *testing.T) {
	agg := NewDailyAggregator()
	agg.Record("BTC_USDT", 0)

	assert.True(t, agg.Snapshot().IsZero())
}
