package state

// Extreme is a rate attributed to the pair that produced it.
type Extreme struct {
	Rate float64 `json:"rate"`
	Pair string  `json:"pair"`
}

// DailyStats accumulates alert counts and rate extrema between digests.
// MaxLong tracks the most negative rate, MaxShort the most positive; nil means unset.
type DailyStats struct {
	AlertCount int      `json:"alert_count"`
	MaxLong    *Extreme `json:"max_long"`
	MaxShort   *Extreme `json:"max_short"`
}

// Clone returns a deep copy.
func (d DailyStats) Clone() DailyStats {
	if d.MaxLong != nil {
		v := *d.MaxLong
		d.MaxLong = &v
	}
	if d.MaxShort != nil {
		v := *d.MaxShort
		d.MaxShort = &v
	}
	return d
}

// IsZero reports whether nothing was recorded.
func (d DailyStats) IsZero() bool {
	return d.AlertCount == 0 && d.MaxLong == nil && d.MaxShort == nil
}

// DailyAggregator folds rates into DailyStats.
type DailyAggregator struct {
	stats DailyStats
}

// NewDailyAggregator returns an aggregator in the zero state.
func NewDailyAggregator() *DailyAggregator {
	return &DailyAggregator{}
}

// Record updates the extrema. An unset extreme counts as a zero rate, so
// MaxLong only ever holds a negative rate and MaxShort a positive one.
// Comparisons are strict, so the first pair to reach an extreme value keeps
// the attribution; callers iterate pairs in sorted order to make that
// deterministic.
func (a *DailyAggregator) Record(pair string, rate float64) {
	if rate < extremeRate(a.stats.MaxLong) {
		a.stats.MaxLong = &Extreme{Rate: rate, Pair: pair}
	}
	if rate > extremeRate(a.stats.MaxShort) {
		a.stats.MaxShort = &Extreme{Rate: rate, Pair: pair}
	}
}

func extremeRate(e *Extreme) float64 {
	if e == nil {
		return 0
	}
	return e.Rate
}

// IncrementAlertCount counts one emitted alert.
func (a *DailyAggregator) IncrementAlertCount() {
	a.stats.AlertCount++
}

// Snapshot returns a copy of the current stats.
func (a *DailyAggregator) Snapshot() DailyStats {
	return a.stats.Clone()
}

// Flush returns the accumulated stats and resets to the zero state.
func (a *DailyAggregator) Flush() DailyStats {
	out := a.stats
	a.stats = DailyStats{}
	return out
}

func (a *DailyAggregator) restore(stats DailyStats) {
	a.stats = stats.Clone()
}
