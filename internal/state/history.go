package state

import (
	"sort"
	"time"
)

// DefaultHistorySize is the number of samples kept per pair.
const DefaultHistorySize = 12

// Trend classifies the last three samples of a pair.
type Trend string

const (
	TrendRising       Trend = "rising"
	TrendFalling      Trend = "falling"
	TrendFlat         Trend = "flat"
	TrendInsufficient Trend = "insufficient"
)

// Sample is one observed funding rate.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Rate      float64   `json:"rate"`
}

// History keeps a bounded FIFO window of samples per pair.
type History struct {
	size    int
	windows map[string][]Sample
}

// NewHistory creates a tracker holding at most size samples per pair.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size, windows: make(map[string][]Sample)}
}

// Size returns the per-pair capacity.
func (h *History) Size() int {
	return h.size
}

// Record appends a sample, evicting the oldest once the window is full.
func (h *History) Record(pair string, rate float64, now time.Time) {
	window := append(h.windows[pair], Sample{Timestamp: now.UTC(), Rate: rate})
	if excess := len(window) - h.size; excess > 0 {
		window = append(window[:0:0], window[excess:]...)
	}
	h.windows[pair] = window
}

// Window returns a copy of the samples for pair, oldest first.
func (h *History) Window(pair string) []Sample {
	window := h.windows[pair]
	out := make([]Sample, len(window))
	copy(out, window)
	return out
}

// Trend reports strict monotonicity over the last three samples.
func (h *History) Trend(pair string) Trend {
	return TrendOf(h.windows[pair])
}

// TrendOf classifies a window, oldest first.
func TrendOf(window []Sample) Trend {
	if len(window) < 3 {
		return TrendInsufficient
	}
	a, b, c := window[len(window)-3].Rate, window[len(window)-2].Rate, window[len(window)-1].Rate
	switch {
	case a < b && b < c:
		return TrendRising
	case a > b && b > c:
		return TrendFalling
	default:
		return TrendFlat
	}
}

// Pairs lists pairs that have at least one sample, sorted.
func (h *History) Pairs() []string {
	out := make([]string, 0, len(h.windows))
	for p, w := range h.windows {
		if len(w) > 0 {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (h *History) snapshot() map[string][]Sample {
	out := make(map[string][]Sample, len(h.windows))
	for p := range h.windows {
		out[p] = h.Window(p)
	}
	return out
}

func (h *History) restore(windows map[string][]Sample) {
	h.windows = make(map[string][]Sample, len(windows))
	for p, w := range windows {
		if excess := len(w) - h.size; excess > 0 {
			w = w[excess:]
		}
		cp := make([]Sample, len(w))
		copy(cp, w)
		h.windows[p] = cp
	}
}
