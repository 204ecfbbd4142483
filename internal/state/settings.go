package state

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultThresholdStep is the increment applied by a single threshold nudge.
const DefaultThresholdStep = 0.0001

// Side identifies which threshold a rate breached.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ParseSide maps user input onto a Side.
func ParseSide(v string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "long":
		return SideLong, true
	case "short":
		return SideShort, true
	default:
		return "", false
	}
}

// Settings is the operator-adjustable part of the state.
// LongThreshold is conventionally <= 0 and ShortThreshold >= 0, but inverted
// values are accepted as-is.
type Settings struct {
	AlertsEnabled  bool
	LongThreshold  float64
	ShortThreshold float64
	MonitoredPairs map[string]struct{}
}

// NewSettings builds Settings from a pair list, normalising and de-duplicating names.
func NewSettings(enabled bool, long, short float64, pairs []string) Settings {
	set := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		if name := NormalizePair(p); name != "" {
			set[name] = struct{}{}
		}
	}
	return Settings{
		AlertsEnabled:  enabled,
		LongThreshold:  long,
		ShortThreshold: short,
		MonitoredPairs: set,
	}
}

// NormalizePair upper-cases and trims a contract name.
func NormalizePair(pair string) string {
	return strings.ToUpper(strings.TrimSpace(pair))
}

// Pairs returns the monitored pairs in sorted order.
func (s Settings) Pairs() []string {
	out := make([]string, 0, len(s.MonitoredPairs))
	for p := range s.MonitoredPairs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Monitors reports whether pair is in the monitored set.
func (s Settings) Monitors(pair string) bool {
	_, ok := s.MonitoredPairs[pair]
	return ok
}

// Threshold returns the threshold for side.
func (s Settings) Threshold(side Side) float64 {
	if side == SideLong {
		return s.LongThreshold
	}
	return s.ShortThreshold
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	pairs := make(map[string]struct{}, len(s.MonitoredPairs))
	for p := range s.MonitoredPairs {
		pairs[p] = struct{}{}
	}
	s.MonitoredPairs = pairs
	return s
}

func (s *Settings) adjust(side Side, delta float64) {
	// decimal keeps repeated 0.0001 nudges from drifting, e.g. -0.0009 instead of -0.0009000000000000001
	switch side {
	case SideLong:
		s.LongThreshold = addExact(s.LongThreshold, delta)
	case SideShort:
		s.ShortThreshold = addExact(s.ShortThreshold, delta)
	}
}

func addExact(v, delta float64) float64 {
	return decimal.NewFromFloat(v).Add(decimal.NewFromFloat(delta)).InexactFloat64()
}
