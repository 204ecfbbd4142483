package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidDocument marks a persisted document that does not match the schema.
var ErrInvalidDocument = errors.New("state: invalid persisted document")

// PersistedState is the serialisable union of settings, history and daily stats.
type PersistedState struct {
	Settings   Settings
	History    map[string][]Sample
	DailyStats DailyStats
}

type document struct {
	Settings   *settingsDocument   `json:"settings"`
	History    map[string][]Sample `json:"history"`
	DailyStats *DailyStats         `json:"daily_stats"`
}

type settingsDocument struct {
	AlertsEnabled  *bool    `json:"alerts_enabled"`
	LongThreshold  *float64 `json:"long_threshold"`
	ShortThreshold *float64 `json:"short_threshold"`
	MonitoredPairs []string `json:"monitored_pairs"`
}

// EncodeDocument renders the canonical JSON document.
func EncodeDocument(ps PersistedState) ([]byte, error) {
	enabled := ps.Settings.AlertsEnabled
	long := ps.Settings.LongThreshold
	short := ps.Settings.ShortThreshold

	history := ps.History
	if history == nil {
		history = map[string][]Sample{}
	}
	stats := ps.DailyStats

	doc := document{
		Settings: &settingsDocument{
			AlertsEnabled:  &enabled,
			LongThreshold:  &long,
			ShortThreshold: &short,
			MonitoredPairs: ps.Settings.Pairs(),
		},
		History:    history,
		DailyStats: &stats,
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal persisted state: %w", err)
	}
	return body, nil
}

// DecodeDocument parses and validates a persisted document. Windows longer
// than historySize keep only their newest samples.
func DecodeDocument(raw []byte, historySize int) (PersistedState, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return PersistedState{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	if err := doc.validate(); err != nil {
		return PersistedState{}, err
	}

	history := NewHistory(historySize)
	for pair, window := range doc.History {
		sorted := make([]Sample, len(window))
		copy(sorted, window)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})
		doc.History[pair] = sorted
	}
	history.restore(doc.History)

	stats := DailyStats{}
	if doc.DailyStats != nil {
		stats = doc.DailyStats.Clone()
	}

	s := doc.Settings
	return PersistedState{
		Settings:   NewSettings(*s.AlertsEnabled, *s.LongThreshold, *s.ShortThreshold, s.MonitoredPairs),
		History:    history.snapshot(),
		DailyStats: stats,
	}, nil
}

func (d document) validate() error {
	s := d.Settings
	if s == nil {
		return fmt.Errorf("%w: missing settings", ErrInvalidDocument)
	}
	if s.AlertsEnabled == nil || s.LongThreshold == nil || s.ShortThreshold == nil {
		return fmt.Errorf("%w: incomplete settings", ErrInvalidDocument)
	}
	if !finite(*s.LongThreshold) || !finite(*s.ShortThreshold) {
		return fmt.Errorf("%w: non-finite threshold", ErrInvalidDocument)
	}
	for _, p := range s.MonitoredPairs {
		if NormalizePair(p) == "" {
			return fmt.Errorf("%w: empty pair name", ErrInvalidDocument)
		}
	}
	for pair, window := range d.History {
		if NormalizePair(pair) == "" {
			return fmt.Errorf("%w: empty history pair", ErrInvalidDocument)
		}
		for _, sample := range window {
			if !finite(sample.Rate) || sample.Timestamp.IsZero() {
				return fmt.Errorf("%w: bad history sample for %s", ErrInvalidDocument, pair)
			}
		}
	}
	if st := d.DailyStats; st != nil {
		if st.AlertCount < 0 {
			return fmt.Errorf("%w: negative alert count", ErrInvalidDocument)
		}
		for _, ext := range []*Extreme{st.MaxLong, st.MaxShort} {
			if ext != nil && !finite(ext.Rate) {
				return fmt.Errorf("%w: non-finite extreme", ErrInvalidDocument)
			}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
