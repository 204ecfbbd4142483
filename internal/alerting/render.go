package alerting

import (
	"fmt"
	"strings"
	"time"

	"fundingwatch/internal/state"
)

// Message kinds.
const (
	KindAlert  = "alert"
	KindDigest = "digest"
)

// Alert is a threshold breach for one pair in one tick.
type Alert struct {
	Pair       string
	Side       state.Side
	Rate       float64
	Threshold  float64
	Trend      state.Trend
	ObservedAt time.Time
}

// RenderAlert formats a breach notification.
func RenderAlert(a Alert) Message {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("🚨 *%s CRITICAL ALERT*\n", strings.ToUpper(string(a.Side))))
	builder.WriteString(fmt.Sprintf("Pair: `%s`\n", a.Pair))
	builder.WriteString(fmt.Sprintf("Funding Rate: `%s`\n", FormatRate(a.Rate)))
	builder.WriteString(fmt.Sprintf("Threshold: `%s`\n", FormatThreshold(a.Threshold)))
	if a.Trend != "" && a.Trend != state.TrendInsufficient {
		builder.WriteString(fmt.Sprintf("Trend: %s %s\n", TrendIcon(a.Trend), a.Trend))
	}
	builder.WriteString(fmt.Sprintf("Time: %s UTC", a.ObservedAt.UTC().Format("2006-01-02 15:04:05")))
	return Message{Text: builder.String(), Markdown: true, Kind: KindAlert}
}

// RenderDigest formats the daily summary of a flushed stats snapshot.
func RenderDigest(stats state.DailyStats, day time.Time, squeezeThreshold float64) Message {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("📊 *Daily funding digest* (%s)\n", day.Format("2006-01-02")))
	builder.WriteString(fmt.Sprintf("Alerts sent: `%d`\n", stats.AlertCount))
	if stats.MaxLong != nil {
		builder.WriteString(fmt.Sprintf("Most negative: `%s` `%s`\n", stats.MaxLong.Pair, FormatRate(stats.MaxLong.Rate)))
	}
	if stats.MaxShort != nil {
		builder.WriteString(fmt.Sprintf("Most positive: `%s` `%s`\n", stats.MaxShort.Pair, FormatRate(stats.MaxShort.Rate)))
	}
	builder.WriteString("\n")
	builder.WriteString(Recommendation(stats, squeezeThreshold))
	return Message{Text: builder.String(), Markdown: true, Kind: KindDigest}
}

// Recommendation picks the digest advice line.
func Recommendation(stats state.DailyStats, squeezeThreshold float64) string {
	switch {
	case stats.AlertCount == 0:
		return "😴 Quiet day: no threshold breaches."
	case stats.MaxShort != nil && stats.MaxShort.Rate > squeezeThreshold:
		return fmt.Sprintf("⚠️ Squeeze risk: longs on `%s` are paying `%s`. Crowded positioning tends to unwind sharply.",
			stats.MaxShort.Pair, FormatRate(stats.MaxShort.Rate))
	default:
		return "ℹ️ Funding moved but stayed within normal ranges. Review thresholds if alerts feel noisy."
	}
}

// FormatRate renders a funding rate with six decimals.
func FormatRate(r float64) string {
	return fmt.Sprintf("%.6f", r)
}

// FormatThreshold renders a threshold without trailing zeros.
func FormatThreshold(v float64) string {
	s := fmt.Sprintf("%.6f", v)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

// TrendIcon maps a trend to an arrow.
func TrendIcon(t state.Trend) string {
	switch t {
	case state.TrendRising:
		return "📈"
	case state.TrendFalling:
		return "📉"
	case state.TrendFlat:
		return "➡️"
	default:
		return "…"
	}
}
