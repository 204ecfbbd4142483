package alerting

import (
	"strings"
	"testing"
	"time"

	"fundingwatch/internal/state"
)

func TestRenderAlert(t *testing.T) {
	msg := RenderAlert(Alert{
		Pair:       "BTC_USDT",
		Side:       state.SideLong,
		Rate:       -0.0015,
		Threshold:  -0.001,
		Trend:      state.TrendFalling,
		ObservedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	})

	for _, want := range []string{"LONG CRITICAL ALERT", "`BTC_USDT`", "`-0.001500`", "`-0.001`", "falling", "2026-05-01 12:00:00"} {
		if !strings.Contains(msg.Text, want) {
			t.Fatalf("告警文本缺少 %q:\n%s", want, msg.Text)
		}
	}
	if !msg.Markdown || msg.Kind != KindAlert {
		t.Fatalf("消息属性错误: %+v", msg)
	}
}

func TestRecommendation(t *testing.T) {
	quiet := Recommendation(state.DailyStats{}, 0.003)
	if !strings.Contains(quiet, "Quiet day") {
		t.Fatalf("无告警应提示 quiet day: %s", quiet)
	}

	squeeze := Recommendation(state.DailyStats{AlertCount: 2, MaxShort: &state.Extreme{Rate: 0.004, Pair: "PEPE_USDT"}}, 0.003)
	if !strings.Contains(squeeze, "Squeeze") || !strings.Contains(squeeze, "PEPE_USDT") {
		t.Fatalf("应提示 squeeze: %s", squeeze)
	}

	generic := Recommendation(state.DailyStats{AlertCount: 1, MaxShort: &state.Extreme{Rate: 0.003, Pair: "BTC_USDT"}}, 0.003)
	if strings.Contains(generic, "Squeeze") || strings.Contains(generic, "Quiet") {
		t.Fatalf("等于阈值时应为通用提示: %s", generic)
	}
}

func TestRenderDigest(t *testing.T) {
	stats := state.DailyStats{
		AlertCount: 3,
		MaxLong:    &state.Extreme{Rate: -0.002, Pair: "SOL_USDT"},
		MaxShort:   &state.Extreme{Rate: 0.0011, Pair: "ETH_USDT"},
	}
	msg := RenderDigest(stats, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), 0.003)
	for _, want := range []string{"2026-05-01", "`3`", "SOL_USDT", "-0.002000", "ETH_USDT"} {
		if !strings.Contains(msg.Text, want) {
			t.Fatalf("日报缺少 %q:\n%s", want, msg.Text)
		}
	}
	if msg.Kind != KindDigest {
		t.Fatalf("kind 应为 digest")
	}
}

func TestFormatThreshold(t *testing.T) {
	cases := map[float64]string{-0.001: "-0.001", 0.0013: "0.0013", 0: "0", 0.5: "0.5"}
	for in, want := range cases {
		if got := FormatThreshold(in); got != want {
			t.Fatalf("FormatThreshold(%v) = %s, 期望 %s", in, got, want)
		}
	}
}
