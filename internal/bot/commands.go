package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"fundingwatch/internal/alerting"
	"fundingwatch/internal/chart"
	"fundingwatch/internal/fetcher"
	"fundingwatch/internal/state"
)

// DefaultTopN is how many pairs /all lists.
const DefaultTopN = 10

// Action identifies an inline button.
type Action string

const (
	ActionToggle    Action = "toggle"
	ActionLongUp    Action = "long_up"
	ActionLongDown  Action = "long_down"
	ActionShortUp   Action = "short_up"
	ActionShortDown Action = "short_down"
	ActionRemove    Action = "remove"
	ActionReset     Action = "reset"
	ActionRefresh   Action = "refresh"
)

// Actions lists every button action, for transports that register handlers up front.
var Actions = []Action{
	ActionToggle,
	ActionLongUp,
	ActionLongDown,
	ActionShortUp,
	ActionShortDown,
	ActionRemove,
	ActionReset,
	ActionRefresh,
}

// Button is one inline keyboard button.
type Button struct {
	Label  string
	Action Action
	Arg    string
}

// Reply is what a command produces. Text is Markdown.
type Reply struct {
	Text     string
	Keyboard [][]Button
	Chart    []byte
}

// Commands implements the operator commands independently of the chat transport.
type Commands struct {
	state  *state.AppState
	source fetcher.RateSource
	topN   int
	logger zerolog.Logger
}

// New constructs the command set.
func New(st *state.AppState, source fetcher.RateSource, topN int, logger zerolog.Logger) *Commands {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Commands{
		state:  st,
		source: source,
		topN:   topN,
		logger: logger.With().Str("component", "commands").Logger(),
	}
}

// Start greets the operator and shows the control panel.
func (c *Commands) Start(ctx context.Context) Reply {
	reply := c.Status(ctx)
	reply.Text = "👋 *Funding rate watch*\nI poll Gate.io USDT perpetuals and alert when funding crosses your thresholds.\n\n" + reply.Text
	return reply
}

// Help lists the available commands.
func (c *Commands) Help(context.Context) Reply {
	lines := []string{
		"*Commands*",
		"/status - current settings and today's stats",
		"/all - top pairs by absolute funding rate",
		"/history <pair> - recent samples with a chart",
		"/add <pair> - start monitoring a pair",
		"/remove <pair> - stop monitoring a pair",
		"/help - this message",
		"",
		fmt.Sprintf("Threshold buttons move by `%s`. LONG fires when rate <= long threshold, SHORT when rate >= short threshold.",
			alerting.FormatThreshold(c.state.Step())),
	}
	return Reply{Text: strings.Join(lines, "\n")}
}

// Status renders the settings panel with its inline keyboard.
func (c *Commands) Status(context.Context) Reply {
	settings := c.state.Settings()
	daily := c.state.DailySnapshot()

	builder := strings.Builder{}
	if settings.AlertsEnabled {
		builder.WriteString("Alerts: ✅ enabled\n")
	} else {
		builder.WriteString("Alerts: ⏸ disabled\n")
	}
	builder.WriteString(fmt.Sprintf("Long threshold: `%s`\n", alerting.FormatThreshold(settings.LongThreshold)))
	builder.WriteString(fmt.Sprintf("Short threshold: `%s`\n", alerting.FormatThreshold(settings.ShortThreshold)))

	pairs := settings.Pairs()
	if len(pairs) == 0 {
		builder.WriteString("Pairs: none\n")
	} else {
		quoted := lo.Map(pairs, func(p string, _ int) string { return "`" + p + "`" })
		builder.WriteString(fmt.Sprintf("Pairs (%d): %s\n", len(pairs), strings.Join(quoted, ", ")))
	}

	builder.WriteString(fmt.Sprintf("\nToday: `%d` alerts", daily.AlertCount))
	if daily.MaxLong != nil {
		builder.WriteString(fmt.Sprintf("\nMost negative: `%s` `%s`", daily.MaxLong.Pair, alerting.FormatRate(daily.MaxLong.Rate)))
	}
	if daily.MaxShort != nil {
		builder.WriteString(fmt.Sprintf("\nMost positive: `%s` `%s`", daily.MaxShort.Pair, alerting.FormatRate(daily.MaxShort.Rate)))
	}

	return Reply{Text: builder.String(), Keyboard: c.keyboard(settings)}
}

func (c *Commands) keyboard(settings state.Settings) [][]Button {
	toggle := Button{Label: "⏸ Disable alerts", Action: ActionToggle}
	if !settings.AlertsEnabled {
		toggle.Label = "▶️ Enable alerts"
	}
	step := alerting.FormatThreshold(c.state.Step())

	rows := [][]Button{
		{toggle, {Label: "🔄 Refresh", Action: ActionRefresh}},
		{
			{Label: "Long −" + step, Action: ActionLongDown},
			{Label: "Long +" + step, Action: ActionLongUp},
		},
		{
			{Label: "Short −" + step, Action: ActionShortDown},
			{Label: "Short +" + step, Action: ActionShortUp},
		},
	}

	removes := lo.Map(settings.Pairs(), func(p string, _ int) Button {
		return Button{Label: "❌ " + p, Action: ActionRemove, Arg: p}
	})
	rows = append(rows, lo.Chunk(removes, 2)...)
	rows = append(rows, []Button{{Label: "♻️ Reset to defaults", Action: ActionReset}})
	return rows
}

// All lists the top pairs by absolute funding rate across the whole exchange.
func (c *Commands) All(ctx context.Context) Reply {
	rates := c.source.FetchRates(ctx)
	if len(rates) == 0 {
		return Reply{Text: "⚠️ Could not fetch funding rates right now. Try again shortly."}
	}
	settings := c.state.Settings()

	pairs := lo.Keys(rates)
	sort.Slice(pairs, func(i, j int) bool {
		ai, aj := math.Abs(rates[pairs[i]]), math.Abs(rates[pairs[j]])
		if ai != aj {
			return ai > aj
		}
		return pairs[i] < pairs[j]
	})
	if len(pairs) > c.topN {
		pairs = pairs[:c.topN]
	}

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("*Top %d by |funding rate|*\n", len(pairs)))
	for i, pair := range pairs {
		rate := rates[pair]
		marker := "🟢"
		if rate < 0 {
			marker = "🔴"
		}
		line := fmt.Sprintf("%d. %s `%s` `%s`", i+1, marker, pair, alerting.FormatRate(rate))
		if settings.Monitors(pair) {
			line += " 👁"
		}
		builder.WriteString(line + "\n")
	}
	builder.WriteString(fmt.Sprintf("\n%d contracts reported. 👁 = monitored.", len(rates)))
	return Reply{Text: builder.String()}
}

// History shows the recorded window for pair, with a chart once two samples exist.
func (c *Commands) History(_ context.Context, pair string) Reply {
	pair = cleanPair(pair)
	if pair == "" {
		return Reply{Text: "Usage: `/history BTC_USDT`"}
	}

	window, trend := c.state.HistoryOf(pair)
	if len(window) == 0 {
		return Reply{Text: fmt.Sprintf("No samples for `%s` yet. Only monitored pairs are recorded.", pair)}
	}

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("*History* `%s`\n", pair))
	builder.WriteString(fmt.Sprintf("Trend: %s %s\n", alerting.TrendIcon(trend), trend))
	for i := len(window) - 1; i >= 0; i-- {
		sample := window[i]
		builder.WriteString(fmt.Sprintf("`%s` `%s`\n", sample.Timestamp.UTC().Format("01-02 15:04:05"), alerting.FormatRate(sample.Rate)))
	}

	reply := Reply{Text: builder.String()}
	if len(window) >= 2 {
		settings := c.state.Settings()
		png, err := chart.PNGBytes([]chart.Series{{Pair: pair, Samples: window}}, chart.Options{
			Title:          pair,
			LongThreshold:  &settings.LongThreshold,
			ShortThreshold: &settings.ShortThreshold,
		})
		if err != nil {
			c.logger.Warn().Err(err).Str("pair", pair).Msg("render history chart failed")
		} else {
			reply.Chart = png
		}
	}
	return reply
}

// Toggle flips the alert switch.
func (c *Commands) Toggle(ctx context.Context) Reply {
	settings := c.state.ToggleAlerts(ctx)
	c.logger.Info().Bool("alerts_enabled", settings.AlertsEnabled).Msg("alerts toggled")
	return c.withNotice(ctx, "")
}

// Adjust nudges the side's threshold by one step in the direction of sign.
func (c *Commands) Adjust(ctx context.Context, side state.Side, sign int) Reply {
	delta := c.state.Step()
	if sign < 0 {
		delta = -delta
	}
	settings := c.state.AdjustThreshold(ctx, side, delta)
	c.logger.Info().Str("side", string(side)).Float64("threshold", settings.Threshold(side)).Msg("threshold adjusted")
	return c.withNotice(ctx, "")
}

// AddPair starts monitoring pair after checking it against a fresh fetch.
func (c *Commands) AddPair(ctx context.Context, pair string) Reply {
	pair = cleanPair(pair)
	if pair == "" {
		return Reply{Text: "Usage: `/add BTC_USDT`"}
	}

	err := c.state.AddPair(ctx, pair, c.source.FetchRates(ctx))
	switch {
	case errors.Is(err, state.ErrUnknownPair):
		return Reply{Text: fmt.Sprintf("❌ `%s` is not listed on Gate.io USDT futures (or the exchange is unreachable).", pair)}
	case errors.Is(err, state.ErrAlreadyMonitored):
		return Reply{Text: fmt.Sprintf("ℹ️ `%s` is already monitored.", pair)}
	case err != nil:
		c.logger.Error().Err(err).Str("pair", pair).Msg("add pair failed")
		return Reply{Text: "⚠️ Could not add pair."}
	}

	c.logger.Info().Str("pair", pair).Msg("pair added")
	return c.withNotice(ctx, fmt.Sprintf("✅ Now monitoring `%s`.", pair))
}

// RemovePair stops monitoring pair.
func (c *Commands) RemovePair(ctx context.Context, pair string) Reply {
	pair = cleanPair(pair)
	if pair == "" {
		return Reply{Text: "Usage: `/remove BTC_USDT`"}
	}

	err := c.state.RemovePair(ctx, pair, c.source.FetchRates(ctx))
	switch {
	case errors.Is(err, state.ErrUnknownPair):
		return Reply{Text: fmt.Sprintf("❌ `%s` is not a known pair.", pair)}
	case errors.Is(err, state.ErrNotMonitored):
		return Reply{Text: fmt.Sprintf("ℹ️ `%s` is not monitored.", pair)}
	case err != nil:
		c.logger.Error().Err(err).Str("pair", pair).Msg("remove pair failed")
		return Reply{Text: "⚠️ Could not remove pair."}
	}

	c.logger.Info().Str("pair", pair).Msg("pair removed")
	return c.withNotice(ctx, fmt.Sprintf("🗑 Stopped monitoring `%s`.", pair))
}

// Reset restores the configured default settings.
func (c *Commands) Reset(ctx context.Context) Reply {
	c.state.Reset(ctx)
	c.logger.Info().Msg("settings reset to defaults")
	return c.withNotice(ctx, "♻️ Settings reset to defaults.")
}

// Press dispatches an inline button.
func (c *Commands) Press(ctx context.Context, action Action, arg string) Reply {
	switch action {
	case ActionToggle:
		return c.Toggle(ctx)
	case ActionLongUp:
		return c.Adjust(ctx, state.SideLong, 1)
	case ActionLongDown:
		return c.Adjust(ctx, state.SideLong, -1)
	case ActionShortUp:
		return c.Adjust(ctx, state.SideShort, 1)
	case ActionShortDown:
		return c.Adjust(ctx, state.SideShort, -1)
	case ActionRemove:
		return c.RemovePair(ctx, arg)
	case ActionReset:
		return c.Reset(ctx)
	case ActionRefresh:
		return c.Status(ctx)
	default:
		return Reply{Text: "Unknown action."}
	}
}

func (c *Commands) withNotice(ctx context.Context, notice string) Reply {
	reply := c.Status(ctx)
	if notice != "" {
		reply.Text = notice + "\n\n" + reply.Text
	}
	return reply
}

// cleanPair normalises user input and strips characters that would break Markdown.
func cleanPair(pair string) string {
	pair = strings.Map(func(r rune) rune {
		switch r {
		case '`', '*', '[', ']':
			return -1
		}
		return r
	}, pair)
	return state.NormalizePair(pair)
}
