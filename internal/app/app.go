package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fundingwatch/internal/alerting"
	"fundingwatch/internal/bot"
	"fundingwatch/internal/config"
	"fundingwatch/internal/fetcher"
	"fundingwatch/internal/metrics"
	"fundingwatch/internal/scheduler"
	"fundingwatch/internal/service"
	"fundingwatch/internal/state"
	"fundingwatch/internal/storage"
	"fundingwatch/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) defaults() state.Settings {
	m := a.Config.Monitor
	return state.NewSettings(true, m.LongThreshold, m.ShortThreshold, m.Pairs)
}

func (a *App) stateOptions(m *metrics.Metrics) state.Options {
	opts := state.Options{
		Defaults:      a.defaults(),
		HistorySize:   a.Config.Monitor.HistorySize,
		ThresholdStep: a.Config.Monitor.ThresholdStep,
	}
	if m != nil {
		opts.OnSaveError = m.PersistFailed
	}
	return opts
}

func (a *App) newSource(m *metrics.Metrics) *fetcher.Gate {
	opts := fetcher.GateOptions{
		BaseURL:        a.Config.Exchange.BaseURL,
		ContractSuffix: a.Config.Exchange.ContractSuffix,
		Timeout:        a.Config.Exchange.RequestTimeout,
		UserAgent:      a.Config.Exchange.UserAgent,
	}
	if m != nil {
		opts.OnFailure = m.FetchFailed
	}
	return fetcher.NewGate(opts, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	cfg := a.Config.Telegram
	if !cfg.Enabled() {
		return alerting.NewLogNotifier(a.Logger)
	}
	return alerting.NewTelegramNotifier(alerting.TelegramOptions{
		BotToken:  cfg.BotToken,
		ChatID:    cfg.ChatID,
		BaseURL:   cfg.APIBase,
		Timeout:   cfg.RequestTimeout,
		SendRate:  cfg.SendRate,
		SendBurst: cfg.SendBurst,
	}, a.Logger)
}

// openStore opens the configured backend. A backend that cannot be opened
// degrades to no persistence rather than stopping the process.
func (a *App) openStore(ctx context.Context) (storage.BlobStore, func()) {
	store, closer, err := storage.Open(ctx, a.Config.Persistence, a.Logger)
	if err != nil {
		a.Logger.Error().Err(err).Str("backend", a.Config.Persistence.Backend).Msg("open persistence backend failed; state will not be saved")
		return storage.Nop{}, func() {}
	}
	if !a.Config.Persistence.Enabled() {
		a.Logger.Warn().Str("backend", a.Config.Persistence.Backend).Msg("persistence not configured; state lives in memory only")
	}
	return store, closer
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()

	store, closeStore := a.openStore(ctx)
	defer closeStore()

	st := state.Load(ctx, store, a.stateOptions(m), a.Logger)
	m.SetMonitoredPairs(len(st.Settings().MonitoredPairs))

	source := a.newSource(m)
	notifier := a.newNotifier()
	if !a.Config.Telegram.Enabled() {
		a.Logger.Warn().Msg("telegram.bot_token or telegram.chat_id missing; alerts go to the log and commands are disabled")
	}

	svc := service.New(st, source, notifier, service.Options{
		SqueezeThreshold: a.Config.Monitor.SqueezeThreshold,
		Metrics:          m,
	}, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:      a.Config.Scheduler.Interval,
		AlignToBucket: a.Config.Scheduler.AlignToBucket,
		StartupDelay:  a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(gctx, svc.RunTick)
	})

	if a.Config.Digest.Enabled {
		daily, err := scheduler.NewDaily(a.Config.Digest.Schedule, a.Config.Digest.Timezone, a.Logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return daily.Run(gctx, func(ctx context.Context, at time.Time) error {
				_, err := svc.Digest(ctx, at)
				return err
			})
		})
	}

	if a.Config.Telegram.Enabled() && a.Config.Telegram.Commands {
		commands := bot.New(st, source, a.Config.Monitor.TopN, a.Logger)
		tg, err := bot.NewTelegram(commands, bot.TelegramOptions{
			Token:          a.Config.Telegram.BotToken,
			ChatID:         a.Config.Telegram.ChatID,
			APIBase:        a.Config.Telegram.APIBase,
			PollTimeout:    a.Config.Telegram.PollTimeout,
			RequestTimeout: a.Config.Telegram.RequestTimeout,
		}, a.Logger)
		if err != nil {
			a.Logger.Error().Err(err).Msg("telegram command interface unavailable")
		} else {
			g.Go(func() error { return tg.Run(gctx) })
		}
	}

	if addr := a.Config.Metrics.Listen; addr != "" {
		g.Go(func() error { return m.Serve(gctx, addr, a.Logger) })
	}

	a.Logger.Info().
		Str("version", version.Version).
		Dur("interval", a.Config.Scheduler.Interval).
		Strs("pairs", st.Settings().Pairs()).
		Msg("starting monitoring service")

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}
