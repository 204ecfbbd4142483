package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"fundingwatch/internal/alerting"
	"fundingwatch/internal/fetcher"
	"fundingwatch/internal/metrics"
	"fundingwatch/internal/state"
)

// DefaultSqueezeThreshold is the max short rate above which the digest warns of a squeeze.
const DefaultSqueezeThreshold = 0.003

// Phase 表示评估器当前所处阶段。
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseEvaluating
	PhaseAlerting
	PhasePersisting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseAlerting:
		return "alerting"
	case PhasePersisting:
		return "persisting"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Options tune the evaluator.
type Options struct {
	SqueezeThreshold float64
	Metrics          *metrics.Metrics
}

// Report summarises one tick.
type Report struct {
	ID        string
	Skipped   bool
	Fetched   int
	Evaluated int
	Missing   []string
	Alerts    []alerting.Alert
	Sent      int
}

// Service 串联抓取、评估、告警与持久化。
type Service struct {
	state    *state.AppState
	source   fetcher.RateSource
	notifier alerting.Notifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	squeeze float64
	phase   atomic.Int32
	running atomic.Bool
}

// New constructs the alert evaluator.
func New(st *state.AppState, source fetcher.RateSource, notifier alerting.Notifier, opts Options, logger zerolog.Logger) *Service {
	squeeze := opts.SqueezeThreshold
	if squeeze <= 0 {
		squeeze = DefaultSqueezeThreshold
	}
	return &Service{
		state:    st,
		source:   source,
		notifier: notifier,
		metrics:  opts.Metrics,
		logger:   logger.With().Str("component", "service").Logger(),
		squeeze:  squeeze,
	}
}

// Phase returns the current evaluation phase.
func (s *Service) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *Service) setPhase(p Phase) {
	s.phase.Store(int32(p))
}

// Classify 判断费率是否触发告警。LONG 优先于 SHORT。
func Classify(rate, long, short float64) (state.Side, bool) {
	switch {
	case rate <= long:
		return state.SideLong, true
	case rate >= short:
		return state.SideShort, true
	default:
		return "", false
	}
}

// Tick runs one evaluation cycle at time at. With alerts disabled it does
// nothing, not even a fetch. The returned error is a persistence failure;
// fetch and send failures are logged and reflected in the report only.
func (s *Service) Tick(ctx context.Context, at time.Time) (Report, error) {
	report := Report{ID: uuid.NewString()}
	log := s.logger.With().Str("tick", report.ID).Logger()

	if !s.running.CompareAndSwap(false, true) {
		log.Warn().Msg("previous tick still running; skipping")
		report.Skipped = true
		return report, nil
	}
	defer s.running.Store(false)
	defer s.setPhase(PhaseIdle)

	if !s.state.Settings().AlertsEnabled {
		log.Debug().Msg("alerts disabled; tick skipped")
		report.Skipped = true
		return report, nil
	}
	s.metrics.TickObserved()

	s.setPhase(PhaseFetching)
	rates := s.source.FetchRates(ctx)
	report.Fetched = len(rates)

	s.setPhase(PhaseEvaluating)
	s.state.Do(func(tx state.Tx) {
		pairs := tx.Settings.Pairs()
		s.metrics.SetMonitoredPairs(len(pairs))
		report.Missing = lo.Filter(pairs, func(pair string, _ int) bool {
			_, ok := rates[pair]
			return !ok
		})

		for _, pair := range pairs {
			rate, ok := rates[pair]
			if !ok {
				continue
			}
			report.Evaluated++
			tx.History.Record(pair, rate, at)
			tx.Daily.Record(pair, rate)

			side, hit := Classify(rate, tx.Settings.LongThreshold, tx.Settings.ShortThreshold)
			if !hit {
				continue
			}
			tx.Daily.IncrementAlertCount()
			report.Alerts = append(report.Alerts, alerting.Alert{
				Pair:       pair,
				Side:       side,
				Rate:       rate,
				Threshold:  tx.Settings.Threshold(side),
				Trend:      tx.History.Trend(pair),
				ObservedAt: at,
			})
		}
	})

	if len(report.Missing) > 0 && len(rates) > 0 {
		log.Debug().Strs("pairs", report.Missing).Msg("monitored pairs absent from exchange response")
	}

	s.setPhase(PhaseAlerting)
	for _, alert := range report.Alerts {
		s.metrics.AlertRaised(string(alert.Side))
		if err := s.notifier.Notify(ctx, alerting.RenderAlert(alert)); err != nil {
			s.metrics.SendFailed()
			log.Error().Err(err).Str("pair", alert.Pair).Str("side", string(alert.Side)).Msg("failed to dispatch alert")
			continue
		}
		report.Sent++
	}

	s.setPhase(PhasePersisting)
	err := s.state.Persist(ctx)

	log.Info().
		Int("fetched", report.Fetched).
		Int("evaluated", report.Evaluated).
		Int("alerts", len(report.Alerts)).
		Int("sent", report.Sent).
		Msg("tick complete")

	if err != nil {
		return report, fmt.Errorf("persist state: %w", err)
	}
	return report, nil
}

// RunTick adapts Tick to the scheduler's callback shape.
func (s *Service) RunTick(ctx context.Context, at time.Time) error {
	_, err := s.Tick(ctx, at)
	return err
}

// Digest flushes the daily stats, sends the summary and persists the reset state.
func (s *Service) Digest(ctx context.Context, at time.Time) (state.DailyStats, error) {
	stats := s.state.FlushDaily(ctx)
	msg := alerting.RenderDigest(stats, at, s.squeeze)

	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.metrics.SendFailed()
		s.logger.Error().Err(err).Msg("failed to dispatch daily digest")
		return stats, fmt.Errorf("send digest: %w", err)
	}

	s.logger.Info().Int("alert_count", stats.AlertCount).Msg("daily digest sent")
	return stats, nil
}
