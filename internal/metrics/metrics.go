package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "fundingwatch"

// Metrics holds the process counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	ticks           prometheus.Counter
	alerts          *prometheus.CounterVec
	fetchFailures   prometheus.Counter
	sendFailures    prometheus.Counter
	persistFailures prometheus.Counter
	monitoredPairs  prometheus.Gauge
}

// New registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Evaluation ticks that ran with alerts enabled.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Threshold breaches by side.",
		}, []string{"side"}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Rate fetches that returned no data because of an error.",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Outbound chat messages that failed.",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "State saves that failed.",
		}),
		monitoredPairs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitored_pairs",
			Help:      "Pairs currently monitored.",
		}),
	}
	m.registry.MustRegister(
		m.ticks,
		m.alerts,
		m.fetchFailures,
		m.sendFailures,
		m.persistFailures,
		m.monitoredPairs,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) TickObserved() {
	if m != nil {
		m.ticks.Inc()
	}
}

func (m *Metrics) AlertRaised(side string) {
	if m != nil {
		m.alerts.WithLabelValues(side).Inc()
	}
}

func (m *Metrics) FetchFailed(error) {
	if m != nil {
		m.fetchFailures.Inc()
	}
}

func (m *Metrics) SendFailed() {
	if m != nil {
		m.sendFailures.Inc()
	}
}

func (m *Metrics) PersistFailed(error) {
	if m != nil {
		m.persistFailures.Inc()
	}
}

func (m *Metrics) SetMonitoredPairs(n int) {
	if m != nil {
		m.monitoredPairs.Set(float64(n))
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	log := logger.With().Str("component", "metrics").Logger()

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("metrics endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics shutdown failed")
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
