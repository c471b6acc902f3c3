package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds the bot's Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	transitions   *prometheus.CounterVec
	statsRequests *prometheus.CounterVec
	flushes       *prometheus.CounterVec
	attending     prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rsvp_transitions_total",
				Help: "Conversation steps processed, by state before and after.",
			},
			[]string{"from", "to"},
		),
		statsRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rsvp_stats_requests_total",
				Help: "Admin stats requests, by whether the sender was authorized.",
			},
			[]string{"authorized"},
		),
		flushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rsvp_flushes_total",
				Help: "Guest file writes, by outcome.",
			},
			[]string{"result"},
		),
		attending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsvp_guests_attending",
			Help: "Guests currently attending.",
		}),
	}
	reg.MustRegister(m.transitions, m.statsRequests, m.flushes, m.attending)
	return m
}

// ObserveTransition counts one conversation step.
func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// ObserveStats counts one admin stats request.
func (m *Metrics) ObserveStats(authorized bool) {
	if m == nil {
		return
	}
	m.statsRequests.WithLabelValues(strconv.FormatBool(authorized)).Inc()
}

// ObserveFlush counts one flush attempt.
func (m *Metrics) ObserveFlush(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.flushes.WithLabelValues(result).Inc()
}

// SetAttending records the current guest count.
func (m *Metrics) SetAttending(n int) {
	if m == nil {
		return
	}
	m.attending.Set(float64(n))
}

// Serve exposes /metrics on addr until ctx is canceled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("Starting metrics server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
