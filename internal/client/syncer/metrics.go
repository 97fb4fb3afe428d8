package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/client/api"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports sync activity. A nil *Metrics records nothing.
type Metrics struct {
	attempts    *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conformsync",
			Name:      "sync_attempts_total",
			Help:      "Sync requests by table, trigger and outcome.",
		}, []string{"table", "trigger", "outcome"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conformsync",
			Name:      "sync_skipped_total",
			Help:      "Automatic syncs not attempted, by reason.",
		}, []string{"table", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "conformsync",
			Name:      "sync_duration_seconds",
			Help:      "Duration of sync requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "conformsync",
			Name:      "sync_in_flight",
			Help:      "Sync requests currently running.",
		}, []string{"table"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "conformsync",
			Name:      "sync_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful sync.",
		}, []string{"table"}),
	}
	reg.MustRegister(m.attempts, m.skipped, m.duration, m.inFlight, m.lastSuccess)
	return m
}

func (m *Metrics) begin(table string) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(table).Inc()
}

func (m *Metrics) end(table string, trig Trigger, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(table).Dec()
	m.duration.WithLabelValues(table).Observe(took.Seconds())
	m.attempts.WithLabelValues(table, string(trig), Outcome(err)).Inc()
	if err == nil {
		m.lastSuccess.WithLabelValues(table).SetToCurrentTime()
	}
}

func (m *Metrics) skip(table string, err error) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(table, Outcome(err)).Inc()
}

// Outcome maps a sync result to a short label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, api.ErrOffline):
		return "offline"
	case errors.Is(err, api.ErrTimeout):
		return "timeout"
	case errors.Is(err, api.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, api.ErrHTTPStatus):
		return "http_status"
	case errors.Is(err, api.ErrRejected):
		return "rejected"
	case errors.Is(err, ErrSyncInProgress):
		return "in_progress"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrThrottled):
		return "throttled"
	case errors.Is(err, ErrUnchanged):
		return "unchanged"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
