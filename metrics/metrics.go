// Package metrics provides Prometheus metrics for auth flow orchestration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the orchestration core.
type Metrics struct {
	enabled bool

	// Dispatch metrics
	eventsDeliveredTotal *prometheus.CounterVec
	eventsDroppedTotal   *prometheus.CounterVec

	// Routing metrics
	routesTotal *prometheus.CounterVec

	// Command metrics
	commandsTotal *prometheus.CounterVec

	// Session timeout metrics
	sessionTimeoutsTotal *prometheus.CounterVec
	countdownSeconds     prometheus.Gauge
}

// New creates and registers Prometheus metrics.
// If enabled is false, returns a no-op Metrics instance.
func New(enabled bool) *Metrics {
	m := &Metrics{enabled: enabled}

	if !enabled {
		return m
	}

	// Dispatch metrics
	m.eventsDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authflow_events_delivered_total",
		Help: "Total bridge events delivered to a handler",
	}, []string{"event"})

	m.eventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authflow_events_dropped_total",
		Help: "Total bridge events dropped at the dispatch boundary",
	}, []string{"event", "reason"})

	// Routing metrics
	m.routesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authflow_routes_total",
		Help: "Total navigation instructions issued by the challenge router",
	}, []string{"screen", "kind"})

	// Command metrics
	m.commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authflow_commands_total",
		Help: "Total bridge command submissions",
	}, []string{"command", "result"})

	// Session timeout metrics
	m.sessionTimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authflow_session_timeouts_total",
		Help: "Total session timeout notifications received",
	}, []string{"kind"})

	m.countdownSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "authflow_countdown_seconds",
		Help: "Seconds remaining on the advisory session countdown",
	})

	return m
}

// RecordDelivered records a successfully dispatched event.
func (m *Metrics) RecordDelivered(event string) {
	if !m.enabled {
		return
	}
	m.eventsDeliveredTotal.WithLabelValues(event).Inc()
}

// RecordDropped records an event dropped at the dispatch boundary.
func (m *Metrics) RecordDropped(event, reason string) {
	if !m.enabled {
		return
	}
	m.eventsDroppedTotal.WithLabelValues(event, reason).Inc()
}

// RecordRoute records one navigation instruction. kind is push, update, or
// present.
func (m *Metrics) RecordRoute(screen, kind string) {
	if !m.enabled {
		return
	}
	m.routesTotal.WithLabelValues(screen, kind).Inc()
}

// RecordCommand records a bridge command submission result.
func (m *Metrics) RecordCommand(command, result string) {
	if !m.enabled {
		return
	}
	m.commandsTotal.WithLabelValues(command, result).Inc()
}

// RecordTimeout records a timeout notification. kind is advisory or mandatory.
func (m *Metrics) RecordTimeout(kind string) {
	if !m.enabled {
		return
	}
	m.sessionTimeoutsTotal.WithLabelValues(kind).Inc()
}

// SetCountdown sets the advisory countdown gauge.
func (m *Metrics) SetCountdown(seconds float64) {
	if !m.enabled {
		return
	}
	m.countdownSeconds.Set(seconds)
}
