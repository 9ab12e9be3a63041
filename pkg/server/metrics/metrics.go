// Package metrics holds the Prometheus collectors for the takmachat server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks server-side Prometheus metrics.
//
// All metrics use the takmachat_ prefix. Every recording method is nil-safe
// so callers can carry a nil *Metrics when collection is disabled.
type Metrics struct {
	// ConnectionsActive tracks currently open TCP connections.
	ConnectionsActive prometheus.Gauge

	// ConnectionsTotal counts accepted TCP connections.
	ConnectionsTotal prometheus.Counter

	// SessionsActive tracks currently authenticated sessions.
	SessionsActive prometheus.Gauge

	// AuthTotal counts authentication attempts by result.
	AuthTotal *prometheus.CounterVec

	// FramesTotal counts authenticated frames by action.
	FramesTotal *prometheus.CounterVec

	// MessagesRoutedTotal counts messages forwarded to a live recipient.
	MessagesRoutedTotal prometheus.Counter

	// MessagesDroppedTotal counts messages refused because the recipient
	// had no live session.
	MessagesDroppedTotal prometheus.Counter

	// BroadcastsTotal counts roster-changed (205) broadcasts.
	BroadcastsTotal prometheus.Counter
}

// Authentication results recorded under AuthTotal.
const (
	AuthResultOK            = "ok"
	AuthResultNameTaken     = "name_taken"
	AuthResultNotRegistered = "not_registered"
	AuthResultBadPassword   = "bad_password"
)

// New creates the server metrics and registers them on reg.
// Panics if registration fails (expected during initialization only).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "takmachat_connections_active",
				Help: "Currently open TCP connections",
			},
		),
		ConnectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "takmachat_connections_total",
				Help: "Total accepted TCP connections",
			},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "takmachat_sessions_active",
				Help: "Currently authenticated sessions",
			},
		),
		AuthTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "takmachat_auth_total",
				Help: "Authentication attempts by result",
			},
			[]string{"result"},
		),
		FramesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "takmachat_frames_total",
				Help: "Authenticated protocol frames by action",
			},
			[]string{"action"},
		),
		MessagesRoutedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "takmachat_messages_routed_total",
				Help: "Messages forwarded to a live recipient",
			},
		),
		MessagesDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "takmachat_messages_dropped_total",
				Help: "Messages refused because the recipient was offline",
			},
		),
		BroadcastsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "takmachat_broadcasts_total",
				Help: "Roster-changed broadcasts sent",
			},
		),
	}

	reg.MustRegister(
		m.ConnectionsActive,
		m.ConnectionsTotal,
		m.SessionsActive,
		m.AuthTotal,
		m.FramesTotal,
		m.MessagesRoutedTotal,
		m.MessagesDroppedTotal,
		m.BroadcastsTotal,
	)

	return m
}

// RecordConnectionOpened records one accepted connection.
func (m *Metrics) RecordConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
	m.ConnectionsActive.Inc()
}

// RecordConnectionClosed records one closed connection.
func (m *Metrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

// RecordAuth records an authentication attempt outcome.
func (m *Metrics) RecordAuth(result string) {
	if m == nil {
		return
	}
	m.AuthTotal.WithLabelValues(result).Inc()
}

// SetActiveSessions sets the authenticated-session gauge.
func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))
}

// RecordFrame records one authenticated frame by action.
func (m *Metrics) RecordFrame(action string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(action).Inc()
}

// RecordMessageRouted records one successfully forwarded message.
func (m *Metrics) RecordMessageRouted() {
	if m == nil {
		return
	}
	m.MessagesRoutedTotal.Inc()
}

// RecordMessageDropped records one message refused for an offline recipient.
func (m *Metrics) RecordMessageDropped() {
	if m == nil {
		return
	}
	m.MessagesDroppedTotal.Inc()
}

// RecordBroadcast records one roster-changed broadcast.
func (m *Metrics) RecordBroadcast() {
	if m == nil {
		return
	}
	m.BroadcastsTotal.Inc()
}
