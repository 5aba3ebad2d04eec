// Package metrics exposes the engine's Prometheus instrumentation. All
// methods are safe on a nil receiver so components can run unmetered in
// tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/parlorgames/parlor/internal/parlor"
)

// Metrics bundles the engine's counters.
type Metrics struct {
	roomsCreated  *prometheus.CounterVec
	gamesStarted  *prometheus.CounterVec
	actions       *prometheus.CounterVec
	botActions    *prometheus.CounterVec
	staleTimers   *prometheus.CounterVec
	flushFailures prometheus.Counter
}

// New creates the metric set and registers it on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		roomsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parlor", Name: "rooms_created_total",
			Help: "Rooms created, by game mode.",
		}, []string{"mode"}),
		gamesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parlor", Name: "games_started_total",
			Help: "Games started, by game mode.",
		}, []string{"mode"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parlor", Name: "actions_submitted_total",
			Help: "Player actions accepted, by mode and action type.",
		}, []string{"mode", "type"}),
		botActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parlor", Name: "bot_actions_total",
			Help: "Bot actions played, by game mode.",
		}, []string{"mode"}),
		staleTimers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parlor", Name: "stale_timer_fires_total",
			Help: "Timer fires suppressed by the staleness guard, by namespace.",
		}, []string{"namespace"}),
		flushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parlor", Name: "eventlog_flush_failures_total",
			Help: "Durable event log flushes that failed and were re-queued.",
		}),
	}
	reg.MustRegister(m.roomsCreated, m.gamesStarted, m.actions, m.botActions,
		m.staleTimers, m.flushFailures)
	return m
}

// RoomCreated counts a new room.
func (m *Metrics) RoomCreated(mode parlor.Mode) {
	if m == nil {
		return
	}
	m.roomsCreated.WithLabelValues(string(mode)).Inc()
}

// GameStarted counts a game leaving the lobby.
func (m *Metrics) GameStarted(mode parlor.Mode) {
	if m == nil {
		return
	}
	m.gamesStarted.WithLabelValues(string(mode)).Inc()
}

// ActionSubmitted counts an accepted player action.
func (m *Metrics) ActionSubmitted(mode parlor.Mode, actionType string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(string(mode), actionType).Inc()
}

// BotActionPlayed counts an accepted bot action.
func (m *Metrics) BotActionPlayed(mode parlor.Mode) {
	if m == nil {
		return
	}
	m.botActions.WithLabelValues(string(mode)).Inc()
}

// StaleTimerFired counts a timer fire suppressed by the staleness guard.
func (m *Metrics) StaleTimerFired(namespace string) {
	if m == nil {
		return
	}
	m.staleTimers.WithLabelValues(namespace).Inc()
}

// FlushFailed counts a failed durable event log flush.
func (m *Metrics) FlushFailed() {
	if m == nil {
		return
	}
	m.flushFailures.Inc()
}
