//
//  Copyright © Trustline Inc. All rights reserved.
//

// Package metrics exposes the prometheus instrumentation for the decision
// engine and the audit writer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the service registers. It satisfies the
// ledger writer's Observer interface so audit telemetry flows without the
// ledger importing prometheus.
type Metrics struct {
	DecisionsTotal   *prometheus.CounterVec
	DecisionLatency  prometheus.Histogram
	EscalationRate   prometheus.Gauge
	AgentFailures    *prometheus.CounterVec
	AuditQueueDepth  prometheus.Gauge
	AuditSyncWrites  prometheus.Counter
	AuditDropped     prometheus.Counter
	AuditWriteErrors prometheus.Counter
}

// New registers the service collectors on the given registerer. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry
// to avoid duplicate-registration panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authguard",
			Name:      "decisions_total",
			Help:      "Login decisions by final action.",
		}, []string{"action"}),
		DecisionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "authguard",
			Name:      "decision_duration_seconds",
			Help:      "End to end evaluation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		EscalationRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "authguard",
			Name:      "escalation_rate",
			Help:      "Escalation rate over the drift window.",
		}),
		AgentFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authguard",
			Name:      "agent_failures_total",
			Help:      "Evaluation agent failures by agent.",
		}, []string{"agent"}),
		AuditQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "authguard",
			Subsystem: "audit",
			Name:      "queue_depth",
			Help:      "Entries waiting in the audit writer queue.",
		}),
		AuditSyncWrites: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "authguard",
			Subsystem: "audit",
			Name:      "sync_writes_total",
			Help:      "Audit entries written synchronously after queue-full timeout.",
		}),
		AuditDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "authguard",
			Subsystem: "audit",
			Name:      "dropped_total",
			Help:      "Audit entries dropped after queue-full timeout.",
		}),
		AuditWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "authguard",
			Subsystem: "audit",
			Name:      "write_errors_total",
			Help:      "Failed audit store appends.",
		}),
	}
}

// ObserveDecision records one completed evaluation.
func (m *Metrics) ObserveDecision(action string, elapsed time.Duration) {
	m.DecisionsTotal.WithLabelValues(action).Inc()
	m.DecisionLatency.Observe(elapsed.Seconds())
}

// AgentFailure records an evaluation agent failure.
func (m *Metrics) AgentFailure(agent string) {
	m.AgentFailures.WithLabelValues(agent).Inc()
}

// ObserveEscalationRate publishes the drift monitor's current rate.
func (m *Metrics) ObserveEscalationRate(rate float64) {
	m.EscalationRate.Set(rate)
}

// QueueDepth implements ledger.Observer.
func (m *Metrics) QueueDepth(depth int) {
	m.AuditQueueDepth.Set(float64(depth))
}

// SyncFallback implements ledger.Observer.
func (m *Metrics) SyncFallback() {
	m.AuditSyncWrites.Inc()
}

// Dropped implements ledger.Observer.
func (m *Metrics) Dropped() {
	m.AuditDropped.Inc()
}

// WriteFailed implements ledger.Observer.
func (m *Metrics) WriteFailed() {
	m.AuditWriteErrors.Inc()
}
