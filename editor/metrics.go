// ABOUTME: Prometheus instrumentation for editing sessions: mutations, rejections, layout runs, collaborator calls.
// ABOUTME: A nil *Metrics is valid and records nothing, which keeps tests free of registry plumbing.
package editor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for one server.
type Metrics struct {
	mutations     *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	layoutRuns    *prometheus.CounterVec
	collaborator  *prometheus.CounterVec
	collabLatency *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clusterdesigner_mutations_total",
				Help: "Accepted topology mutations by operation",
			},
			[]string{"op"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clusterdesigner_rejections_total",
				Help: "Rejected operator actions by violated rule",
			},
			[]string{"rule"},
		),
		layoutRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clusterdesigner_layout_runs_total",
				Help: "Auto-layout runs by outcome",
			},
			[]string{"outcome"},
		),
		collaborator: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clusterdesigner_collaborator_requests_total",
				Help: "Save, load, and export requests by result",
			},
			[]string{"op", "result"},
		),
		collabLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "clusterdesigner_collaborator_duration_seconds",
				Help: "Duration of save, load, and export requests",
			},
			[]string{"op"},
		),
	}
	reg.MustRegister(m.mutations, m.rejections, m.layoutRuns, m.collaborator, m.collabLatency)
	return m
}

func (m *Metrics) mutation(op string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op).Inc()
}

func (m *Metrics) rejection(rule string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(rule).Inc()
}

func (m *Metrics) layoutRun(outcome string) {
	if m == nil {
		return
	}
	m.layoutRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) collaboratorCall(op, result string, started time.Time) {
	if m == nil {
		return
	}
	m.collaborator.WithLabelValues(op, result).Inc()
	m.collabLatency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}
