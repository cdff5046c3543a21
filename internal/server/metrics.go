// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pdiddy/cad-engine/internal/engine"
	"github.com/pdiddy/cad-engine/pkg/types"
)

// Metrics collects generation counters for the /metrics endpoint.
// Per prd005-api R4.1-R4.3.
type Metrics struct {
	registry *prometheus.Registry

	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	attemptsTotal      *prometheus.CounterVec
}

// NewMetrics builds a Metrics backed by its own registry so repeated
// construction (as in tests) never trips duplicate registration.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		generationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Total number of generation requests",
			},
			[]string{"op", "status"},
		),
		generationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "End-to-end generation duration in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"op"},
		),
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Total number of script execution attempts",
			},
			[]string{"status"},
		),
	}
}

// Registry exposes the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordGeneration records one completed generation request.
func (m *Metrics) RecordGeneration(op, status string, duration time.Duration) {
	m.generationsTotal.WithLabelValues(op, status).Inc()
	m.generationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordAttempt records one script execution attempt outcome.
func (m *Metrics) RecordAttempt(status string) {
	m.attemptsTotal.WithLabelValues(status).Inc()
}

// InstrumentRecorder wraps an attempt recorder so every outcome the engine
// persists also increments attempts_total. Session status updates pass
// through untouched.
func (m *Metrics) InstrumentRecorder(next engine.Recorder) engine.Recorder {
	return &recordingRecorder{next: next, metrics: m}
}

type recordingRecorder struct {
	next    engine.Recorder
	metrics *Metrics
}

func (r *recordingRecorder) RecordAttempt(ctx context.Context, att types.Attempt) error {
	r.metrics.RecordAttempt(string(att.Status))
	return r.next.RecordAttempt(ctx, att)
}

func (r *recordingRecorder) SetStatus(ctx context.Context, id string, status types.SessionStatus) error {
	return r.next.SetStatus(ctx, id, status)
}
