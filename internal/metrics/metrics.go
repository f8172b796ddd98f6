// Package metrics exposes Prometheus instrumentation for the voice pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voiceloop"

// Metrics contains all pipeline metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Stage calls, labelled by stage (transcribe, generate, synthesize) and outcome.
	StageRequests *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	// Turns finished, labelled by outcome (ready, degraded, failed, empty, superseded).
	Turns *prometheus.CounterVec

	RecordingDuration prometheus.Histogram
	FramesDropped     prometheus.Counter
	ArtifactErrors    *prometheus.CounterVec
}

// New creates metrics registered on a fresh registry, so tests and multiple
// pipelines in one process never collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		StageRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_requests_total",
			Help:      "Total number of inference stage calls",
		}, []string{"stage", "outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Inference stage latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"stage"}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of conversation turns by outcome",
		}, []string{"outcome"}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_duration_seconds",
			Help:      "Length of finalized recordings in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Audio frames received outside a recording session",
		}),
		ArtifactErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_errors_total",
			Help:      "Failed artifact writes by artifact name",
		}, []string{"artifact"}),
	}
}

// ObserveStage records one stage call.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.StageRequests.WithLabelValues(stage, outcome).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// TurnFinished records a turn outcome.
func (m *Metrics) TurnFinished(outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
}

// Recording records the length of a finalized recording.
func (m *Metrics) Recording(d time.Duration) {
	if m == nil {
		return
	}
	m.RecordingDuration.Observe(d.Seconds())
}

// ArtifactFailed counts a failed artifact write.
func (m *Metrics) ArtifactFailed(name string) {
	if m == nil {
		return
	}
	m.ArtifactErrors.WithLabelValues(name).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
