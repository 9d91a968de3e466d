// Package metrics records per-run publish outcomes and media actions.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

// Publish outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Metrics holds the Prometheus collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	Publishes       *prometheus.CounterVec
	PublishDuration *prometheus.HistogramVec
	MediaActions    *prometheus.CounterVec
}

// New registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multipost",
			Name:      "publish_total",
			Help:      "Publish attempts by platform and outcome.",
		}, []string{"platform", "outcome"}),
		PublishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "multipost",
			Name:      "publish_duration_seconds",
			Help:      "Time spent adapting media and publishing, per platform.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"platform"}),
		MediaActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multipost",
			Name:      "media_total",
			Help:      "Media files handled during adaptation, by platform and action.",
		}, []string{"platform", "action"}),
	}
	m.registry.MustRegister(m.Publishes, m.PublishDuration, m.MediaActions)
	return m
}

// ObservePublish records one platform outcome. Nil-safe.
func (m *Metrics) ObservePublish(p poster.Platform, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Publishes.WithLabelValues(string(p), outcome).Inc()
	m.PublishDuration.WithLabelValues(string(p)).Observe(elapsed.Seconds())
}

// MediaAction counts one adaptation decision.
func (m *Metrics) MediaAction(p poster.Platform, action string) {
	if m == nil {
		return
	}
	m.MediaActions.WithLabelValues(string(p), action).Inc()
}

// Registry exposes the gatherer, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile writes every collector in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
