package devmode

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records recompilation outcomes.
type Metrics struct {
	recompilations *prometheus.CounterVec
	duration       prometheus.Histogram
	generation     prometheus.Gauge
	errors         prometheus.Gauge
	tags           prometheus.Gauge
}

// NewMetrics registers the dev-mode collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		recompilations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taglet_recompilations_total",
				Help: "Total number of template recompilations by result",
			},
			[]string{"result"},
		),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "taglet_recompilation_duration_seconds",
			Help:    "Template recompilation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		generation: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taglet_registry_generation",
			Help: "Generation of the live template registry",
		}),
		errors: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taglet_compile_errors",
			Help: "Number of errors reported by the last recompilation",
		}),
		tags: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taglet_registry_tags",
			Help: "Number of tags in the live template registry",
		}),
	}
}

func (m *Metrics) observe(start time.Time, success bool, errs int) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.recompilations.WithLabelValues(result).Inc()
	m.duration.Observe(time.Since(start).Seconds())
	m.errors.Set(float64(errs))
}

func (m *Metrics) published(s *Snapshot) {
	if m == nil {
		return
	}
	m.generation.Set(float64(s.Generation))
	m.tags.Set(float64(s.Registry.Len()))
}
