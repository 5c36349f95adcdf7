package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the pipeline's Prometheus metrics on its own registry, so
// tests can build as many collectors as they like.
type Collector struct {
	registry *prometheus.Registry

	Generations        *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	OptimizerChunks    *prometheus.CounterVec
	Jobs               *prometheus.CounterVec
	StreamEvents       *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	generations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total number of artifact generations",
		},
		[]string{"kind", "status"},
	)

	generationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Artifact generation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		},
		[]string{"kind"},
	)

	optimizerChunks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimizer_chunks_total",
			Help:      "Optimized chunks by reduction path",
		},
		[]string{"path"},
	)

	jobs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Generation jobs by terminal status",
		},
		[]string{"status"},
	)

	streamEvents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Streaming relay events sent to clients",
		},
		[]string{"type"},
	)

	registry.MustRegister(
		generations,
		generationDuration,
		optimizerChunks,
		jobs,
		streamEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Collector{
		registry:           registry,
		Generations:        generations,
		GenerationDuration: generationDuration,
		OptimizerChunks:    optimizerChunks,
		Jobs:               jobs,
		StreamEvents:       streamEvents,
	}
}

// RecordGeneration counts one generation and observes its duration.
func (c *Collector) RecordGeneration(kind, status string, duration time.Duration) {
	c.Generations.WithLabelValues(kind, status).Inc()
	c.GenerationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (c *Collector) RecordOptimizerChunks(rule, model, fallback int) {
	c.OptimizerChunks.WithLabelValues("rule").Add(float64(rule))
	c.OptimizerChunks.WithLabelValues("model").Add(float64(model))
	c.OptimizerChunks.WithLabelValues("fallback").Add(float64(fallback))
}

func (c *Collector) RecordJob(status string) {
	c.Jobs.WithLabelValues(status).Inc()
}

func (c *Collector) RecordStreamEvent(eventType string) {
	c.StreamEvents.WithLabelValues(eventType).Inc()
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
