package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the intake side of the worker: decoding ingest
// messages and handing them to the upload scheduler.
type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	ingestTotal    *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec
	ingestBytes    *prometheus.CounterVec
	ingestInFlight prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	m := &WorkerMetrics{
		service:  service,
		registry: prometheus.NewRegistry(),
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docpipe",
			Subsystem: "worker",
			Name:      "ingest_messages_total",
			Help:      "Ingest messages handled by MIME type and status.",
		}, []string{"service", "mime_type", "status"}),
		ingestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docpipe",
			Subsystem: "worker",
			Name:      "ingest_duration_seconds",
			Help:      "Time from message receipt to enqueue, by status.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"service", "status"}),
		ingestBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docpipe",
			Subsystem: "worker",
			Name:      "ingest_bytes_total",
			Help:      "File bytes accepted for processing.",
		}, []string{"service", "mime_type"}),
		ingestInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "docpipe",
			Subsystem:   "worker",
			Name:        "ingest_in_flight",
			Help:        "Ingest messages being handled.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
	}
	m.registry.MustRegister(m.ingestTotal, m.ingestDuration, m.ingestBytes, m.ingestInFlight)
	return m
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registerer lets the pipeline collectors share the worker's /metrics endpoint.
func (m *WorkerMetrics) Registerer() prometheus.Registerer {
	return m.registry
}

func (m *WorkerMetrics) StartIngest() {
	m.ingestInFlight.Inc()
}

// FinishIngest records one handled message. size is ignored on failure.
func (m *WorkerMetrics) FinishIngest(mimeType string, size int, duration time.Duration, err error) {
	m.ingestInFlight.Dec()
	if mimeType == "" {
		mimeType = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	} else {
		m.ingestBytes.WithLabelValues(m.service, mimeType).Add(float64(size))
	}
	m.ingestTotal.WithLabelValues(m.service, mimeType, status).Inc()
	m.ingestDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}
