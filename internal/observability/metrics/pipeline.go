package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/resilience"
)

// PipelineMetrics observes the upload pipeline, the upload scheduler and
// the reasoning client.
type PipelineMetrics struct {
	service string

	uploadsTotal       *prometheus.CounterVec
	uploadDuration     *prometheus.HistogramVec
	stageDuration      *prometheus.HistogramVec
	enhancementsTotal  *prometheus.CounterVec
	queueRunning       prometheus.Gauge
	queuePending       prometheus.Gauge
	queueWait          prometheus.Histogram
	queueFinishedTotal *prometheus.CounterVec
	reasoningCache     *prometheus.CounterVec
	reasoningThrottled *prometheus.CounterVec
	reasoningRetries   *prometheus.CounterVec
	reasoningCalls     *prometheus.CounterVec
	reasoningDuration  *prometheus.HistogramVec
	reasoningTokens    *prometheus.CounterVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	constLabels := prometheus.Labels{"service": service}
	m := &PipelineMetrics{
		service: service,
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docpipe",
			Subsystem: "upload",
			Name:      "total",
			Help:      "Total uploads by status and error code.",
		}, []string{"service", "status", "code"}),
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docpipe",
			Subsystem: "upload",
			Name:      "duration_seconds",
			Help:      "Upload pipeline duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"service", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docpipe",
			Subsystem: "upload",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each upload stage in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "stage"}),
		enhancementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docpipe",
			Subsystem: "upload",
			Name:      "enhancements_total",
			Help:      "Enhancement decisions and outcomes.",
		}, []string{"service", "outcome"}),
		queueRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "docpipe",
			Subsystem:   "queue",
			Name:        "running",
			Help:        "Uploads currently running.",
			ConstLabels: constLabels,
		}),
		queuePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "docpipe",
			Subsystem:   "queue",
			Name:        "pending",
			Help:        "Uploads waiting for a slot.",
			ConstLabels: constLabels,
		}),
		queueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "docpipe",
			Subsystem:   "queue",
			Name:        "wait_seconds",
			Help:        "Delay between enqueueing an upload and its start.",
			Buckets:     []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
			ConstLabels: constLabels,
		}),
		queueFinishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docpipe",
			Subsystem: "queue",
			Name:      "items_finished_total",
			Help:      "Queue items reaching a terminal state.",
		}, []string{"service", "state"}),
		reasoningCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docpipe",
			Subsystem: "reasoning",
			Name:      "cache_lookups_total",
			Help:      "Reasoning cache lookups by result.",
		}, []string{"service", "client", "result"}),
		reasoningThrottled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docpipe",
			Subsystem: "reasoning",
			Name:      "throttled_total",
			Help:      "Calls rejected by the local rate limiter.",
		}, []string{"service", "client"}),
		reasoningRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docpipe",
			Subsystem: "reasoning",
			Name:      "retries_total",
			Help:      "Retries scheduled by error code.",
		}, []string{"service", "client", "code"}),
		reasoningCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docpipe",
			Subsystem: "reasoning",
			Name:      "calls_total",
			Help:      "Reasoning calls by final error code.",
		}, []string{"service", "client", "code"}),
		reasoningDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docpipe",
			Subsystem: "reasoning",
			Name:      "call_duration_seconds",
			Help:      "Reasoning call duration including retries.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"service", "client"}),
		reasoningTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docpipe",
			Subsystem: "reasoning",
			Name:      "tokens_total",
			Help:      "Token usage by direction.",
		}, []string{"service", "direction", "model"}),
	}

	registerer.MustRegister(
		m.uploadsTotal,
		m.uploadDuration,
		m.stageDuration,
		m.enhancementsTotal,
		m.queueRunning,
		m.queuePending,
		m.queueWait,
		m.queueFinishedTotal,
		m.reasoningCache,
		m.reasoningThrottled,
		m.reasoningRetries,
		m.reasoningCalls,
		m.reasoningDuration,
		m.reasoningTokens,
	)
	return m
}

func (m *PipelineMetrics) ObserveStage(stage domain.Stage, elapsed time.Duration) {
	m.stageDuration.WithLabelValues(m.service, string(stage)).Observe(elapsed.Seconds())
}

func (m *PipelineMetrics) ObserveUpload(status domain.UploadStatus, code domain.ErrorCode, elapsed time.Duration) {
	codeLabel := string(code)
	if codeLabel == "" {
		codeLabel = "none"
	}
	m.uploadsTotal.WithLabelValues(m.service, string(status), codeLabel).Inc()
	m.uploadDuration.WithLabelValues(m.service, string(status)).Observe(elapsed.Seconds())
}

func (m *PipelineMetrics) ObserveEnhancement(outcome string) {
	m.enhancementsTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *PipelineMetrics) ObserveQueue(running, pending int) {
	m.queueRunning.Set(float64(running))
	m.queuePending.Set(float64(pending))
}

func (m *PipelineMetrics) ObserveItemStarted(waited time.Duration) {
	if waited < 0 {
		return
	}
	m.queueWait.Observe(waited.Seconds())
}

func (m *PipelineMetrics) ObserveItemFinished(state domain.ItemState) {
	m.queueFinishedTotal.WithLabelValues(m.service, string(state)).Inc()
}

func (m *PipelineMetrics) ObserveCache(client string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.reasoningCache.WithLabelValues(m.service, client, result).Inc()
}

func (m *PipelineMetrics) ObserveThrottled(client string) {
	m.reasoningThrottled.WithLabelValues(m.service, client).Inc()
}

func (m *PipelineMetrics) ObserveRetry(client string, event resilience.RetryEvent) {
	m.reasoningRetries.WithLabelValues(m.service, client, string(domain.CodeOf(event.Err))).Inc()
}

func (m *PipelineMetrics) ObserveCall(client string, code domain.ErrorCode, elapsed time.Duration) {
	codeLabel := string(code)
	if codeLabel == "" {
		codeLabel = "none"
	}
	m.reasoningCalls.WithLabelValues(m.service, client, codeLabel).Inc()
	m.reasoningDuration.WithLabelValues(m.service, client).Observe(elapsed.Seconds())
}

func (m *PipelineMetrics) ObserveTokens(model string, input, output int) {
	if model == "" {
		model = "unknown"
	}
	if input > 0 {
		m.reasoningTokens.WithLabelValues(m.service, "in", model).Add(float64(input))
	}
	if output > 0 {
		m.reasoningTokens.WithLabelValues(m.service, "out", model).Add(float64(output))
	}
}
