// Package metrics provides Prometheus metrics for the relay.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Pipeline metrics.
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "pipeline",
		Name:      "messages_total",
		Help:      "Inbound messages by terminal outcome.",
	}, []string{"outcome"}) // skipped, delivered, failed, undelivered
	AdmissionRejects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "pipeline",
		Name:      "admission_rejects_total",
		Help:      "Messages rejected at admission, by reason.",
	}, []string{"reason"})
	TranslationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "pipeline",
		Name:      "translations_total",
		Help:      "Successful translations by source (text or ocr).",
	}, []string{"source"})

	// Provider metrics.
	ProviderRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "provider",
		Name:      "requests_total",
		Help:      "Provider calls by provider, operation and result.",
	}, []string{"provider", "op", "result"})
	ProviderLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "relay",
		Subsystem: "provider",
		Name:      "request_duration_seconds",
		Help:      "Provider call latency.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"provider", "op"})
	ProviderOnline = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relay",
		Subsystem: "provider",
		Name:      "online",
		Help:      "Whether the active provider passed its last health check (1) or not (0).",
	}, []string{"provider"})

	// Directory lookup metrics.
	DirectoryLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "directory",
		Name:      "lookups_total",
		Help:      "Directory lookups by kind and result (hit, miss, error).",
	}, []string{"kind", "result"})

	// Config store metrics.
	ConfigWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "store",
		Name:      "writes_total",
		Help:      "Persisted config writes by result.",
	}, []string{"result"})
	ConfigMutations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "store",
		Name:      "mutations_total",
		Help:      "Config mutations applied in memory.",
	})

	// Dashboard metrics.
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "dashboard",
		Name:      "requests_total",
		Help:      "Admin API requests by route and status code.",
	}, []string{"route", "code"})
)

func init() {
	prometheus.MustRegister(
		MessagesTotal,
		AdmissionRejects,
		TranslationsTotal,
		ProviderRequests,
		ProviderLatency,
		ProviderOnline,
		DirectoryLookups,
		ConfigWrites,
		ConfigMutations,
		HTTPRequests,
	)
}
