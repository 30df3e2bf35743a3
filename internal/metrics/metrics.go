// Package metrics defines Prometheus metrics for Recordkit.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recordkit_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordkit_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordkit_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	RepoOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recordkit_repository_operation_duration_seconds",
			Help:    "Repository operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"entity", "op"},
	)

	AuditEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordkit_audit_entries_total",
			Help: "Audit entries written, by action",
		},
		[]string{"action"},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "recordkit_websocket_connections",
			Help: "Active WebSocket feed connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		RepoOpDuration, AuditEntriesTotal, WSConnections,
	)
}
