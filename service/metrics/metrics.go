package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the node. The struct is
// injected into the components that record metrics; there is no package
// level registry state beyond the default registerer.
type Metrics struct {
	// Admission pipeline
	transactionsAdmittedTotal *prometheus.CounterVec
	transactionsRejectedTotal *prometheus.CounterVec
	transactionsExpiredTotal  *prometheus.CounterVec
	mempoolSize               prometheus.Gauge

	// Quorum and commit
	votesRecordedTotal *prometheus.CounterVec
	commitsTotal       *prometheus.CounterVec
	commitDuration     prometheus.Histogram

	// Storage agent
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP surface
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// Commit event fan-out
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance and registers all collectors. If
// registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		transactionsAdmittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_admitted_total",
				Help: "Total number of transactions admitted to the mempool",
			},
			[]string{"sender"},
		),
		transactionsRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_rejected_total",
				Help: "Total number of transactions rejected before admission, by pipeline stage",
			},
			[]string{"stage"},
		),
		transactionsExpiredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_expired_total",
				Help: "Total number of pending transactions expired before quorum",
			},
			[]string{"sender"},
		),
		mempoolSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_mempool_size",
				Help: "Current number of pending transactions in the mempool",
			},
		),
		votesRecordedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_votes_recorded_total",
				Help: "Total number of validator endorsements recorded",
			},
			[]string{"validator"},
		),
		commitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_commits_total",
				Help: "Total number of commit attempts by outcome",
			},
			[]string{"status"},
		),
		commitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ledger_commit_duration_seconds",
				Help:    "Duration of the commit step (persist, nonce advance, pool removal)",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5},
			},
		),
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// RecordAdmission records a transaction entering the mempool.
func (m *Metrics) RecordAdmission(sender string) {
	m.transactionsAdmittedTotal.WithLabelValues(sender).Inc()
}

// RecordRejection records a pre-admission rejection by pipeline stage.
func (m *Metrics) RecordRejection(stage string) {
	m.transactionsRejectedTotal.WithLabelValues(stage).Inc()
}

// RecordExpired records a pending transaction expiring before quorum.
func (m *Metrics) RecordExpired(sender string) {
	m.transactionsExpiredTotal.WithLabelValues(sender).Inc()
}

// SetMempoolSize updates the pool occupancy gauge.
func (m *Metrics) SetMempoolSize(size int) {
	m.mempoolSize.Set(float64(size))
}

// RecordVote records a validator endorsement.
func (m *Metrics) RecordVote(validator string) {
	m.votesRecordedTotal.WithLabelValues(validator).Inc()
}

// RecordCommit records a commit attempt and its duration.
func (m *Metrics) RecordCommit(ok bool, duration float64) {
	status := "success"
	if !ok {
		status = "error"
	}
	m.commitsTotal.WithLabelValues(status).Inc()
	m.commitDuration.Observe(duration)
}

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeClass(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
