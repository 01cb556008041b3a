package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "witchcraft_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "witchcraft_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	QuotaChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "witchcraft_quota_checks_total",
			Help: "Total number of quota gate decisions.",
		},
		[]string{"result"},
	)

	UsageEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "witchcraft_usage_events_total",
			Help: "Total number of usage events recorded.",
		},
		[]string{"provider", "outcome"},
	)

	TokensConsumedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "witchcraft_tokens_consumed_total",
			Help: "Total tokens admitted through the quota gate.",
		},
	)

	AlertsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "witchcraft_alerts_created_total",
			Help: "Total number of usage alerts created.",
		},
		[]string{"type"},
	)

	LedgerRolloversTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "witchcraft_ledger_rollovers_total",
			Help: "Total number of ledgers reset by period rollover.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		QuotaChecksTotal,
		UsageEventsTotal,
		TokensConsumedTotal,
		AlertsCreatedTotal,
		LedgerRolloversTotal,
	)
}
