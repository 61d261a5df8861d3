package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localzure_http_requests_total",
			Help: "Total number of HTTP requests by method and status",
		},
		[]string{"method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "localzure_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Key Vault metrics
	SecretsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "localzure_secrets_total",
			Help: "Total number of live secrets across all vaults",
		},
	)

	DeletedSecretsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "localzure_deleted_secrets_total",
			Help: "Total number of soft-deleted secrets awaiting purge",
		},
	)

	// State backend metrics
	StateKeysTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "localzure_state_keys_total",
			Help: "Total number of keys in the state backend by namespace",
		},
		[]string{"namespace"},
	)

	// OAuth metrics
	TokensIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "localzure_tokens_issued_total",
			Help: "Total number of access tokens issued",
		},
	)

	// Snapshot metrics
	SnapshotsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "localzure_snapshots_created_total",
			Help: "Total number of snapshots written",
		},
	)

	SnapshotsRestoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "localzure_snapshots_restored_total",
			Help: "Total number of snapshots restored",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(SecretsTotal)
	prometheus.MustRegister(DeletedSecretsTotal)
	prometheus.MustRegister(StateKeysTotal)
	prometheus.MustRegister(TokensIssuedTotal)
	prometheus.MustRegister(SnapshotsCreatedTotal)
	prometheus.MustRegister(SnapshotsRestoredTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
