package services

import "github.com/prometheus/client_golang/prometheus"

// BackendBuckets covers backend latencies from 50ms (register) up to several
// minutes (video processing on CPU).
var BackendBuckets = []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 180, 600}

var (
	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reid_backend_requests_total",
			Help: "Requests sent to the re-identification backend",
		},
		[]string{"op", "status"},
	)

	BackendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reid_backend_latency_seconds",
			Help:    "Backend call latency",
			Buckets: BackendBuckets,
		},
		[]string{"op"},
	)

	// ReconciliationsTotal counts asynchronous registration outcomes by entity
	// kind (video, target) and outcome (ready, failed, discarded).
	ReconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reid_reconciliations_total",
			Help: "Registration reconciliations",
		},
		[]string{"kind", "outcome"},
	)

	StoreEntities = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reid_store_entities",
			Help: "Entities held in the session stores",
		},
		[]string{"store"},
	)

	ResultPairs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reid_result_pairs",
			Help: "(video, target) pairs held in the result index",
		},
	)
)

func init() {
	prometheus.MustRegister(
		BackendRequestsTotal,
		BackendLatency,
		ReconciliationsTotal,
		StoreEntities,
		ResultPairs,
	)
}

// statusLabel maps an outcome to a low cardinality label value.
func statusLabel(status int, err error) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case err != nil:
		return "error"
	default:
		return "ok"
	}
}
