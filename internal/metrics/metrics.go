// Package metrics defines the Prometheus collectors for the engine.
// Registration is explicit from main; there is no init().
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TransportRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raglet",
			Name:      "transport_requests_total",
			Help:      "Total HTTP attempts by outcome",
		},
		[]string{"kind", "outcome"}, // kind: "request" / "stream"
	)

	TransportRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "raglet",
			Name:      "transport_retries_total",
			Help:      "Total retry attempts scheduled after non-200 responses",
		},
	)

	TransportRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "raglet",
			Name:      "transport_request_duration_seconds",
			Help:      "HTTP attempt duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	StreamStallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "raglet",
			Name:      "stream_stalls_total",
			Help:      "Streams aborted because no bytes arrived within the stall window",
		},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raglet",
			Name:      "embedding_requests_total",
			Help:      "Provider embedding requests by outcome",
		},
		[]string{"provider", "outcome"},
	)

	EmbeddingFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "raglet",
			Name:      "embedding_fallbacks_total",
			Help:      "Chunks embedded with the local vectorizer after a provider failure",
		},
	)

	ChunksIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "raglet",
			Name:      "chunks_ingested_total",
			Help:      "Chunks stored across all ingestions",
		},
	)
)

var registered bool

// Register registers all collectors. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(TransportRequestsTotal)
	prometheus.MustRegister(TransportRetriesTotal)
	prometheus.MustRegister(TransportRequestDuration)
	prometheus.MustRegister(StreamStallsTotal)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingFallbacksTotal)
	prometheus.MustRegister(ChunksIngestedTotal)
	registered = true
}
