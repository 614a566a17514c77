package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the retrieval pipeline.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faqd",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "faqd",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faqd",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"model", "type"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faqd",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	EmbeddingTruncationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "faqd",
			Name:      "embedding_truncations_total",
			Help:      "Questions truncated to the embedding token limit",
		},
	)

	RoutingDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faqd",
			Name:      "routing_decisions_total",
			Help:      "Routing outcomes by action",
		},
		[]string{"action"}, // "corpus" / "generated" / "refused"
	)

	SimilarityScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "faqd",
			Name:      "similarity_best_score",
			Help:      "Best similarity score per routed question",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	GenerativeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faqd",
			Name:      "generative_requests_total",
			Help:      "Total number of generative fallback requests",
		},
		[]string{"model", "status"},
	)

	EnrichmentTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faqd",
			Name:      "enrichment_tasks_total",
			Help:      "Enrichment task outcomes",
		},
		[]string{"outcome"}, // "enqueued" / "inserted" / "retried" / "dropped"
	)
)

var registered bool

// Register registers pipeline metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingTokensTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(EmbeddingTruncationsTotal)
	prometheus.MustRegister(RoutingDecisionsTotal)
	prometheus.MustRegister(SimilarityScore)
	prometheus.MustRegister(GenerativeRequestsTotal)
	prometheus.MustRegister(EnrichmentTasksTotal)
	registered = true
}
