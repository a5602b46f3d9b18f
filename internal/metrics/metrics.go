// Package metrics exposes Prometheus collectors for the retrieval pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	retrievalCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "passage_retrieval_calls_total",
		Help: "Retrieval calls by outcome; kind is the error kind for failures",
	}, []string{"status", "kind"})

	retrievalDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "passage_retrieval_duration_seconds",
		Help:    "End-to-end retrieval latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "passage_stage_duration_seconds",
		Help:    "Per-stage retrieval latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	documentsEmbedded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "passage_documents_embedded_total",
		Help: "Texts embedded across all providers",
	})

	embeddingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "passage_embedding_duration_seconds",
		Help:    "Embedding provider call latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	breakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "passage_breaker_transitions_total",
		Help: "Circuit breaker state transitions by target state",
	}, []string{"to"})

	cacheEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "passage_embedding_cache_events_total",
		Help: "Embedding cache hits and misses",
	}, []string{"event"})

	poolInUse = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "passage_pool_in_use",
		Help: "Store connections currently checked out of the pool",
	})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(
			retrievalCalls,
			retrievalDuration,
			stageDuration,
			documentsEmbedded,
			embeddingDuration,
			breakerTransitions,
			cacheEvents,
			poolInUse,
		)
	})
}

// IncRetrieval counts a finished retrieval call. For successes kind is empty.
func IncRetrieval(status, kind string) {
	ensureRegistered()
	retrievalCalls.WithLabelValues(status, kind).Inc()
}

// ObserveRetrieval records end-to-end retrieval latency.
func ObserveRetrieval(d time.Duration) {
	ensureRegistered()
	retrievalDuration.Observe(d.Seconds())
}

// ObserveStage records the latency of one pipeline stage.
func ObserveStage(stage string, d time.Duration) {
	ensureRegistered()
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// AddEmbedded counts texts sent to an embedding provider.
func AddEmbedded(n int) {
	ensureRegistered()
	documentsEmbedded.Add(float64(n))
}

// ObserveEmbedding records the latency of one provider embedding call.
func ObserveEmbedding(d time.Duration) {
	ensureRegistered()
	embeddingDuration.Observe(d.Seconds())
}

// IncBreakerTransition counts a breaker transition into the given state.
func IncBreakerTransition(to string) {
	ensureRegistered()
	breakerTransitions.WithLabelValues(to).Inc()
}

// IncCacheEvent counts an embedding cache hit or miss.
func IncCacheEvent(event string) {
	ensureRegistered()
	cacheEvents.WithLabelValues(event).Inc()
}

// SetPoolInUse reports how many pooled connections are checked out.
func SetPoolInUse(n int) {
	ensureRegistered()
	poolInUse.Set(float64(n))
}

// Collectors exposes all collectors for registration with a custom registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		retrievalCalls,
		retrievalDuration,
		stageDuration,
		documentsEmbedded,
		embeddingDuration,
		breakerTransitions,
		cacheEvents,
		poolInUse,
	}
}
