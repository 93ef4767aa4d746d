// Package metrics exposes Prometheus collectors and per-question JSON
// records for the QA pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	retrievalLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qa_retrieval_latency_ms",
		Help:    "Latency of retrieval path calls in milliseconds",
		Buckets: []float64{10, 25, 50, 75, 100, 150, 200, 300, 500, 800, 1200},
	}, []string{"path"})

	retrievalResults = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qa_retrieval_results",
		Help:    "Number of candidates returned by a retrieval path",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	}, []string{"path"})

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qa_cache_lookups_total",
		Help: "Cache lookups by cache name and outcome",
	}, []string{"cache", "outcome"})

	degradationTier = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qa_degradation_tier_total",
		Help: "Responses served per degradation tier",
	}, []string{"tier"})

	circuitTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qa_circuit_transitions_total",
		Help: "Circuit breaker transitions by dependency and target state",
	}, []string{"dependency", "state"})

	answerConfidence = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qa_answer_confidence",
		Help:    "Confidence distribution of delivered answers",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1.0},
	})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(retrievalLatency, retrievalResults, cacheLookups,
			degradationTier, circuitTransitions, answerConfidence)
	})
}

// ObserveRetrieval records latency and result size for one retrieval path.
func ObserveRetrieval(path string, start time.Time, results int) {
	ensureRegistered()
	retrievalLatency.WithLabelValues(path).Observe(float64(time.Since(start).Milliseconds()))
	retrievalResults.WithLabelValues(path).Observe(float64(results))
}

// IncCacheLookup counts a hit or miss on a named cache.
func IncCacheLookup(cache string, hit bool) {
	ensureRegistered()
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	cacheLookups.WithLabelValues(cache, outcome).Inc()
}

// IncTier counts a response served at the given degradation tier.
func IncTier(tier string) {
	ensureRegistered()
	degradationTier.WithLabelValues(tier).Inc()
}

// IncCircuitTransition counts a breaker state change.
func IncCircuitTransition(dependency, state string) {
	ensureRegistered()
	circuitTransitions.WithLabelValues(dependency, state).Inc()
}

// ObserveConfidence records the confidence of a delivered answer.
func ObserveConfidence(c float64) {
	ensureRegistered()
	answerConfidence.Observe(c)
}
