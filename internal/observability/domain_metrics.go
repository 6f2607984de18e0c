package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	questionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_questions_total",
			Help: "Total number of user questions received.",
		},
	)
	generationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_generation_failures_total",
			Help: "Total number of SQL generation calls that failed or returned unusable output.",
		},
	)
	executionFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_execution_failures_total",
			Help: "Total number of generated statements that failed to execute.",
		},
	)
	generationLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_generation_latency_ms",
			Help:    "SQL generation round-trip latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		},
	)
	executionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_execution_latency_ms",
			Help:    "Generated statement execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
	liveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "askdb_live_sessions",
			Help: "Current count of live chat sessions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		questionsTotal,
		generationFailuresTotal,
		executionFailuresTotal,
		generationLatencyMs,
		executionLatencyMs,
		liveSessions,
	)
}

func ObserveQuestion() {
	questionsTotal.Inc()
}

func ObserveGeneration(elapsed time.Duration, failed bool) {
	generationLatencyMs.Observe(float64(elapsed.Milliseconds()))
	if failed {
		generationFailuresTotal.Inc()
	}
}

func ObserveExecution(elapsed time.Duration, failed bool) {
	executionLatencyMs.Observe(float64(elapsed.Milliseconds()))
	if failed {
		executionFailuresTotal.Inc()
	}
}

func SetLiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	liveSessions.Set(float64(count))
}
