package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// passesTotal counts retrieval passes by pass name and outcome.
	// Labels: pass (strategy, direct, log, keyword, theme), status (ok, failed, skipped)
	passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rca",
		Subsystem: "retrieval",
		Name:      "passes_total",
		Help:      "Total retrieval passes by pass and status",
	}, []string{"pass", "status"})

	// retrievalDurationSeconds measures end-to-end retrieval latency.
	retrievalDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rca",
		Subsystem: "retrieval",
		Name:      "duration_seconds",
		Help:      "End-to-end retrieval latency by strategy",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"strategy"})

	// strategyTotal counts classifier decisions.
	strategyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rca",
		Subsystem: "retrieval",
		Name:      "strategy_total",
		Help:      "Queries classified per strategy",
	}, []string{"strategy"})

	correlationMatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rca",
		Name:      "correlation_matches_total",
		Help:      "Log entries matched to retrieved code",
	})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rca",
		Name:      "sessions_active",
		Help:      "Conversation sessions currently held in memory",
	})
)

const (
	passOK      = "ok"
	passFailed  = "failed"
	passSkipped = "skipped"
)

func recordPass(pass, status string) {
	passesTotal.WithLabelValues(pass, status).Inc()
}
