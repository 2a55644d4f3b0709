package inference

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for generationsTotal.
const (
	outcomeSuccess        = "success"
	outcomeUnavailable    = "unavailable"
	outcomeBackendFailure = "backend_failure"
	outcomeTooBusy        = "too_busy"
	outcomeTimeout        = "timeout"
	outcomeCanceled       = "canceled"
)

var (
	generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "foundationsd",
			Subsystem: "inference",
			Name:      "generations_total",
			Help:      "Generation requests by outcome",
		},
		[]string{"outcome"},
	)

	generationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "foundationsd",
			Subsystem: "inference",
			Name:      "generation_duration_seconds",
			Help:      "Time spent inside the backend per generation",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	queueWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "foundationsd",
			Subsystem: "inference",
			Name:      "queue_wait_seconds",
			Help:      "Time spent waiting for the generation slot",
			Buckets:   prometheus.DefBuckets,
		},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "foundationsd",
			Subsystem: "inference",
			Name:      "pending_generations",
			Help:      "Generations waiting for or holding the slot",
		},
	)

	inflight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "foundationsd",
			Subsystem: "inference",
			Name:      "inflight_generations",
			Help:      "Backend calls currently running (0 or 1)",
		},
	)
)
