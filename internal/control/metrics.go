package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle outcomes reported on cycles_total.
const (
	OutcomeWritten   = "written"
	OutcomeUnchanged = "unchanged"
	OutcomeError     = "error"
)

// #region metrics
// Metrics are the Prometheus collectors updated by the loop.
type Metrics struct {
	// Cycles counts RunOnce calls by experiment and outcome.
	Cycles *prometheus.CounterVec
	// Holds counts held cycles by experiment and reason.
	Holds *prometheus.CounterVec
	// MaxDelta observes the largest per-variant weight change of each cycle.
	MaxDelta prometheus.Histogram
}

// NewMetrics registers the loop collectors with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "allocator",
			Subsystem: "control",
			Name:      "cycles_total",
			Help:      "Allocation cycles by outcome",
		}, []string{"experiment", "outcome"}),
		Holds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "allocator",
			Subsystem: "control",
			Name:      "holds_total",
			Help:      "Cycles where guardrails held the previous weights",
		}, []string{"experiment", "reason"}),
		MaxDelta: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "allocator",
			Subsystem: "control",
			Name:      "max_weight_delta",
			Help:      "Largest absolute per-variant weight change per cycle",
			Buckets:   []float64{0, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1},
		}),
	}
}

// #endregion metrics
