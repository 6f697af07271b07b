package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PointsMeasured counts completed per-frequency measurements by trigger
	// outcome ("locked" or "timed_out").
	PointsMeasured = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bode_points_measured_total",
		Help: "Per-frequency measurements completed, by trigger outcome.",
	}, []string{"outcome"})

	// AutotuneIterations observes how many rescale iterations the vertical
	// autotuner needed before it stopped.
	AutotuneIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bode_autotune_iterations",
		Help:    "Vertical scale autotune iterations per measurement.",
		Buckets: []float64{0, 1, 2, 3, 4, 6, 8, 12, 16},
	})

	// TriggerEscalations counts trigger remediation steps ("auto_sweep",
	// "lowered_level").
	TriggerEscalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bode_trigger_escalations_total",
		Help: "Trigger remediation steps taken while waiting for a stable trigger.",
	}, []string{"step"})

	// RetryPasses counts anomaly correction passes.
	RetryPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bode_retry_passes_total",
		Help: "Anomaly correction passes run after the first sweep pass.",
	})

	// DeviceErrors counts failed instrument operations by operation.
	DeviceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bode_device_errors_total",
		Help: "Failed instrument write/query operations.",
	}, []string{"op"})
)
