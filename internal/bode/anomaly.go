package bode

import (
	"context"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/bode.report/internal/monitoring"
)

// LowAmplitude reports whether a locked sample's output peak is too small
// for its phase to be trusted. The threshold is strict.
func LowAmplitude(s MeasurementSample, threshold float64) bool {
	return !unusable(s) && s.OutputPeak < threshold
}

// reliable reports whether s may take part in the anomaly comparison.
func reliable(s MeasurementSample, threshold float64) bool {
	return !unusable(s) && !LowAmplitude(s, threshold)
}

// FindAnomalies returns, in ascending order, the reliable indices whose
// absolute phase exceeds factor times the absolute mean phase of all other
// reliable indices. An index with nothing to compare against is never an
// anomaly.
func FindAnomalies(samples []MeasurementSample, threshold, factor float64) []int {
	var idx []int
	var phases []float64
	for i, s := range samples {
		if reliable(s, threshold) {
			idx = append(idx, i)
			phases = append(phases, s.PhaseDeg)
		}
	}
	if len(idx) < 2 {
		return nil
	}
	total := floats.Sum(phases)
	others := float64(len(phases) - 1)

	var out []int
	for k, p := range phases {
		mean := (total - p) / others
		if math.Abs(p) > factor*math.Abs(mean) {
			out = append(out, idx[k])
		}
	}
	return out
}

// RetryStop says why the retry coordinator stopped.
type RetryStop string

const (
	RetryNoneFound RetryStop = "none_found" // first pass was clean
	RetryResolved  RetryStop = "resolved"   // anomalies cleared by retries
	RetryUnchanged RetryStop = "unchanged"  // same set as the previous pass
	RetryPassLimit RetryStop = "pass_limit"
)

// RetryReport summarizes the correction passes.
type RetryReport struct {
	Passes         int       `json:"passes"`
	Remeasured     int       `json:"remeasured"`
	Remaining      []int     `json:"remaining"`
	Stop           RetryStop `json:"stop"`
	LoweredTrigger bool      `json:"lowered_trigger"`
}

// RetryCoordinator re-measures anomalous indices after the first pass.
type RetryCoordinator struct {
	sc      *SweepContext
	scope   scopeIO
	sampler Measurer
	// OnPass, if set, is called after every correction pass with the indices
	// that were re-measured.
	OnPass func(pass int, indices []int)
}

// NewRetryCoordinator returns a coordinator re-measuring through m.
func NewRetryCoordinator(sc *SweepContext, m Measurer) *RetryCoordinator {
	return &RetryCoordinator{sc: sc, scope: scopeIO{dev: sc.Scope}, sampler: m}
}

// Run performs up to Config.MaxRetryPasses correction passes. Before the
// first one the trigger level is lowered once. It stops early when no
// anomaly is left or when a pass flags exactly the previous pass's set.
func (rc *RetryCoordinator) Run(ctx context.Context) (RetryReport, error) {
	cfg := rc.sc.Config
	var report RetryReport
	var prev []int
	for {
		set := FindAnomalies(rc.sc.Samples, cfg.LowAmplitudeThreshold, cfg.AnomalyFactor)
		switch {
		case len(set) == 0:
			report.Stop = RetryResolved
			if report.Passes == 0 {
				report.Stop = RetryNoneFound
			}
			return report, nil
		case report.Passes > 0 && slices.Equal(set, prev):
			report.Stop = RetryUnchanged
			report.Remaining = set
			return report, nil
		case report.Passes >= cfg.MaxRetryPasses:
			report.Stop = RetryPassLimit
			report.Remaining = set
			return report, nil
		}

		if !report.LoweredTrigger {
			level := roundTo(rc.sc.ExpectedPeak()*cfg.LoweredTriggerFraction, 1)
			if err := rc.scope.setFloat(ctx, SettingTriggerLevel, level); err != nil {
				return report, err
			}
			report.LoweredTrigger = true
		}

		monitoring.Logf("retry pass %d: re-measuring %d anomalous point(s) %v", report.Passes+1, len(set), set)
		for _, i := range set {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if _, err := rc.sampler.Measure(ctx, i); err != nil {
				return report, err
			}
			report.Remeasured++
		}
		report.Passes++
		monitoring.RetryPasses.Inc()
		if rc.OnPass != nil {
			rc.OnPass(report.Passes, set)
		}
		prev = set
	}
}
