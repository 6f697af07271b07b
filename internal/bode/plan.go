package bode

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// planDigits is the number of significant digits kept in generated
// frequencies, far below the generator's µHz resolution.
const planDigits = 12

// Frequencies expands plan into exactly StepCount points covering
// [StartFreq, EndFreq]. Log spacing gives equal ratios between neighbours,
// linear spacing equal differences. The endpoints are exact.
func Frequencies(plan SweepPlan) ([]FrequencyPoint, error) {
	if plan.StepCount < 2 {
		return nil, fmt.Errorf("%w: step count %d, need at least 2", ErrInvalidPlan, plan.StepCount)
	}
	if !(plan.StartFreq > 0) || math.IsInf(plan.EndFreq, 0) || math.IsNaN(plan.EndFreq) {
		return nil, fmt.Errorf("%w: start frequency %g must be positive and end finite", ErrInvalidPlan, plan.StartFreq)
	}
	if plan.StartFreq >= plan.EndFreq {
		return nil, fmt.Errorf("%w: start %g must be below end %g", ErrInvalidPlan, plan.StartFreq, plan.EndFreq)
	}

	freqs := make([]float64, plan.StepCount)
	switch plan.Spacing {
	case SpacingLog:
		floats.LogSpan(freqs, plan.StartFreq, plan.EndFreq)
	case SpacingLinear:
		floats.Span(freqs, plan.StartFreq, plan.EndFreq)
	default:
		return nil, fmt.Errorf("%w: unknown spacing %q", ErrInvalidPlan, plan.Spacing)
	}
	for i := range freqs {
		freqs[i] = roundSignificant(freqs[i], planDigits)
	}
	freqs[0] = plan.StartFreq
	freqs[len(freqs)-1] = plan.EndFreq

	points := make([]FrequencyPoint, len(freqs))
	for i, f := range freqs {
		points[i] = FrequencyPoint{Index: i, Freq: f}
	}
	return points, nil
}

// ParseSpacing accepts "linear"/"lin" and "log"/"logarithmic".
func ParseSpacing(s string) (Spacing, error) {
	switch s {
	case "linear", "lin":
		return SpacingLinear, nil
	case "log", "logarithmic":
		return SpacingLog, nil
	}
	return "", fmt.Errorf("%w: unknown spacing %q", ErrInvalidPlan, s)
}

func roundSignificant(v float64, digits int) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	mag := math.Floor(math.Log10(math.Abs(v))) + 1
	return roundTo(v, digits-int(mag))
}
