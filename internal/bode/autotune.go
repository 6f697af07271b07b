package bode

import (
	"context"
	"time"

	"github.com/banshee-data/bode.report/internal/monitoring"
	"github.com/banshee-data/bode.report/internal/timeutil"
)

// InSafeWindow reports whether peak sits inside [4, 7.9] divisions of scale.
// Both bounds are inclusive.
func InSafeWindow(peak, scale float64) bool {
	return peak >= scale*WindowLowDivisions && peak <= scale*WindowHighDivisions
}

// AutotuneOutcome describes how the vertical autotuner stopped.
type AutotuneOutcome struct {
	Scale      float64 // accepted scale at exit
	Peak       float64 // last peak read
	Iterations int
	InWindow   bool // false when stopped by forced convergence or the cap
}

type autotuner struct {
	sc    *SweepContext
	scope scopeIO
}

// seed returns the starting scale for index i: the default scale for the
// first two indices, then the mean of the two previous converged scales.
func (a *autotuner) seed(i int) float64 {
	if i < 2 {
		return a.sc.Config.DefaultScale
	}
	prev1, ok1 := a.sc.History.At(i - 1)
	prev2, ok2 := a.sc.History.At(i - 2)
	if !ok1 || !ok2 {
		return a.sc.Config.DefaultScale
	}
	return (prev1 + prev2) / 2
}

// setScale writes scale and the matching offset to the output channel and
// returns the accepted scale.
func (a *autotuner) setScale(ctx context.Context, scale float64) (float64, error) {
	if scale < a.sc.Config.MinScale {
		scale = a.sc.Config.MinScale
	}
	accepted, err := a.scope.apply(ctx, ChannelScale(OutputChannel), scale)
	if err != nil {
		return 0, err
	}
	if err := a.scope.setFloat(ctx, ChannelOffset(OutputChannel), NewScaleState(accepted).Offset); err != nil {
		return 0, err
	}
	return accepted, nil
}

// Converge drives the output channel scale onto the signal for index i.
// settle is the per-point settle delay.
func (a *autotuner) Converge(ctx context.Context, i int, settle time.Duration) (AutotuneOutcome, error) {
	cfg := a.sc.Config
	clock := a.sc.Clock
	peakSetting := PeakVoltage(OutputChannel)

	scale, err := a.setScale(ctx, a.seed(i))
	if err != nil {
		return AutotuneOutcome{}, err
	}
	if err := timeutil.Wait(ctx, clock, settle/2); err != nil {
		return AutotuneOutcome{}, err
	}
	peak, err := a.scope.readFloat(ctx, peakSetting)
	if err != nil {
		return AutotuneOutcome{}, err
	}
	scale, err = a.setScale(ctx, roundTo(peak/VerticalDivisions*1.5, 2))
	if err != nil {
		return AutotuneOutcome{}, err
	}

	out := AutotuneOutcome{Scale: scale}
	for out.Iterations < cfg.AutotuneMaxIterations {
		out.Iterations++
		if err := timeutil.Wait(ctx, clock, settle); err != nil {
			return out, err
		}
		if out.Peak, err = a.scope.readFloat(ctx, peakSetting); err != nil {
			return out, err
		}
		if InSafeWindow(out.Peak, out.Scale) {
			out.InWindow = true
			break
		}
		prev := out.Scale
		if out.Scale, err = a.setScale(ctx, roundTo(out.Peak/VerticalDivisions*1.3, 4)); err != nil {
			return out, err
		}
		if out.Scale == prev {
			monitoring.Debugf("autotune index %d: scale stuck at %g V/div, peak %g V", i, out.Scale, out.Peak)
			break
		}
	}
	if !out.InWindow && out.Iterations >= cfg.AutotuneMaxIterations {
		monitoring.Logf("autotune index %d: gave up after %d iterations at %g V/div", i, out.Iterations, out.Scale)
	}
	monitoring.AutotuneIterations.Observe(float64(out.Iterations))
	return out, nil
}
