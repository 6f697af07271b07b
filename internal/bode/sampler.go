package bode

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/banshee-data/bode.report/internal/monitoring"
	"github.com/banshee-data/bode.report/internal/timeutil"
)

// Measurer measures one frequency index and stores the sample in the sweep
// context.
type Measurer interface {
	Measure(ctx context.Context, index int) (MeasurementSample, error)
}

// Sampler performs the full per-point measurement: frequency, timebase,
// vertical autotune, trigger and averaged readout.
type Sampler struct {
	sc        *SweepContext
	scope     scopeIO
	timebase  *timebaseController
	autotune  *autotuner
	trigger   *triggerController
	lastTrace MeasureTrace
}

// MeasureTrace records the intermediate values of the most recent Measure
// call for logging and progress reporting.
type MeasureTrace struct {
	Index       int
	Timebase    float64
	SettleDelay time.Duration
	Autotune    AutotuneOutcome
}

// NewSampler returns a Sampler bound to sc.
func NewSampler(sc *SweepContext) *Sampler {
	scope := scopeIO{dev: sc.Scope}
	return &Sampler{
		sc:       sc,
		scope:    scope,
		timebase: &timebaseController{scope: scope},
		autotune: &autotuner{sc: sc, scope: scope},
		trigger:  &triggerController{sc: sc, scope: scope},
	}
}

// LastTrace returns the trace of the most recent Measure call.
func (s *Sampler) LastTrace() MeasureTrace { return s.lastTrace }

// Measure measures index and replaces any earlier sample for it. The first
// measurement of an index also records its scale in the history.
func (s *Sampler) Measure(ctx context.Context, index int) (MeasurementSample, error) {
	if index < 0 || index >= len(s.sc.Points) {
		return MeasurementSample{}, fmt.Errorf("index %d out of range [0, %d)", index, len(s.sc.Points))
	}
	cfg := s.sc.Config
	pt := s.sc.Points[index]

	if err := s.scope.set(ctx, SettingTriggerSweep, ValueNormal); err != nil {
		return MeasurementSample{}, err
	}
	if err := s.scope.set(ctx, SettingAcquireType, ValueHighRes); err != nil {
		return MeasurementSample{}, err
	}
	if err := s.sc.Generator.SetFrequency(ctx, pt.Freq); err != nil {
		monitoring.DeviceErrors.WithLabelValues("generator").Inc()
		return MeasurementSample{}, asDeviceErr("generator", "set frequency", "", err)
	}

	tb, err := s.timebase.Apply(ctx, pt.Freq, cfg.TimebasePeriods)
	if err != nil {
		return MeasurementSample{}, err
	}
	settle := cfg.SettleDelay(tb)

	tune, err := s.autotune.Converge(ctx, index, settle)
	if err != nil {
		return MeasurementSample{}, err
	}
	s.lastTrace = MeasureTrace{Index: index, Timebase: tb, SettleDelay: settle, Autotune: tune}

	outcome, err := s.trigger.Acquire(ctx, settle)
	if err != nil {
		return MeasurementSample{}, err
	}

	var sample MeasurementSample
	if outcome == TimedOut {
		monitoring.Logf("index %d (%s Hz): trigger timed out", index, strconv.FormatFloat(pt.Freq, 'g', 6, 64))
		sample = MeasurementSample{VerticalScaleUsed: cfg.DefaultScale, TriggerOutcome: TimedOut}
	} else {
		if sample, err = s.readAveraged(ctx, settle); err != nil {
			return MeasurementSample{}, err
		}
		sample.VerticalScaleUsed = tune.Scale
		sample.TriggerOutcome = Locked
	}

	s.sc.Samples[index] = sample
	s.sc.Measured[index] = true
	s.sc.History.Record(index, sample.VerticalScaleUsed)
	monitoring.PointsMeasured.WithLabelValues(outcome.String()).Inc()
	monitoring.Debugf("index %d: f=%g Hz tb=%g s scale=%g V/div in=%g out=%g phase=%g",
		index, pt.Freq, tb, sample.VerticalScaleUsed, sample.InputPeak, sample.OutputPeak, sample.PhaseDeg)
	return sample, nil
}

func (s *Sampler) readAveraged(ctx context.Context, settle time.Duration) (MeasurementSample, error) {
	var m MeasurementSample
	if err := s.scope.set(ctx, SettingStatisticReset, ValueOn); err != nil {
		return m, err
	}
	if err := s.scope.set(ctx, SettingAcquireType, ValueAverage); err != nil {
		return m, err
	}
	if err := timeutil.Wait(ctx, s.sc.Clock, settle); err != nil {
		return m, err
	}
	var err error
	if m.InputPeak, err = s.scope.readFloat(ctx, AveragedPeakVoltage(InputChannel)); err != nil {
		return m, err
	}
	if m.OutputPeak, err = s.scope.readFloat(ctx, AveragedPeakVoltage(OutputChannel)); err != nil {
		return m, err
	}
	if m.PhaseDeg, err = s.scope.readFloat(ctx, SettingAveragedPhase); err != nil {
		return m, err
	}
	return m, nil
}
