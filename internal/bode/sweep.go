package bode

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/bode.report/internal/monitoring"
	"github.com/banshee-data/bode.report/internal/timeutil"
)

// Stage identifies where a sweep is.
type Stage string

const (
	StageSetup    Stage = "setup"
	StageSweeping Stage = "sweeping"
	StageRetrying Stage = "retrying"
	StageRestore  Stage = "restoring"
	StageDone     Stage = "done"
	StageFailed   Stage = "failed"
)

// Progress is reported to a Sweeper's OnProgress hook.
type Progress struct {
	RunID uuid.UUID `json:"run_id"`
	Stage Stage     `json:"stage"`
	Index int       `json:"index"`
	Total int       `json:"total"`
	Point *Point    `json:"point,omitempty"`
	Pass  int       `json:"pass,omitempty"`
	Err   string    `json:"error,omitempty"`
}

// Sweeper runs one complete frequency-response measurement.
type Sweeper struct {
	Plan      SweepPlan
	Amplitude float64 // stimulus, Vpp
	Config    Config
	Scope     AcquisitionDevice
	Generator StimulusDevice
	// Keeper, if set, snapshots the scope settings before the sweep and
	// restores them afterwards, also when the sweep fails.
	Keeper SettingsKeeper
	Clock  timeutil.Clock
	// OnProgress, if set, is called synchronously from the sweep goroutine.
	OnProgress func(Progress)
}

// Run validates the plan, measures every point in ascending order, retries
// anomalies and returns the final result. Device failures abort the run
// with a *DeviceCommError after a best-effort settings restore.
func (s *Sweeper) Run(ctx context.Context) (*SweepResult, error) {
	sc, err := NewSweepContext(s.Plan, s.Amplitude, s.Config, s.Scope, s.Generator, s.Clock)
	if err != nil {
		return nil, err
	}
	res := &SweepResult{
		RunID:     sc.RunID,
		Plan:      sc.Plan,
		Amplitude: sc.Amplitude,
		StartedAt: sc.Clock.Now(),
	}

	var snap Snapshot
	if s.Keeper != nil {
		if snap, err = s.Keeper.Snapshot(ctx); err != nil {
			return nil, fmt.Errorf("snapshot scope settings: %w", err)
		}
		monitoring.Debugf("saved %d scope settings", len(snap))
	}

	runErr := s.run(ctx, sc, res)

	if s.Keeper != nil {
		s.report(Progress{RunID: sc.RunID, Stage: StageRestore, Total: len(sc.Points)})
		// Restore even when ctx was cancelled.
		if rerr := s.Keeper.Restore(context.WithoutCancel(ctx), snap); rerr != nil {
			if runErr == nil {
				runErr = fmt.Errorf("restore scope settings: %w", rerr)
			} else {
				monitoring.Logf("restore scope settings after failure: %v", rerr)
			}
		}
	}

	res.CompletedAt = sc.Clock.Now()
	if runErr != nil {
		s.report(Progress{RunID: sc.RunID, Stage: StageFailed, Total: len(sc.Points), Err: runErr.Error()})
		return res, runErr
	}
	s.report(Progress{RunID: sc.RunID, Stage: StageDone, Index: len(sc.Points), Total: len(sc.Points)})
	return res, nil
}

func (s *Sweeper) run(ctx context.Context, sc *SweepContext, res *SweepResult) error {
	total := len(sc.Points)
	s.report(Progress{RunID: sc.RunID, Stage: StageSetup, Total: total})

	if err := s.prepareGenerator(ctx, sc); err != nil {
		return err
	}
	if err := PrepareScope(ctx, sc); err != nil {
		return err
	}
	if err := timeutil.Wait(ctx, sc.Clock, sc.Config.FixedSettleDelay); err != nil {
		return err
	}

	sampler := NewSampler(sc)
	for n, pt := range sc.Points {
		if err := ctx.Err(); err != nil {
			res.Points = measuredPoints(sc, n)
			return err
		}
		sample, err := sampler.Measure(ctx, pt.Index)
		if err != nil {
			res.Points = measuredPoints(sc, n)
			return fmt.Errorf("measure index %d (%g Hz): %w", pt.Index, pt.Freq, err)
		}
		p := Aggregate([]FrequencyPoint{pt}, []MeasurementSample{sample}, nil, sc.Config)[0]
		s.report(Progress{RunID: sc.RunID, Stage: StageSweeping, Index: pt.Index + 1, Total: total, Point: &p})
	}

	rc := NewRetryCoordinator(sc, sampler)
	rc.OnPass = func(pass int, indices []int) {
		s.report(Progress{RunID: sc.RunID, Stage: StageRetrying, Index: len(indices), Total: total, Pass: pass})
	}
	report, err := rc.Run(ctx)
	res.Retry = report
	res.Points = Aggregate(sc.Points, sc.Samples, report.Remaining, sc.Config)
	if err != nil {
		return fmt.Errorf("retry anomalies: %w", err)
	}
	if len(report.Remaining) > 0 {
		monitoring.Logf("%d point(s) still anomalous after %d retry pass(es): %v", len(report.Remaining), report.Passes, report.Remaining)
	}
	return nil
}

// measuredPoints aggregates the first n points of an interrupted first
// pass. No anomaly check is made on a partial pass.
func measuredPoints(sc *SweepContext, n int) []Point {
	return Aggregate(sc.Points[:n], sc.Samples[:n], nil, sc.Config)
}

func (s *Sweeper) prepareGenerator(ctx context.Context, sc *SweepContext) error {
	if err := sc.Generator.SetWaveform(ctx, WaveformSine); err != nil {
		return asDeviceErr("generator", "set waveform", "", err)
	}
	if err := sc.Generator.SetAmplitude(ctx, sc.Amplitude); err != nil {
		return asDeviceErr("generator", "set amplitude", "", err)
	}
	return nil
}

func (s *Sweeper) report(p Progress) {
	if s.OnProgress != nil {
		s.OnProgress(p)
	}
}

// PrepareScope puts the scope into the measurement configuration: peak and
// phase measurements with statistics, automatic memory depth, AC coupling
// with fine scale on both channels sized for the stimulus, and an edge
// trigger on the input channel at a fraction of the expected peak.
func PrepareScope(ctx context.Context, sc *SweepContext) error {
	scope := scopeIO{dev: sc.Scope}
	peak := sc.ExpectedPeak()
	scale := roundTo(peak/VerticalDivisions*1.15, 2)
	if scale < sc.Config.MinScale {
		scale = sc.Config.MinScale
	}

	steps := []SettingValue{
		{SettingMeasurements, ValueOn},
		{SettingStatisticDisplay, ValueOn},
		{SettingAcquireMemDepth, ValueAuto},
		{SettingAcquireAverages, fmt.Sprint(sc.Config.Averages)},
		{ChannelCoupling(InputChannel), ValueAC},
		{ChannelCoupling(OutputChannel), ValueAC},
		{ChannelVernier(InputChannel), ValueVernierFine},
		{ChannelVernier(OutputChannel), ValueVernierFine},
		{ChannelScale(InputChannel), formatFloat(scale)},
		{ChannelOffset(InputChannel), formatFloat(-scale * VerticalDivisions / 2)},
		{ChannelScale(OutputChannel), formatFloat(scale)},
		{ChannelOffset(OutputChannel), formatFloat(NewScaleState(scale).Offset)},
		{SettingTriggerMode, ValueEdge},
		{SettingTriggerCoupling, ValueDC},
		{SettingTriggerSweep, ValueNormal},
		{SettingTriggerSource, ChannelSource(InputChannel)},
		{SettingTriggerSlope, ValuePositive},
		{SettingTriggerLevel, formatFloat(roundTo(peak*sc.Config.InitialTriggerFraction, 1))},
		{SettingRun, ValueOn},
	}
	for _, st := range steps {
		if err := scope.set(ctx, st.Setting, st.Value); err != nil {
			return fmt.Errorf("prepare scope: %w", err)
		}
	}
	return nil
}

// IsCancelled reports whether err came from a cancelled or expired context.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
