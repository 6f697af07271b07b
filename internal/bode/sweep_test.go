package bode_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/bode.report/internal/bode"
	"github.com/banshee-data/bode.report/internal/simulator"
	"github.com/banshee-data/bode.report/internal/timeutil"
)

var lowPass = simulator.LowPass{Corner: 1000, Gain: 1}

func newSweeper(bench *simulator.Bench) (*bode.Sweeper, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	scope := bench.Scope()
	return &bode.Sweeper{
		Plan:      bode.SweepPlan{StartFreq: 10, EndFreq: 100000, StepCount: 5, Spacing: bode.SpacingLog},
		Amplitude: 2,
		Config:    bode.DefaultConfig(),
		Scope:     scope,
		Generator: bench.Generator(),
		Keeper:    scope,
		Clock:     clock,
	}, clock
}

func TestSweeper_LowPass(t *testing.T) {
	bench := simulator.NewBench(lowPass)
	s, clock := newSweeper(bench)

	var stages []bode.Stage
	s.OnProgress = func(p bode.Progress) { stages = append(stages, p.Stage) }

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Points, 5)

	for _, p := range res.Points {
		gain, phase := lowPass.Response(p.Freq)
		assert.Equal(t, bode.FlagNormal, p.Flag, "f=%g", p.Freq)
		assert.InDelta(t, 20*math.Log10(gain), p.GainDB, 1e-9, "f=%g", p.Freq)
		assert.InDelta(t, phase, p.PhaseDeg, 1e-9, "f=%g", p.Freq)
		assert.Equal(t, 1.0, p.InputPeak)
	}
	assert.InDelta(t, -3.01, res.Points[2].GainDB, 0.01)
	assert.Equal(t, bode.RetryNoneFound, res.Retry.Stop)
	assert.Equal(t, res.StartedAt.Add(clock.Elapsed()), res.CompletedAt)

	assert.Equal(t, bode.StageSetup, stages[0])
	assert.Equal(t, bode.StageDone, stages[len(stages)-1])

	// Scope settings are back to their power-on values.
	assert.Equal(t, bode.ValueAuto, bench.Setting(bode.SettingTriggerSweep))
	assert.Equal(t, bode.ValueNormal, bench.Setting(bode.SettingAcquireType))
	assert.Equal(t, "1", bench.Setting(bode.ChannelScale(bode.OutputChannel)))
}

func TestSweeper_ScopeSetup(t *testing.T) {
	bench := simulator.NewBench(lowPass)
	s, _ := newSweeper(bench)
	s.Keeper = nil

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	// 2 Vpp: CH1 at round(1/8*1.15, 2) V/div, trigger at 0.7 V.
	assert.Equal(t, "0.14", bench.WritesTo(bode.ChannelScale(bode.InputChannel))[0])
	assert.Equal(t, []string{"0.7"}, bench.WritesTo(bode.SettingTriggerLevel))
	assert.Equal(t, []string{"4"}, bench.WritesTo(bode.SettingAcquireAverages))
	assert.Equal(t, []string{bode.ValueAC}, bench.WritesTo(bode.ChannelCoupling(bode.OutputChannel)))
	assert.Equal(t, 2.0, bench.Amplitude())
	assert.Equal(t, 100000.0, bench.Frequency())
}

func TestSweeper_TriggerTimeoutPoint(t *testing.T) {
	bench := simulator.NewBench(lowPass)
	bench.NoLock = func(freq float64) bool { return freq == 1000 }
	s, _ := newSweeper(bench)

	res, err := s.Run(context.Background())
	require.NoError(t, err)

	p := res.Points[2]
	assert.Equal(t, bode.FlagTriggerError, p.Flag)
	assert.Equal(t, bode.TimedOut, p.TriggerOutcome)
	assert.False(t, p.Plottable())
	assert.NotEqual(t, 0.0, p.GainDB)
	assert.Equal(t, s.Config.DefaultScale, p.VerticalScaleUsed)
	assert.Equal(t, 1, res.Count(bode.FlagTriggerError))
	assert.Equal(t, 4, res.Count(bode.FlagNormal))
}

func TestSweeper_TransientGlitchRetried(t *testing.T) {
	bench := simulator.NewBench(lowPass)
	bench.PhaseGlitch = func(freq float64, attempt int) float64 {
		if freq == 1000 && attempt == 0 {
			return 5000
		}
		return 0
	}
	s, _ := newSweeper(bench)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, bode.RetryResolved, res.Retry.Stop)
	assert.Equal(t, 1, res.Retry.Passes)
	assert.True(t, res.Retry.LoweredTrigger)
	assert.Equal(t, bode.FlagNormal, res.Points[2].Flag)
	assert.InDelta(t, -45, res.Points[2].PhaseDeg, 1e-9)
	// Initial level, then the lowered level before the retry.
	assert.Equal(t, []string{"0.7", "0.2"}, bench.WritesTo(bode.SettingTriggerLevel)[:2])
}

func TestSweeper_PersistentGlitchTerminates(t *testing.T) {
	bench := simulator.NewBench(lowPass)
	bench.PhaseGlitch = func(freq float64, attempt int) float64 {
		if freq == 1000 {
			return 5000
		}
		return 0
	}
	s, _ := newSweeper(bench)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Retry.Passes, s.Config.MaxRetryPasses)
	assert.Equal(t, []int{2}, res.Retry.Remaining)
	assert.Equal(t, bode.FlagAnomaly, res.Points[2].Flag)
}

func TestSweeper_InvalidPlanBeforeIO(t *testing.T) {
	bench := simulator.NewBench(lowPass)
	s, _ := newSweeper(bench)
	s.Plan.StepCount = 1

	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, bode.ErrInvalidPlan)
	assert.Empty(t, bench.Writes())
	assert.Equal(t, 0.0, bench.Amplitude())
}

func TestSweeper_DeviceErrorRestores(t *testing.T) {
	bench := simulator.NewBench(lowPass)
	queries := 0
	bench.Fail = func(op string, s bode.Setting) error {
		if op == "query" && s == bode.SettingAveragedPhase {
			queries++
			if queries == 2 {
				return errors.New("VISA timeout")
			}
		}
		return nil
	}
	s, _ := newSweeper(bench)

	res, err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, bode.IsDeviceCommError(err))

	var dce *bode.DeviceCommError
	require.ErrorAs(t, err, &dce)
	assert.Equal(t, bode.SettingAveragedPhase, dce.Setting)
	assert.Contains(t, err.Error(), "measure index 1")
	assert.NotNil(t, res)

	assert.Equal(t, bode.ValueAuto, bench.Setting(bode.SettingTriggerSweep), "settings restored after failure")
}

func TestSweeper_DeviceErrorKeepsMeasuredPoints(t *testing.T) {
	bench := simulator.NewBench(lowPass)
	queries := 0
	bench.Fail = func(op string, s bode.Setting) error {
		if op == "query" && s == bode.SettingAveragedPhase {
			queries++
			if queries == 4 {
				return errors.New("VISA timeout")
			}
		}
		return nil
	}
	s, _ := newSweeper(bench)

	res, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "measure index 3")
	require.NotNil(t, res)
	require.Len(t, res.Points, 3)
	for i, p := range res.Points {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, bode.FlagNormal, p.Flag, "f=%g", p.Freq)
		gain, _ := lowPass.Response(p.Freq)
		assert.InDelta(t, 20*math.Log10(gain), p.GainDB, 1e-9, "f=%g", p.Freq)
	}
}

func TestSweeper_Cancelled(t *testing.T) {
	bench := simulator.NewBench(lowPass)
	s, _ := newSweeper(bench)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.OnProgress = func(p bode.Progress) {
		if p.Stage == bode.StageSweeping && p.Index == 1 {
			cancel()
		}
	}

	res, err := s.Run(ctx)
	require.Error(t, err)
	assert.True(t, bode.IsCancelled(err))
	require.NotNil(t, res)
	assert.Len(t, res.Points, 1, "the point measured before the cancel is kept")
	assert.Equal(t, bode.ValueAuto, bench.Setting(bode.SettingTriggerSweep), "settings restored after cancel")
}

func TestSweeper_CoarseScope(t *testing.T) {
	bench := simulator.NewBench(lowPass)
	bench.CoarseVertical = true
	s, _ := newSweeper(bench)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	for _, p := range res.Points {
		assert.NotEqual(t, bode.FlagTriggerError, p.Flag)
		assert.Contains(t, simulator.Ladder125(simulator.MinVerticalScale, simulator.MaxVerticalScale), p.VerticalScaleUsed)
	}
}
