package bode

import (
	"context"
	"time"

	"github.com/banshee-data/bode.report/internal/monitoring"
	"github.com/banshee-data/bode.report/internal/timeutil"
)

type triggerState int

const (
	triggerIdle triggerState = iota
	triggerAwaiting
	triggerLocked
	triggerTimedOut
)

func (s triggerState) String() string {
	switch s {
	case triggerIdle:
		return "idle"
	case triggerAwaiting:
		return "awaiting_stable_trigger"
	case triggerLocked:
		return "locked"
	case triggerTimedOut:
		return "timed_out"
	}
	return "unknown"
}

type triggerController struct {
	sc    *SweepContext
	scope scopeIO
	state triggerState
}

// LoweredLevel is the trigger level used once the normal level failed to
// lock: a fraction of the expected peak, rounded to 0.1 V.
func (t *triggerController) LoweredLevel() float64 {
	return roundTo(t.sc.ExpectedPeak()*t.sc.Config.LoweredTriggerFraction, 1)
}

// Acquire waits for a stable trigger. Halfway to deadline it switches the
// sweep to auto once; at deadline it goes back to normal sweep with a lowered
// level once, extending the deadline by half. A status other than "wait" must
// hold across the grace period to count as locked.
func (t *triggerController) Acquire(ctx context.Context, deadline time.Duration) (TriggerOutcome, error) {
	cfg := t.sc.Config
	clock := t.sc.Clock
	if deadline <= 0 {
		deadline = cfg.TriggerPollInterval
	}

	if err := t.scope.set(ctx, SettingTriggerMode, ValueEdge); err != nil {
		return TimedOut, err
	}
	if err := t.scope.set(ctx, SettingTriggerSweep, ValueNormal); err != nil {
		return TimedOut, err
	}
	t.state = triggerAwaiting

	start := clock.Now()
	limit := deadline
	autoTried, loweredTried := false, false
	for {
		status, err := t.status(ctx)
		if err != nil {
			return TimedOut, err
		}
		if status != StatusWait {
			if err := timeutil.Wait(ctx, clock, cfg.TriggerGrace); err != nil {
				return TimedOut, err
			}
			if status, err = t.status(ctx); err != nil {
				return TimedOut, err
			}
			if status != StatusWait {
				t.state = triggerLocked
				return Locked, nil
			}
		}

		elapsed := clock.Since(start)
		switch {
		case !autoTried && elapsed > deadline/2:
			autoTried = true
			monitoring.Debugf("trigger: no lock after %s, trying auto sweep", elapsed)
			monitoring.TriggerEscalations.WithLabelValues("auto_sweep").Inc()
			if err := t.scope.set(ctx, SettingTriggerSweep, ValueAuto); err != nil {
				return TimedOut, err
			}
		case !loweredTried && elapsed > deadline:
			loweredTried = true
			limit = deadline + deadline/2
			level := t.LoweredLevel()
			monitoring.Debugf("trigger: no lock after %s, lowering level to %g V", elapsed, level)
			monitoring.TriggerEscalations.WithLabelValues("lowered_level").Inc()
			if err := t.scope.set(ctx, SettingTriggerSweep, ValueNormal); err != nil {
				return TimedOut, err
			}
			if err := t.scope.setFloat(ctx, SettingTriggerLevel, level); err != nil {
				return TimedOut, err
			}
		case loweredTried && elapsed > limit:
			t.state = triggerTimedOut
			return TimedOut, nil
		}

		if err := timeutil.Wait(ctx, clock, cfg.TriggerPollInterval); err != nil {
			return TimedOut, err
		}
	}
}

func (t *triggerController) status(ctx context.Context) (string, error) {
	raw, err := t.scope.get(ctx, SettingTriggerStatus)
	if err != nil {
		return "", err
	}
	return statusString(raw), nil
}
