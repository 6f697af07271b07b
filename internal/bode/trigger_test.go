package bode

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStatus answers trigger status queries from script, then with
// fallback once the script is exhausted.
func scriptedStatus(script []string, fallback string) func(Setting) (string, bool) {
	return func(s Setting) (string, bool) {
		if s != SettingTriggerStatus {
			return "", false
		}
		if len(script) == 0 {
			return fallback, true
		}
		v := script[0]
		script = script[1:]
		return v, true
	}
}

func TestTrigger_LocksImmediately(t *testing.T) {
	f := newFakeScope()
	f.query = scriptedStatus(nil, "TD\n")
	sc, clock := newTestContext(f, 5)
	tc := &triggerController{sc: sc, scope: scopeIO{dev: f}}

	out, err := tc.Acquire(context.Background(), 4*time.Second)
	require.NoError(t, err)
	assert.Equal(t, Locked, out)
	assert.Equal(t, triggerLocked, tc.state)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, clock.Sleeps())
	assert.Equal(t, []string{ValueNormal}, f.writesTo(SettingTriggerSweep))
	assert.Equal(t, []string{ValueEdge}, f.writesTo(SettingTriggerMode))
}

func TestTrigger_TransientLockIsNotEnough(t *testing.T) {
	f := newFakeScope()
	f.query = scriptedStatus([]string{"td", "wait"}, "td")
	sc, clock := newTestContext(f, 5)
	tc := &triggerController{sc: sc, scope: scopeIO{dev: f}}

	out, err := tc.Acquire(context.Background(), 4*time.Second)
	require.NoError(t, err)
	assert.Equal(t, Locked, out)
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond,
		100 * time.Millisecond,
		500 * time.Millisecond,
	}, clock.Sleeps())
}

func TestTrigger_EscalatesThenTimesOut(t *testing.T) {
	f := newFakeScope()
	f.query = scriptedStatus(nil, "wait")
	sc, clock := newTestContext(f, 5)
	tc := &triggerController{sc: sc, scope: scopeIO{dev: f}}

	out, err := tc.Acquire(context.Background(), 4*time.Second)
	require.NoError(t, err)
	assert.Equal(t, TimedOut, out)
	assert.Equal(t, triggerTimedOut, tc.state)

	assert.Equal(t, []string{ValueNormal, ValueAuto, ValueNormal}, f.writesTo(SettingTriggerSweep))
	assert.Equal(t, []string{"0.2"}, f.writesTo(SettingTriggerLevel))
	// Deadline 4s, extended by 2s after lowering the level.
	assert.Equal(t, 6100*time.Millisecond, clock.Elapsed())
}

func TestTrigger_LocksAfterLoweredLevel(t *testing.T) {
	f := newFakeScope()
	f.query = func(s Setting) (string, bool) {
		if s != SettingTriggerStatus {
			return "", false
		}
		level, ok := f.values[SettingTriggerLevel]
		if ok && level == "0.2" {
			return "td", true
		}
		return "wait", true
	}
	sc, _ := newTestContext(f, 5)
	tc := &triggerController{sc: sc, scope: scopeIO{dev: f}}

	out, err := tc.Acquire(context.Background(), 4*time.Second)
	require.NoError(t, err)
	assert.Equal(t, Locked, out)
	assert.Equal(t, 0.2, tc.LoweredLevel())
}

func TestTrigger_AutoSweepLocks(t *testing.T) {
	f := newFakeScope()
	f.query = func(s Setting) (string, bool) {
		if s != SettingTriggerStatus {
			return "", false
		}
		if f.values[SettingTriggerSweep] == ValueAuto {
			return "AUTO", true
		}
		return "WAIT", true
	}
	sc, clock := newTestContext(f, 5)
	tc := &triggerController{sc: sc, scope: scopeIO{dev: f}}

	out, err := tc.Acquire(context.Background(), 4*time.Second)
	require.NoError(t, err)
	assert.Equal(t, Locked, out)
	assert.Equal(t, []string{ValueNormal, ValueAuto}, f.writesTo(SettingTriggerSweep))
	assert.Less(t, clock.Elapsed(), 4*time.Second)
}

func TestTrigger_Cancelled(t *testing.T) {
	f := newFakeScope()
	f.query = scriptedStatus(nil, "wait")
	sc, _ := newTestContext(f, 5)
	tc := &triggerController{sc: sc, scope: scopeIO{dev: f}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tc.Acquire(ctx, 4*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
