package bode

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/bode.report/internal/timeutil"
)

// fakeScope is a scripted AcquisitionDevice. Writes are stored verbatim and
// echoed back by Query unless a hook answers first.
type fakeScope struct {
	mu      sync.Mutex
	values  map[Setting]string
	writes  []SettingValue
	queries []Setting

	// query, if set, may answer a query before the stored values.
	query func(s Setting) (string, bool)
	// accept, if set, rewrites a written value before it is stored.
	accept func(s Setting, v string) string
	failOn Setting
}

var errFake = errors.New("link down")

func newFakeScope() *fakeScope {
	return &fakeScope{values: make(map[Setting]string)}
}

func (f *fakeScope) Write(_ context.Context, s Setting, v string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s == f.failOn {
		return &DeviceCommError{Device: "scope", Op: "write", Setting: s, Err: errFake}
	}
	f.writes = append(f.writes, SettingValue{Setting: s, Value: v})
	if f.accept != nil {
		v = f.accept(s, v)
	}
	f.values[s] = v
	return nil
}

func (f *fakeScope) Query(_ context.Context, s Setting) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s == f.failOn {
		return "", errFake
	}
	f.queries = append(f.queries, s)
	if f.query != nil {
		if v, ok := f.query(s); ok {
			return v, nil
		}
	}
	v, ok := f.values[s]
	if !ok {
		return "", &DeviceCommError{Device: "scope", Op: "query", Setting: s, Err: errors.New("no value")}
	}
	return v, nil
}

func (f *fakeScope) writesTo(s Setting) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, w := range f.writes {
		if w.Setting == s {
			out = append(out, w.Value)
		}
	}
	return out
}

func (f *fakeScope) float(s Setting) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, _ := strconv.ParseFloat(f.values[s], 64)
	return v
}

type fakeGenerator struct {
	freqs []float64
}

func (g *fakeGenerator) SetFrequency(_ context.Context, hz float64) error {
	g.freqs = append(g.freqs, hz)
	return nil
}
func (g *fakeGenerator) SetWaveform(context.Context, Waveform) error { return nil }
func (g *fakeGenerator) SetAmplitude(context.Context, float64) error { return nil }

func newTestContext(scope AcquisitionDevice, steps int) (*SweepContext, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	sc, err := NewSweepContext(
		SweepPlan{StartFreq: 10, EndFreq: 10000, StepCount: steps, Spacing: SpacingLog},
		2, DefaultConfig(), scope, &fakeGenerator{}, clock)
	if err != nil {
		panic(err)
	}
	return sc, clock
}
