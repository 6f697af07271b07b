package simulator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/banshee-data/bode.report/internal/bode"
)

// Scale limits of a DS1000Z-class scope.
const (
	MinVerticalScale = 0.001
	MaxVerticalScale = 10
	MinTimebase      = 5e-9
	MaxTimebase      = 50
)

// Bench wires a scope and a generator to a DUT. The zero value is not
// usable; build one with NewBench.
type Bench struct {
	mu sync.Mutex

	dut      DUT
	settings map[bode.Setting]string
	freq     float64
	vpp      float64
	waveform bode.Waveform
	attempts map[float64]int
	writes   []bode.SettingValue

	// CoarseVertical snaps vertical scales to the 1-2-5 ladder instead of
	// accepting fine values.
	CoarseVertical bool

	// NoLock, if set, keeps the trigger in "wait" at freq whatever the
	// sweep mode and level.
	NoLock func(freq float64) bool

	// LockBelowLevel, if set, only lets the trigger lock in normal sweep
	// when the trigger level is at or below the returned voltage.
	LockBelowLevel func(freq float64) float64

	// PhaseGlitch, if set, is added to the averaged phase reading. attempt
	// counts the averaged phase reads at freq, starting at 0.
	PhaseGlitch func(freq float64, attempt int) float64

	// Fail, if set, is consulted before every scope operation; a non-nil
	// error is returned instead of performing it. op is "write" or "query".
	Fail func(op string, s bode.Setting) error

	// GeneratorFail is the generator counterpart of Fail.
	GeneratorFail func(op string) error
}

// NewBench returns a bench with dut connected and the scope in a plausible
// power-on state.
func NewBench(dut DUT) *Bench {
	b := &Bench{
		dut:      dut,
		attempts: make(map[float64]int),
		settings: map[bode.Setting]string{
			bode.SettingAcquireType:                  bode.ValueNormal,
			bode.SettingAcquireAverages:              "2",
			bode.SettingAcquireMemDepth:              bode.ValueAuto,
			bode.SettingTriggerMode:                  bode.ValueEdge,
			bode.SettingTriggerCoupling:              bode.ValueDC,
			bode.SettingTriggerSweep:                 bode.ValueAuto,
			bode.SettingTriggerSource:                bode.ChannelSource(1),
			bode.SettingTriggerSlope:                 bode.ValuePositive,
			bode.SettingTriggerLevel:                 "0",
			bode.SettingTimebaseScale:                "0.001",
			bode.SettingStatisticDisplay:             bode.ValueOff,
			bode.ChannelCoupling(bode.InputChannel):  bode.ValueDC,
			bode.ChannelCoupling(bode.OutputChannel): bode.ValueDC,
			bode.ChannelVernier(bode.InputChannel):   "0",
			bode.ChannelVernier(bode.OutputChannel):  "0",
			bode.ChannelScale(bode.InputChannel):     "1",
			bode.ChannelScale(bode.OutputChannel):    "1",
			bode.ChannelOffset(bode.InputChannel):    "0",
			bode.ChannelOffset(bode.OutputChannel):   "0",
		},
	}
	return b
}

// Scope returns the bench's acquisition device.
func (b *Bench) Scope() *Scope { return &Scope{b: b} }

// Generator returns the bench's stimulus device.
func (b *Bench) Generator() *Generator { return &Generator{b: b} }

// Writes returns every scope write so far, in order.
func (b *Bench) Writes() []bode.SettingValue {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]bode.SettingValue, len(b.writes))
	copy(out, b.writes)
	return out
}

// WritesTo returns the values written to s, in order.
func (b *Bench) WritesTo(s bode.Setting) []string {
	var out []string
	for _, w := range b.Writes() {
		if w.Setting == s {
			out = append(out, w.Value)
		}
	}
	return out
}

// Setting returns the current value of s.
func (b *Bench) Setting(s bode.Setting) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settings[s]
}

// Frequency returns the generator frequency.
func (b *Bench) Frequency() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.freq
}

// Amplitude returns the generator amplitude in Vpp.
func (b *Bench) Amplitude() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.vpp
}

func (b *Bench) float(s bode.Setting) float64 {
	v, _ := strconv.ParseFloat(b.settings[s], 64)
	return v
}

// Scope is the simulated two-channel oscilloscope.
type Scope struct {
	b *Bench
}

func (s *Scope) Write(ctx context.Context, setting bode.Setting, value string) error {
	if err := ctx.Err(); err != nil {
		return &bode.DeviceCommError{Device: "scope", Op: "write", Setting: setting, Err: err}
	}
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		if err := b.Fail("write", setting); err != nil {
			return &bode.DeviceCommError{Device: "scope", Op: "write", Setting: setting, Err: err}
		}
	}
	b.writes = append(b.writes, bode.SettingValue{Setting: setting, Value: value})

	switch setting {
	case bode.SettingRun, bode.SettingStatisticReset, bode.SettingMeasurements:
		return nil
	case bode.SettingTimebaseScale:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return &bode.DeviceCommError{Device: "scope", Op: "write", Setting: setting, Err: err}
		}
		b.settings[setting] = formatFloat(nearest(Ladder125(MinTimebase, MaxTimebase), v))
		return nil
	case bode.ChannelScale(bode.InputChannel), bode.ChannelScale(bode.OutputChannel):
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return &bode.DeviceCommError{Device: "scope", Op: "write", Setting: setting, Err: err}
		}
		b.settings[setting] = formatFloat(b.acceptScale(v))
		return nil
	}
	b.settings[setting] = strings.ToLower(value)
	return nil
}

func (b *Bench) acceptScale(v float64) float64 {
	if b.CoarseVertical {
		return nearest(Ladder125(MinVerticalScale, MaxVerticalScale), v)
	}
	return math.Min(math.Max(v, MinVerticalScale), MaxVerticalScale)
}

func (s *Scope) Query(ctx context.Context, setting bode.Setting) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &bode.DeviceCommError{Device: "scope", Op: "query", Setting: setting, Err: err}
	}
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		if err := b.Fail("query", setting); err != nil {
			return "", &bode.DeviceCommError{Device: "scope", Op: "query", Setting: setting, Err: err}
		}
	}

	switch setting {
	case bode.SettingTriggerStatus:
		return b.triggerStatus(), nil
	case bode.PeakVoltage(bode.InputChannel), bode.AveragedPeakVoltage(bode.InputChannel):
		return formatFloat(b.displayedPeak(bode.InputChannel)), nil
	case bode.PeakVoltage(bode.OutputChannel), bode.AveragedPeakVoltage(bode.OutputChannel):
		return formatFloat(b.displayedPeak(bode.OutputChannel)), nil
	case bode.SettingAveragedPhase:
		_, phase := b.dut.Response(b.freq)
		if b.PhaseGlitch != nil {
			phase += b.PhaseGlitch(b.freq, b.attempts[b.freq])
		}
		b.attempts[b.freq]++
		return formatFloat(phase), nil
	}
	v, ok := b.settings[setting]
	if !ok {
		return "", &bode.DeviceCommError{Device: "scope", Op: "query", Setting: setting, Err: errors.New("unknown setting")}
	}
	return v, nil
}

// triggerStatus mimics TRIGger:STATus?: "wait" without a usable signal,
// "auto" in auto sweep, "td" when a normal-sweep trigger fires.
func (b *Bench) triggerStatus() string {
	if b.vpp == 0 || (b.NoLock != nil && b.NoLock(b.freq)) {
		return bode.StatusWait
	}
	if b.settings[bode.SettingTriggerSweep] == bode.ValueAuto {
		return "auto"
	}
	if b.LockBelowLevel != nil && b.float(bode.SettingTriggerLevel) > b.LockBelowLevel(b.freq) {
		return bode.StatusWait
	}
	return "td"
}

// displayedPeak is the channel's peak voltage, clipped at the top of the
// screen.
func (b *Bench) displayedPeak(ch int) float64 {
	peak := b.vpp / 2
	if ch == bode.OutputChannel {
		gain, _ := b.dut.Response(b.freq)
		peak *= gain
	}
	scale := b.float(bode.ChannelScale(ch))
	offset := b.float(bode.ChannelOffset(ch))
	top := scale*bode.VerticalDivisions/2 - offset
	if peak > top {
		return top
	}
	return peak
}

// Snapshot implements bode.SettingsKeeper.
func (s *Scope) Snapshot(ctx context.Context) (bode.Snapshot, error) {
	var snap bode.Snapshot
	for _, setting := range bode.BackupSettings() {
		v, err := s.Query(ctx, setting)
		if err != nil {
			return nil, err
		}
		snap = append(snap, bode.SettingValue{Setting: setting, Value: v})
	}
	return snap, nil
}

// Restore implements bode.SettingsKeeper.
func (s *Scope) Restore(ctx context.Context, snap bode.Snapshot) error {
	for _, sv := range snap {
		if err := s.Write(ctx, sv.Setting, sv.Value); err != nil {
			return err
		}
	}
	return nil
}

// Generator is the simulated signal generator.
type Generator struct {
	b *Bench
}

func (g *Generator) fail(op string) error {
	if g.b.GeneratorFail == nil {
		return nil
	}
	if err := g.b.GeneratorFail(op); err != nil {
		return &bode.DeviceCommError{Device: "generator", Op: op, Err: err}
	}
	return nil
}

func (g *Generator) SetFrequency(ctx context.Context, hz float64) error {
	g.b.mu.Lock()
	defer g.b.mu.Unlock()
	if err := g.fail("set frequency"); err != nil {
		return err
	}
	if hz <= 0 {
		return &bode.DeviceCommError{Device: "generator", Op: "set frequency", Err: fmt.Errorf("frequency %g out of range", hz)}
	}
	g.b.freq = hz
	return nil
}

func (g *Generator) SetWaveform(ctx context.Context, w bode.Waveform) error {
	g.b.mu.Lock()
	defer g.b.mu.Unlock()
	if err := g.fail("set waveform"); err != nil {
		return err
	}
	g.b.waveform = w
	return nil
}

func (g *Generator) SetAmplitude(ctx context.Context, vpp float64) error {
	g.b.mu.Lock()
	defer g.b.mu.Unlock()
	if err := g.fail("set amplitude"); err != nil {
		return err
	}
	g.b.vpp = vpp
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
