// Package feeltech drives a FeelTech FY32xx function generator over its USB
// serial line protocol and implements bode.StimulusDevice.
package feeltech

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/banshee-data/bode.report/internal/bode"
	"github.com/banshee-data/bode.report/internal/monitoring"
	"github.com/banshee-data/bode.report/internal/serialmux"
)

// Output limits of the FY32xx family.
const (
	MaxFrequency = 25e6
	MaxAmplitude = 20.0
)

// Generator is one output channel of a FY32xx.
type Generator struct {
	mux    serialmux.SerialMuxInterface
	prefix string

	// set by Open when the generator owns the serial monitor
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New drives channel (1 or 2) through mux. The caller runs mux.Monitor.
func New(mux serialmux.SerialMuxInterface, channel int) (*Generator, error) {
	switch channel {
	case 1:
		return &Generator{mux: mux, prefix: "WM"}, nil
	case 2:
		return &Generator{mux: mux, prefix: "WF"}, nil
	}
	return nil, fmt.Errorf("feeltech: no output channel %d", channel)
}

// Open opens the serial port at path through factory, starts the line
// monitor and returns a generator for channel. Close stops both.
func Open(ctx context.Context, factory serialmux.SerialPortFactory, path string, opts serialmux.PortOptions, channel int) (*Generator, error) {
	port, err := factory.Open(path, opts)
	if err != nil {
		return nil, &bode.DeviceCommError{Device: "generator", Op: "open", Err: err}
	}
	mux := serialmux.NewSerialMux(port)
	g, err := New(mux, channel)
	if err != nil {
		mux.Close()
		return nil, err
	}

	monitorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g.cancel = cancel
	g.done = make(chan struct{})
	go func() {
		defer close(g.done)
		if err := mux.Monitor(monitorCtx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("feeltech: serial monitor on %s stopped: %v", path, err)
		}
	}()

	if model, err := mux.Ask(ctx, "UMO"); err == nil && model != "" {
		monitoring.Logf("feeltech: connected to %s on %s (%s)", model, path, opts)
	}
	return g, nil
}

// Mux exposes the underlying serial mux, e.g. for the debug console.
func (g *Generator) Mux() serialmux.SerialMuxInterface { return g.mux }

func (g *Generator) ask(ctx context.Context, op, cmd string) error {
	reply, err := g.mux.Ask(ctx, cmd)
	if err != nil {
		return &bode.DeviceCommError{Device: "generator", Op: op, Err: err}
	}
	if reply = strings.TrimSpace(reply); reply != "" {
		monitoring.Debugf("feeltech: %s acknowledged with %q", cmd, reply)
	}
	return nil
}

// SetFrequency sets the output frequency with µHz resolution.
func (g *Generator) SetFrequency(ctx context.Context, hz float64) error {
	if !(hz > 0 && hz <= MaxFrequency) {
		return &bode.DeviceCommError{Device: "generator", Op: "set frequency", Err: fmt.Errorf("frequency %g Hz out of range", hz)}
	}
	micro := int64(math.Round(hz * 1e6))
	return g.ask(ctx, "set frequency", fmt.Sprintf("%sF%014d", g.prefix, micro))
}

// SetWaveform selects the output shape. Only sine is supported.
func (g *Generator) SetWaveform(ctx context.Context, w bode.Waveform) error {
	if w != bode.WaveformSine {
		return &bode.DeviceCommError{Device: "generator", Op: "set waveform", Err: fmt.Errorf("unsupported waveform %s", w)}
	}
	return g.ask(ctx, "set waveform", g.prefix+"W00")
}

// SetAmplitude sets the peak-to-peak output voltage.
func (g *Generator) SetAmplitude(ctx context.Context, vpp float64) error {
	if !(vpp > 0 && vpp <= MaxAmplitude) {
		return &bode.DeviceCommError{Device: "generator", Op: "set amplitude", Err: fmt.Errorf("amplitude %g Vpp out of range", vpp)}
	}
	return g.ask(ctx, "set amplitude", fmt.Sprintf("%sA%.3f", g.prefix, vpp))
}

// Close stops the monitor started by Open and closes the port. Generators
// built with New leave the mux to their owner.
func (g *Generator) Close() error {
	var err error
	g.once.Do(func() {
		if g.cancel == nil {
			return
		}
		err = g.mux.Close()
		g.cancel()
		<-g.done
	})
	return err
}

var _ bode.StimulusDevice = (*Generator)(nil)
