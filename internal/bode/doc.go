// Package bode implements the adaptive measurement loop behind an automated
// frequency-response (Bode plot) analysis.
//
// A sweep drives a stimulus generator across a frequency plan and, for every
// point, settles the oscilloscope timebase, converges the output channel's
// vertical scale onto the signal, waits for a stable trigger (escalating the
// trigger strategy when it does not come) and reads back the averaged input
// peak, output peak and relative phase. After the first pass, points whose
// phase is grossly inconsistent with the rest are re-measured a bounded number
// of times. Every point ends up with a gain in dB and a flag describing how
// far its reading can be trusted.
//
// # Usage
//
//	s := &bode.Sweeper{
//	    Plan:      bode.SweepPlan{StartFreq: 10, EndFreq: 100e3, StepCount: 30, Spacing: bode.SpacingLog},
//	    Amplitude: 2, // Vpp
//	    Config:    bode.DefaultConfig(),
//	    Scope:     scope,
//	    Generator: gen,
//	    Keeper:    scope,
//	    Clock:     timeutil.RealClock{},
//	}
//	result, err := s.Run(ctx)
//
// The instruments are reached only through AcquisitionDevice and
// StimulusDevice, so the whole loop runs against simulated instruments in
// tests. All operations are sequential: one session per instrument, strictly
// ask/answer.
package bode
