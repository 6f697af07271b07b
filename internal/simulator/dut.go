// Package simulator provides an in-memory measurement bench: a two-channel
// scope, a signal generator and a device under test wired between them. It
// implements the bode device interfaces and is used by --dev mode and tests.
package simulator

import "math"

// DUT is the device under test, described by its frequency response.
type DUT interface {
	// Response returns the linear gain and the phase in degrees at freq.
	Response(freq float64) (gain, phaseDeg float64)
}

// LowPass is a first-order RC low-pass with a pass-band gain.
type LowPass struct {
	Corner float64 // -3 dB frequency, Hz
	Gain   float64 // pass-band linear gain
}

func (l LowPass) Response(freq float64) (float64, float64) {
	r := freq / l.Corner
	return l.Gain / math.Sqrt(1+r*r), -math.Atan(r) * 180 / math.Pi
}

// ResponseFunc adapts a function to DUT.
type ResponseFunc func(freq float64) (gain, phaseDeg float64)

func (f ResponseFunc) Response(freq float64) (float64, float64) { return f(freq) }

// Ladder125 returns the 1-2-5 sequence covering [lo, hi].
func Ladder125(lo, hi float64) []float64 {
	var out []float64
	for decade := math.Floor(math.Log10(lo)); ; decade++ {
		base := math.Pow(10, decade)
		for _, m := range []float64{1, 2, 5} {
			v := m * base
			if v > hi*(1+1e-9) {
				return out
			}
			if v >= lo*(1-1e-9) {
				out = append(out, v)
			}
		}
	}
}

// nearest returns the ladder value closest to v on a log scale.
func nearest(ladder []float64, v float64) float64 {
	if v <= ladder[0] {
		return ladder[0]
	}
	best := ladder[0]
	bestDist := math.Inf(1)
	for _, x := range ladder {
		d := math.Abs(math.Log(v / x))
		if d < bestDist {
			best, bestDist = x, d
		}
	}
	return best
}
