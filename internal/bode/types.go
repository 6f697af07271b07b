package bode

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Spacing selects how the frequency plan distributes its points.
type Spacing string

const (
	SpacingLinear Spacing = "linear"
	SpacingLog    Spacing = "log"
)

// SweepPlan describes the frequency range of one sweep. It is immutable once
// built; Frequencies validates it.
type SweepPlan struct {
	StartFreq float64 `json:"start_freq"`
	EndFreq   float64 `json:"end_freq"`
	StepCount int     `json:"step_count"`
	Spacing   Spacing `json:"spacing"`
}

// FrequencyPoint is one entry of the generated plan.
type FrequencyPoint struct {
	Index int     `json:"index"`
	Freq  float64 `json:"freq_hz"`
}

// ScaleState is the vertical configuration of one scope channel.
type ScaleState struct {
	Scale             float64 `json:"scale"`
	Offset            float64 `json:"offset"`
	VerticalDivisions int     `json:"vertical_divisions"`
}

// NewScaleState returns the state for scale with the reference placed near
// the bottom of the display, so only the positive half wave is visible.
func NewScaleState(scale float64) ScaleState {
	return ScaleState{
		Scale:             scale,
		Offset:            bottomOffset(scale),
		VerticalDivisions: VerticalDivisions,
	}
}

func bottomOffset(scale float64) float64 {
	return -scale * VerticalDivisions / 2 * 0.99
}

// TriggerOutcome is the result of waiting for a stable trigger.
type TriggerOutcome int

const (
	Locked TriggerOutcome = iota
	TimedOut
)

func (o TriggerOutcome) String() string {
	switch o {
	case Locked:
		return "locked"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("TriggerOutcome(%d)", int(o))
	}
}

// MarshalText encodes the outcome by name.
func (o TriggerOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// MeasurementSample is the atomic result of measuring one frequency index.
// A retry replaces the whole sample.
type MeasurementSample struct {
	InputPeak         float64        `json:"input_peak"`
	OutputPeak        float64        `json:"output_peak"`
	PhaseDeg          float64        `json:"phase_deg"`
	VerticalScaleUsed float64        `json:"vertical_scale_used"`
	TriggerOutcome    TriggerOutcome `json:"trigger_outcome"`
}

// Flag classifies how far a point's reading can be trusted.
type Flag int

const (
	FlagNormal Flag = iota
	FlagTriggerError
	FlagLowAmplitudeUnreliablePhase
	FlagAnomaly
)

func (f Flag) String() string {
	switch f {
	case FlagNormal:
		return "normal"
	case FlagTriggerError:
		return "trigger_error"
	case FlagLowAmplitudeUnreliablePhase:
		return "low_amplitude"
	case FlagAnomaly:
		return "anomaly"
	default:
		return fmt.Sprintf("Flag(%d)", int(f))
	}
}

// MarshalText encodes the flag by name.
func (f Flag) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Point is one finalized row of a SweepResult.
type Point struct {
	FrequencyPoint
	MeasurementSample
	GainDB float64 `json:"gain_db"`
	Flag   Flag    `json:"flag"`
}

// Plottable reports whether the point carries a usable gain. Trigger-failed
// points and points with a non-finite gain are never plotted as values.
func (p Point) Plottable() bool {
	if p.Flag == FlagTriggerError {
		return false
	}
	return !math.IsNaN(p.GainDB) && !math.IsInf(p.GainDB, 0)
}

// SweepResult is the terminal artifact of a sweep.
type SweepResult struct {
	RunID       uuid.UUID   `json:"run_id"`
	Plan        SweepPlan   `json:"plan"`
	Amplitude   float64     `json:"amplitude_vpp"`
	Points      []Point     `json:"points"`
	Retry       RetryReport `json:"retry"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
}

// Count returns the number of points carrying flag f.
func (r *SweepResult) Count(f Flag) int {
	n := 0
	for _, p := range r.Points {
		if p.Flag == f {
			n++
		}
	}
	return n
}

// MarshalJSON encodes a non-finite gain as null.
func (p Point) MarshalJSON() ([]byte, error) {
	type plain Point
	w := struct {
		plain
		GainDB *float64 `json:"gain_db"`
	}{plain: plain(p)}
	if !math.IsNaN(p.GainDB) && !math.IsInf(p.GainDB, 0) {
		g := p.GainDB
		w.GainDB = &g
	}
	return json.Marshal(w)
}
