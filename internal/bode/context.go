package bode

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/bode.report/internal/timeutil"
)

// ScaleHistory is the append-only sequence of converged output-channel
// scales, one per frequency index, in index order. Retries never modify it.
type ScaleHistory struct {
	mu     sync.RWMutex
	scales []float64
}

// NewScaleHistory returns an empty history with room for n indices.
func NewScaleHistory(n int) *ScaleHistory {
	return &ScaleHistory{scales: make([]float64, 0, n)}
}

// Record appends scale for index i when i is the next index to be recorded.
// It reports whether the history changed; a re-measured index leaves it as is.
func (h *ScaleHistory) Record(i int, scale float64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i != len(h.scales) {
		return false
	}
	h.scales = append(h.scales, scale)
	return true
}

// At returns the scale recorded for index i.
func (h *ScaleHistory) At(i int) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i < 0 || i >= len(h.scales) {
		return 0, false
	}
	return h.scales[i], true
}

func (h *ScaleHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.scales)
}

// Values returns a copy of the recorded scales.
func (h *ScaleHistory) Values() []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]float64, len(h.scales))
	copy(out, h.scales)
	return out
}

// SweepContext carries everything one sweep shares between components: the
// plan, the devices, the tunables, the scale history and the per-index
// samples. It is owned by a single goroutine.
type SweepContext struct {
	RunID     uuid.UUID
	Plan      SweepPlan
	Points    []FrequencyPoint
	Amplitude float64 // stimulus, Vpp
	Config    Config
	Scope     AcquisitionDevice
	Generator StimulusDevice
	Clock     timeutil.Clock
	History   *ScaleHistory
	Samples   []MeasurementSample
	Measured  []bool
}

// NewSweepContext validates plan and cfg and builds the context for one run.
func NewSweepContext(plan SweepPlan, amplitude float64, cfg Config, scope AcquisitionDevice, gen StimulusDevice, clock timeutil.Clock) (*SweepContext, error) {
	points, err := Frequencies(plan)
	if err != nil {
		return nil, err
	}
	if amplitude <= 0 {
		return nil, fmt.Errorf("stimulus amplitude must be positive, got %g", amplitude)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SweepContext{
		RunID:     uuid.New(),
		Plan:      plan,
		Points:    points,
		Amplitude: amplitude,
		Config:    cfg,
		Scope:     scope,
		Generator: gen,
		Clock:     clock,
		History:   NewScaleHistory(len(points)),
		Samples:   make([]MeasurementSample, len(points)),
		Measured:  make([]bool, len(points)),
	}, nil
}

// ExpectedPeak is the peak voltage of the stimulus, used to size the input
// channel and the trigger level.
func (sc *SweepContext) ExpectedPeak() float64 {
	return sc.Amplitude / 2
}
