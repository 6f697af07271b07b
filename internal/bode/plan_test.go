package bode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freqsOf(points []FrequencyPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Freq
	}
	return out
}

func TestFrequencies_LogDecades(t *testing.T) {
	points, err := Frequencies(SweepPlan{StartFreq: 10, EndFreq: 10000, StepCount: 4, Spacing: SpacingLog})
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 100, 1000, 10000}, freqsOf(points))
	for i, p := range points {
		assert.Equal(t, i, p.Index)
	}
}

func TestFrequencies_LogRatiosEqual(t *testing.T) {
	points, err := Frequencies(SweepPlan{StartFreq: 3.3, EndFreq: 250e3, StepCount: 37, Spacing: SpacingLog})
	require.NoError(t, err)
	require.Len(t, points, 37)
	assert.Equal(t, 3.3, points[0].Freq)
	assert.Equal(t, 250e3, points[36].Freq)

	want := points[1].Freq / points[0].Freq
	for i := 2; i < len(points); i++ {
		assert.InEpsilon(t, want, points[i].Freq/points[i-1].Freq, 1e-9, "ratio at %d", i)
	}
}

func TestFrequencies_LinearDifferencesEqual(t *testing.T) {
	points, err := Frequencies(SweepPlan{StartFreq: 100, EndFreq: 1000, StepCount: 10, Spacing: SpacingLinear})
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 200, 300, 400, 500, 600, 700, 800, 900, 1000}, freqsOf(points))
}

func TestFrequencies_Invalid(t *testing.T) {
	tests := []struct {
		name string
		plan SweepPlan
	}{
		{"one step", SweepPlan{StartFreq: 10, EndFreq: 100, StepCount: 1, Spacing: SpacingLog}},
		{"zero steps", SweepPlan{StartFreq: 10, EndFreq: 100, StepCount: 0, Spacing: SpacingLinear}},
		{"start equals end", SweepPlan{StartFreq: 100, EndFreq: 100, StepCount: 5, Spacing: SpacingLog}},
		{"start above end", SweepPlan{StartFreq: 1000, EndFreq: 100, StepCount: 5, Spacing: SpacingLog}},
		{"zero start", SweepPlan{StartFreq: 0, EndFreq: 100, StepCount: 5, Spacing: SpacingLinear}},
		{"unknown spacing", SweepPlan{StartFreq: 1, EndFreq: 100, StepCount: 5, Spacing: "octave"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Frequencies(tt.plan)
			assert.True(t, errors.Is(err, ErrInvalidPlan), "got %v", err)
		})
	}
}

func TestParseSpacing(t *testing.T) {
	for in, want := range map[string]Spacing{"lin": SpacingLinear, "linear": SpacingLinear, "log": SpacingLog, "logarithmic": SpacingLog} {
		got, err := ParseSpacing(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseSpacing("decade")
	assert.ErrorIs(t, err, ErrInvalidPlan)
}
