package bode

import (
	"math"
	"slices"
)

// GainDB returns 20*log10(out/in). in == 0 gives +Inf, NaN or -Inf.
func GainDB(in, out float64) float64 {
	return 20 * math.Log10(out/in)
}

// unusable reports whether s carries no usable reading: the trigger timed
// out, or the scope gave no valid input peak even though it locked.
func unusable(s MeasurementSample) bool {
	return s.TriggerOutcome == TimedOut || !(s.InputPeak > 0)
}

// Classify picks the flag of one sample. TriggerError wins over Anomaly,
// which wins over LowAmplitudeUnreliablePhase. A locked sample without an
// input peak is a TriggerError too.
func Classify(s MeasurementSample, anomalous bool, threshold float64) Flag {
	switch {
	case unusable(s):
		return FlagTriggerError
	case anomalous:
		return FlagAnomaly
	case LowAmplitude(s, threshold):
		return FlagLowAmplitudeUnreliablePhase
	}
	return FlagNormal
}

// Aggregate derives gain and flag for every point. anomalies lists the
// indices still considered anomalous.
func Aggregate(points []FrequencyPoint, samples []MeasurementSample, anomalies []int, cfg Config) []Point {
	out := make([]Point, len(points))
	for i, fp := range points {
		s := samples[i]
		p := Point{
			FrequencyPoint:    fp,
			MeasurementSample: s,
			Flag:              Classify(s, slices.Contains(anomalies, i), cfg.LowAmplitudeThreshold),
		}
		if p.Flag == FlagTriggerError {
			p.GainDB = math.NaN()
		} else {
			p.GainDB = GainDB(s.InputPeak, s.OutputPeak)
		}
		out[i] = p
	}
	return out
}
