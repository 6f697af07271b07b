package bode

import (
	"fmt"
	"time"
)

// Display geometry of the acquisition device.
const (
	HorizontalDivisions = 12
	VerticalDivisions   = 8
)

// Safe window for the output channel peak, in divisions of the current
// scale. Bounds are inclusive.
const (
	WindowLowDivisions  = 4.0
	WindowHighDivisions = 7.9
)

// Config holds the tunables of the measurement loop. Build one with
// DefaultConfig and override fields, or take it from config.TuningConfig.
type Config struct {
	FixedSettleDelay       time.Duration
	Averages               int
	LowAmplitudeThreshold  float64 // volts, strict
	MaxRetryPasses         int
	AnomalyFactor          float64
	DefaultScale           float64 // V/div
	MinScale               float64 // V/div
	AutotuneMaxIterations  int
	TimebasePeriods        float64
	SettleFactor           float64
	TriggerGrace           time.Duration
	TriggerPollInterval    time.Duration
	InitialTriggerFraction float64
	LoweredTriggerFraction float64
}

// DefaultConfig returns the values the loop was tuned with on a DS1000Z.
func DefaultConfig() Config {
	return Config{
		FixedSettleDelay:       4 * time.Second,
		Averages:               4,
		LowAmplitudeThreshold:  0.005,
		MaxRetryPasses:         4,
		AnomalyFactor:          20,
		DefaultScale:           10,
		MinScale:               0.001,
		AutotuneMaxIterations:  16,
		TimebasePeriods:        2,
		SettleFactor:           1.5,
		TriggerGrace:           500 * time.Millisecond,
		TriggerPollInterval:    100 * time.Millisecond,
		InitialTriggerFraction: 0.7,
		LoweredTriggerFraction: 0.2,
	}
}

// Validate checks that every field is usable by the loop.
func (c Config) Validate() error {
	switch {
	case c.FixedSettleDelay < 0:
		return fmt.Errorf("fixed settle delay must be non-negative, got %s", c.FixedSettleDelay)
	case c.Averages < 2 || c.Averages > 1024 || c.Averages&(c.Averages-1) != 0:
		return fmt.Errorf("averages must be a power of two between 2 and 1024, got %d", c.Averages)
	case c.LowAmplitudeThreshold < 0:
		return fmt.Errorf("low amplitude threshold must be non-negative, got %g", c.LowAmplitudeThreshold)
	case c.MaxRetryPasses < 0:
		return fmt.Errorf("max retry passes must be non-negative, got %d", c.MaxRetryPasses)
	case c.AnomalyFactor <= 0:
		return fmt.Errorf("anomaly factor must be positive, got %g", c.AnomalyFactor)
	case c.MinScale <= 0:
		return fmt.Errorf("min scale must be positive, got %g", c.MinScale)
	case c.DefaultScale < c.MinScale:
		return fmt.Errorf("default scale %g is below min scale %g", c.DefaultScale, c.MinScale)
	case c.AutotuneMaxIterations < 1:
		return fmt.Errorf("autotune max iterations must be at least 1, got %d", c.AutotuneMaxIterations)
	case c.TimebasePeriods <= 0:
		return fmt.Errorf("timebase periods must be positive, got %g", c.TimebasePeriods)
	case c.SettleFactor <= 0:
		return fmt.Errorf("settle factor must be positive, got %g", c.SettleFactor)
	case c.TriggerGrace < 0:
		return fmt.Errorf("trigger grace must be non-negative, got %s", c.TriggerGrace)
	case c.TriggerPollInterval <= 0:
		return fmt.Errorf("trigger poll interval must be positive, got %s", c.TriggerPollInterval)
	case c.InitialTriggerFraction <= 0 || c.InitialTriggerFraction > 1:
		return fmt.Errorf("initial trigger fraction must be in (0, 1], got %g", c.InitialTriggerFraction)
	case c.LoweredTriggerFraction <= 0 || c.LoweredTriggerFraction > c.InitialTriggerFraction:
		return fmt.Errorf("lowered trigger fraction must be in (0, %g], got %g", c.InitialTriggerFraction, c.LoweredTriggerFraction)
	}
	return nil
}

// SettleDelay returns how long to wait after a timebase change so that the
// display holds settled cycles: the fixed delay, or the time to sweep the
// screen SettleFactor times over, whichever is longer.
func (c Config) SettleDelay(acceptedTimebase float64) time.Duration {
	sweep := acceptedTimebase * HorizontalDivisions * c.TimebasePeriods * c.SettleFactor
	d := time.Duration(sweep * float64(time.Second))
	if d < c.FixedSettleDelay {
		return c.FixedSettleDelay
	}
	return d
}
