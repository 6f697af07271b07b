package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/bode.report/internal/bode"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the measurement loop tunables as read from a JSON or
// YAML file. Every field is optional; the Get* methods fall back to the
// defaults the loop was tuned with.
type TuningConfig struct {
	// Settling
	FixedSettleDelay *string  `json:"fixed_settle_delay,omitempty" yaml:"fixed_settle_delay,omitempty"` // duration string like "4s"
	SettleFactor     *float64 `json:"settle_factor,omitempty" yaml:"settle_factor,omitempty"`
	TimebasePeriods  *float64 `json:"timebase_periods,omitempty" yaml:"timebase_periods,omitempty"`

	// Readout
	Averages *int `json:"averages,omitempty" yaml:"averages,omitempty"`

	// Vertical autotune
	DefaultScale          *float64 `json:"default_scale,omitempty" yaml:"default_scale,omitempty"`
	MinScale              *float64 `json:"min_scale,omitempty" yaml:"min_scale,omitempty"`
	AutotuneMaxIterations *int     `json:"autotune_max_iterations,omitempty" yaml:"autotune_max_iterations,omitempty"`

	// Trigger
	TriggerGrace           *string  `json:"trigger_grace,omitempty" yaml:"trigger_grace,omitempty"`                 // duration string like "500ms"
	TriggerPollInterval    *string  `json:"trigger_poll_interval,omitempty" yaml:"trigger_poll_interval,omitempty"` // duration string like "100ms"
	InitialTriggerFraction *float64 `json:"initial_trigger_fraction,omitempty" yaml:"initial_trigger_fraction,omitempty"`
	LoweredTriggerFraction *float64 `json:"lowered_trigger_fraction,omitempty" yaml:"lowered_trigger_fraction,omitempty"`

	// Anomaly retry
	LowAmplitudeThreshold *float64 `json:"low_amplitude_threshold,omitempty" yaml:"low_amplitude_threshold,omitempty"`
	AnomalyFactor         *float64 `json:"anomaly_factor,omitempty" yaml:"anomaly_factor,omitempty"`
	MaxRetryPasses        *int     `json:"max_retry_passes,omitempty" yaml:"max_retry_passes,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field set to its
// default.
func DefaultTuningConfig() *TuningConfig {
	d := bode.DefaultConfig()
	return &TuningConfig{
		FixedSettleDelay:       ptrString(d.FixedSettleDelay.String()),
		SettleFactor:           ptrFloat64(d.SettleFactor),
		TimebasePeriods:        ptrFloat64(d.TimebasePeriods),
		Averages:               ptrInt(d.Averages),
		DefaultScale:           ptrFloat64(d.DefaultScale),
		MinScale:               ptrFloat64(d.MinScale),
		AutotuneMaxIterations:  ptrInt(d.AutotuneMaxIterations),
		TriggerGrace:           ptrString(d.TriggerGrace.String()),
		TriggerPollInterval:    ptrString(d.TriggerPollInterval.String()),
		InitialTriggerFraction: ptrFloat64(d.InitialTriggerFraction),
		LoweredTriggerFraction: ptrFloat64(d.LoweredTriggerFraction),
		LowAmplitudeThreshold:  ptrFloat64(d.LowAmplitudeThreshold),
		AnomalyFactor:          ptrFloat64(d.AnomalyFactor),
		MaxRetryPasses:         ptrInt(d.MaxRetryPasses),
	}
}

// LoadTuningConfig loads a TuningConfig from a .json, .yaml or .yml file of
// at most 1MB. Omitted fields keep their defaults, so partial files are fine.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the fields that are set and then the resulting loop
// configuration as a whole.
func (c *TuningConfig) Validate() error {
	for name, v := range map[string]*string{
		"fixed_settle_delay":    c.FixedSettleDelay,
		"trigger_grace":         c.TriggerGrace,
		"trigger_poll_interval": c.TriggerPollInterval,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}
	if c.LowAmplitudeThreshold != nil && *c.LowAmplitudeThreshold > 1 {
		return fmt.Errorf("low_amplitude_threshold must be at most 1 V, got %f", *c.LowAmplitudeThreshold)
	}
	if c.MaxRetryPasses != nil && *c.MaxRetryPasses > 16 {
		return fmt.Errorf("max_retry_passes must be at most 16, got %d", *c.MaxRetryPasses)
	}
	return c.Loop().Validate()
}

// Loop converts the tunables into the measurement loop configuration.
func (c *TuningConfig) Loop() bode.Config {
	return bode.Config{
		FixedSettleDelay:       c.GetFixedSettleDelay(),
		Averages:               c.GetAverages(),
		LowAmplitudeThreshold:  c.GetLowAmplitudeThreshold(),
		MaxRetryPasses:         c.GetMaxRetryPasses(),
		AnomalyFactor:          c.GetAnomalyFactor(),
		DefaultScale:           c.GetDefaultScale(),
		MinScale:               c.GetMinScale(),
		AutotuneMaxIterations:  c.GetAutotuneMaxIterations(),
		TimebasePeriods:        c.GetTimebasePeriods(),
		SettleFactor:           c.GetSettleFactor(),
		TriggerGrace:           c.GetTriggerGrace(),
		TriggerPollInterval:    c.GetTriggerPollInterval(),
		InitialTriggerFraction: c.GetInitialTriggerFraction(),
		LoweredTriggerFraction: c.GetLoweredTriggerFraction(),
	}
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetFixedSettleDelay returns the minimum settle delay per point.
func (c *TuningConfig) GetFixedSettleDelay() time.Duration {
	return durationOr(c.FixedSettleDelay, 4*time.Second)
}

// GetTriggerGrace returns how long a trigger lock must hold.
func (c *TuningConfig) GetTriggerGrace() time.Duration {
	return durationOr(c.TriggerGrace, 500*time.Millisecond)
}

// GetTriggerPollInterval returns the trigger status polling interval.
func (c *TuningConfig) GetTriggerPollInterval() time.Duration {
	return durationOr(c.TriggerPollInterval, 100*time.Millisecond)
}

// GetSettleFactor returns the settle_factor value or the default.
func (c *TuningConfig) GetSettleFactor() float64 {
	if c.SettleFactor == nil {
		return 1.5
	}
	return *c.SettleFactor
}

// GetTimebasePeriods returns the timebase_periods value or the default.
func (c *TuningConfig) GetTimebasePeriods() float64 {
	if c.TimebasePeriods == nil {
		return 2
	}
	return *c.TimebasePeriods
}

// GetAverages returns the averages value or the default.
func (c *TuningConfig) GetAverages() int {
	if c.Averages == nil {
		return 4
	}
	return *c.Averages
}

// GetDefaultScale returns the default_scale value (V/div) or the default.
func (c *TuningConfig) GetDefaultScale() float64 {
	if c.DefaultScale == nil {
		return 10
	}
	return *c.DefaultScale
}

// GetMinScale returns the min_scale value (V/div) or the default.
func (c *TuningConfig) GetMinScale() float64 {
	if c.MinScale == nil {
		return 0.001
	}
	return *c.MinScale
}

// GetAutotuneMaxIterations returns the autotune_max_iterations value or the default.
func (c *TuningConfig) GetAutotuneMaxIterations() int {
	if c.AutotuneMaxIterations == nil {
		return 16
	}
	return *c.AutotuneMaxIterations
}

// GetInitialTriggerFraction returns the initial_trigger_fraction value or the default.
func (c *TuningConfig) GetInitialTriggerFraction() float64 {
	if c.InitialTriggerFraction == nil {
		return 0.7
	}
	return *c.InitialTriggerFraction
}

// GetLoweredTriggerFraction returns the lowered_trigger_fraction value or the default.
func (c *TuningConfig) GetLoweredTriggerFraction() float64 {
	if c.LoweredTriggerFraction == nil {
		return 0.2
	}
	return *c.LoweredTriggerFraction
}

// GetLowAmplitudeThreshold returns the low_amplitude_threshold value (V) or the default.
func (c *TuningConfig) GetLowAmplitudeThreshold() float64 {
	if c.LowAmplitudeThreshold == nil {
		return 0.005
	}
	return *c.LowAmplitudeThreshold
}

// GetAnomalyFactor returns the anomaly_factor value or the default.
func (c *TuningConfig) GetAnomalyFactor() float64 {
	if c.AnomalyFactor == nil {
		return 20
	}
	return *c.AnomalyFactor
}

// GetMaxRetryPasses returns the max_retry_passes value or the default.
func (c *TuningConfig) GetMaxRetryPasses() int {
	if c.MaxRetryPasses == nil {
		return 4
	}
	return *c.MaxRetryPasses
}
