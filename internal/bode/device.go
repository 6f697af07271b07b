package bode

import (
	"context"
	"fmt"
)

// Setting names one abstract instrument parameter. Device adapters map
// settings onto their own command vocabulary.
type Setting string

const (
	SettingAcquireType     Setting = "acquire.type"
	SettingAcquireAverages Setting = "acquire.averages"
	SettingAcquireMemDepth Setting = "acquire.mdepth"

	SettingTriggerMode     Setting = "trigger.mode"
	SettingTriggerCoupling Setting = "trigger.coupling"
	SettingTriggerSweep    Setting = "trigger.sweep"
	SettingTriggerSource   Setting = "trigger.source"
	SettingTriggerSlope    Setting = "trigger.slope"
	SettingTriggerLevel    Setting = "trigger.level"
	// SettingTriggerStatus is query-only. Replies are lower case.
	SettingTriggerStatus Setting = "trigger.status"

	SettingTimebaseScale Setting = "timebase.scale"

	// SettingMeasurements installs the peak and phase measurement items
	// when written with ValueOn.
	SettingMeasurements     Setting = "measure.items"
	SettingStatisticDisplay Setting = "measure.statistic.display"
	// SettingStatisticReset is write-only; the value is ignored.
	SettingStatisticReset Setting = "measure.statistic.reset"
	// SettingAveragedPhase is query-only: the averaged phase of the output
	// channel relative to the input channel, in degrees.
	SettingAveragedPhase Setting = "measure.statistic.phase"

	// SettingRun is write-only; the value is ignored.
	SettingRun Setting = "run"
)

// ChannelCoupling returns the coupling setting of channel ch.
func ChannelCoupling(ch int) Setting { return channelSetting(ch, "coupling") }

// ChannelVernier returns the fine-scale setting of channel ch.
func ChannelVernier(ch int) Setting { return channelSetting(ch, "vernier") }

// ChannelScale returns the vertical scale (V/div) setting of channel ch.
func ChannelScale(ch int) Setting { return channelSetting(ch, "scale") }

// ChannelOffset returns the vertical offset (V) setting of channel ch.
func ChannelOffset(ch int) Setting { return channelSetting(ch, "offset") }

// PeakVoltage is the instantaneous VMAX measurement of channel ch.
func PeakVoltage(ch int) Setting { return channelSetting(ch, "vmax") }

// AveragedPeakVoltage is the statistics-averaged VMAX of channel ch.
func AveragedPeakVoltage(ch int) Setting { return channelSetting(ch, "statistic.vmax") }

func channelSetting(ch int, name string) Setting {
	return Setting(fmt.Sprintf("ch%d.%s", ch, name))
}

// Channel numbers on the acquisition device.
const (
	InputChannel  = 1
	OutputChannel = 2
)

// Setting values understood by every adapter.
const (
	ValueNormal      = "normal"
	ValueAverage     = "average"
	ValueHighRes     = "hresolution"
	ValueAuto        = "auto"
	ValueEdge        = "edge"
	ValueDC          = "dc"
	ValueAC          = "ac"
	ValuePositive    = "positive"
	ValueOn          = "on"
	ValueOff         = "off"
	StatusWait       = "wait"
	ValueVernierFine = "1"
)

// ChannelSource returns the trigger source value for channel ch.
func ChannelSource(ch int) string { return fmt.Sprintf("ch%d", ch) }

// AcquisitionDevice is a two-channel oscilloscope session. Write and Query
// must return a *DeviceCommError on any transport failure.
type AcquisitionDevice interface {
	Write(ctx context.Context, s Setting, value string) error
	Query(ctx context.Context, s Setting) (string, error)
}

// Waveform is a stimulus shape.
type Waveform int

const (
	WaveformSine Waveform = iota
)

func (w Waveform) String() string {
	if w == WaveformSine {
		return "sine"
	}
	return fmt.Sprintf("Waveform(%d)", int(w))
}

// StimulusDevice is a signal generator session.
type StimulusDevice interface {
	SetFrequency(ctx context.Context, hz float64) error
	SetWaveform(ctx context.Context, w Waveform) error
	SetAmplitude(ctx context.Context, vpp float64) error
}

// SettingValue is one entry of a settings snapshot.
type SettingValue struct {
	Setting Setting `json:"setting"`
	Value   string  `json:"value"`
}

// Snapshot is the ordered set of values captured before a sweep.
type Snapshot []SettingValue

// SettingsKeeper backs up instrument settings before a sweep and puts them
// back afterwards. Snapshot and Restore are never interleaved with sweep
// operations.
type SettingsKeeper interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	Restore(ctx context.Context, snap Snapshot) error
}

// BackupSettings lists, in restore order, the settings a SettingsKeeper
// saves before a sweep.
func BackupSettings() []Setting {
	return []Setting{
		SettingAcquireType,
		SettingAcquireAverages,
		ChannelCoupling(InputChannel),
		ChannelCoupling(OutputChannel),
		ChannelVernier(InputChannel),
		ChannelVernier(OutputChannel),
		ChannelScale(InputChannel),
		ChannelScale(OutputChannel),
		ChannelOffset(InputChannel),
		ChannelOffset(OutputChannel),
		SettingTriggerMode,
		SettingTriggerCoupling,
		SettingTriggerSweep,
		SettingTriggerSource,
		SettingTriggerSlope,
		SettingTriggerLevel,
		SettingTimebaseScale,
		SettingAcquireMemDepth,
		SettingStatisticDisplay,
	}
}
