package rigol

import (
	"fmt"

	"github.com/banshee-data/bode.report/internal/bode"
)

var headers = map[bode.Setting]string{
	bode.SettingAcquireType:      ":ACQuire:TYPE",
	bode.SettingAcquireAverages:  ":ACQuire:AVERages",
	bode.SettingAcquireMemDepth:  ":ACQuire:MDEPth",
	bode.SettingTriggerMode:      ":TRIGger:MODE",
	bode.SettingTriggerCoupling:  ":TRIGger:COUPling",
	bode.SettingTriggerSweep:     ":TRIGger:SWEep",
	bode.SettingTriggerSource:    ":TRIGger:EDGe:SOURce",
	bode.SettingTriggerSlope:     ":TRIGger:EDGe:SLOPe",
	bode.SettingTriggerLevel:     ":TRIGger:EDGe:LEVel",
	bode.SettingTimebaseScale:    ":TIMebase:MAIN:SCALe",
	bode.SettingStatisticDisplay: ":MEASure:STATistic:DISPlay",
}

func init() {
	for _, ch := range []int{bode.InputChannel, bode.OutputChannel} {
		headers[bode.ChannelCoupling(ch)] = fmt.Sprintf(":CHANnel%d:COUPling", ch)
		headers[bode.ChannelVernier(ch)] = fmt.Sprintf(":CHANnel%d:VERNier", ch)
		headers[bode.ChannelScale(ch)] = fmt.Sprintf(":CHANnel%d:SCALe", ch)
		headers[bode.ChannelOffset(ch)] = fmt.Sprintf(":CHANnel%d:OFFSet", ch)
	}
}

// settingHeader returns the SCPI header that both sets and (with '?')
// queries s.
func settingHeader(s bode.Setting) (string, bool) {
	h, ok := headers[s]
	return h, ok
}

func queryFor(s bode.Setting) (string, bool) {
	switch s {
	case bode.SettingTriggerStatus:
		return ":TRIGger:STATus?", true
	case bode.SettingAveragedPhase:
		return ":MEASure:STATistic:ITEM? AVERages,RPHase,CHANnel2,CHANnel1", true
	}
	for _, ch := range []int{bode.InputChannel, bode.OutputChannel} {
		switch s {
		case bode.PeakVoltage(ch):
			return fmt.Sprintf(":MEASure:ITEM? VMAX,CHANnel%d", ch), true
		case bode.AveragedPeakVoltage(ch):
			return fmt.Sprintf(":MEASure:STATistic:ITEM? AVERages,VMAX,CHANnel%d", ch), true
		}
	}
	if h, ok := headers[s]; ok {
		return h + "?", true
	}
	return "", false
}

var values = map[string]string{
	bode.ValueNormal:                       "NORMal",
	bode.ValueAverage:                      "AVERages",
	bode.ValueHighRes:                      "HRESolution",
	bode.ValueAuto:                         "AUTO",
	bode.ValueEdge:                         "EDGE",
	bode.ValueDC:                           "DC",
	bode.ValueAC:                           "AC",
	bode.ValuePositive:                     "POSitive",
	bode.ValueOn:                           "ON",
	bode.ValueOff:                          "OFF",
	bode.ChannelSource(bode.InputChannel):  "CHANnel1",
	bode.ChannelSource(bode.OutputChannel): "CHANnel2",
}

// encodeValue maps an abstract value token to the scope's keyword. Numbers
// and the scope's own reply keywords pass through unchanged.
func encodeValue(v string) string {
	if kw, ok := values[v]; ok {
		return kw
	}
	return v
}
