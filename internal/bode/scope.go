package bode

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/bode.report/internal/monitoring"
)

// InvalidReading is the smallest value the scope returns for a measurement
// it could not take (9.9E37 on the DS1000Z).
const InvalidReading = 9.9e37

// scopeIO adds typed helpers on top of an AcquisitionDevice and makes sure
// every failure surfaces as a *DeviceCommError.
type scopeIO struct {
	dev AcquisitionDevice
}

func (s scopeIO) set(ctx context.Context, setting Setting, value string) error {
	if err := s.dev.Write(ctx, setting, value); err != nil {
		monitoring.DeviceErrors.WithLabelValues("write").Inc()
		return asDeviceErr("scope", "write", setting, err)
	}
	return nil
}

func (s scopeIO) setFloat(ctx context.Context, setting Setting, v float64) error {
	return s.set(ctx, setting, formatFloat(v))
}

func (s scopeIO) get(ctx context.Context, setting Setting) (string, error) {
	v, err := s.dev.Query(ctx, setting)
	if err != nil {
		monitoring.DeviceErrors.WithLabelValues("query").Inc()
		return "", asDeviceErr("scope", "query", setting, err)
	}
	return strings.TrimSpace(v), nil
}

// readFloat queries setting and parses the reply. Invalid-measurement
// sentinels read as 0.
func (s scopeIO) readFloat(ctx context.Context, setting Setting) (float64, error) {
	raw, err := s.get(ctx, setting)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		monitoring.DeviceErrors.WithLabelValues("parse").Inc()
		return 0, &DeviceCommError{Device: "scope", Op: "parse", Setting: setting, Err: err}
	}
	if math.IsNaN(v) || math.Abs(v) >= InvalidReading {
		monitoring.Debugf("scope %s returned invalid reading %q, using 0", setting, raw)
		return 0, nil
	}
	return v, nil
}

// apply writes v and returns the value the device actually accepted.
func (s scopeIO) apply(ctx context.Context, setting Setting, v float64) (float64, error) {
	if err := s.setFloat(ctx, setting, v); err != nil {
		return 0, err
	}
	return s.readFloat(ctx, setting)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// roundTo rounds v to the given number of decimal places.
func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func statusString(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
