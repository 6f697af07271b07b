package bode

import (
	"errors"
	"fmt"
)

// ErrInvalidPlan is returned for sweep bounds that cannot produce a plan. It
// is always detected before any device I/O.
var ErrInvalidPlan = errors.New("invalid sweep plan")

// DeviceCommError reports a failed write or query on an instrument session.
// It is fatal to the whole run: the session is assumed unusable.
type DeviceCommError struct {
	Device  string  // "scope" or "generator"
	Op      string  // "write", "query", ...
	Setting Setting // empty for generator operations
	Err     error
}

func (e *DeviceCommError) Error() string {
	if e.Setting != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Device, e.Op, e.Setting, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Device, e.Op, e.Err)
}

func (e *DeviceCommError) Unwrap() error { return e.Err }

// IsDeviceCommError reports whether err wraps a DeviceCommError.
func IsDeviceCommError(err error) bool {
	var dce *DeviceCommError
	return errors.As(err, &dce)
}

// asDeviceErr wraps err in a DeviceCommError unless it already is one.
func asDeviceErr(device, op string, setting Setting, err error) error {
	if err == nil {
		return nil
	}
	var dce *DeviceCommError
	if errors.As(err, &dce) {
		return err
	}
	return &DeviceCommError{Device: device, Op: op, Setting: setting, Err: err}
}
