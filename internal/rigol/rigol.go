// Package rigol drives a Rigol DS1000Z-series oscilloscope over SCPI and
// implements the bode acquisition and settings-keeper interfaces.
package rigol

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/bode.report/internal/bode"
	"github.com/banshee-data/bode.report/internal/monitoring"
	"github.com/banshee-data/bode.report/internal/scpi"
)

var errUnsupported = errors.New("unsupported setting")

// Device is a DS1000Z session.
type Device struct {
	conn scpi.Conn
}

// New wraps an open SCPI session.
func New(conn scpi.Conn) *Device {
	return &Device{conn: conn}
}

// Open dials addr (see scpi.ParseAddress) and checks that a Rigol
// instrument answers *IDN?.
func Open(ctx context.Context, addr string, timeout time.Duration) (*Device, error) {
	conn, err := scpi.Dial(ctx, addr, timeout)
	if err != nil {
		return nil, &bode.DeviceCommError{Device: "scope", Op: "open", Err: err}
	}
	d := New(conn)
	idn, err := d.Identify(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if !strings.Contains(strings.ToUpper(idn), "RIGOL") {
		monitoring.Logf("rigol: %s identifies as %q, continuing anyway", addr, idn)
	} else {
		monitoring.Logf("rigol: connected to %s", idn)
	}
	return d, nil
}

// Identify returns the *IDN? reply.
func (d *Device) Identify(ctx context.Context) (string, error) {
	idn, err := d.conn.Query(ctx, "*IDN?")
	if err != nil {
		return "", &bode.DeviceCommError{Device: "scope", Op: "query", Setting: "idn", Err: err}
	}
	return idn, nil
}

func (d *Device) Close() error { return d.conn.Close() }

// measurementSetup installs the peak and phase items and their statistics.
var measurementSetup = []string{
	":MEASure:CLEar ALL",
	":MEASure:ITEM VMAX,CHANnel1",
	":MEASure:ITEM VMAX,CHANnel2",
	":MEASure:ITEM RPHase,CHANnel2,CHANnel1",
	":MEASure:STATistic:ITEM VMAX,CHANnel1",
	":MEASure:STATistic:ITEM VMAX,CHANnel2",
	":MEASure:STATistic:ITEM RPHase,CHANnel2,CHANnel1",
}

func (d *Device) Write(ctx context.Context, s bode.Setting, value string) error {
	var cmds []string
	switch s {
	case bode.SettingMeasurements:
		if value == bode.ValueOn {
			cmds = measurementSetup
		} else {
			cmds = []string{":MEASure:CLEar ALL"}
		}
	case bode.SettingStatisticReset:
		cmds = []string{":MEASure:STATistic:RESet"}
	case bode.SettingRun:
		cmds = []string{":RUN"}
	default:
		header, ok := settingHeader(s)
		if !ok {
			return &bode.DeviceCommError{Device: "scope", Op: "write", Setting: s, Err: errUnsupported}
		}
		cmds = []string{header + " " + encodeValue(value)}
	}

	for _, cmd := range cmds {
		if err := d.conn.Command(ctx, cmd); err != nil {
			return &bode.DeviceCommError{Device: "scope", Op: "write", Setting: s, Err: err}
		}
	}
	return nil
}

func (d *Device) Query(ctx context.Context, s bode.Setting) (string, error) {
	q, ok := queryFor(s)
	if !ok {
		return "", &bode.DeviceCommError{Device: "scope", Op: "query", Setting: s, Err: errUnsupported}
	}
	reply, err := d.conn.Query(ctx, q)
	if err != nil {
		return "", &bode.DeviceCommError{Device: "scope", Op: "query", Setting: s, Err: err}
	}
	reply = strings.TrimSpace(reply)
	if s == bode.SettingTriggerStatus {
		reply = strings.ToLower(reply)
	}
	return reply, nil
}

// Snapshot reads every setting in bode.BackupSettings. Values are kept in
// the scope's own reply format, which it accepts back on Restore.
func (d *Device) Snapshot(ctx context.Context) (bode.Snapshot, error) {
	snap := make(bode.Snapshot, 0, len(bode.BackupSettings()))
	for _, s := range bode.BackupSettings() {
		v, err := d.Query(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		snap = append(snap, bode.SettingValue{Setting: s, Value: v})
	}
	return snap, nil
}

// Restore writes snap back in order and stops at the first failure.
func (d *Device) Restore(ctx context.Context, snap bode.Snapshot) error {
	for _, sv := range snap {
		if err := d.Write(ctx, sv.Setting, sv.Value); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}
	return nil
}

var (
	_ bode.AcquisitionDevice = (*Device)(nil)
	_ bode.SettingsKeeper    = (*Device)(nil)
)
