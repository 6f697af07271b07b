package feeltech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/bode.report/internal/bode"
	"github.com/banshee-data/bode.report/internal/serialmux"
)

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) respond(cmd string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, cmd)
	if cmd == "UMO" {
		return "FY3224S"
	}
	return ""
}

func (r *recorder) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func newTestGenerator(t *testing.T, channel int) (*Generator, *recorder) {
	t.Helper()
	rec := &recorder{}
	mux, _ := serialmux.NewMockSerialMux(rec.respond)
	ctx, cancel := context.WithCancel(context.Background())
	go mux.Monitor(ctx)
	t.Cleanup(func() {
		cancel()
		mux.Close()
	})

	g, err := New(mux, channel)
	require.NoError(t, err)
	return g, rec
}

func TestGenerator_Commands(t *testing.T) {
	g, rec := newTestGenerator(t, 1)
	ctx := context.Background()

	require.NoError(t, g.SetWaveform(ctx, bode.WaveformSine))
	require.NoError(t, g.SetAmplitude(ctx, 2))
	require.NoError(t, g.SetFrequency(ctx, 1000))
	require.NoError(t, g.SetFrequency(ctx, 0.2))
	require.NoError(t, g.SetFrequency(ctx, 12345.678901))

	assert.Equal(t, []string{
		"WMW00",
		"WMA2.000",
		"WMF00001000000000",
		"WMF00000000200000",
		"WMF00012345678901",
	}, rec.commands())
}

func TestGenerator_Channel2(t *testing.T) {
	g, rec := newTestGenerator(t, 2)
	ctx := context.Background()

	require.NoError(t, g.SetWaveform(ctx, bode.WaveformSine))
	require.NoError(t, g.SetAmplitude(ctx, 0.5))
	assert.Equal(t, []string{"WFW00", "WFA0.500"}, rec.commands())

	_, err := New(nil, 3)
	assert.Error(t, err)
}

func TestGenerator_OutOfRange(t *testing.T) {
	g, rec := newTestGenerator(t, 1)
	ctx := context.Background()

	for _, err := range []error{
		g.SetFrequency(ctx, 0),
		g.SetFrequency(ctx, 30e6),
		g.SetAmplitude(ctx, 25),
		g.SetAmplitude(ctx, -1),
		g.SetWaveform(ctx, bode.Waveform(7)),
	} {
		assert.True(t, bode.IsDeviceCommError(err), "%v", err)
	}
	assert.Empty(t, rec.commands())
}

func TestGenerator_NoAck(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	port.BlockReads = true
	mux := serialmux.NewSerialMux(port)
	mux.ReplyTimeout = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)
	defer mux.Close()

	g, err := New(mux, 1)
	require.NoError(t, err)

	err = g.SetFrequency(context.Background(), 1000)
	var dce *bode.DeviceCommError
	require.ErrorAs(t, err, &dce)
	assert.Equal(t, "generator", dce.Device)
	assert.Equal(t, "set frequency", dce.Op)
	assert.ErrorIs(t, err, serialmux.ErrNoReply)
}

func TestOpen(t *testing.T) {
	rec := &recorder{}
	_, port := serialmux.NewMockSerialMux(rec.respond)
	factory := serialmux.NewMockSerialPortFactory(port)

	g, err := Open(context.Background(), factory, "/dev/ttyUSB0", serialmux.PortOptions{}, 1)
	require.NoError(t, err)

	require.NoError(t, g.SetAmplitude(context.Background(), 1))
	require.NoError(t, g.Close())
	require.NoError(t, g.Close())

	assert.True(t, port.Closed)
	assert.Equal(t, "/dev/ttyUSB0", factory.LastCall().Path)
	assert.Equal(t, []string{"UMO", "WMA1.000"}, rec.commands())
}

func TestOpen_FactoryError(t *testing.T) {
	factory := serialmux.NewMockSerialPortFactory(nil)
	factory.Error = errors.New("permission denied")

	_, err := Open(context.Background(), factory, "/dev/ttyUSB0", serialmux.PortOptions{}, 1)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "permission denied"))
	assert.True(t, bode.IsDeviceCommError(err))
}
