package scpi

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInstrument answers every line ending in '?' with reply(line).
func fakeInstrument(t *testing.T, reply func(string) string) (addr string, got func() []string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	var mu sync.Mutex
	var lines []string
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		scan := bufio.NewScanner(conn)
		for scan.Scan() {
			line := scan.Text()
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
			if strings.HasSuffix(line, "?") {
				if r := reply(line); r != "" {
					io.WriteString(conn, r+"\n")
				}
			}
		}
	}()
	return ln.Addr().String(), func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), lines...)
	}
}

func TestDial_TCP(t *testing.T) {
	addr, got := fakeInstrument(t, func(q string) string {
		if q == "*IDN?" {
			return "RIGOL TECHNOLOGIES,DS1104Z,DS1ZA000000001,00.04.04"
		}
		return "1.0e-03"
	})

	ctx := context.Background()
	conn, err := Dial(ctx, "tcp://"+addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	idn, err := conn.Query(ctx, "*IDN?")
	require.NoError(t, err)
	assert.Equal(t, "RIGOL TECHNOLOGIES,DS1104Z,DS1ZA000000001,00.04.04", idn)

	require.NoError(t, conn.Command(ctx, ":TIMebase:MAIN:SCALe 0.001"))
	v, err := conn.Query(ctx, ":TIMebase:MAIN:SCALe?")
	require.NoError(t, err)
	assert.Equal(t, "1.0e-03", v)

	assert.Equal(t, []string{"*IDN?", ":TIMebase:MAIN:SCALe 0.001", ":TIMebase:MAIN:SCALe?"}, got())
}

func TestDial_TCPQueryTimeout(t *testing.T) {
	addr, _ := fakeInstrument(t, func(string) string { return "" })

	ctx := context.Background()
	conn, err := Dial(ctx, addr, 50*time.Millisecond)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Query(ctx, ":TRIGger:STATus?")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	// nothing listens on the discard port of localhost
	_, err := Dial(ctx, "tcp://127.0.0.1:9", time.Second)
	assert.Error(t, err)
}

// scriptedStream is an in-memory io.ReadWriteCloser that behaves like a serial
// port with a read timeout: empty reads return (0, nil).
type scriptedStream struct {
	mu      sync.Mutex
	replies []string
	written strings.Builder
	pending string
	closed  bool
	readErr error
}

func (s *scriptedStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written.Write(p)
	if strings.HasSuffix(strings.TrimSpace(string(p)), "?") && len(s.replies) > 0 {
		s.pending += s.replies[0]
		s.replies = s.replies[1:]
	}
	return len(p), nil
}

func (s *scriptedStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return 0, s.readErr
	}
	if s.pending == "" {
		return 0, nil
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestLineConn_Query(t *testing.T) {
	stream := &scriptedStream{replies: []string{"TD\r\n", "2.5e-01\n"}}
	conn := NewLineConn(stream, time.Second)
	ctx := context.Background()

	status, err := conn.Query(ctx, ":TRIGger:STATus?")
	require.NoError(t, err)
	assert.Equal(t, "TD", status)

	v, err := conn.Query(ctx, ":CHANnel1:SCALe?")
	require.NoError(t, err)
	assert.Equal(t, "2.5e-01", v)

	assert.Equal(t, ":TRIGger:STATus?\n:CHANnel1:SCALe?\n", stream.written.String())

	require.NoError(t, conn.Close())
	assert.True(t, stream.closed)
}

func TestLineConn_QuietPortTimesOut(t *testing.T) {
	stream := &scriptedStream{}
	conn := NewLineConn(stream, 20*time.Millisecond)

	start := time.Now()
	_, err := conn.Query(context.Background(), ":TRIGger:STATus?")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLineConn_ContextCancelled(t *testing.T) {
	stream := &scriptedStream{}
	conn := NewLineConn(stream, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := conn.Command(ctx, ":RUN")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, stream.written.String())
}

func TestLineConn_ReadError(t *testing.T) {
	stream := &scriptedStream{readErr: errors.New("device gone")}
	conn := NewLineConn(stream, time.Second)

	_, err := conn.Query(context.Background(), "*IDN?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device gone")
	assert.Contains(t, err.Error(), "*IDN?")
}

func TestLineConn_ReplyWithoutTerminator(t *testing.T) {
	stream := &scriptedStream{replies: []string{"AUTO"}, readErr: nil}
	conn := NewLineConn(stream, time.Second)
	// the stream ends after the partial reply
	go func() {
		time.Sleep(20 * time.Millisecond)
		stream.mu.Lock()
		stream.readErr = io.EOF
		stream.mu.Unlock()
	}()

	v, err := conn.Query(context.Background(), ":TRIGger:SWEep?")
	require.NoError(t, err)
	assert.Equal(t, "AUTO", v)
}
