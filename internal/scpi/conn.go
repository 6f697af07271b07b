// Package scpi carries SCPI command and query lines to an instrument over
// one of several transports: raw TCP (port 5555 on Rigol scopes), a Linux
// USBTMC character device, a USB serial port or a Prologix GPIB controller.
package scpi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/bode.report/internal/monitoring"
)

// DefaultTimeout bounds a single query when the context carries no deadline.
const DefaultTimeout = 3 * time.Second

// ErrTimeout is returned when a query gets no reply line in time.
var ErrTimeout = errors.New("scpi: reply timeout")

// Conn is an open instrument session. Commands and queries are serialized.
type Conn interface {
	// Command sends a line that produces no reply.
	Command(ctx context.Context, cmd string) error
	// Query sends a line and returns the reply with the terminator removed.
	Query(ctx context.Context, cmd string) (string, error)
	Close() error
}

// deadliner is implemented by net.Conn.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// lineConn speaks newline-terminated SCPI over any byte stream.
type lineConn struct {
	mu      sync.Mutex
	name    string
	rwc     io.ReadWriteCloser
	pr      *patientReader
	r       *bufio.Reader
	timeout time.Duration
	now     func() time.Time
}

func newLineConn(name string, rwc io.ReadWriteCloser, timeout time.Duration) *lineConn {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &lineConn{name: name, rwc: rwc, timeout: timeout, now: time.Now}
	c.pr = &patientReader{c: c}
	c.r = bufio.NewReader(c.pr)
	return c
}

// NewLineConn wraps an already open byte stream, e.g. for tests or custom
// transports.
func NewLineConn(rwc io.ReadWriteCloser, timeout time.Duration) Conn {
	return newLineConn("stream", rwc, timeout)
}

func (c *lineConn) deadline(ctx context.Context) time.Time {
	d := c.now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

func (c *lineConn) send(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d, ok := c.rwc.(deadliner); ok {
		d.SetDeadline(c.deadline(ctx))
	}
	monitoring.Debugf("scpi %s > %s", c.name, cmd)
	if _, err := io.WriteString(c.rwc, cmd+"\n"); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	return nil
}

func (c *lineConn) Command(ctx context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(ctx, cmd)
}

func (c *lineConn) Query(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.send(ctx, cmd); err != nil {
		return "", err
	}

	c.pr.until = c.deadline(ctx)
	c.pr.ctx = ctx
	line, err := c.r.ReadString('\n')
	c.pr.ctx = nil
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			err = nil
		} else {
			return "", fmt.Errorf("read reply to %q: %w", cmd, err)
		}
	}
	line = strings.TrimRight(line, "\r\n")
	monitoring.Debugf("scpi %s < %s", c.name, line)
	return line, nil
}

func (c *lineConn) Close() error { return c.rwc.Close() }

// patientReader retries the (0, nil) reads that serial ports with a read
// timeout return, until the current query's deadline.
type patientReader struct {
	c     *lineConn
	until time.Time
	ctx   context.Context
}

func (p *patientReader) Read(b []byte) (int, error) {
	for {
		n, err := p.c.rwc.Read(b)
		if n > 0 || err != nil {
			if isTimeout(err) {
				return n, ErrTimeout
			}
			return n, err
		}
		if p.ctx != nil && p.ctx.Err() != nil {
			return 0, p.ctx.Err()
		}
		if !p.until.IsZero() && p.c.now().After(p.until) {
			return 0, ErrTimeout
		}
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// lockedConn serializes a Conn that has no locking of its own.
type lockedConn struct {
	mu sync.Mutex
	Conn
}

func (l *lockedConn) Command(ctx context.Context, cmd string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Conn.Command(ctx, cmd)
}

func (l *lockedConn) Query(ctx context.Context, cmd string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Conn.Query(ctx, cmd)
}
