package scpi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gotmc/prologix"
	"github.com/gotmc/prologix/driver/vcp"

	"github.com/banshee-data/bode.report/internal/monitoring"
	"github.com/banshee-data/bode.report/internal/serialmux"
)

// Transport names accepted by Dial.
const (
	TransportTCP      = "tcp"
	TransportUSBTMC   = "usbtmc"
	TransportSerial   = "serial"
	TransportPrologix = "prologix"
)

// DefaultPort is the raw SCPI socket port of Rigol instruments.
const DefaultPort = 5555

// Address is a parsed instrument address.
type Address struct {
	Transport string
	Host      string // host:port for tcp
	Path      string // device node for usbtmc, serial and prologix
	Serial    serialmux.PortOptions
	GPIB      int // instrument address behind a Prologix controller
}

func (a Address) String() string {
	switch a.Transport {
	case TransportTCP:
		return "tcp://" + a.Host
	case TransportPrologix:
		return fmt.Sprintf("prologix://%s?addr=%d", a.Path, a.GPIB)
	case TransportSerial:
		return fmt.Sprintf("serial://%s (%s)", a.Path, a.Serial)
	}
	return a.Transport + "://" + a.Path
}

// ParseAddress accepts
//
//	tcp://192.168.1.50[:5555]
//	192.168.1.50[:5555]
//	usbtmc:///dev/usbtmc0
//	serial:///dev/ttyUSB1?baud=9600
//	prologix:///dev/ttyUSB0?addr=7
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, errors.New("empty instrument address")
	}
	if !strings.Contains(s, "://") {
		s = "tcp://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return Address{}, fmt.Errorf("parse instrument address %q: %w", s, err)
	}

	a := Address{Transport: strings.ToLower(u.Scheme)}
	switch a.Transport {
	case TransportTCP:
		if u.Host == "" {
			return Address{}, fmt.Errorf("instrument address %q has no host", s)
		}
		a.Host = u.Host
		if u.Port() == "" {
			a.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(DefaultPort))
		}
		return a, nil

	case TransportUSBTMC, TransportSerial, TransportPrologix:
		a.Path = u.Path
		if a.Path == "" {
			return Address{}, fmt.Errorf("instrument address %q has no device path", s)
		}
	default:
		return Address{}, fmt.Errorf("unsupported instrument transport %q", u.Scheme)
	}

	q := u.Query()
	if a.Transport == TransportSerial {
		if v := q.Get("baud"); v != "" {
			baud, err := strconv.Atoi(v)
			if err != nil || baud <= 0 {
				return Address{}, fmt.Errorf("invalid baud rate %q", v)
			}
			a.Serial.BaudRate = baud
		}
		a.Serial.Parity = q.Get("parity")
		if _, err := a.Serial.Normalize(); err != nil {
			return Address{}, err
		}
	}
	if a.Transport == TransportPrologix {
		v := q.Get("addr")
		if v == "" {
			return Address{}, fmt.Errorf("prologix address %q needs ?addr=<gpib address>", s)
		}
		gpib, err := strconv.Atoi(v)
		if err != nil || gpib < 0 || gpib > 30 {
			return Address{}, fmt.Errorf("invalid GPIB address %q", v)
		}
		a.GPIB = gpib
	}
	return a, nil
}

// Dial opens a session to the instrument at addr. timeout bounds each
// query; zero means DefaultTimeout.
func Dial(ctx context.Context, addr string, timeout time.Duration) (Conn, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}

	switch a.Transport {
	case TransportTCP:
		var d net.Dialer
		nc, err := d.DialContext(ctx, "tcp", a.Host)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", a, err)
		}
		return newLineConn(a.Host, nc, timeout), nil

	case TransportUSBTMC:
		f, err := os.OpenFile(a.Path, os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", a, err)
		}
		return newLineConn(a.Path, f, timeout), nil

	case TransportSerial:
		port, err := serialmux.OpenPort(a.Path, a.Serial)
		if err != nil {
			return nil, err
		}
		return newLineConn(a.Path, port, timeout), nil

	case TransportPrologix:
		return dialPrologix(a)
	}
	return nil, fmt.Errorf("unsupported instrument transport %q", a.Transport)
}

// gpibConn drives an instrument through a Prologix GPIB-USB controller.
type gpibConn struct {
	port io.ReadWriteCloser
	ctl  *prologix.Controller
}

func dialPrologix(a Address) (Conn, error) {
	port, err := vcp.NewVCP(a.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a, err)
	}
	ctl, err := prologix.NewController(port, a.GPIB, false)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("prologix controller at %s: %w", a, err)
	}
	return &lockedConn{Conn: &gpibConn{port: port, ctl: ctl}}, nil
}

func (g *gpibConn) Command(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := g.ctl.Command("%s", cmd); err != nil {
		return fmt.Errorf("gpib write %q: %w", cmd, err)
	}
	return nil
}

func (g *gpibConn) Query(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	reply, err := g.ctl.Query(cmd)
	// the controller reports io.EOF along with a complete reply
	if err != nil && !(errors.Is(err, io.EOF) && reply != "") {
		return "", fmt.Errorf("gpib query %q: %w", cmd, err)
	}
	return strings.TrimRight(reply, "\r\n"), nil
}

func (g *gpibConn) Close() error {
	if err := g.ctl.FrontPanel(true); err != nil {
		monitoring.Logf("prologix: return to front panel: %v", err)
	}
	return g.port.Close()
}
