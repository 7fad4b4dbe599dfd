// Package listenaddr parses and resolves the Fluent source's listen
// address grammar: a concrete host:port, or a systemd-inherited file
// descriptor index.
package listenaddr

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/v22/activation"
)

// Kind distinguishes the two address shapes.
type Kind int

const (
	KindSocketAddr Kind = iota
	KindSystemdFD
)

// Addr is a sum over a TCP host:port and a systemd-inherited listener
// index: "<ip>:<port>", "systemd" (index 0), and "systemd#N" (one-based,
// index N-1; N=0 is an error).
type Addr struct {
	Kind   Kind
	Socket string // set when Kind == KindSocketAddr
	Offset int    // set when Kind == KindSystemdFD, zero-based
}

// ErrSystemdZeroIndex is returned when "systemd#0" is parsed; indices are
// one-based so N=0 is always an error.
var ErrSystemdZeroIndex = errors.New("listenaddr: systemd indices start from 1, found 0")

// Parse recognizes "<host>:<port>", "systemd", and "systemd#N".
func Parse(s string) (Addr, error) {
	switch {
	case s == "systemd":
		return Addr{Kind: KindSystemdFD, Offset: 0}, nil
	case strings.HasPrefix(s, "systemd#"):
		n, err := strconv.Atoi(s[len("systemd#"):])
		if err != nil {
			return Addr{}, fmt.Errorf("listenaddr: invalid systemd index: %w", err)
		}
		if n == 0 {
			return Addr{}, ErrSystemdZeroIndex
		}
		return Addr{Kind: KindSystemdFD, Offset: n - 1}, nil
	case strings.HasPrefix(s, "systemd"):
		return Addr{}, errors.New(`listenaddr: must start with "systemd"`)
	default:
		if _, _, err := net.SplitHostPort(s); err != nil {
			return Addr{}, fmt.Errorf("listenaddr: %w", err)
		}
		return Addr{Kind: KindSocketAddr, Socket: s}, nil
	}
}

// String renders the address back to its wire grammar; round-tripping
// Parse(a.String()) preserves Offset modulo the zero rule.
func (a Addr) String() string {
	switch a.Kind {
	case KindSystemdFD:
		if a.Offset == 0 {
			return "systemd"
		}
		return fmt.Sprintf("systemd#%d", a.Offset+1)
	default:
		return a.Socket
	}
}

// Listen binds a.
//
// For KindSocketAddr this is a plain net.Listen("tcp", ...). For
// KindSystemdFD it takes the Offset-th listener handed down by systemd
// socket activation (LISTEN_FDS/LISTEN_PID in the environment); it fails
// if that listener is absent or was already claimed by an earlier call.
func (a Addr) Listen() (net.Listener, error) {
	switch a.Kind {
	case KindSocketAddr:
		ln, err := net.Listen("tcp", a.Socket)
		if err != nil {
			return nil, fmt.Errorf("listenaddr: bind %s: %w", a.Socket, err)
		}
		return ln, nil
	case KindSystemdFD:
		listeners, err := activation.Listeners()
		if err != nil {
			return nil, fmt.Errorf("listenaddr: systemd activation: %w", err)
		}
		if a.Offset >= len(listeners) || listeners[a.Offset] == nil {
			return nil, fmt.Errorf("listenaddr: no systemd listener at index %d (have %d)", a.Offset, len(listeners))
		}
		return listeners[a.Offset], nil
	default:
		return nil, fmt.Errorf("listenaddr: unknown kind %d", a.Kind)
	}
}
