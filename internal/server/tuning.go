package server

import (
	"crypto/tls"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// underlyingTCPConn unwraps conn down to the *net.TCPConn backing it, if
// any. A TLS connection reports its handshake-layer type from Conn(), not
// the raw socket, so tls.Conn.NetConn() is tried first before the plain
// type assertion.
func underlyingTCPConn(conn net.Conn) (*net.TCPConn, bool) {
	if tlsConn, ok := conn.(*tls.Conn); ok {
		conn = tlsConn.NetConn()
	}
	tcp, ok := conn.(*net.TCPConn)
	return tcp, ok
}

// tuneConn applies best-effort socket tuning to an accepted connection:
// TCP keepalive (if configured) and a receive-buffer size hint. Failures
// are logged as warnings and never abort the connection.
func (s *Server) tuneConn(conn net.Conn, logger *slog.Logger) {
	tcp, ok := underlyingTCPConn(conn)
	if !ok {
		return
	}

	if s.keepAlive > 0 {
		if err := setKeepAlive(tcp, s.keepAlive); err != nil {
			logger.Warn("keepalive_tune_failed", "error", err)
		}
	}
	if s.receiveBufferBytes > 0 {
		if err := setReceiveBuffer(tcp, s.receiveBufferBytes); err != nil {
			logger.Warn("recv_buffer_tune_failed", "error", err)
		}
	}
}

func setKeepAlive(tcp *net.TCPConn, period time.Duration) error {
	raw, err := tcp.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
		if sockErr != nil {
			return
		}
		secs := int(period.Seconds())
		if secs < 1 {
			secs = 1
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, secs)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}

func setReceiveBuffer(tcp *net.TCPConn, bytes int) error {
	raw, err := tcp.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bytes)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}
