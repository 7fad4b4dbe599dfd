package server

import (
	"context"
	"crypto/tls"
	"net"
)

// handshake performs the TLS handshake when the connection is a TLS
// listener's *tls.Conn, racing it against both the handshake timeout and
// the server's shutdown context. Plain TCP connections (tlsConfig unset)
// are a no-op here.
func (s *Server) handshake(ctx context.Context, c net.Conn) error {
	tlsConn, ok := c.(*tls.Conn)
	if !ok {
		return nil
	}
	hctx, cancel := context.WithTimeout(ctx, s.handshakeTimeout)
	defer cancel()
	return tlsConn.HandshakeContext(hctx)
}
