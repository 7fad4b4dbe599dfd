package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/fluentgate/internal/metrics"
	"github.com/kstaniek/fluentgate/internal/transport"
)

// startReader launches the goroutine that decodes frames off conn and
// forwards the resulting events to the sink.
func (s *Server) startReader(ctx context.Context, connID uint64, conn net.Conn, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.closeConn(connID, conn, logger)

		dec := s.newDecoder()
		noFrame, _ := dec.(transport.NoFrameClassifier)
		fatal, _ := dec.(transport.FatalClassifier)

		peerHost := peerHostOf(conn)
		sinkBroken := false

		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.readIdleTimeout))
			fr, err := dec.Decode(conn)
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					return
				}
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					select {
					case <-ctx.Done():
						return
					default:
					}
					continue
				}
				if noFrame != nil && noFrame.IsNoFrame(err) {
					continue // heartbeat or other empty-frame decode: try again immediately
				}

				isFatal := true
				if fatal != nil {
					isFatal = fatal.IsFatal(err)
				}
				if isFatal {
					wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
					metrics.IncError(mapErrToMetric(wrap))
					s.setError(wrap)
					logger.Warn("connection_read_error", "error", wrap)
					return
				}
				s.totalDecodeErrors.Add(1)
				metrics.IncDecodeError()
				logger.Warn("decode_error_skipped", "error", err)
				continue
			}

			if sinkBroken {
				// Sink already failed for this connection; keep draining reads
				// so the peer observes a clean close instead of a reset,
				// without building further events.
				continue
			}

			metrics.IncEventsReceived()
			ev := s.builder.Build(peerHost, fr)
			if err := s.sink.SendEvent(ev); err != nil {
				s.totalSinkErrors.Add(1)
				metrics.IncSinkSendError()
				logger.Warn("sink_send_failed", "error", err)
				sinkBroken = true
			}

			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()
}

func (s *Server) closeConn(connID uint64, conn net.Conn, logger *slog.Logger) {
	_ = conn.Close()
	s.connsMu.Lock()
	delete(s.conns, connID)
	s.connsMu.Unlock()
	s.totalDisconnected.Add(1)
	metrics.SetActiveConnections(s.ActiveConnections())
	logger.Info("connection_closed")
}

func peerHostOf(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
