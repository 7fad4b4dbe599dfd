// Package server implements the reusable TCP source runtime: an accept
// loop with optional TLS, per-connection socket tuning, framed decoding
// driven by a pluggable transport.EventDecoder, and a two-clock shutdown
// protocol (immediate accept-halt plus a grace-duration tripwire). It is
// deliberately ignorant of the Fluent Forward wire format — the decoder,
// event builder, and sink are all supplied by the caller via transport's
// interfaces, so the same runtime could host a different wire protocol by
// swapping those three.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/fluentgate/internal/logging"
	"github.com/kstaniek/fluentgate/internal/metrics"
	"github.com/kstaniek/fluentgate/internal/transport"
)

// DecoderFactory builds a fresh per-connection decoder. A decoder carries
// state across its lifetime (the pending-frame queue), so the runtime
// never shares one across connections.
type DecoderFactory func() transport.EventDecoder

// Server owns the TCP listener and coordinates connection lifecycle.
type Server struct {
	mu         sync.RWMutex
	addr       string
	listenerOv net.Listener // pre-built listener (e.g. from listenaddr.Addr.Listen); overrides addr when set

	sink       transport.EventSink
	newDecoder DecoderFactory
	builder    transport.EventBuilder
	tlsConfig  *tls.Config

	keepAlive          time.Duration
	receiveBufferBytes int
	readIdleTimeout    time.Duration
	handshakeTimeout   time.Duration
	shutdownGrace      time.Duration
	maxClients         int

	readyOnce sync.Once
	readyCh   chan struct{}
	lastErrMu sync.Mutex
	lastErr   error
	errCh     chan error

	listener net.Listener

	connsMu sync.RWMutex
	conns   map[uint64]net.Conn

	wg         sync.WaitGroup
	logger     *slog.Logger
	nextConnID uint64

	totalAccepted      atomic.Uint64
	totalHandshakeFail atomic.Uint64
	totalConnected     atomic.Uint64
	totalDisconnected  atomic.Uint64
	totalRejected      atomic.Uint64
	totalDecodeErrors  atomic.Uint64
	totalSinkErrors    atomic.Uint64
}

const (
	defaultReadIdleTimeout  = 60 * time.Second
	defaultHandshakeTimeout = 3 * time.Second
	defaultShutdownGrace    = 30 * time.Second
)

type ServerOption func(*Server)

func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		readIdleTimeout:  defaultReadIdleTimeout,
		handshakeTimeout: defaultHandshakeTimeout,
		shutdownGrace:    defaultShutdownGrace,
		readyCh:          make(chan struct{}),
		errCh:            make(chan error, 1),
		conns:            make(map[uint64]net.Conn),
		logger:           logging.L(),
		builder:          transport.DefaultBuilder{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.addr == "" {
		s.addr = ":0"
	}
	return s
}

func WithListenAddr(a string) ServerOption           { return func(s *Server) { s.addr = a } }
func WithListener(ln net.Listener) ServerOption      { return func(s *Server) { s.listenerOv = ln } }
func WithSink(sink transport.EventSink) ServerOption { return func(s *Server) { s.sink = sink } }
func WithDecoderFactory(f DecoderFactory) ServerOption {
	return func(s *Server) { s.newDecoder = f }
}
func WithEventBuilder(b transport.EventBuilder) ServerOption {
	return func(s *Server) {
		if b != nil {
			s.builder = b
		}
	}
}
func WithTLSConfig(c *tls.Config) ServerOption { return func(s *Server) { s.tlsConfig = c } }

func WithKeepAlive(d time.Duration) ServerOption {
	return func(s *Server) { s.keepAlive = d }
}

func WithReceiveBufferBytes(n int) ServerOption {
	return func(s *Server) { s.receiveBufferBytes = n }
}

func WithReadIdleTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.readIdleTimeout = d
		}
	}
}

func WithHandshakeTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.handshakeTimeout = d
		}
	}
}

func WithShutdownGrace(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.shutdownGrace = d
		}
	}
}

func WithMaxClients(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxClients = n
		}
	}
}

func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func (s *Server) Addr() string           { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) setAddr(a string)       { s.mu.Lock(); s.addr = a; s.mu.Unlock() }
func (s *Server) SetListenAddr(a string) { s.setAddr(a) }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }
func (s *Server) Errors() <-chan error   { return s.errCh }

func (s *Server) setError(err error) {
	if err == nil {
		return
	}
	s.lastErrMu.Lock()
	s.lastErr = err
	s.lastErrMu.Unlock()
	select {
	case s.errCh <- err:
	default:
	}
}
func (s *Server) LastError() error { s.lastErrMu.Lock(); defer s.lastErrMu.Unlock(); return s.lastErr }

// ActiveConnections returns the current open-connection count.
func (s *Server) ActiveConnections() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// Serve accepts Fluent Forward clients and spawns a reader goroutine per
// connection. It returns nil on a clean shutdown (ctx cancellation) and a
// non-nil error on a fatal bind failure.
func (s *Server) Serve(ctx context.Context) error {
	if s.newDecoder == nil || s.sink == nil {
		return ErrNotConfigured
	}

	ln := s.listenerOv
	if ln == nil {
		s.mu.Lock()
		addr := s.addr
		if addr == "" {
			addr = ":0"
		}
		s.mu.Unlock()
		bound, err := net.Listen("tcp", addr)
		if err != nil {
			wrap := fmt.Errorf("%w: %v", ErrListen, err)
			metrics.IncError(mapErrToMetric(wrap))
			s.setError(wrap)
			return wrap
		}
		ln = bound
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.setAddr(ln.Addr().String())
	if s.readyCh != nil {
		s.readyOnce.Do(func() { close(s.readyCh) })
	}
	s.logger.Info("tcp_listen", "addr", s.Addr())
	s.logger.Info("ready")

	go func() { <-ctx.Done(); _ = ln.Close() }()

	for {
		if err := s.acceptOnce(ctx, ln); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// acceptOnce accepts a single connection, tunes it, performs the TLS
// handshake (if configured), registers it and spawns its reader.
func (s *Server) acceptOnce(ctx context.Context, ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}
		if _, ok := err.(net.Error); ok { // transient
			time.Sleep(200 * time.Millisecond)
			return nil
		}
		wrap := fmt.Errorf("%w: %v", ErrAccept, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}

	s.totalAccepted.Add(1)
	metrics.IncConnectionAccepted()
	connID := atomic.AddUint64(&s.nextConnID, 1)
	connLogger := s.logger.With("conn_id", connID, "remote", conn.RemoteAddr().String())

	if s.maxClients > 0 && s.ActiveConnections() >= s.maxClients {
		s.totalRejected.Add(1)
		metrics.IncConnectionRejected()
		connLogger.Warn("connection_reject_max", "max_clients", s.maxClients)
		_ = conn.Close()
		return nil
	}

	s.tuneConn(conn, connLogger)

	if err := s.handshake(ctx, conn); err != nil {
		wrap := fmt.Errorf("%w: %v", ErrHandshake, err)
		metrics.IncError(mapErrToMetric(wrap))
		metrics.IncHandshakeFailure()
		s.setError(wrap)
		s.totalHandshakeFail.Add(1)
		connLogger.Warn("handshake_failed", "error", wrap)
		_ = conn.Close()
		return nil
	}

	s.connsMu.Lock()
	s.conns[connID] = conn
	s.connsMu.Unlock()
	s.totalConnected.Add(1)
	metrics.SetActiveConnections(s.ActiveConnections())
	connLogger.Info("connection_opened")

	s.startReader(ctx, connID, conn, connLogger)
	return nil
}

// Shutdown halts the accept loop, half-closes every open connection's
// write side, then waits for connections to drain — forcing closed any
// still open once shutdownGrace elapses (the tripwire) or ctx expires
// first, whichever is sooner.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}

	s.connsMu.RLock()
	conns := make([]net.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.connsMu.RUnlock()
	for _, c := range conns {
		if tcp, ok := underlyingTCPConn(c); ok {
			_ = tcp.CloseWrite()
		}
	}

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()

	tripwire := time.NewTimer(s.shutdownGrace)
	defer tripwire.Stop()

	select {
	case <-done:
		s.logSummary()
		return nil
	case <-ctx.Done():
		s.forceCloseAll()
		return fmt.Errorf("%w: shutdown timeout: %v", ErrContext, ctx.Err())
	case <-tripwire.C:
		s.forceCloseAll()
		<-done
		s.logSummary()
		return nil
	}
}

func (s *Server) forceCloseAll() {
	s.connsMu.Lock()
	for id, c := range s.conns {
		_ = c.Close()
		delete(s.conns, id)
	}
	s.connsMu.Unlock()
}

func (s *Server) logSummary() {
	s.logger.Info("shutdown_summary",
		"accepted", s.totalAccepted.Load(),
		"handshake_fail", s.totalHandshakeFail.Load(),
		"connected", s.totalConnected.Load(),
		"disconnected", s.totalDisconnected.Load(),
		"rejected", s.totalRejected.Load(),
		"decode_errors", s.totalDecodeErrors.Load(),
		"sink_errors", s.totalSinkErrors.Load(),
	)
}
