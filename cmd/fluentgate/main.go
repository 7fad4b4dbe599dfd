package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kstaniek/fluentgate/internal/fluent"
	"github.com/kstaniek/fluentgate/internal/listenaddr"
	"github.com/kstaniek/fluentgate/internal/metrics"
	"github.com/kstaniek/fluentgate/internal/server"
	"github.com/kstaniek/fluentgate/internal/transport"
)

// Helper implementations live in dedicated files: version.go, config.go,
// logger.go, sink_init.go, mdns.go, metrics_logger.go.

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("fluentgate %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	l := setupLogger(cfg.logFormat, cfg.logLevel)
	snk := initSink(cfg, l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	addr, err := listenaddr.Parse(cfg.listenAddr)
	if err != nil {
		l.Error("listen_addr_parse_error", "error", err)
		return
	}
	ln, err := addr.Listen()
	if err != nil {
		l.Error("listen_error", "error", err)
		return
	}

	opts := []server.ServerOption{
		server.WithListener(ln),
		server.WithSink(snk),
		server.WithDecoderFactory(func() transport.EventDecoder { return fluent.NewDecoder() }),
		server.WithLogger(l),
		server.WithMaxClients(cfg.maxClients),
		server.WithHandshakeTimeout(cfg.handshakeTO),
		server.WithReadIdleTimeout(cfg.readIdleTO),
		server.WithShutdownGrace(cfg.shutdownGrace),
		server.WithKeepAlive(cfg.keepalive),
		server.WithReceiveBufferBytes(cfg.recvBufBytes),
	}
	if cfg.tlsCert != "" && cfg.tlsKey != "" {
		cert, cerr := tls.LoadX509KeyPair(cfg.tlsCert, cfg.tlsKey)
		if cerr != nil {
			l.Error("tls_load_error", "error", cerr)
			return
		}
		opts = append(opts, server.WithTLSConfig(&tls.Config{Certificates: []tls.Certificate{cert}}))
	}

	srv := server.NewServer(opts...)
	go func() {
		if err := srv.Serve(ctx); err != nil {
			l.Error("tcp_server_error", "error", err)
			cancel()
		}
	}()

	go func() {
		if !cfg.mdnsEnable {
			return
		}
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return
		}
		addr := srv.Addr()
		var portNum int
		if _, p, err := net.SplitHostPort(addr); err == nil {
			if pn, perr := strconv.Atoi(p); perr == nil {
				portNum = pn
			}
		}
		if portNum == 0 {
			lastColon := strings.LastIndex(addr, ":")
			if lastColon >= 0 {
				if pn, perr := strconv.Atoi(addr[lastColon+1:]); perr == nil {
					portNum = pn
				}
			}
		}
		cleanupMDNS, err := startMDNS(ctx, cfg, portNum)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", portNum)
		go func() { <-ctx.Done(); cleanupMDNS() }()
	}()

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.shutdownGrace+5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Warn("shutdown_error", "error", err)
	}
	snk.Close()
	wg.Wait()
}
