package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/fluentgate/internal/listenaddr"
)

type appConfig struct {
	listenAddr   string
	tlsCert      string
	tlsKey       string
	keepalive    time.Duration
	recvBufBytes int

	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration

	sinkBuffer int
	sinkPolicy string

	maxClients    int
	handshakeTO   time.Duration
	readIdleTO    time.Duration
	shutdownGrace time.Duration

	mdnsEnable bool
	mdnsName   string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	listen := flag.String("listen", "0.0.0.0:24224", "Listen address: host:port, \"systemd\", or \"systemd#N\"")
	tlsCert := flag.String("tls-cert", "", "TLS certificate file (enables TLS when set with -tls-key)")
	tlsKey := flag.String("tls-key", "", "TLS private key file")
	keepalive := flag.Duration("keepalive", 0, "Per-connection TCP keepalive interval (0 disables)")
	recvBuf := flag.Int("receive-buffer-bytes", 0, "SO_RCVBUF hint per accepted socket (0 = OS default)")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters")
	sinkBuffer := flag.Int("sink-buffer", 1024, "Downstream sink buffer size (events)")
	sinkPolicy := flag.String("sink-policy", "block", "Backpressure policy when the sink buffer is full: block|drop")
	maxClients := flag.Int("max-clients", 0, "Maximum simultaneous connections (0 = unlimited)")
	handshakeTO := flag.Duration("handshake-timeout", 3*time.Second, "TLS handshake timeout")
	readIdleTO := flag.Duration("read-idle-timeout", 60*time.Second, "Per-connection read idle timeout")
	shutdownGrace := flag.Duration("shutdown-grace", 30*time.Second, "Tripwire duration after shutdown signal before forcing connections closed")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS advertisement of the Fluent listener")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default fluentgate-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.listenAddr = *listen
	cfg.tlsCert = *tlsCert
	cfg.tlsKey = *tlsKey
	cfg.keepalive = *keepalive
	cfg.recvBufBytes = *recvBuf
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.sinkBuffer = *sinkBuffer
	cfg.sinkPolicy = *sinkPolicy
	cfg.maxClients = *maxClients
	cfg.handshakeTO = *handshakeTO
	cfg.readIdleTO = *readIdleTO
	cfg.shutdownGrace = *shutdownGrace
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs semantic range/enum checks only; it never touches the
// network or filesystem.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.sinkPolicy {
	case "block", "drop":
	default:
		return fmt.Errorf("invalid sink-policy: %s", c.sinkPolicy)
	}
	if c.sinkBuffer <= 0 {
		return fmt.Errorf("sink-buffer must be > 0 (got %d)", c.sinkBuffer)
	}
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("tls-cert and tls-key must be set together")
	}
	if _, err := listenaddr.Parse(c.listenAddr); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}
	if c.handshakeTO <= 0 {
		return fmt.Errorf("handshake-timeout must be > 0")
	}
	if c.readIdleTO <= 0 {
		return fmt.Errorf("read-idle-timeout must be > 0")
	}
	if c.shutdownGrace <= 0 {
		return fmt.Errorf("shutdown-grace must be > 0")
	}
	if c.maxClients < 0 {
		return fmt.Errorf("max-clients must be >= 0")
	}
	if c.recvBufBytes < 0 {
		return fmt.Errorf("receive-buffer-bytes must be >= 0")
	}
	if c.keepalive < 0 {
		return fmt.Errorf("keepalive must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps FLUENTGATE_* environment variables to config fields
// unless a corresponding flag was explicitly set. Boolean & numeric parsing
// is lax: empty values ignored. Duration accepts Go time.ParseDuration format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["listen"]; !ok {
		if v, ok := get("FLUENTGATE_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["tls-cert"]; !ok {
		if v, ok := get("FLUENTGATE_TLS_CERT"); ok {
			c.tlsCert = v
		}
	}
	if _, ok := set["tls-key"]; !ok {
		if v, ok := get("FLUENTGATE_TLS_KEY"); ok {
			c.tlsKey = v
		}
	}
	if _, ok := set["keepalive"]; !ok {
		if v, ok := get("FLUENTGATE_KEEPALIVE"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.keepalive = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid FLUENTGATE_KEEPALIVE: %w", err)
			}
		}
	}
	if _, ok := set["receive-buffer-bytes"]; !ok {
		if v, ok := get("FLUENTGATE_RECEIVE_BUFFER_BYTES"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				c.recvBufBytes = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid FLUENTGATE_RECEIVE_BUFFER_BYTES: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("FLUENTGATE_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("FLUENTGATE_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("FLUENTGATE_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("FLUENTGATE_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid FLUENTGATE_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["sink-buffer"]; !ok {
		if v, ok := get("FLUENTGATE_SINK_BUFFER"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.sinkBuffer = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid FLUENTGATE_SINK_BUFFER: %w", err)
			}
		}
	}
	if _, ok := set["sink-policy"]; !ok {
		if v, ok := get("FLUENTGATE_SINK_POLICY"); ok && v != "" {
			c.sinkPolicy = v
		}
	}
	if _, ok := set["max-clients"]; !ok {
		if v, ok := get("FLUENTGATE_MAX_CLIENTS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				c.maxClients = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid FLUENTGATE_MAX_CLIENTS: %w", err)
			}
		}
	}
	if _, ok := set["handshake-timeout"]; !ok {
		if v, ok := get("FLUENTGATE_HANDSHAKE_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.handshakeTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid FLUENTGATE_HANDSHAKE_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["read-idle-timeout"]; !ok {
		if v, ok := get("FLUENTGATE_READ_IDLE_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.readIdleTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid FLUENTGATE_READ_IDLE_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["shutdown-grace"]; !ok {
		if v, ok := get("FLUENTGATE_SHUTDOWN_GRACE"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.shutdownGrace = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid FLUENTGATE_SHUTDOWN_GRACE: %w", err)
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("FLUENTGATE_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("FLUENTGATE_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	return firstErr
}
