package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/fluentgate/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	EventsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fluent_events_received_total",
		Help: "Total normalized events decoded from Fluent Forward connections.",
	})
	EntriesDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fluent_entries_decoded_total",
		Help: "Total entries decoded by the Entry-Stream sub-decoder.",
	})
	EntryBytesDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fluent_entry_bytes_decoded_total",
		Help: "Total encoded bytes consumed per decoded entry.",
	})
	SinkDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fluent_sink_dropped_total",
		Help: "Total events dropped by the downstream sink under a Drop backpressure policy.",
	})
	SinkSendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fluent_sink_send_errors_total",
		Help: "Total events that failed delivery to the downstream sink.",
	})
	ConnectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fluent_connections_accepted_total",
		Help: "Total TCP connections accepted.",
	})
	ConnectionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fluent_connections_rejected_total",
		Help: "Total connection attempts rejected (e.g. max-clients cap).",
	})
	HandshakeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fluent_handshake_failures_total",
		Help: "Total TLS handshake failures.",
	})
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fluent_active_connections",
		Help: "Current number of open Fluent Forward connections.",
	})
	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fluent_decode_errors_total",
		Help: "Total non-fatal decode errors (malformed message, unknown compression, etc).",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed frames (protocol violations, invalid length, truncated).",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrTCPRead     = "tcp_read"
	ErrTCPWrite    = "tcp_write"
	ErrHandshake   = "handshake"
	ErrDecode      = "decode"
	ErrCompression = "compression"
	ErrSinkSend    = "sink_send"
	ErrBind        = "bind"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready
// on addr, using a mux of its own, from a background goroutine, and
// returns the http.Server so the caller can shut it down.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localEventsReceived  uint64
	localEntriesDecoded  uint64
	localSinkDropped     uint64
	localSinkSendErrors  uint64
	localConnsAccepted   uint64
	localConnsRejected   uint64
	localHandshakeFail   uint64
	localActiveConns     uint64
	localDecodeErrors    uint64
	localErrors          uint64
	localMalformed       uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	EventsReceived      uint64
	EntriesDecoded      uint64
	SinkDropped         uint64
	SinkSendErrors      uint64
	ConnectionsAccepted uint64
	ConnectionsRejected uint64
	HandshakeFailures   uint64
	ActiveConnections   uint64
	DecodeErrors        uint64
	Errors              uint64 // sum across error labels
	Malformed           uint64
}

func Snap() Snapshot {
	return Snapshot{
		EventsReceived:      atomic.LoadUint64(&localEventsReceived),
		EntriesDecoded:      atomic.LoadUint64(&localEntriesDecoded),
		SinkDropped:         atomic.LoadUint64(&localSinkDropped),
		SinkSendErrors:      atomic.LoadUint64(&localSinkSendErrors),
		ConnectionsAccepted: atomic.LoadUint64(&localConnsAccepted),
		ConnectionsRejected: atomic.LoadUint64(&localConnsRejected),
		HandshakeFailures:   atomic.LoadUint64(&localHandshakeFail),
		ActiveConnections:   atomic.LoadUint64(&localActiveConns),
		DecodeErrors:        atomic.LoadUint64(&localDecodeErrors),
		Errors:              atomic.LoadUint64(&localErrors),
		Malformed:           atomic.LoadUint64(&localMalformed),
	}
}

func IncEventsReceived() {
	EventsReceived.Inc()
	atomic.AddUint64(&localEventsReceived, 1)
}

func IncEntryDecoded(byteSize int) {
	EntriesDecoded.Inc()
	EntryBytesDecoded.Add(float64(byteSize))
	atomic.AddUint64(&localEntriesDecoded, 1)
}

func IncSinkDropped() {
	SinkDropped.Inc()
	atomic.AddUint64(&localSinkDropped, 1)
}

func IncSinkSendError() {
	SinkSendErrors.Inc()
	atomic.AddUint64(&localSinkSendErrors, 1)
}

func IncConnectionAccepted() {
	ConnectionsAccepted.Inc()
	atomic.AddUint64(&localConnsAccepted, 1)
}

func IncConnectionRejected() {
	ConnectionsRejected.Inc()
	atomic.AddUint64(&localConnsRejected, 1)
}

func IncHandshakeFailure() {
	HandshakeFailures.Inc()
	atomic.AddUint64(&localHandshakeFail, 1)
}

func SetActiveConnections(n int) {
	ActiveConnections.Set(float64(n))
	atomic.StoreUint64(&localActiveConns, uint64(n))
}

func IncDecodeError() {
	DecodeErrors.Inc()
	atomic.AddUint64(&localDecodeErrors, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{
		ErrTCPRead, ErrTCPWrite, ErrHandshake, ErrDecode, ErrCompression, ErrSinkSend, ErrBind,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
