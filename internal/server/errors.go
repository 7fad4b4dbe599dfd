package server

import (
	"errors"

	"github.com/kstaniek/fluentgate/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrListen       = errors.New("listen")
	ErrAccept       = errors.New("accept")
	ErrHandshake    = errors.New("handshake")
	ErrConnRead     = errors.New("conn_read")
	ErrSinkSend     = errors.New("sink_send")
	ErrContext      = errors.New("context_cancelled")
	ErrNotConfigured = errors.New("server not configured")
)

// mapErrToMetric maps wrapped sentinel errors to metrics labels.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrConnRead):
		return metrics.ErrTCPRead
	case errors.Is(err, ErrHandshake):
		return metrics.ErrHandshake
	case errors.Is(err, ErrSinkSend):
		return metrics.ErrSinkSend
	case errors.Is(err, ErrAccept), errors.Is(err, ErrListen):
		return metrics.ErrBind
	case errors.Is(err, ErrContext):
		return "context"
	default:
		return "other"
	}
}
