package fluent

import "errors"

// Sentinel errors produced by the decoder. Wrapped with fmt.Errorf("%w: ...")
// at call sites so callers can classify via errors.Is.
var (
	ErrDecode                   = errors.New("fluent: msgpack decode")
	ErrUnknownCompression       = errors.New("fluent: unknown compression")
	ErrUnexpectedHeartbeatValue = errors.New("fluent: unexpected heartbeat value")
	ErrUnexpectedShape          = errors.New("fluent: unrecognized message shape")
	ErrBadEventTime             = errors.New("fluent: malformed event time extension")
)

// IsFatal reports whether err should terminate the connection outright
// (true) or merely be logged and skipped so the stream can continue
// (false). I/O errors from the underlying reader are fatal; every decode-
// layer error is recoverable because the offending message has already
// been fully consumed off the wire by the time it surfaces.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrDecode),
		errors.Is(err, ErrUnknownCompression),
		errors.Is(err, ErrUnexpectedHeartbeatValue),
		errors.Is(err, ErrUnexpectedShape),
		errors.Is(err, ErrBadEventTime):
		return false
	default:
		return true
	}
}
