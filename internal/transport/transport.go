// Package transport defines the small interfaces that decouple the
// connection-handling server loop from the wire codec and the event sink,
// so the server package never imports the Fluent decoder directly.
package transport

import (
	"io"

	"github.com/kstaniek/fluentgate/internal/event"
	"github.com/kstaniek/fluentgate/internal/fluent"
)

// EventDecoder decodes a single Frame from a stream. Decode may block
// waiting for more bytes; that block IS the "need more data" case.
type EventDecoder interface {
	Decode(r io.Reader) (fluent.Frame, error)
}

// NoFrameClassifier recognizes the decoder's "decoded fine, produced no
// frame" signal (a bare heartbeat), which the reader loop must treat as
// "call Decode again immediately" rather than as an error or EOF.
type NoFrameClassifier interface {
	IsNoFrame(err error) bool
}

// FatalClassifier distinguishes a connection-fatal error (log and close
// the connection) from a recoverable one (log, skip the message, keep
// reading). For this codec I/O errors are fatal and decode-layer errors
// are not (see fluent.IsFatal); this interface keeps that policy explicit
// and swappable rather than hardcoded in the reader loop.
type FatalClassifier interface {
	IsFatal(err error) bool
}

// EventBuilder turns a decoded Frame plus the originating connection's
// peer host into the normalized Event the sink consumes.
type EventBuilder interface {
	Build(peerHost string, f fluent.Frame) event.Event
}

// EventSink is a generic downstream event delivery target. Implementations
// may apply backpressure (block) or shed load (drop); see internal/sink.
type EventSink interface {
	SendEvent(event.Event) error
}

// Compile-time assertions that the concrete fluent decoder satisfies the
// optional capabilities the reader loop probes for.
var (
	_ EventDecoder      = (*fluent.Decoder)(nil)
	_ NoFrameClassifier = (*fluent.Decoder)(nil)
	_ FatalClassifier   = (*fluent.Decoder)(nil)
	_ NoFrameClassifier = fluentNoFrame{}
	_ FatalClassifier   = fluentFatal{}
	_ EventBuilder      = DefaultBuilder{}
)

type fluentNoFrame struct{}

func (fluentNoFrame) IsNoFrame(err error) bool { return fluent.IsNoFrame(err) }

type fluentFatal struct{}

func (fluentFatal) IsFatal(err error) bool { return fluent.IsFatal(err) }

// DefaultBuilder converts a fluent.Frame into an event.Event, stamping the
// host from the connection's peer address.
type DefaultBuilder struct{}

func (DefaultBuilder) Build(peerHost string, f fluent.Frame) event.Event {
	return event.Event{
		Host:      peerHost,
		Timestamp: f.Timestamp,
		Tag:       f.Tag,
		Record:    f.Record,
	}
}
