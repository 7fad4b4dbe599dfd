package fluent

import (
	"errors"
	"fmt"
	"io"
	"net"
	"reflect"

	"github.com/ugorji/go/codec"

	"github.com/kstaniek/fluentgate/internal/metrics"
)

// newHandle builds the shared MessagePack handle configuration: maps decode
// to map[string]interface{} (not map[interface{}]interface{}) so record
// keys land as plain Go strings whenever they are already strings on the
// wire, and raw/str family bytes decode to Go string rather than []byte so
// tags compare cleanly.
func newHandle() *codec.MsgpackHandle {
	mh := &codec.MsgpackHandle{}
	mh.MapType = reflect.TypeOf(map[string]interface{}(nil))
	mh.RawToString = true
	return mh
}

// Decoder is a per-connection Fluent Forward decoder. It owns a FIFO queue
// of pending frames so that a single multi-entry message (Forward,
// PackedForward) can be drained one frame per Decode call while keeping the
// outer connection loop uniform.
//
// A Decoder is bound to one io.Reader for its lifetime: the first Decode
// call wraps the reader in a persistent msgpack decoder, and every
// subsequent call reuses it. A blocked Read on the connection is the "need
// more bytes" case, so there is no separate sentinel return value to thread
// through.
type Decoder struct {
	mh      *codec.MsgpackHandle
	dec     *codec.Decoder
	pending []Frame
}

// NewDecoder constructs an empty decoder. The underlying reader is bound
// lazily on the first call to Decode.
func NewDecoder() *Decoder {
	return &Decoder{mh: newHandle()}
}

// Decode returns the next frame from r, blocking until one is available.
// It returns io.EOF, or the unwrapped net.Error (so a read-deadline
// timeout is still type-assertable), when the connection has nothing
// further to offer. A message that yields no frame (a heartbeat) returns
// an error recognized by IsNoFrame; any other returned error should be
// checked with IsFatal to decide whether to close the connection or
// continue.
func (d *Decoder) Decode(r io.Reader) (Frame, error) {
	if len(d.pending) > 0 {
		fr := d.pending[0]
		d.pending = d.pending[1:]
		return fr, nil
	}
	if d.dec == nil {
		d.dec = codec.NewDecoder(r, d.mh)
	}

	var top interface{}
	if err := d.dec.Decode(&top); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		// A read deadline or other net.Error must reach the caller with its
		// net.Error identity intact so a timeout can be told apart from a
		// genuine decode failure; wrapping it behind ErrDecode would hide
		// Timeout() from callers doing a plain type assertion.
		var netErr net.Error
		if errors.As(err, &netErr) {
			return Frame{}, netErr
		}
		return Frame{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if err := d.handleMessage(top); err != nil {
		return Frame{}, err
	}
	if len(d.pending) == 0 {
		// A message decoded to zero frames (Heartbeat, or an empty Forward).
		// The connection loop calls Decode again to make progress; signal
		// "nothing yet, try again" the same way an EOF-free empty read would.
		return Frame{}, errNoFrame
	}
	fr := d.pending[0]
	d.pending = d.pending[1:]
	return fr, nil
}

// errNoFrame is an unexported sentinel meaning "decoded successfully but
// produced no frame (heartbeat)"; callers should treat it as "continue", not
// as an error to log. Decode returns it as is; callers outside the package
// recognize it with IsNoFrame.
var errNoFrame = errors.New("fluent: no frame produced")

// IsNoFrame reports whether err is the internal "decoded but empty" signal.
func IsNoFrame(err error) bool { return errors.Is(err, errNoFrame) }

// IsNoFrame lets the connection loop probe a *Decoder for the
// "decoded but empty" classification; see the package-level IsNoFrame.
func (d *Decoder) IsNoFrame(err error) bool { return IsNoFrame(err) }

// IsFatal lets the connection loop probe a *Decoder for the fatal-vs-
// recoverable classification; see the package-level IsFatal.
func (d *Decoder) IsFatal(err error) bool { return IsFatal(err) }

// handleMessage parses the generically-decoded top-level value and appends
// zero or more frames to the pending queue.
func (d *Decoder) handleMessage(top interface{}) error {
	if top == nil {
		return nil // Heartbeat(nil): no-op.
	}
	arr, ok := top.([]interface{})
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnexpectedHeartbeatValue, top)
	}

	msg, err := parseMessage(arr)
	if err != nil {
		return err
	}

	switch msg.kind {
	case kindMessage:
		d.pending = append(d.pending, Frame{Tag: msg.tag, Timestamp: msg.entry.ts, Record: msg.entry.record})
	case kindForward:
		for _, e := range msg.entries {
			d.pending = append(d.pending, Frame{Tag: msg.tag, Timestamp: e.ts, Record: e.record})
		}
	case kindPackedForward:
		buf := msg.packedBuf
		if msg.compressed == "gzip" {
			decompressed, err := decompressMultiGzip(buf)
			if err != nil {
				return err
			}
			buf = decompressed
		}
		entries, err := decodePackedEntries(buf, d.mh)
		if err != nil {
			return err
		}
		for _, e := range entries {
			d.pending = append(d.pending, Frame{Tag: msg.tag, Timestamp: e.ts, Record: e.record})
			metrics.IncEntryDecoded(e.bytes)
		}
	}
	return nil
}
