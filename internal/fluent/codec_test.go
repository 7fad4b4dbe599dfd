package fluent

import (
	"bytes"
	"compress/gzip"
	"io"
	"net"
	"testing"
	"time"

	"github.com/kstaniek/fluentgate/internal/event"
	"github.com/ugorji/go/codec"
)

func encodeVal(t *testing.T, v interface{}) []byte {
	t.Helper()
	mh := newHandle()
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, mh)
	if err := enc.Encode(v); err != nil {
		t.Fatalf("encode %v: %v", v, err)
	}
	return buf
}

// arrayHeader returns the msgpack header bytes for a fixarray of n elements
// (n must be <= 15, true for every shape this package decodes).
func arrayHeader(n int) []byte {
	if n > 15 || n < 0 {
		panic("fixarray only")
	}
	return []byte{0x90 | byte(n)}
}

func buildMessage(t *testing.T, tag string, ts int64, record map[string]interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(arrayHeader(3))
	buf.Write(encodeVal(t, tag))
	buf.Write(encodeVal(t, ts))
	buf.Write(encodeVal(t, record))
	return buf.Bytes()
}

func buildEventTimeExtBytes(seconds, nanos uint32) []byte {
	b := make([]byte, 8)
	b[0] = byte(seconds >> 24)
	b[1] = byte(seconds >> 16)
	b[2] = byte(seconds >> 8)
	b[3] = byte(seconds)
	b[4] = byte(nanos >> 24)
	b[5] = byte(nanos >> 16)
	b[6] = byte(nanos >> 8)
	b[7] = byte(nanos)
	return b
}

// buildMessageWithExtTime constructs a 3-array Message whose timestamp is
// the EventTime extension (fixext8, type 0) rather than a plain integer.
func buildMessageWithExtTime(t *testing.T, tag string, seconds, nanos uint32, record map[string]interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(arrayHeader(3))
	buf.Write(encodeVal(t, tag))
	buf.WriteByte(0xd7) // fixext8
	buf.WriteByte(0x00) // ext type 0
	buf.Write(buildEventTimeExtBytes(seconds, nanos))
	buf.Write(encodeVal(t, record))
	return buf.Bytes()
}

func buildForward(t *testing.T, tag string, entries [][2]interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(arrayHeader(2))
	buf.Write(encodeVal(t, tag))
	buf.Write(arrayHeader(len(entries)))
	for _, e := range entries {
		buf.Write(arrayHeader(2))
		buf.Write(encodeVal(t, e[0]))
		buf.Write(encodeVal(t, e[1]))
	}
	return buf.Bytes()
}

func buildPackedEntries(t *testing.T, entries [][2]interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, e := range entries {
		buf.Write(arrayHeader(2))
		buf.Write(encodeVal(t, e[0]))
		buf.Write(encodeVal(t, e[1]))
	}
	return buf.Bytes()
}

func buildPackedForward(t *testing.T, tag string, packed []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(arrayHeader(2))
	buf.Write(encodeVal(t, tag))
	buf.Write(encodeVal(t, packed))
	return buf.Bytes()
}

func buildPackedForwardWithOptions(t *testing.T, tag string, packed []byte, compressed string) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(arrayHeader(3))
	buf.Write(encodeVal(t, tag))
	buf.Write(encodeVal(t, packed))
	buf.Write(encodeVal(t, map[string]interface{}{"compressed": compressed}))
	return buf.Bytes()
}

func buildHeartbeat() []byte {
	return []byte{0xc0} // msgpack nil
}

func gzipAll(t *testing.T, p []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(p); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// Scenario 1: single Message.
func TestDecodeSingleMessage(t *testing.T) {
	wire := buildMessage(t, "tag.a", 1609459200, map[string]interface{}{"m": "hi"})
	d := NewDecoder()
	fr, err := d.Decode(bytes.NewReader(wire))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fr.Tag != "tag.a" {
		t.Fatalf("tag = %q", fr.Tag)
	}
	if !fr.Timestamp.Equal(time.Unix(1609459200, 0).UTC()) {
		t.Fatalf("timestamp = %v", fr.Timestamp)
	}
	if fr.Record["m"].Kind != event.KindBytes || string(fr.Record["m"].Bytes) != "hi" {
		t.Fatalf("record = %+v", fr.Record)
	}
}

// Scenario 2: Forward with three entries, order preserved.
func TestDecodeForwardThreeEntries(t *testing.T) {
	wire := buildForward(t, "tag.b", [][2]interface{}{
		{int64(1), map[string]interface{}{"n": int64(1)}},
		{int64(2), map[string]interface{}{"n": int64(2)}},
		{int64(3), map[string]interface{}{"n": int64(3)}},
	})
	d := NewDecoder()
	r := bytes.NewReader(wire)
	for i := int64(1); i <= 3; i++ {
		fr, err := d.Decode(r)
		if err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if fr.Tag != "tag.b" {
			t.Fatalf("entry %d: tag = %q", i, fr.Tag)
		}
		if fr.Record["n"].Integer != i {
			t.Fatalf("entry %d: n = %d", i, fr.Record["n"].Integer)
		}
	}
}

// Scenario 3: PackedForward, text.
func TestDecodePackedForwardText(t *testing.T) {
	packed := buildPackedEntries(t, [][2]interface{}{
		{int64(10), map[string]interface{}{"k": "a"}},
		{int64(11), map[string]interface{}{"k": "b"}},
	})
	wire := buildPackedForward(t, "tag.c", packed)
	d := NewDecoder()
	r := bytes.NewReader(wire)
	want := []string{"a", "b"}
	for i, w := range want {
		fr, err := d.Decode(r)
		if err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if string(fr.Record["k"].Bytes) != w {
			t.Fatalf("entry %d: k = %q want %q", i, fr.Record["k"].Bytes, w)
		}
	}
}

// Scenario 4: PackedForward, gzip; must yield the same events as text.
func TestDecodePackedForwardGzip(t *testing.T) {
	packed := buildPackedEntries(t, [][2]interface{}{
		{int64(10), map[string]interface{}{"k": "a"}},
		{int64(11), map[string]interface{}{"k": "b"}},
	})
	wire := buildPackedForwardWithOptions(t, "tag.c", gzipAll(t, packed), "gzip")
	d := NewDecoder()
	r := bytes.NewReader(wire)
	want := []string{"a", "b"}
	for i, w := range want {
		fr, err := d.Decode(r)
		if err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if string(fr.Record["k"].Bytes) != w {
			t.Fatalf("entry %d: k = %q want %q", i, fr.Record["k"].Bytes, w)
		}
	}
}

// Scenario 5: EventTime extension composes seconds+nanos.
func TestDecodeEventTimeExtension(t *testing.T) {
	wire := buildMessageWithExtTime(t, "tag.d", 10, 100, map[string]interface{}{"m": "x"})
	d := NewDecoder()
	fr, err := d.Decode(bytes.NewReader(wire))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := time.Unix(10, 100).UTC()
	if !fr.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v want %v", fr.Timestamp, want)
	}
}

// Scenario 6: heartbeat nil produces no frame; a following Message still decodes.
func TestDecodeHeartbeatThenMessage(t *testing.T) {
	var wire bytes.Buffer
	wire.Write(buildHeartbeat())
	wire.Write(buildMessage(t, "tag.e", 1, map[string]interface{}{"m": "after"}))

	d := NewDecoder()
	r := bytes.NewReader(wire.Bytes())
	_, err := d.Decode(r)
	if !IsNoFrame(err) {
		t.Fatalf("expected no-frame signal from heartbeat, got %v", err)
	}
	fr, err := d.Decode(r)
	if err != nil {
		t.Fatalf("decode message after heartbeat: %v", err)
	}
	if fr.Tag != "tag.e" {
		t.Fatalf("tag = %q", fr.Tag)
	}
}

// Scenario 7: a malformed middle message (unknown compression) is skipped
// without poisoning decode of the surrounding messages.
func TestDecodeMalformedMiddleMessageIsSkipped(t *testing.T) {
	var wire bytes.Buffer
	wire.Write(buildMessage(t, "tag.f1", 1, map[string]interface{}{"m": "one"}))
	wire.Write(buildPackedForwardWithOptions(t, "tag.f2", []byte("garbage"), "snappy"))
	wire.Write(buildMessage(t, "tag.f3", 3, map[string]interface{}{"m": "three"}))

	d := NewDecoder()
	r := bytes.NewReader(wire.Bytes())

	fr1, err := d.Decode(r)
	if err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if fr1.Tag != "tag.f1" {
		t.Fatalf("first tag = %q", fr1.Tag)
	}

	_, err = d.Decode(r)
	if err == nil {
		t.Fatalf("expected unknown compression error")
	}
	if IsFatal(err) {
		t.Fatalf("unknown compression must be non-fatal, got fatal: %v", err)
	}

	fr3, err := d.Decode(r)
	if err != nil {
		t.Fatalf("decode third: %v", err)
	}
	if fr3.Tag != "tag.f3" {
		t.Fatalf("third tag = %q", fr3.Tag)
	}
}

// Scenario 8: feeding a message one byte at a time still yields exactly one
// frame once the whole message has arrived, and blocks (no frame, no error)
// until then.
func TestDecodePartialReadOneByteAtATime(t *testing.T) {
	wire := buildMessage(t, "tag.g", 42, map[string]interface{}{"m": "slow"})
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	frameCh := make(chan Frame, 1)
	errCh := make(chan error, 1)
	go func() {
		d := NewDecoder()
		fr, err := d.Decode(serverConn)
		if err != nil {
			errCh <- err
			return
		}
		frameCh <- fr
	}()

	for _, b := range wire {
		if _, err := clientConn.Write([]byte{b}); err != nil {
			t.Fatalf("write byte: %v", err)
		}
		select {
		case fr := <-frameCh:
			t.Fatalf("frame produced before full message written: %+v", fr)
		case err := <-errCh:
			t.Fatalf("error produced before full message written: %v", err)
		case <-time.After(5 * time.Millisecond):
		}
	}

	select {
	case fr := <-frameCh:
		if fr.Tag != "tag.g" {
			t.Fatalf("tag = %q", fr.Tag)
		}
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for frame")
	}
}

// Idempotent framing: splitting the stream at an arbitrary point yields the
// same events as feeding it whole.
func TestDecodeIdempotentUnderArbitrarySplit(t *testing.T) {
	wire := buildForward(t, "tag.h", [][2]interface{}{
		{int64(1), map[string]interface{}{"n": int64(1)}},
		{int64(2), map[string]interface{}{"n": int64(2)}},
	})

	whole := decodeAll(t, bytes.NewReader(wire), 2)

	split := len(wire) / 2
	pr, pw := io.Pipe()
	go func() {
		pw.Write(wire[:split])
		time.Sleep(5 * time.Millisecond)
		pw.Write(wire[split:])
		pw.Close()
	}()
	chunked := decodeAll(t, pr, 2)

	for i := range whole {
		if whole[i].Tag != chunked[i].Tag || whole[i].Record["n"].Integer != chunked[i].Record["n"].Integer {
			t.Fatalf("mismatch at %d: whole=%+v chunked=%+v", i, whole[i], chunked[i])
		}
	}
}

func decodeAll(t *testing.T, r io.Reader, n int) []Frame {
	t.Helper()
	d := NewDecoder()
	out := make([]Frame, 0, n)
	for len(out) < n {
		fr, err := d.Decode(r)
		if err != nil {
			if IsNoFrame(err) {
				continue
			}
			t.Fatalf("decode: %v", err)
		}
		out = append(out, fr)
	}
	return out
}
