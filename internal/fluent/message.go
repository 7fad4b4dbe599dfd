package fluent

import (
	"fmt"
	"time"

	"github.com/kstaniek/fluentgate/internal/event"
)

// messageKind distinguishes the dispatch shapes a top-level Fluent Forward
// message can take. MessageWithOptions/ForwardWithOptions collapse into
// message/forward once
// parsed (the options map only ever affects compression, which is resolved
// immediately); Heartbeat never reaches parseMessage (handleMessage treats
// the nil case as a no-op and any other non-array value as an error).
type messageKind int

const (
	kindMessage messageKind = iota
	kindForward
	kindPackedForward
)

// fluentEntry is one decoded (timestamp, record) pair, the unit Forward and
// PackedForward messages expand into. bytes is the entry's encoded size on
// the wire; it is only populated by the Entry-Stream sub-decoder
// (decodePackedEntries), which is the only path with a byte-addressable
// buffer to measure against.
type fluentEntry struct {
	ts     time.Time
	record map[string]event.Value
	bytes  int
}

// decodedMessage is the parsed, dispatch-ready form of one top-level
// FluentMessage array.
type decodedMessage struct {
	kind       messageKind
	tag        string
	entry      fluentEntry   // kindMessage
	entries    []fluentEntry // kindForward
	packedBuf  []byte        // kindPackedForward
	compressed string        // kindPackedForward only; "" == uncompressed/text
}

// parseMessage dispatches a generically-decoded top-level array by arity
// and element type: without native untagged-union support, the array
// length and element shapes must be peeked and dispatched manually, which
// is exactly what this does.
func parseMessage(arr []interface{}) (decodedMessage, error) {
	if len(arr) < 2 {
		return decodedMessage{}, fmt.Errorf("%w: array of length %d", ErrUnexpectedShape, len(arr))
	}
	tag, ok := arr[0].(string)
	if !ok {
		return decodedMessage{}, fmt.Errorf("%w: tag is not a string (%T)", ErrUnexpectedShape, arr[0])
	}

	switch len(arr) {
	case 2:
		return parseArity2(tag, arr[1])
	case 3:
		return parseArity3(tag, arr[1], arr[2])
	case 4:
		return parseMessageWithOptions(tag, arr[1], arr[2], arr[3])
	default:
		return decodedMessage{}, fmt.Errorf("%w: array of length %d", ErrUnexpectedShape, len(arr))
	}
}

// parseArity2 distinguishes Forward(tag, entries) from PackedForward(tag, bin).
func parseArity2(tag string, second interface{}) (decodedMessage, error) {
	switch v := second.(type) {
	case []interface{}:
		entries, err := parseEntries(v)
		if err != nil {
			return decodedMessage{}, err
		}
		return decodedMessage{kind: kindForward, tag: tag, entries: entries}, nil
	case []byte:
		return decodedMessage{kind: kindPackedForward, tag: tag, packedBuf: v}, nil
	case string:
		return decodedMessage{kind: kindPackedForward, tag: tag, packedBuf: []byte(v)}, nil
	default:
		return decodedMessage{}, fmt.Errorf("%w: unrecognized second element %T", ErrUnexpectedShape, second)
	}
}

// parseArity3 distinguishes Message(tag, ts, record), ForwardWithOptions
// (tag, entries, options), and PackedForwardWithOptions(tag, bin, options)
// by the type of the second element.
func parseArity3(tag string, second, third interface{}) (decodedMessage, error) {
	switch v := second.(type) {
	case []interface{}:
		entries, err := parseEntries(v)
		if err != nil {
			return decodedMessage{}, err
		}
		// options (third) only affects compression, which is meaningless for
		// already-expanded entries; nothing further to apply.
		return decodedMessage{kind: kindForward, tag: tag, entries: entries}, nil
	case []byte:
		return parsePackedWithOptions(tag, v, third)
	case string:
		return parsePackedWithOptions(tag, []byte(v), third)
	default:
		ts, err := decodeTimestamp(second)
		if err != nil {
			return decodedMessage{}, err
		}
		record, err := asRecord(third)
		if err != nil {
			return decodedMessage{}, err
		}
		return decodedMessage{kind: kindMessage, tag: tag, entry: fluentEntry{ts: ts, record: record}}, nil
	}
}

// parseMessageWithOptions handles the one arity-4 shape: Message with a
// trailing options map. Only compression is relevant, and it never applies
// to a plain Message (no packed payload exists to decompress), so the
// options map is parsed for completeness but otherwise ignored here.
func parseMessageWithOptions(tag string, tsRaw, recordRaw, optionsRaw interface{}) (decodedMessage, error) {
	ts, err := decodeTimestamp(tsRaw)
	if err != nil {
		return decodedMessage{}, err
	}
	record, err := asRecord(recordRaw)
	if err != nil {
		return decodedMessage{}, err
	}
	if _, err := asOptionsMap(optionsRaw); err != nil {
		return decodedMessage{}, err
	}
	return decodedMessage{kind: kindMessage, tag: tag, entry: fluentEntry{ts: ts, record: record}}, nil
}

func parsePackedWithOptions(tag string, buf []byte, optionsRaw interface{}) (decodedMessage, error) {
	m, err := asOptionsMap(optionsRaw)
	if err != nil {
		return decodedMessage{}, err
	}
	opts := parseOptions(m)
	switch opts.compressed {
	case "", "text":
		return decodedMessage{kind: kindPackedForward, tag: tag, packedBuf: buf}, nil
	case "gzip":
		return decodedMessage{kind: kindPackedForward, tag: tag, packedBuf: buf, compressed: "gzip"}, nil
	default:
		return decodedMessage{}, fmt.Errorf("%w: %q", ErrUnknownCompression, opts.compressed)
	}
}

func parseEntries(raw []interface{}) ([]fluentEntry, error) {
	out := make([]fluentEntry, 0, len(raw))
	for i, e := range raw {
		pair, ok := e.([]interface{})
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("%w: forward entry %d is not a 2-array", ErrUnexpectedShape, i)
		}
		ts, err := decodeTimestamp(pair[0])
		if err != nil {
			return nil, err
		}
		record, err := asRecord(pair[1])
		if err != nil {
			return nil, err
		}
		out = append(out, fluentEntry{ts: ts, record: record})
	}
	return out, nil
}

func asRecord(v interface{}) (map[string]event.Value, error) {
	mapped := mapValue(v)
	if mapped.Kind != event.KindMap {
		return nil, fmt.Errorf("%w: record is not a map (%T)", ErrUnexpectedShape, v)
	}
	return mapped.Map, nil
}

func asOptionsMap(v interface{}) (map[string]interface{}, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: options is not a map (%T)", ErrUnexpectedShape, v)
	}
	return m, nil
}
