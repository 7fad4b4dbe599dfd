package fluent

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ugorji/go/codec"
)

// decodePackedEntries decodes a buffer holding a concatenation of msgpack
// 2-arrays (timestamp, record) — the PackedForward wire shape — repeating
// until the buffer is exhausted. It is simpler than the top-level codec
// because there is no queue and no untagged-union dispatch: every element
// is a FluentEntry.
func decodePackedEntries(buf []byte, mh *codec.MsgpackHandle) ([]fluentEntry, error) {
	r := bytes.NewReader(buf)
	dec := codec.NewDecoder(r, mh)
	var out []fluentEntry
	for r.Len() > 0 {
		before := r.Len()
		var top interface{}
		if err := dec.Decode(&top); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return out, fmt.Errorf("%w: packed entry: %v", ErrDecode, err)
		}
		entryBytes := before - r.Len()
		pair, ok := top.([]interface{})
		if !ok || len(pair) != 2 {
			return out, fmt.Errorf("%w: packed entry is not a 2-array", ErrUnexpectedShape)
		}
		ts, err := decodeTimestamp(pair[0])
		if err != nil {
			return out, err
		}
		record, err := asRecord(pair[1])
		if err != nil {
			return out, err
		}
		out = append(out, fluentEntry{ts: ts, record: record, bytes: entryBytes})
	}
	return out, nil
}
