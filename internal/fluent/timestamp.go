package fluent

import (
	"fmt"
	"time"

	"github.com/ugorji/go/codec"
)

// decodeTimestamp interprets the timestamp element of a FluentEntry (first)
// or Message (second) as
// either a bare Unix-seconds integer or Fluent's EventTime extension (ext
// type 0, exactly 8 bytes: big-endian seconds then big-endian nanoseconds).
// Both forms compose into the same time.Time so downstream code never sees
// the distinction.
func decodeTimestamp(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case uint64:
		return time.Unix(int64(t), 0).UTC(), nil
	case int:
		return time.Unix(int64(t), 0).UTC(), nil
	case *codec.RawExt:
		return decodeEventTimeExt(int64(t.Tag), t.Data)
	case codec.RawExt:
		return decodeEventTimeExt(int64(t.Tag), t.Data)
	default:
		return time.Time{}, fmt.Errorf("%w: unrecognized timestamp shape %T", ErrBadEventTime, v)
	}
}

// decodeEventTimeExt validates and decodes the EventTime extension payload.
func decodeEventTimeExt(tag int64, data []byte) (time.Time, error) {
	if tag != 0 {
		return time.Time{}, fmt.Errorf("%w: expected ext type 0, got %d", ErrBadEventTime, tag)
	}
	if len(data) != 8 {
		return time.Time{}, fmt.Errorf("%w: expected 8 bytes, got %d", ErrBadEventTime, len(data))
	}
	seconds := uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	nanos := uint32(data[4])<<24 | uint32(data[5])<<16 | uint32(data[6])<<8 | uint32(data[7])
	return time.Unix(int64(seconds), int64(nanos)).UTC(), nil
}
