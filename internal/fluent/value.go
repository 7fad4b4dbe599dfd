package fluent

import (
	"fmt"
	"math"
	"strconv"

	"github.com/kstaniek/fluentgate/internal/event"
	"github.com/ugorji/go/codec"
)

// mapValue recursively converts a generically-decoded msgpack value (as
// produced by codec.MsgpackHandle with MapType=map[string]interface{}) into
// the normalized event.Value. Total and panic-free: every branch msgpack
// can produce is handled explicitly, with a final default case covering any
// value type entered via Go-level struct mirroring rather than a hole.
func mapValue(v interface{}) event.Value {
	switch t := v.(type) {
	case nil:
		return event.Null()
	case bool:
		return event.Bool(t)
	case int64:
		return event.Int(t)
	case int:
		return event.Int(int64(t))
	case uint64:
		if t <= math.MaxInt64 {
			return event.Int(int64(t))
		}
		return event.Str(strconv.FormatUint(t, 10))
	case float32:
		return event.Flt(float64(t))
	case float64:
		return event.Flt(t)
	case string:
		return event.Str(t)
	case []byte:
		return event.Bin(t)
	case []interface{}:
		out := make([]event.Value, len(t))
		for i, e := range t {
			out[i] = mapValue(e)
		}
		return event.Arr(out)
	case map[string]interface{}:
		out := make(map[string]event.Value, len(t))
		for k, e := range t {
			out[k] = mapValue(e)
		}
		return event.Obj(out)
	case map[interface{}]interface{}:
		out := make(map[string]event.Value, len(t))
		for k, e := range t {
			out[displayKey(k)] = mapValue(e)
		}
		return event.Obj(out)
	case codec.Raw:
		return event.Bin([]byte(t))
	case *codec.RawExt:
		return extValue(int64(t.Tag), t.Data)
	case codec.RawExt:
		return extValue(int64(t.Tag), t.Data)
	default:
		// Unreached for any value the msgpack handle can produce with the
		// decode options used in this package; stringify rather than panic
		// if the decode library's generic mapping grows a new case.
		return event.Str(fmt.Sprintf("%v", t))
	}
}

// extValue renders an extension type/bytes pair the same way the reference
// decoder's Value conversion does: a map carrying the raw extension code
// and payload bytes.
func extValue(code int64, data []byte) event.Value {
	return event.Obj(map[string]event.Value{
		"msgpack_extension_code": event.Int(code),
		"bytes":                  event.Bin(data),
	})
}

// displayKey stringifies a non-string map key using Go's %v rendering so
// any decodable MessagePack key type, not just strings and byte slices,
// ends up with a usable record field name.
func displayKey(k interface{}) string {
	switch t := k.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
