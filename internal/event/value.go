// Package event defines the normalized log event model that the Fluent
// decoder produces and the downstream sink consumes.
package event

import "time"

// Kind tags a Value's underlying representation.
type Kind int

const (
	KindNull Kind = iota
	KindBoolean
	KindInteger
	KindFloat
	KindBytes
	KindArray
	KindMap
	KindTimestamp
)

// Value is the normalized, recursive representation any MessagePack value
// decodes into. Exactly one of the typed fields is meaningful, selected by
// Kind; this mirrors a tagged union without resorting to interface{} at the
// leaves so callers can switch on Kind directly.
type Value struct {
	Kind      Kind
	Boolean   bool
	Integer   int64
	Float     float64
	Bytes     []byte
	Array     []Value
	Map       map[string]Value
	Timestamp time.Time
}

func Null() Value                  { return Value{Kind: KindNull} }
func Bool(b bool) Value            { return Value{Kind: KindBoolean, Boolean: b} }
func Int(i int64) Value            { return Value{Kind: KindInteger, Integer: i} }
func Flt(f float64) Value          { return Value{Kind: KindFloat, Float: f} }
func Bin(b []byte) Value           { return Value{Kind: KindBytes, Bytes: b} }
func Str(s string) Value           { return Value{Kind: KindBytes, Bytes: []byte(s)} }
func Arr(v []Value) Value          { return Value{Kind: KindArray, Array: v} }
func Obj(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }
func Time(t time.Time) Value       { return Value{Kind: KindTimestamp, Timestamp: t} }

// Event is a single normalized log record ready for the downstream sink.
// Host, Timestamp, and Tag occupy well-known top-level fields; Record holds
// every other (key, value) pair flattened at the top level, per the forward
// protocol's entry shape.
type Event struct {
	Host      string
	Timestamp time.Time
	Tag       string
	Record    map[string]Value
}
