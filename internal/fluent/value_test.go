package fluent

import (
	"math"
	"testing"

	"github.com/kstaniek/fluentgate/internal/event"
	"github.com/ugorji/go/codec"
)

func TestMapValueScalars(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		want event.Kind
	}{
		{"nil", nil, event.KindNull},
		{"bool", true, event.KindBoolean},
		{"int64", int64(5), event.KindInteger},
		{"float64", 1.5, event.KindFloat},
		{"string", "hi", event.KindBytes},
		{"bytes", []byte("hi"), event.KindBytes},
		{"array", []interface{}{int64(1), int64(2)}, event.KindArray},
		{"map", map[string]interface{}{"a": int64(1)}, event.KindMap},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := mapValue(c.in)
			if got.Kind != c.want {
				t.Fatalf("kind = %v want %v", got.Kind, c.want)
			}
		})
	}
}

func TestMapValueLargeUint64BecomesDecimalBytes(t *testing.T) {
	big := uint64(math.MaxInt64) + 100
	got := mapValue(big)
	if got.Kind != event.KindBytes {
		t.Fatalf("kind = %v, want Bytes", got.Kind)
	}
	if string(got.Bytes) != "9223372036854775907" {
		t.Fatalf("bytes = %q", got.Bytes)
	}
}

func TestMapValueExt(t *testing.T) {
	got := mapValue(&codec.RawExt{Tag: 7, Data: []byte{1, 2, 3}})
	if got.Kind != event.KindMap {
		t.Fatalf("kind = %v, want Map", got.Kind)
	}
	if got.Map["msgpack_extension_code"].Integer != 7 {
		t.Fatalf("code = %v", got.Map["msgpack_extension_code"])
	}
	if string(got.Map["bytes"].Bytes) != "\x01\x02\x03" {
		t.Fatalf("bytes = %v", got.Map["bytes"].Bytes)
	}
}

func TestMapValueNonStringMapKeyIsStringified(t *testing.T) {
	got := mapValue(map[interface{}]interface{}{int64(5): "v"})
	if got.Kind != event.KindMap {
		t.Fatalf("kind = %v", got.Kind)
	}
	if _, ok := got.Map["5"]; !ok {
		t.Fatalf("expected stringified key \"5\", got %+v", got.Map)
	}
}
