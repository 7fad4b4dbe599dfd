package fluent

import (
	"testing"
	"time"

	"github.com/ugorji/go/codec"
)

func TestDecodeTimestampUnixAndExtAgree(t *testing.T) {
	unix, err := decodeTimestamp(int64(100))
	if err != nil {
		t.Fatalf("unix: %v", err)
	}
	ext, err := decodeTimestamp(&codec.RawExt{Tag: 0, Data: buildEventTimeExtBytes(100, 0)})
	if err != nil {
		t.Fatalf("ext: %v", err)
	}
	if !unix.Equal(ext) {
		t.Fatalf("Unix(100) = %v != Ext(100,0) = %v", unix, ext)
	}
}

func TestDecodeTimestampExtRejectsWrongTag(t *testing.T) {
	_, err := decodeTimestamp(&codec.RawExt{Tag: 1, Data: buildEventTimeExtBytes(1, 1)})
	if err == nil {
		t.Fatalf("expected error for non-zero ext tag")
	}
}

func TestDecodeTimestampExtRejectsWrongLength(t *testing.T) {
	_, err := decodeTimestamp(&codec.RawExt{Tag: 0, Data: []byte{1, 2, 3}})
	if err == nil {
		t.Fatalf("expected error for short ext payload")
	}
}

func TestDecodeTimestampExtComposesNanos(t *testing.T) {
	got, err := decodeTimestamp(&codec.RawExt{Tag: 0, Data: buildEventTimeExtBytes(10, 100)})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := time.Unix(10, 100).UTC()
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}
