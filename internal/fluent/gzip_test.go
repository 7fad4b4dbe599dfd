package fluent

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestDecompressMultiGzipSingleMember(t *testing.T) {
	want := []byte("hello fluent")
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write(want)
	_ = zw.Close()

	got, err := decompressMultiGzip(buf.Bytes())
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestDecompressMultiGzipMultipleMembers(t *testing.T) {
	var buf bytes.Buffer
	for _, part := range []string{"first-", "second-", "third"} {
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write([]byte(part))
		_ = zw.Close()
	}
	got, err := decompressMultiGzip(buf.Bytes())
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(got) != "first-second-third" {
		t.Fatalf("got %q", got)
	}
}

func TestDecompressMultiGzipRejectsGarbage(t *testing.T) {
	if _, err := decompressMultiGzip([]byte("not gzip")); err == nil {
		t.Fatalf("expected error for non-gzip input")
	}
}
