package fluent

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// decompressMultiGzip fully materializes a gzip-compressed packed payload.
// Some forwarders concatenate multiple gzip members into a single buffer;
// klauspost/compress's gzip.Reader, unlike the standard library's, keeps
// reading member after member transparently instead of stopping at the
// first footer.
func decompressMultiGzip(buf []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip header: %v", ErrDecode, err)
	}
	zr.Multistream(true)
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: gzip body: %v", ErrDecode, err)
	}
	return out, nil
}
