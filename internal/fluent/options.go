package fluent

// messageOptions mirrors the forward protocol's optional trailing options
// map (the last array element). size and chunk are accepted but unused:
// this server never writes an acknowledgement frame back to the
// connection, so chunk has nothing to echo. compressed governs
// PackedForwardWithOptions decompression; an absent or non-string value
// leaves it empty, which is treated the same as "text".
type messageOptions struct {
	size       uint64
	hasSize    bool
	chunk      string
	hasChunk   bool
	compressed string
}

// parseOptions reads the recognized fields out of a generically-decoded
// msgpack map, ignoring any other keys a client may send.
func parseOptions(m map[string]interface{}) messageOptions {
	var o messageOptions
	if v, ok := m["size"]; ok {
		switch n := v.(type) {
		case int64:
			o.size, o.hasSize = uint64(n), true
		case uint64:
			o.size, o.hasSize = n, true
		}
	}
	if v, ok := m["chunk"]; ok {
		if s, ok := v.(string); ok {
			o.chunk, o.hasChunk = s, true
		}
	}
	if v, ok := m["compressed"]; ok {
		if s, ok := v.(string); ok {
			o.compressed = s
		}
	}
	return o
}
