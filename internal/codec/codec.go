// Package codec wraps an external schema-less tag-length-value binary
// encoder (github.com/ugorji/go/codec's MessagePack handle) so that
// internal/container can turn a normalized payload.Value tree into bytes
// and back (spec.md §4.3). The choice of encoder is swappable: the
// container's framing only depends on the length prefix it writes around
// whatever Encode returns.
package codec

import (
	"fmt"

	"github.com/ugorji/go/codec"

	"github.com/Northernside/mineflayer-replay/internal/payload"
)

var handle = newHandle()

func newHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	//1.- Force decoded map keys and strings back to Go strings; msgpack can
	// otherwise surface raw byte slices for text, which would break the
	// uniform string-keyed map representation consumers rely on.
	h.RawToString = true
	// Canonical encodes maps with sorted keys instead of Go's randomized
	// map iteration order, so repeated Encode calls on equal input produce
	// byte-identical output.
	h.Canonical = true
	return h
}

// Encode serializes a normalized payload tree to bytes.
func Encode(v payload.Value) ([]byte, error) {
	tree := payload.ToEncodable(v)
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, handle)
	if err := enc.Encode(tree); err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return buf, nil
}

// Decode deserializes bytes produced by Encode back into a payload.Value.
// Any mapping-typed value the underlying decoder surfaces is flattened to
// the uniform map[string]any representation payload.FromDecoded expects.
func Decode(data []byte) (payload.Value, error) {
	var raw any
	dec := codec.NewDecoderBytes(data, handle)
	if err := dec.Decode(&raw); err != nil {
		return payload.Value{}, fmt.Errorf("codec: decode: %w", err)
	}
	return payload.FromDecoded(flatten(raw)), nil
}

// flatten coerces mapping-typed values the decoder may surface natively
// (map[interface{}]interface{}) into the uniform map[string]any shape
// payload.FromDecoded handles, recursing through maps and []any slices.
func flatten(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = flatten(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = flatten(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = flatten(val)
		}
		return out
	default:
		return v
	}
}
