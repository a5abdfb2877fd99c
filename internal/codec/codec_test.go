package codec

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/Northernside/mineflayer-replay/internal/payload"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	v := payload.Normalize(map[string]any{
		"msg":   "hi",
		"count": 3,
		"ok":    true,
		"tags":  []any{"a", "b"},
	})
	data, err := Encode(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(v.Native(), got.Native()) {
		t.Fatalf("round trip mismatch:\n got:  %#v\n want: %#v", got.Native(), v.Native())
	}
}

func TestEncodeDecodeBlob(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	v := payload.Normalize(map[string]any{"img": data})
	encoded, err := Encode(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	img, ok := got.MapGet("img")
	if !ok || img.Kind != payload.KindBlob {
		t.Fatalf("expected img to decode back as a blob")
	}
	if !bytes.Equal(img.Blob, data) {
		t.Fatalf("blob bytes changed: got %v want %v", img.Blob, data)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	// 0xc1 is reserved ("never used") in the MessagePack spec.
	if _, err := Decode([]byte{0xc1}); err == nil {
		t.Fatalf("expected decode of a reserved msgpack byte to fail")
	}
}
