package varint

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 300, 16384, 1500, 1 << 20, 1<<32 - 1, 1 << 40}
	for _, v := range cases {
		enc := Encode(nil, v)
		got, n, err := Decode(enc)
		if err != nil {
			t.Fatalf("decode(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("decode(%d) = %d", v, got)
		}
		if n != len(enc) {
			t.Fatalf("decode(%d) consumed %d bytes, want %d", v, n, len(enc))
		}
	}
}

func TestEncode1500MatchesSpecExample(t *testing.T) {
	// spec.md scenario 1: 1500 == 0xDC 0x0B
	enc := Encode(nil, 1500)
	want := []byte{0xDC, 0x0B}
	if len(enc) != len(want) || enc[0] != want[0] || enc[1] != want[1] {
		t.Fatalf("encode(1500) = % x, want % x", enc, want)
	}
}

func TestDecodeTruncated(t *testing.T) {
	if _, _, err := Decode([]byte{0x80, 0x80}); err == nil {
		t.Fatalf("expected error for truncated input")
	}
}

func TestDecodeTooLong(t *testing.T) {
	buf := make([]byte, 11)
	for i := range buf {
		buf[i] = 0x80
	}
	if _, _, err := Decode(buf); err == nil {
		t.Fatalf("expected error for over-long input")
	}
}

func TestDecodeEmpty(t *testing.T) {
	if _, _, err := Decode(nil); err == nil {
		t.Fatalf("expected error for empty input")
	}
}
