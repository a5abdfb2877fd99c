package container

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/Northernside/mineflayer-replay/internal/payload"
)

func readAll(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := writeRawFile(t, append([]byte("NOTMAGIC"), Version))
	if _, err := Open(path); err == nil {
		t.Fatalf("expected error for bad magic")
	}
}

func TestOpenRejectsUnsupportedVersion(t *testing.T) {
	path := writeRawFile(t, append([]byte(Magic), 0x02))
	if _, err := Open(path); err == nil {
		t.Fatalf("expected error for unsupported version")
	}
}

func TestOpenRejectsTruncatedRecord(t *testing.T) {
	w := NewMemoryWriter()
	_ = w.WriteHeader()
	_ = w.WritePacket(PacketRecord{TimestampMs: 0, Name: "chat", Payload: payload.String("hi")})
	_ = w.Close(sampleMetadata())

	out := w.Bytes()
	// Drop the last two payload bytes of the only packet frame while keeping
	// the header and the metadata trailer intact, so the frame is truncated
	// mid-payload.
	frameStart := len(Magic) + 1
	payloadLen := int(binary.LittleEndian.Uint32(out[frameStart+2 : frameStart+6]))
	frameEnd := frameStart + 6 + payloadLen
	truncated := append(append([]byte(nil), out[:frameEnd-2]...), out[frameEnd:]...)
	if _, err := Parse(truncated); err == nil {
		t.Fatalf("expected error for truncated container")
	}
}

func TestOpenFullFileRoundTrip(t *testing.T) {
	w := NewMemoryWriter()
	_ = w.WriteHeader()
	records := []PacketRecord{
		{TimestampMs: 0, Name: "chat", Payload: payload.Normalize(map[string]any{"msg": "hello"})},
		{TimestampMs: 100, Name: "named_entity_spawn", Payload: payload.Normalize(map[string]any{"entityId": 42})},
		{TimestampMs: 500, Name: "entity_destroy", Payload: payload.Normalize(map[string]any{"entityIds": []any{42}})},
	}
	for _, r := range records {
		if err := w.WritePacket(r); err != nil {
			t.Fatalf("write %s: %v", r.Name, err)
		}
	}
	if err := w.Close(sampleMetadata()); err != nil {
		t.Fatalf("close: %v", err)
	}

	path := writeRawFile(t, w.Bytes())
	reader, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got := reader.Packets()
	if len(got) != len(records) {
		t.Fatalf("got %d packets, want %d", len(got), len(records))
	}
	for i, r := range records {
		if got[i].Name != r.Name || got[i].TimestampMs != r.TimestampMs {
			t.Fatalf("packet[%d] = %+v, want name=%s ts=%d", i, got[i], r.Name, r.TimestampMs)
		}
	}
}

func writeRawFile(t *testing.T, data []byte) string {
	t.Helper()
	path := t.TempDir() + "/raw.mcreplay"
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write raw file: %v", err)
	}
	return path
}
