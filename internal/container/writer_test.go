package container

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/Northernside/mineflayer-replay/internal/payload"
)

func sampleMetadata() ReplayMetadata {
	return ReplayMetadata{
		SpawnX: 0, SpawnY: 64, SpawnZ: 0,
		StartTimeMs: 1000, EndTimeMs: 2500,
		BotUsername: "b", VersionTag: "1.8.9",
	}
}

// TestRoundTripHeaderAndTwoPackets exercises spec.md §8 scenario 1.
func TestRoundTripHeaderAndTwoPackets(t *testing.T) {
	w := NewMemoryWriter()
	if err := w.WriteHeader(); err != nil {
		t.Fatalf("write header: %v", err)
	}

	r1 := PacketRecord{TimestampMs: 0, Name: "chat", Payload: payload.Normalize(map[string]any{"msg": "hi"})}
	r2 := PacketRecord{TimestampMs: 1500, Name: "block_change", Payload: payload.Normalize(map[string]any{"x": 1, "y": 2, "z": 3})}

	if err := w.WritePacket(r1); err != nil {
		t.Fatalf("write r1: %v", err)
	}
	if err := w.WritePacket(r2); err != nil {
		t.Fatalf("write r2: %v", err)
	}
	if err := w.Close(sampleMetadata()); err != nil {
		t.Fatalf("close: %v", err)
	}

	out := w.Bytes()
	wantPrefix := []byte{0x4D, 0x43, 0x52, 0x45, 0x50, 0x4C, 0x41, 0x59, 0x01}
	if !bytes.Equal(out[:len(wantPrefix)], wantPrefix) {
		t.Fatalf("header = % x, want % x", out[:len(wantPrefix)], wantPrefix)
	}

	// First frame: delta 0x00, id 0x0F (chat=15).
	off := len(wantPrefix)
	if out[off] != 0x00 || out[off+1] != 0x0F {
		t.Fatalf("first frame header = % x, want delta 00 id 0F", out[off:off+2])
	}
	off += 2
	len1 := binary.LittleEndian.Uint32(out[off : off+4])
	off += 4 + int(len1)

	// Second frame: delta 1500 == 0xDC 0x0B, id 0x03 (block_change=3).
	if out[off] != 0xDC || out[off+1] != 0x0B || out[off+2] != 0x03 {
		t.Fatalf("second frame header = % x, want DC 0B 03", out[off:off+3])
	}

	reader, err := Parse(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	packets := reader.Packets()
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2", len(packets))
	}
	if packets[0].Name != "chat" || packets[0].TimestampMs != 0 {
		t.Fatalf("packet[0] = %+v", packets[0])
	}
	if packets[1].Name != "block_change" || packets[1].TimestampMs != 1500 {
		t.Fatalf("packet[1] = %+v", packets[1])
	}
	meta := reader.Metadata()
	if meta.SpawnY != 64 || meta.StartTimeMs != 1000 || meta.EndTimeMs != 2500 || meta.BotUsername != "b" {
		t.Fatalf("metadata = %+v", meta)
	}
}

// TestByteBlobPreservation exercises spec.md §8 scenario 2.
func TestByteBlobPreservation(t *testing.T) {
	img := make([]byte, 32)
	if _, err := rand.Read(img); err != nil {
		t.Fatalf("rand: %v", err)
	}

	w := NewMemoryWriter()
	_ = w.WriteHeader()
	if err := w.WritePacket(PacketRecord{TimestampMs: 0, Name: "update_sign", Payload: payload.Normalize(map[string]any{"img": img})}); err != nil {
		t.Fatalf("write packet: %v", err)
	}
	if err := w.Close(sampleMetadata()); err != nil {
		t.Fatalf("close: %v", err)
	}

	reader, err := Parse(w.Bytes())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, ok := reader.Packets()[0].Payload.MapGet("img")
	if !ok || got.Kind != payload.KindBlob {
		t.Fatalf("expected img to round-trip as a blob, got kind %v", got.Kind)
	}
	if !bytes.Equal(got.Blob, img) {
		t.Fatalf("blob bytes changed across round trip")
	}
}

func TestWritePacketRejectsNegativeDelta(t *testing.T) {
	w := NewMemoryWriter()
	_ = w.WriteHeader()
	if err := w.WritePacket(PacketRecord{TimestampMs: 100, Name: "chat", Payload: payload.String("a")}); err != nil {
		t.Fatalf("write first packet: %v", err)
	}
	err := w.WritePacket(PacketRecord{TimestampMs: 50, Name: "chat", Payload: payload.String("b")})
	if err == nil {
		t.Fatalf("expected error for negative delta")
	}
}

func TestWritePacketRejectsUnknownName(t *testing.T) {
	w := NewMemoryWriter()
	_ = w.WriteHeader()
	err := w.WritePacket(PacketRecord{TimestampMs: 0, Name: "not_a_real_packet", Payload: payload.Null})
	if err == nil {
		t.Fatalf("expected error for unknown packet name")
	}
}

func TestWriteHeaderExactlyOnce(t *testing.T) {
	w := NewMemoryWriter()
	if err := w.WriteHeader(); err != nil {
		t.Fatalf("first WriteHeader: %v", err)
	}
	if err := w.WriteHeader(); err == nil {
		t.Fatalf("expected error calling WriteHeader twice")
	}
}

func TestFileWriterAndStreamWriterProduceIdenticalOutput(t *testing.T) {
	r1 := PacketRecord{TimestampMs: 0, Name: "chat", Payload: payload.Normalize(map[string]any{"msg": "hi"})}
	r2 := PacketRecord{TimestampMs: 50, Name: "entity_look", Payload: payload.Normalize(map[string]any{"entityId": 7})}
	meta := sampleMetadata()

	mem := NewMemoryWriter()
	_ = mem.WriteHeader()
	_ = mem.WritePacket(r1)
	_ = mem.WritePacket(r2)
	_ = mem.Close(meta)

	path := filepath.Join(t.TempDir(), "replay.mcreplay")
	file, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("new file writer: %v", err)
	}
	_ = file.WriteHeader()
	_ = file.WritePacket(r1)
	_ = file.WritePacket(r2)
	if err := file.Close(meta); err != nil {
		t.Fatalf("close file writer: %v", err)
	}

	var streamed bytes.Buffer
	stream := NewStreamWriter(func(chunk []byte) error {
		streamed.Write(chunk)
		return nil
	})
	_ = stream.WriteHeader()
	_ = stream.WritePacket(r1)
	_ = stream.WritePacket(r2)
	_ = stream.Close(meta)

	fileBytes, err := readAll(path)
	if err != nil {
		t.Fatalf("read file output: %v", err)
	}

	if !bytes.Equal(mem.Bytes(), fileBytes) {
		t.Fatalf("file writer output differs from memory writer output")
	}
	if !bytes.Equal(mem.Bytes(), streamed.Bytes()) {
		t.Fatalf("stream writer output differs from memory writer output")
	}
}
