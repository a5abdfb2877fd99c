package container

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/Northernside/mineflayer-replay/internal/codec"
	"github.com/Northernside/mineflayer-replay/internal/varint"
)

// Reader parses an MCREPLAY container fully into memory. File descriptors
// are only held open for the duration of Open; after that the bytes are
// owned in-process, which is what makes in-memory seeking in
// internal/scheduler viable without a random-access index (an explicit
// spec.md Non-goal).
type Reader struct {
	packets  []PacketRecord
	metadata ReplayMetadata
}

// Open reads, parses, and validates path, returning a Reader with every
// packet record and the trailing metadata already decoded.
func Open(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("container: open %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes an in-memory container, as produced by a Writer's memory or
// streaming sink.
func Parse(data []byte) (*Reader, error) {
	if len(data) < len(Magic)+1+4 {
		return nil, fmt.Errorf("container: file too small to contain a header and trailer")
	}
	if string(data[:len(Magic)]) != Magic {
		return nil, fmt.Errorf("container: bad magic %q", data[:len(Magic)])
	}
	if data[len(Magic)] != Version {
		return nil, fmt.Errorf("container: unsupported version 0x%02x", data[len(Magic)])
	}

	dataStart := len(Magic) + 1
	fileLen := len(data)
	lenOffset := fileLen - 4
	metaLen := int(binary.LittleEndian.Uint32(data[lenOffset:fileLen]))
	if metaLen < 0 || lenOffset-metaLen < dataStart {
		return nil, fmt.Errorf("container: malformed trailer (metadata length %d)", metaLen)
	}
	metaStart := lenOffset - metaLen
	dataEnd := metaStart

	metaValue, err := codec.Decode(data[metaStart:lenOffset])
	if err != nil {
		return nil, fmt.Errorf("container: decode metadata: %w", err)
	}
	metadata := payloadToMetadata(metaValue)
	if err := metadata.Validate(); err != nil {
		return nil, err
	}

	packets, err := readPackets(data[dataStart:dataEnd])
	if err != nil {
		return nil, err
	}

	return &Reader{packets: packets, metadata: metadata}, nil
}

func readPackets(buf []byte) ([]PacketRecord, error) {
	var out []PacketRecord
	var timestamp int64
	offset := 0
	for offset < len(buf) {
		delta, n, err := varint.Decode(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("container: truncated record at offset %d: %w", offset, err)
		}
		offset += n

		if offset+1+4 > len(buf) {
			return nil, fmt.Errorf("container: truncated record header at offset %d", offset)
		}
		id := buf[offset]
		offset++
		length := int(binary.LittleEndian.Uint32(buf[offset : offset+4]))
		offset += 4

		if length < 0 || offset+length > len(buf) {
			return nil, fmt.Errorf("container: truncated record payload at offset %d", offset)
		}
		name, ok := PacketName(id)
		if !ok {
			return nil, fmt.Errorf("container: unknown packet id %d at offset %d", id, offset)
		}

		value, err := codec.Decode(buf[offset : offset+length])
		if err != nil {
			return nil, fmt.Errorf("container: decode payload for %s at offset %d: %w", name, offset, err)
		}
		offset += length

		timestamp += int64(delta)
		out = append(out, PacketRecord{TimestampMs: timestamp, Name: name, Payload: value})
	}
	return out, nil
}

// Packets returns every decoded record in file order.
func (r *Reader) Packets() []PacketRecord {
	if r == nil {
		return nil
	}
	return r.packets
}

// Metadata returns the decoded trailing metadata block.
func (r *Reader) Metadata() ReplayMetadata {
	if r == nil {
		return ReplayMetadata{}
	}
	return r.metadata
}
