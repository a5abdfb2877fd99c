package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/Northernside/mineflayer-replay/internal/codec"
)

// sink abstracts the byte destination a Writer streams to. The three
// concrete variants below (file, memory, streaming-callback) all drive the
// same framing algorithm and must produce byte-identical output for
// identical input.
type sink interface {
	write(p []byte) error
	close() error
}

// Writer implements the container algorithm from spec.md §4.4: a header
// emitted exactly once, a sequence of delta-timestamped packet frames, and
// a trailing metadata block addressable by its length suffix.
type Writer struct {
	mu             sync.Mutex
	sink           sink
	headerWritten  bool
	lastTimestamp  int64
	haveTimestamp  bool
	closed         bool
}

func newWriter(s sink) *Writer {
	return &Writer{sink: s}
}

// NewFileWriter opens (creating or truncating) path and returns a Writer
// that streams frames to it incrementally.
func NewFileWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("container: create %s: %w", path, err)
	}
	return newWriter(&fileSink{file: f}), nil
}

// NewMemoryWriter returns a Writer that collects its output in memory;
// call Bytes() after Close() to retrieve the encoded container.
func NewMemoryWriter() *Writer {
	return newWriter(&memorySink{buf: &bytes.Buffer{}})
}

// NewStreamWriter returns a Writer that invokes onChunk once per write call
// (header, each packet frame, and the final metadata block), in addition
// to buffering nothing itself. Each chunk handed to onChunk is a fresh copy,
// so onChunk may retain it.
func NewStreamWriter(onChunk func([]byte) error) *Writer {
	return newWriter(&streamSink{onChunk: onChunk})
}

// Bytes returns the accumulated output of a memory-backed Writer. It is a
// no-op (returns nil) for file- or stream-backed writers.
func (w *Writer) Bytes() []byte {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if mem, ok := w.sink.(*memorySink); ok {
		return mem.buf.Bytes()
	}
	return nil
}

// WriteHeader emits the magic and version bytes. It must be called exactly
// once, before any WritePacket call.
func (w *Writer) WriteHeader() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.headerWritten {
		return fmt.Errorf("container: WriteHeader called more than once")
	}
	buf := append([]byte(Magic), Version)
	if err := w.sink.write(buf); err != nil {
		return fmt.Errorf("container: write header: %w", err)
	}
	w.headerWritten = true
	return nil
}

// WritePacket encodes and frames a single record: varint(delta), u8(id),
// u32_le(len), data.
func (w *Writer) WritePacket(r PacketRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.headerWritten {
		return fmt.Errorf("container: WritePacket called before WriteHeader")
	}

	id, ok := PacketID(r.Name)
	if !ok {
		return fmt.Errorf("container: unknown packet name %q", r.Name)
	}

	var delta int64
	if w.haveTimestamp {
		delta = r.TimestampMs - w.lastTimestamp
	} else {
		delta = r.TimestampMs
	}
	if delta < 0 {
		return fmt.Errorf("container: negative timestamp delta %d (ts=%d, last=%d)", delta, r.TimestampMs, w.lastTimestamp)
	}

	data, err := codec.Encode(r.Payload)
	if err != nil {
		return fmt.Errorf("container: encode payload for %s: %w", r.Name, err)
	}
	if len(data) > 1<<32-1 {
		return fmt.Errorf("container: payload for %s exceeds u32 length", r.Name)
	}

	frame := frameWriteBuf(delta, id, data)
	if err := w.sink.write(frame); err != nil {
		return fmt.Errorf("container: write packet frame: %w", err)
	}

	w.lastTimestamp = r.TimestampMs
	w.haveTimestamp = true
	return nil
}

// Close emits the metadata blob followed by its u32_le length suffix and
// releases the underlying sink.
func (w *Writer) Close(meta ReplayMetadata) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if err := meta.Validate(); err != nil {
		return err
	}

	metaValue := metadataToPayload(meta)
	data, err := codec.Encode(metaValue)
	if err != nil {
		return fmt.Errorf("container: encode metadata: %w", err)
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	trailer := append(append([]byte(nil), data...), lenBuf[:]...)
	if err := w.sink.write(trailer); err != nil {
		return fmt.Errorf("container: write metadata trailer: %w", err)
	}

	w.closed = true
	return w.sink.close()
}

// --- sink implementations ---

type fileSink struct {
	file *os.File
}

func (s *fileSink) write(p []byte) error {
	_, err := s.file.Write(p)
	return err
}

func (s *fileSink) close() error {
	if err := s.file.Sync(); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}

type memorySink struct {
	buf *bytes.Buffer
}

func (s *memorySink) write(p []byte) error {
	_, err := s.buf.Write(p)
	return err
}

func (s *memorySink) close() error { return nil }

type streamSink struct {
	onChunk func([]byte) error
}

func (s *streamSink) write(p []byte) error {
	if s.onChunk == nil {
		return nil
	}
	//1.- Copy before handing to the callback so it can retain the slice
	// without racing future writes.
	clone := append([]byte(nil), p...)
	return s.onChunk(clone)
}

func (s *streamSink) close() error { return nil }
