package session

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/Northernside/mineflayer-replay/internal/codec"
	"github.com/Northernside/mineflayer-replay/internal/payload"
)

// TCPSink adapts a raw net.Conn to the Sink contract by writing
// length-prefixed, MessagePack-encoded (name, payload) frames. It is a
// deliberately minimal stand-in for the real game protocol library spec.md
// §1 treats as external and out of scope: just enough framing for
// internal/session and cmd/replayserver to run end-to-end against a TCP
// listener.
//
// Wire shape per frame: u32-LE total length, then a 1-byte name length, the
// name bytes, then the MessagePack-encoded payload.
type TCPSink struct {
	mu   sync.Mutex
	conn net.Conn
}

// NewTCPSink wraps conn as a Sink.
func NewTCPSink(conn net.Conn) *TCPSink {
	return &TCPSink{conn: conn}
}

// Write implements Sink.
func (s *TCPSink) Write(name string, value payload.Value) error {
	if len(name) > 255 {
		return fmt.Errorf("tcpsink: packet name %q exceeds 255 bytes", name)
	}
	encoded, err := codec.Encode(value)
	if err != nil {
		return fmt.Errorf("tcpsink: encode %s: %w", name, err)
	}

	body := make([]byte, 0, 1+len(name)+len(encoded))
	body = append(body, byte(len(name)))
	body = append(body, name...)
	body = append(body, encoded...)

	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(body)))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.conn.Write(header); err != nil {
		return fmt.Errorf("tcpsink: write header: %w", err)
	}
	if _, err := s.conn.Write(body); err != nil {
		return fmt.Errorf("tcpsink: write body: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *TCPSink) Close() error {
	return s.conn.Close()
}
