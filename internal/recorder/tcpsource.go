package recorder

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/Northernside/mineflayer-replay/internal/codec"
	"github.com/Northernside/mineflayer-replay/internal/payload"
)

// TCPSource reads the same length-prefixed, MessagePack-encoded frames
// internal/session.TCPSink writes, feeding them into a Feed from the
// recording side. It is the symmetric counterpart to TCPSink: a
// deliberately minimal stand-in for whatever process (a mineflayer bot,
// say) is driving the actual recording, per SPEC_FULL.md §4.10.
type TCPSource struct {
	conn net.Conn
}

// NewTCPSource wraps conn as a frame source.
func NewTCPSource(conn net.Conn) *TCPSource {
	return &TCPSource{conn: conn}
}

// Next blocks for the next frame, returning (name, payload). It returns
// io.EOF when the connection is closed cleanly.
func (s *TCPSource) Next() (string, payload.Value, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(s.conn, header); err != nil {
		if err == io.EOF {
			return "", payload.Value{}, io.EOF
		}
		return "", payload.Value{}, fmt.Errorf("tcpsource: read header: %w", err)
	}
	bodyLen := binary.LittleEndian.Uint32(header)

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(s.conn, body); err != nil {
		return "", payload.Value{}, fmt.Errorf("tcpsource: read body: %w", err)
	}
	if len(body) < 1 {
		return "", payload.Value{}, fmt.Errorf("tcpsource: empty frame")
	}
	nameLen := int(body[0])
	if len(body) < 1+nameLen {
		return "", payload.Value{}, fmt.Errorf("tcpsource: truncated name")
	}
	name := string(body[1 : 1+nameLen])

	value, err := codec.Decode(body[1+nameLen:])
	if err != nil {
		return "", payload.Value{}, fmt.Errorf("tcpsource: decode payload: %w", err)
	}
	return name, value, nil
}

// Close closes the underlying connection.
func (s *TCPSource) Close() error {
	return s.conn.Close()
}
