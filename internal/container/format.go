// Package container implements the MCREPLAY binary format (spec.md §4.4):
// magic + version header, a stream of framed packet records with
// delta-encoded timestamps, and a trailing metadata block addressable by a
// length suffix.
package container

import (
	"fmt"

	"github.com/Northernside/mineflayer-replay/internal/payload"
)

// Magic is the eight-byte ASCII identifier at file offset 0.
const Magic = "MCREPLAY"

// Version is the only container format version this package understands.
const Version byte = 0x01

// PacketRecord is a single (timestamp, name, payload) triple as stored in
// the container (spec.md §3).
type PacketRecord struct {
	// TimestampMs is nonnegative, measured in milliseconds from recording
	// start. Monotonically non-decreasing across records as produced.
	TimestampMs int64
	Name        string
	Payload     payload.Value
}

// ReplayMetadata is the trailing metadata block (spec.md §3).
type ReplayMetadata struct {
	SpawnX, SpawnY, SpawnZ int64
	StartTimeMs            int64
	EndTimeMs              int64
	BotUsername            string
	VersionTag             string
}

// Validate enforces the metadata invariants: endTime >= startTime.
func (m ReplayMetadata) Validate() error {
	if m.EndTimeMs < m.StartTimeMs {
		return fmt.Errorf("container: metadata endTime %d precedes startTime %d", m.EndTimeMs, m.StartTimeMs)
	}
	return nil
}

// packetIDs is the state-bearing packet id table from spec.md §4.4 (v1).
var packetIDs = map[string]byte{
	"map_chunk":            1,
	"map_chunk_bulk":       2,
	"block_change":         3,
	"multi_block_change":   4,
	"named_entity_spawn":   5,
	"spawn_entity_living":  6,
	"spawn_entity":         7,
	"entity_velocity":      8,
	"entity_teleport":      9,
	"entity_move_look":     10,
	"rel_entity_move":      11,
	"entity_look":          12,
	"entity_head_rotation": 13,
	"entity_destroy":       14,
	"chat":                 15,
	"player_info":          16,
	"update_sign":          17,
	"explosion":            18,
	"entity_equipment":     19,
	"player_abilities":     20,
	"entity_metadata":      21,
}

var packetNames = func() map[byte]string {
	out := make(map[byte]string, len(packetIDs))
	for name, id := range packetIDs {
		out[id] = name
	}
	return out
}()

// PacketID returns the numeric id for a known packet name.
func PacketID(name string) (byte, bool) {
	id, ok := packetIDs[name]
	return id, ok
}

// PacketName returns the packet name for a known numeric id.
func PacketName(id byte) (string, bool) {
	name, ok := packetNames[id]
	return name, ok
}

// KnownPacketNames lists every packet name in the id table, for callers
// that want to build a filter set (spec.md §4.8 "Recorder feed").
func KnownPacketNames() []string {
	out := make([]string, 0, len(packetIDs))
	for name := range packetIDs {
		out = append(out, name)
	}
	return out
}
