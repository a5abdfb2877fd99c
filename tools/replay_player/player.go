// Package replayplayer opens an MCREPLAY container and exposes its decoded
// packet timeline for inspection, adapted from the teacher's bundle-dumping
// tool to the container format in internal/container.
package replayplayer

import (
	"fmt"

	"github.com/Northernside/mineflayer-replay/internal/container"
	"github.com/Northernside/mineflayer-replay/internal/payload"
)

// DecodedPacket is a single packet record rendered for JSON inspection, with
// its payload flattened to native Go values so it serializes without the
// internal Value wrapper.
type DecodedPacket struct {
	TimestampMs int64  `json:"timestamp_ms"`
	Name        string `json:"name"`
	Payload     any    `json:"payload"`
}

// Bundle is the full decoded content of one .mcreplay file.
type Bundle struct {
	Metadata container.ReplayMetadata `json:"metadata"`
	Packets  []DecodedPacket          `json:"packets"`
}

// Load opens path and decodes every packet record and the trailing
// metadata block into a Bundle suitable for JSON rendering.
func Load(path string) (Bundle, error) {
	if path == "" {
		return Bundle{}, fmt.Errorf("path is required")
	}
	reader, err := container.Open(path)
	if err != nil {
		return Bundle{}, err
	}

	records := reader.Packets()
	packets := make([]DecodedPacket, 0, len(records))
	for _, r := range records {
		packets = append(packets, DecodedPacket{
			TimestampMs: r.TimestampMs,
			Name:        r.Name,
			Payload:     nativeOf(r.Payload),
		})
	}

	return Bundle{Metadata: reader.Metadata(), Packets: packets}, nil
}

func nativeOf(v payload.Value) any {
	return v.Native()
}
