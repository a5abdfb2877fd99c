// Package replaycatalog walks a directory of .mcreplay containers and
// reports summary metadata for each, adapted from the teacher's
// header-scanning catalogue tool to the MCREPLAY container format.
package replaycatalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Northernside/mineflayer-replay/internal/container"
)

// Entry captures one replay file's metadata alongside its packet count and
// duration, derived from the container's trailer and frame stream.
type Entry struct {
	Path          string                   `json:"path"`
	PacketCount   int                      `json:"packet_count"`
	DurationMs    int64                    `json:"duration_ms"`
	Metadata      container.ReplayMetadata `json:"metadata"`
	SizeBytes     int64                    `json:"size_bytes"`
	PacketsByKind map[string]int           `json:"packets_by_kind"`
}

// List walks root and returns a catalogue entry for every .mcreplay file
// found. The first file that fails to parse aborts the scan: List returns
// that error, prefixed with the file's path, and no entries.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".mcreplay") {
			return nil
		}

		reader, err := container.Open(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		stat, err := d.Info()
		if err != nil {
			return err
		}

		packets := reader.Packets()
		var duration int64
		if len(packets) > 0 {
			duration = packets[len(packets)-1].TimestampMs
		}
		byKind := make(map[string]int)
		for _, p := range packets {
			byKind[p.Name]++
		}

		entries = append(entries, Entry{
			Path:          path,
			PacketCount:   len(packets),
			DurationMs:    duration,
			Metadata:      reader.Metadata(),
			SizeBytes:     stat.Size(),
			PacketsByKind: byKind,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// MarshalEntries produces a stable JSON representation of the entries for
// CLI output.
func MarshalEntries(entries []Entry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}
