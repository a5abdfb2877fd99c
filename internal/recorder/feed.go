// Package recorder implements the recorder feed from spec.md §4.8: a thin
// adapter that turns a packet source's callback into records appended to an
// internal/container.Writer, with bot-spawn synthesis of the bot's own
// named_entity_spawn.
package recorder

import (
	"fmt"
	"sync"
	"time"

	"github.com/Northernside/mineflayer-replay/internal/container"
	"github.com/Northernside/mineflayer-replay/internal/logging"
	"github.com/Northernside/mineflayer-replay/internal/payload"
)

// SpawnPosition is the bot's initial viewpoint position, carried by the
// packet source's spawn-once signal (spec.md §6). Feed does not assume
// anything about how the source is driven (websocket, in-process bot
// library, etc.) — it is handed packets one at a time via Feed.OnPacket and
// the spawn signal via Feed.OnSpawn.
type SpawnPosition struct {
	X, Y, Z int64
}

// Feed subscribes to a packet source and appends admitted packets to a
// container.Writer, synthesizing the bot's own spawn entity on first sight
// of the spawn signal (spec.md §4.8).
type Feed struct {
	mu sync.Mutex

	writer         *container.Writer
	log            *logging.Logger
	now            func() time.Time
	recordingStart time.Time

	botUsername   string
	versionTag    string
	spawnSeen     bool
	spawnPosition SpawnPosition
	botEntityID   int64
}

// NewFeed constructs a feed that writes admitted packets to writer. now
// defaults to time.Now; tests may override it for determinism.
func NewFeed(writer *container.Writer, botUsername, versionTag string, now func() time.Time) *Feed {
	if now == nil {
		now = time.Now
	}
	return &Feed{
		writer:         writer,
		log:            logging.L(),
		now:            now,
		recordingStart: now(),
		botUsername:    botUsername,
		versionTag:     versionTag,
		botEntityID:    -1,
	}
}

// Start must be called once before any OnPacket/OnSpawn calls; it writes the
// container header.
func (f *Feed) Start() error {
	if err := f.writer.WriteHeader(); err != nil {
		return fmt.Errorf("recorder: write header: %w", err)
	}
	return nil
}

// OnSpawn records the bot's viewpoint position on first call and synthesizes
// a named_entity_spawn record for it (spec.md §4.8). Subsequent calls are
// ignored: only the first bot-spawn signal synthesizes an entity.
func (f *Feed) OnSpawn(pos SpawnPosition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spawnSeen {
		return nil
	}
	f.spawnSeen = true
	f.spawnPosition = pos
	f.log.Info("synthesizing bot spawn", logging.String("bot", f.botUsername))

	synthetic := payload.Normalize(map[string]any{
		"entityId": f.botEntityID,
		"x":        pos.X,
		"y":        pos.Y,
		"z":        pos.Z,
		"username": f.botUsername,
	})
	record := container.PacketRecord{
		TimestampMs: f.elapsedLocked(),
		Name:        "named_entity_spawn",
		Payload:     synthetic,
	}
	if err := f.writer.WritePacket(record); err != nil {
		return fmt.Errorf("recorder: synthesize bot spawn: %w", err)
	}
	return nil
}

// OnPacket admits one packet from the source: it is timestamped relative to
// the recording start and forwarded to the container writer.
func (f *Feed) OnPacket(name string, value payload.Value) error {
	f.mu.Lock()
	ts := f.elapsedLocked()
	f.mu.Unlock()

	record := container.PacketRecord{TimestampMs: ts, Name: name, Payload: value}
	if err := f.writer.WritePacket(record); err != nil {
		return fmt.Errorf("recorder: write packet %s: %w", name, err)
	}
	return nil
}

func (f *Feed) elapsedLocked() int64 {
	return f.now().Sub(f.recordingStart).Milliseconds()
}

// Close finalizes the container with the recording's metadata.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta := container.ReplayMetadata{
		SpawnX:      f.spawnPosition.X,
		SpawnY:      f.spawnPosition.Y,
		SpawnZ:      f.spawnPosition.Z,
		StartTimeMs: f.recordingStart.UnixMilli(),
		EndTimeMs:   f.now().UnixMilli(),
		BotUsername: f.botUsername,
		VersionTag:  f.versionTag,
	}
	if err := f.writer.Close(meta); err != nil {
		return fmt.Errorf("recorder: close: %w", err)
	}
	return nil
}
