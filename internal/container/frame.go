package container

import (
	"encoding/binary"

	"github.com/Northernside/mineflayer-replay/internal/payload"
	"github.com/Northernside/mineflayer-replay/internal/varint"
)

// frameWriteBuf assembles one packet frame: varint(delta), u8(id),
// u32_le(len), data.
func frameWriteBuf(delta int64, id byte, data []byte) []byte {
	buf := varint.Encode(nil, uint64(delta))
	buf = append(buf, id)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, data...)
	return buf
}

// metadataToPayload converts a ReplayMetadata into the payload tree the
// schema-less encoder serializes for the trailing metadata block.
func metadataToPayload(m ReplayMetadata) payload.Value {
	return payload.Map(map[string]payload.Value{
		"spawnX":      payload.Int(m.SpawnX),
		"spawnY":      payload.Int(m.SpawnY),
		"spawnZ":      payload.Int(m.SpawnZ),
		"startTime":   payload.Int(m.StartTimeMs),
		"endTime":     payload.Int(m.EndTimeMs),
		"botUsername": payload.String(m.BotUsername),
		"versionTag":  payload.String(m.VersionTag),
	})
}

// payloadToMetadata is the inverse of metadataToPayload.
func payloadToMetadata(v payload.Value) ReplayMetadata {
	get := func(key string) payload.Value {
		val, _ := v.MapGet(key)
		return val
	}
	asInt := func(key string) int64 {
		n, _ := get(key).AsInt64()
		return n
	}
	asStr := func(key string) string {
		val := get(key)
		if val.Kind == payload.KindString {
			return val.Str
		}
		return ""
	}
	return ReplayMetadata{
		SpawnX:       asInt("spawnX"),
		SpawnY:       asInt("spawnY"),
		SpawnZ:       asInt("spawnZ"),
		StartTimeMs:  asInt("startTime"),
		EndTimeMs:    asInt("endTime"),
		BotUsername:  asStr("botUsername"),
		VersionTag:   asStr("versionTag"),
	}
}
