package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the replay viewer sink listens on.
	DefaultAddr = ":25565"
	// DefaultControlAddr serves the WebSocket admin/control plane.
	DefaultControlAddr = ":25566"
	// DefaultProtocolVersion is the game protocol version advertised to
	// connecting clients; spec.md treats the wire protocol itself as
	// external to this module, this value is metadata only.
	DefaultProtocolVersion = 47
	// DefaultMaxPlayers bounds the login frame's max_players field.
	DefaultMaxPlayers = 20
	// DefaultRecentRingSize mirrors spec.md §3's recentRing default.
	DefaultRecentRingSize = 1000

	// DefaultLogLevel controls verbosity for replay server logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "replay.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultRecorderSaveMode picks the recorder's sink variant when unset.
	DefaultRecorderSaveMode = "file"
)

// Config captures all runtime tunables for the replay server.
type Config struct {
	Address         string
	ControlAddress  string
	ProtocolVersion int
	MaxPlayers      int
	RecentRingSize  int
	Motd            string
	TLSCertPath     string
	TLSKeyPath      string
	AdminToken      string

	Recorder RecorderConfig
	Logging  LoggingConfig
}

// RecorderConfig captures the record-side tunables (spec.md §6 and §4.8).
type RecorderConfig struct {
	// SaveMode is one of "file", "memory", or "stream", selecting which
	// internal/container.Writer sink variant the recorder feeds.
	SaveMode   string
	OutputPath string
	Debug      bool
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the replay server configuration from environment variables,
// applying sane defaults and returning descriptive errors for invalid
// overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:         getString("REPLAY_ADDR", DefaultAddr),
		ControlAddress:  getString("REPLAY_CONTROL_ADDR", DefaultControlAddr),
		ProtocolVersion: DefaultProtocolVersion,
		MaxPlayers:      DefaultMaxPlayers,
		RecentRingSize:  DefaultRecentRingSize,
		Motd:            strings.TrimSpace(os.Getenv("REPLAY_MOTD")),
		TLSCertPath:     strings.TrimSpace(os.Getenv("REPLAY_TLS_CERT")),
		TLSKeyPath:      strings.TrimSpace(os.Getenv("REPLAY_TLS_KEY")),
		AdminToken:      strings.TrimSpace(os.Getenv("REPLAY_ADMIN_TOKEN")),
		Recorder: RecorderConfig{
			SaveMode:   getString("REPLAY_SAVE_MODE", DefaultRecorderSaveMode),
			OutputPath: strings.TrimSpace(os.Getenv("REPLAY_OUTPUT_PATH")),
		},
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("REPLAY_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("REPLAY_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("REPLAY_PROTOCOL_VERSION")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("REPLAY_PROTOCOL_VERSION must be a positive integer, got %q", raw))
		} else {
			cfg.ProtocolVersion = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REPLAY_MAX_PLAYERS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("REPLAY_MAX_PLAYERS must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPlayers = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REPLAY_RECENT_RING_SIZE")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("REPLAY_RECENT_RING_SIZE must be a positive integer, got %q", raw))
		} else {
			cfg.RecentRingSize = value
		}
	}

	switch cfg.Recorder.SaveMode {
	case "file", "memory", "stream":
	default:
		problems = append(problems, fmt.Sprintf("REPLAY_SAVE_MODE must be one of file|memory|stream, got %q", cfg.Recorder.SaveMode))
	}
	if cfg.Recorder.SaveMode == "file" && cfg.Recorder.OutputPath == "" {
		problems = append(problems, "REPLAY_OUTPUT_PATH must be set when REPLAY_SAVE_MODE=file")
	}

	if raw := strings.TrimSpace(os.Getenv("REPLAY_RECORDER_DEBUG")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("REPLAY_RECORDER_DEBUG must be a boolean value, got %q", raw))
		} else {
			cfg.Recorder.Debug = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REPLAY_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("REPLAY_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REPLAY_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("REPLAY_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REPLAY_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("REPLAY_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REPLAY_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("REPLAY_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		problems = append(problems, "REPLAY_TLS_CERT and REPLAY_TLS_KEY must be provided together")
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf(strings.Join(problems, "; "))
	}

	return cfg, nil
}

// MotdOrDefault resolves the configured banner, falling back to one that
// reports the replay's duration (spec.md §6, §4.9).
func (c *Config) MotdOrDefault(duration time.Duration) string {
	if strings.TrimSpace(c.Motd) != "" {
		return c.Motd
	}
	return fmt.Sprintf("Replay Viewer\nDuration: %s", duration.Round(time.Second))
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
