// Command replayrecorder listens for a bot process to connect over TCP and
// streams its packets into a .mcreplay container (spec.md §4.8).
package main

import (
	"fmt"
	"io"
	"net"
	"os"

	"github.com/Northernside/mineflayer-replay/internal/config"
	"github.com/Northernside/mineflayer-replay/internal/container"
	"github.com/Northernside/mineflayer-replay/internal/logging"
	"github.com/Northernside/mineflayer-replay/internal/recorder"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var botUsername, versionTag string

	cmd := &cobra.Command{
		Use:           "replayrecorder",
		Short:         "Record a bot's packet stream into a .mcreplay container",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(botUsername, versionTag)
		},
	}
	cmd.Flags().StringVar(&botUsername, "bot", "bot", "username recorded as the bot's identity")
	cmd.Flags().StringVar(&versionTag, "version", "unknown", "game version tag recorded in the container metadata")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(botUsername, versionTag string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize structured logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	writer, err := newWriter(cfg.Recorder)
	if err != nil {
		logger.Fatal("failed to construct container writer", logging.Error(err))
	}

	feed := recorder.NewFeed(writer, botUsername, versionTag, nil)
	if err := feed.Start(); err != nil {
		logger.Fatal("failed to start recording", logging.Error(err))
	}

	listener, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		logger.Fatal("failed to start bot listener", logging.Error(err), logging.String("address", cfg.Address))
	}
	logger.Info("waiting for bot connection", logging.String("address", cfg.Address))

	conn, err := listener.Accept()
	if err != nil {
		logger.Fatal("failed to accept bot connection", logging.Error(err))
	}
	_ = listener.Close()
	logger.Info("bot connected", logging.String("remote", conn.RemoteAddr().String()))

	source := recorder.NewTCPSource(conn)
	defer source.Close()

	for {
		name, value, err := source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warn("dropping malformed frame", logging.Error(err))
			continue
		}
		if name == "spawn_position" {
			native := value.Native()
			if m, ok := native.(map[string]any); ok {
				_ = feed.OnSpawn(recorder.SpawnPosition{
					X: toInt64(m["x"]),
					Y: toInt64(m["y"]),
					Z: toInt64(m["z"]),
				})
				continue
			}
		}
		if err := feed.OnPacket(name, value); err != nil {
			logger.Warn("failed to append packet", logging.Error(err), logging.String("packet", name))
		}
	}

	if err := feed.Close(); err != nil {
		logger.Fatal("failed to finalize recording", logging.Error(err))
	}
	logger.Info("recording finished")
	return nil
}

func newWriter(cfg config.RecorderConfig) (*container.Writer, error) {
	switch cfg.SaveMode {
	case "memory":
		return container.NewMemoryWriter(), nil
	case "stream":
		return container.NewStreamWriter(func(chunk []byte) error {
			_, err := os.Stdout.Write(chunk)
			return err
		}), nil
	default:
		return container.NewFileWriter(cfg.OutputPath)
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
