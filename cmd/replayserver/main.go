// Command replayserver loads a .mcreplay container and serves it to
// connecting game clients, with a websocket control plane for
// start/pause/seek/speed/chat operations (spec.md §4.9).
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Northernside/mineflayer-replay/internal/config"
	"github.com/Northernside/mineflayer-replay/internal/container"
	"github.com/Northernside/mineflayer-replay/internal/control"
	"github.com/Northernside/mineflayer-replay/internal/events"
	"github.com/Northernside/mineflayer-replay/internal/logging"
	"github.com/Northernside/mineflayer-replay/internal/projector"
	"github.com/Northernside/mineflayer-replay/internal/scheduler"
	"github.com/Northernside/mineflayer-replay/internal/session"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var replayPath string

	cmd := &cobra.Command{
		Use:           "replayserver",
		Short:         "Serve a recorded .mcreplay container to connecting viewers",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(replayPath)
		},
	}
	cmd.Flags().StringVar(&replayPath, "replay", "", "path to the .mcreplay container to serve")
	_ = cmd.MarkFlagRequired("replay")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(replayPath string) error {
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

	reader, err := container.Open(replayPath)
	if err != nil {
		logger.Fatal("failed to open replay container", logging.Error(err), logging.String("path", replayPath))
	}
	logger.Info("replay loaded",
		logging.String("path", replayPath),
		logging.String("bot", reader.Metadata().BotUsername),
		logging.Int("packets", len(reader.Packets())))

	bus := events.NewBus()
	proj := projector.New(cfg.RecentRingSize)

	var sched *scheduler.Scheduler
	isPlaying := func() bool { return sched != nil && sched.State() == scheduler.Playing }
	sessions := session.NewManager(proj, reader.Metadata(), cfg.MaxPlayers, bus, isPlaying)

	obs := scheduler.Observer{
		OnProgress: func(cursor, total int, currentTimeMs int64) {
			bus.Publish(events.Event{Kind: events.KindPlaybackProgress, Data: map[string]any{"cursor": cursor, "total": total, "current_time_ms": currentTimeMs}})
		},
		OnEnd: func() {
			bus.Publish(events.Event{Kind: events.KindPlaybackEnd, Data: map[string]any{}})
		},
		OnSeek: func(from, to int64) {
			bus.Publish(events.Event{Kind: events.KindPlaybackSeek, Data: map[string]any{"from_ms": from, "to_ms": to}})
		},
		OnSpeed: func(old, new float64) {
			bus.Publish(events.Event{Kind: events.KindPlaybackSpeed, Data: map[string]any{"old": old, "new": new}})
		},
	}
	sched = scheduler.New(reader.Packets(), proj, sessions, obs, nil)

	bus.Publish(events.Event{Kind: events.KindReplayLoaded, Data: map[string]any{"path": replayPath}})

	schedCtx, schedCancel := context.WithCancel(context.Background())
	go sched.Run(schedCtx)
	defer schedCancel()

	gameListener, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		bus.Publish(events.Event{Kind: events.KindServerError, Data: map[string]any{"stage": "game_listener", "error": err.Error()}})
		logger.Fatal("failed to start game listener", logging.Error(err), logging.String("address", cfg.Address))
	}
	logger.Info("game listener started", logging.String("address", cfg.Address))
	bus.Publish(events.Event{Kind: events.KindServerListening, Data: map[string]any{"address": cfg.Address}})
	go acceptGameConns(gameListener, sessions, logger)
	defer gameListener.Close()

	controlServer := control.NewServer(sched, sessions, bus)
	httpServer := &http.Server{Addr: cfg.ControlAddress, Handler: controlServer}
	go func() {
		logger.Info("control plane listening", logging.String("address", cfg.ControlAddress))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			bus.Publish(events.Event{Kind: events.KindServerError, Data: map[string]any{"stage": "control_server", "error": err.Error()}})
			logger.Fatal("control server terminated", logging.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	sessions.Close("server shutting down")
	return nil
}

// acceptGameConns accepts TCP connections on the viewer game listener,
// wraps each as a session.TCPSink, and completes the handshake via
// session.Manager.Accept. Real username negotiation is out of scope for the
// minimal framing session.TCPSink speaks (spec.md §4.10): every connection
// is accepted under a generated placeholder name, with a random UUID
// identity the way a real client's login packet would supply one.
func acceptGameConns(listener net.Listener, sessions *session.Manager, logger *logging.Logger) {
	var nextConn uint64
	for {
		conn, err := listener.Accept()
		if err != nil {
			logger.Warn("game listener accept failed", logging.Error(err))
			return
		}
		nextConn++
		username := fmt.Sprintf("viewer-%d", nextConn)
		sink := session.NewTCPSink(conn)
		if _, err := sessions.Accept(sink, username, uuid.NewString()); err != nil {
			logger.Warn("viewer handshake failed", logging.Error(err))
			_ = conn.Close()
		}
	}
}
