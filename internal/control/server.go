// Package control implements the admin/control-plane websocket server from
// spec.md §4.9: a tiny JSON-over-websocket protocol that exposes the
// session manager's and scheduler's public surface to an operator client,
// and forwards internal/events.Bus notifications back out as they occur.
package control

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Northernside/mineflayer-replay/internal/events"
	"github.com/Northernside/mineflayer-replay/internal/logging"
	"github.com/Northernside/mineflayer-replay/internal/scheduler"
	"github.com/Northernside/mineflayer-replay/internal/session"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 20 * time.Second
	pongMultiplier = 2
	sendBuffer     = 64
)

// command is one inbound operator message (spec.md §4.9): op names a
// scheduler/session entry point, arg carries its argument in whatever
// shape that op expects.
type command struct {
	Op  string          `json:"op"`
	Arg json.RawMessage `json:"arg"`
}

// outbound mirrors an events.Event as the wire shape spec.md §4.9 names:
// {"event": "...", "data": {...}}.
type outbound struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// speedArg and seekArg decode the "speed" and "seek" op arguments.
type speedArg struct {
	Speed float64 `json:"speed"`
}
type seekArg struct {
	TimeMs int64 `json:"time_ms"`
}
type chatArg struct {
	SessionID uint64 `json:"session_id"`
	Message   string `json:"message"`
	Broadcast bool   `json:"broadcast"`
}

// Server upgrades incoming HTTP requests to websocket connections and
// dispatches operator commands against a scheduler and session manager,
// mirroring each connection's lifetime to an events.Bus subscription.
type Server struct {
	upgrader websocket.Upgrader
	sched    *scheduler.Scheduler
	sessions *session.Manager
	bus      *events.Bus
	log      *logging.Logger
}

// NewServer constructs a control server over a scheduler and session
// manager, publishing and receiving through bus.
func NewServer(sched *scheduler.Scheduler, sessions *session.Manager, bus *events.Bus) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sched:    sched,
		sessions: sessions,
		bus:      bus,
		log:      logging.L(),
	}
}

// ServeHTTP implements http.Handler, upgrading the request to a websocket
// connection and running it until the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("control: websocket upgrade failed", logging.Error(err))
		return
	}
	s.serveConn(conn)
}

func (s *Server) serveConn(conn *websocket.Conn) {
	client := newControlClient(conn, s.log)
	defer client.close()

	var sub *events.Subscription
	if s.bus != nil {
		sub = s.bus.Subscribe(sendBuffer)
		defer sub.Close()
		go client.forwardEvents(sub)
	}

	waitDuration := pongMultiplier * pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(waitDuration))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(waitDuration))
	})

	go client.writePump()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(waitDuration))

		var cmd command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			s.log.Debug("control: dropping invalid command", logging.Error(err))
			continue
		}
		s.dispatch(cmd)
	}
}

func (s *Server) dispatch(cmd command) {
	switch cmd.Op {
	case "start":
		s.sched.Start()
		s.bus.Publish(events.Event{Kind: events.KindPlaybackStart, Data: map[string]any{}})
	case "pause":
		s.sched.Pause()
		s.bus.Publish(events.Event{Kind: events.KindPlaybackPause, Data: map[string]any{}})
	case "seek":
		var arg seekArg
		if err := json.Unmarshal(cmd.Arg, &arg); err != nil {
			s.log.Debug("control: bad seek arg", logging.Error(err))
			return
		}
		s.sched.SeekToTime(arg.TimeMs)
	case "speed":
		var arg speedArg
		if err := json.Unmarshal(cmd.Arg, &arg); err != nil {
			s.log.Debug("control: bad speed arg", logging.Error(err))
			return
		}
		s.sched.SetPlaybackSpeed(arg.Speed)
	case "chat":
		s.dispatchChat(cmd, false)
	case "actionbar":
		s.dispatchChat(cmd, true)
	default:
		s.log.Debug("control: unknown op", logging.String("op", cmd.Op))
	}
}

func (s *Server) dispatchChat(cmd command, actionBar bool) {
	var arg chatArg
	if err := json.Unmarshal(cmd.Arg, &arg); err != nil {
		s.log.Debug("control: bad chat arg", logging.Error(err))
		return
	}
	if s.sessions == nil {
		return
	}
	if arg.Broadcast {
		if actionBar {
			s.sessions.BroadcastActionBar(arg.Message)
		} else {
			s.sessions.BroadcastChat(arg.Message)
		}
		s.bus.Publish(events.Event{Kind: events.KindChat, Data: map[string]any{"message": arg.Message, "action_bar": actionBar}})
		return
	}
	s.log.Debug("control: targeted chat requires a resolvable session", logging.Int("session", int(arg.SessionID)))
}

// controlClient owns one websocket connection's write pump and ping loop,
// mirroring the teacher's Client.send channel + writer goroutine pattern.
type controlClient struct {
	conn *websocket.Conn
	send chan []byte
	log  *logging.Logger
}

func newControlClient(conn *websocket.Conn, log *logging.Logger) *controlClient {
	return &controlClient{conn: conn, send: make(chan []byte, sendBuffer), log: log}
}

func (c *controlClient) forwardEvents(sub *events.Subscription) {
	for evt := range sub.Events() {
		encoded, err := json.Marshal(outbound{Event: string(evt.Kind), Data: evt.Data})
		if err != nil {
			continue
		}
		select {
		case c.send <- encoded:
		default:
		}
	}
}

func (c *controlClient) writePump() {
	pingTicker := time.NewTicker(pingInterval)
	defer func() {
		pingTicker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warn("control: write error", logging.Error(err))
				return
			}
		case <-pingTicker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				c.log.Warn("control: ping failure", logging.Error(err))
				return
			}
		}
	}
}

// close terminates the connection, which unblocks writePump's next write
// attempt (ping or queued message) with an error and lets it return.
func (c *controlClient) close() {
	_ = c.conn.Close()
}
