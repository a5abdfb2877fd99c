package control

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Northernside/mineflayer-replay/internal/container"
	"github.com/Northernside/mineflayer-replay/internal/events"
	"github.com/Northernside/mineflayer-replay/internal/projector"
	"github.com/Northernside/mineflayer-replay/internal/scheduler"
	"github.com/Northernside/mineflayer-replay/internal/session"
	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) (*httptest.Server, *scheduler.Scheduler, *events.Bus) {
	t.Helper()
	packets := []container.PacketRecord{}
	proj := projector.New(0)
	bus := events.NewBus()
	sched := scheduler.New(packets, proj, nil, scheduler.Observer{}, nil)
	srv := NewServer(sched, session.NewManager(proj, container.ReplayMetadata{}, 20, bus, nil), bus)

	httpSrv := httptest.NewServer(srv)
	t.Cleanup(httpSrv.Close)
	return httpSrv, sched, bus
}

func dial(t *testing.T, httpSrv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestStartCommandTransitionsScheduler(t *testing.T) {
	httpSrv, sched, _ := newTestServer(t)
	conn := dial(t, httpSrv)

	if err := conn.WriteJSON(command{Op: "start"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sched.State() == scheduler.Playing {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected scheduler to reach Playing, got %v", sched.State())
}

func TestSpeedCommandClampsAndApplies(t *testing.T) {
	httpSrv, sched, _ := newTestServer(t)
	conn := dial(t, httpSrv)

	arg, _ := json.Marshal(speedArg{Speed: 100})
	if err := conn.WriteJSON(command{Op: "speed", Arg: arg}); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sched.Speed() == 10.0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected speed clamped to 10, got %v", sched.Speed())
}

func TestEventsAreForwardedAsOutboundFrames(t *testing.T) {
	httpSrv, _, bus := newTestServer(t)
	conn := dial(t, httpSrv)

	// Give the server goroutine a moment to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	bus.Publish(events.Event{Kind: events.KindPlaybackStart, Data: map[string]any{"ok": true}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var out outbound
	if err := json.Unmarshal(msg, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Event != string(events.KindPlaybackStart) {
		t.Fatalf("unexpected event: %+v", out)
	}
}

func TestUnknownOpIsIgnoredNotFatal(t *testing.T) {
	httpSrv, _, _ := newTestServer(t)
	conn := dial(t, httpSrv)

	if err := conn.WriteJSON(command{Op: "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// A second, valid command on the same connection should still work.
	if err := conn.WriteJSON(command{Op: "pause"}); err != nil {
		t.Fatalf("write: %v", err)
	}
}
