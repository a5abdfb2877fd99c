package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/Northernside/mineflayer-replay/internal/container"
	"github.com/Northernside/mineflayer-replay/internal/payload"
	"github.com/Northernside/mineflayer-replay/internal/projector"
)

type fakeViewers struct {
	broadcasts []container.PacketRecord
	resyncs    []bool
}

func (f *fakeViewers) Broadcast(r container.PacketRecord) { f.broadcasts = append(f.broadcasts, r) }
func (f *fakeViewers) ResyncAll(clearEntities bool)       { f.resyncs = append(f.resyncs, clearEntities) }

func rec(ts int64, name string) container.PacketRecord {
	return container.PacketRecord{TimestampMs: ts, Name: name, Payload: payload.Normalize(map[string]any{"n": name})}
}

func newClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestPacingInvariantHoldsAfterStart(t *testing.T) {
	packets := []container.PacketRecord{rec(0, "a"), rec(1000, "b"), rec(2000, "c")}
	clock, advance := newClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	viewers := &fakeViewers{}
	s := New(packets, projector.New(0), viewers, Observer{}, clock)

	s.Start()
	advance(1500 * time.Millisecond)
	s.tick()

	if got := s.CurrentTime(); got != 1500 {
		t.Fatalf("CurrentTime = %d, want 1500", got)
	}
	if len(viewers.broadcasts) != 2 {
		t.Fatalf("expected 2 packets consumed by t=1500ms, got %d", len(viewers.broadcasts))
	}
}

func TestSpeedClampLow(t *testing.T) {
	s := New(nil, projector.New(0), nil, Observer{}, nil)
	s.SetPlaybackSpeed(0.0)
	if got := s.Speed(); got != minSpeed {
		t.Fatalf("Speed() = %v, want %v", got, minSpeed)
	}
}

func TestSpeedClampHigh(t *testing.T) {
	s := New(nil, projector.New(0), nil, Observer{}, nil)
	s.SetPlaybackSpeed(100)
	if got := s.Speed(); got != maxSpeed {
		t.Fatalf("Speed() = %v, want %v", got, maxSpeed)
	}
}

func TestSpeedChangeHasNoTimeDiscontinuity(t *testing.T) {
	packets := []container.PacketRecord{rec(0, "a"), rec(5000, "b")}
	clock, advance := newClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	s := New(packets, projector.New(0), nil, Observer{}, clock)

	s.Start()
	advance(1000 * time.Millisecond)
	before := s.CurrentTime()
	s.SetPlaybackSpeed(2.0)
	after := s.CurrentTime()
	if before != after {
		t.Fatalf("currentTime changed across SetPlaybackSpeed: before=%d after=%d", before, after)
	}
}

func TestPlaybackEndsAtLastPacket(t *testing.T) {
	packets := []container.PacketRecord{rec(0, "a"), rec(100, "b")}
	clock, advance := newClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ended := false
	s := New(packets, projector.New(0), nil, Observer{OnEnd: func() { ended = true }}, clock)

	s.Start()
	advance(200 * time.Millisecond)
	s.tick()

	if s.State() != Ended {
		t.Fatalf("expected Ended, got %v", s.State())
	}
	if !ended {
		t.Fatalf("expected OnEnd to fire")
	}
}

func TestSeekIsIdempotent(t *testing.T) {
	packets := []container.PacketRecord{rec(0, "a"), rec(1000, "b"), rec(2000, "c")}
	viewers := &fakeViewers{}
	s := New(packets, projector.New(0), viewers, Observer{}, nil)

	s.SeekToTime(1500)
	firstCursor := s.cursor
	firstTime := s.CurrentTime()

	s.SeekToTime(1500)
	if s.cursor != firstCursor {
		t.Fatalf("repeated seek to same time changed cursor: %d vs %d", s.cursor, firstCursor)
	}
	if s.CurrentTime() != firstTime {
		t.Fatalf("repeated seek to same time changed currentTime")
	}
}

func TestSeekClampsToLogBounds(t *testing.T) {
	packets := []container.PacketRecord{rec(0, "a"), rec(1000, "b")}
	s := New(packets, projector.New(0), nil, Observer{}, nil)

	s.SeekToTime(-500)
	if s.CurrentTime() != 0 {
		t.Fatalf("expected seek below 0 to clamp to 0, got %d", s.CurrentTime())
	}

	s.SeekToTime(99999)
	if s.CurrentTime() != 1000 {
		t.Fatalf("expected seek past end to clamp to endMs, got %d", s.CurrentTime())
	}
	if s.State() != Ended {
		t.Fatalf("expected seeking to the end to land in Ended, got %v", s.State())
	}
}

func TestSeekResyncsViewersWithClearEntities(t *testing.T) {
	packets := []container.PacketRecord{rec(0, "a")}
	viewers := &fakeViewers{}
	s := New(packets, projector.New(0), viewers, Observer{}, nil)

	s.SeekToTime(0)
	if len(viewers.resyncs) != 1 || viewers.resyncs[0] != true {
		t.Fatalf("expected one clearEntities=true resync, got %+v", viewers.resyncs)
	}
}

func TestPauseThenResumePreservesCurrentTime(t *testing.T) {
	packets := []container.PacketRecord{rec(0, "a"), rec(5000, "b")}
	clock, advance := newClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	s := New(packets, projector.New(0), nil, Observer{}, clock)

	s.Start()
	advance(1000 * time.Millisecond)
	s.Pause()
	paused := s.CurrentTime()

	advance(2000 * time.Millisecond)
	if s.CurrentTime() != paused {
		t.Fatalf("currentTime advanced while paused: %d vs %d", s.CurrentTime(), paused)
	}

	s.Start()
	if s.CurrentTime() != paused {
		t.Fatalf("resume changed currentTime before any wall time passed: %d vs %d", s.CurrentTime(), paused)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := New(nil, projector.New(0), nil, Observer{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after context cancellation")
	}
}
