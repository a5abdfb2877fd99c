// Package scheduler implements the playback state machine and real-time
// pacing loop described in spec.md §4.6: start/pause/seek/speed control
// over an in-memory packet log, driving a projector and a set of viewer
// sinks as it advances.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/Northernside/mineflayer-replay/internal/container"
	"github.com/Northernside/mineflayer-replay/internal/logging"
	"github.com/Northernside/mineflayer-replay/internal/projector"
)

// State names the scheduler's coarse playback state (spec.md §4.6).
type State int

const (
	Idle State = iota
	Playing
	Paused
	Ended
)

const (
	minSpeed = 0.1
	maxSpeed = 10.0

	// progressInterval is how often (in consumed packets) a progress
	// notification fires, per spec.md §4.6.
	progressInterval = 100

	// tickInterval paces the cooperative loop; it only governs how often
	// wall time is resampled, not the pacing invariant itself.
	tickInterval = 20 * time.Millisecond
)

// Viewers is the subset of internal/session.Manager the scheduler depends
// on: emitting a packet to every connected viewer and resyncing them after
// a seek.
type Viewers interface {
	Broadcast(r container.PacketRecord)
	ResyncAll(clearEntities bool)
}

// Observer receives scheduler lifecycle notifications (spec.md §6
// "Events"). Any method may be nil.
type Observer struct {
	OnProgress func(cursor, total int, currentTimeMs int64)
	OnEnd      func()
	OnSeek     func(from, to int64)
	OnSpeed    func(old, new float64)
}

// Scheduler drives playback of an in-memory packet log against a
// projector and a viewer set. All state-mutating entry points
// (Start/Pause/Seek/SetSpeed/tick/viewer accept/disconnect) are expected to
// execute serially on one logical thread per spec.md §5; the mutex here is
// defensive, matching the teacher's locking convention even though the
// logical ownership model is single-writer.
type Scheduler struct {
	mu sync.Mutex

	packets []container.PacketRecord
	proj    *projector.Projection
	viewers Viewers
	log     *logging.Logger
	obs     Observer
	now     func() time.Time

	state      State
	currentMs  int64
	speed      float64
	cursor     int
	wallAnchor time.Time
	endMs      int64
}

// New constructs a scheduler over packets, starting in Idle state at t=0.
func New(packets []container.PacketRecord, proj *projector.Projection, viewers Viewers, obs Observer, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	var endMs int64
	if len(packets) > 0 {
		endMs = packets[len(packets)-1].TimestampMs
	}
	return &Scheduler{
		packets: packets,
		proj:    proj,
		viewers: viewers,
		log:     logging.L(),
		obs:     obs,
		now:     now,
		state:   Idle,
		speed:   1.0,
		endMs:   endMs,
	}
}

// State returns the current coarse playback state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentTime returns the current virtual playback time, recomputed from
// wall time if playing.
func (s *Scheduler) CurrentTime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCurrentTimeLocked()
	return s.currentMs
}

// Speed returns the current playback speed multiplier.
func (s *Scheduler) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

func (s *Scheduler) refreshCurrentTimeLocked() {
	if s.state != Playing {
		return
	}
	elapsed := s.now().Sub(s.wallAnchor)
	s.currentMs = int64(float64(elapsed) * s.speed / float64(time.Millisecond))
}

// Start transitions Idle/Paused -> Playing. No-op if already playing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked()
}

func (s *Scheduler) startLocked() {
	if s.state == Playing || s.state == Ended {
		return
	}
	if s.speed == 0 {
		s.speed = 1.0
	}
	//1.- wallAnchor is chosen so currentTime(now) == currentMs: the pacing
	// invariant from spec.md §4.6.
	s.wallAnchor = s.now().Add(-time.Duration(float64(s.currentMs) / s.speed * float64(time.Millisecond)))
	s.state = Playing
}

// Pause transitions Playing -> Paused. No-op if already paused.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseLocked()
}

func (s *Scheduler) pauseLocked() {
	if s.state != Playing {
		return
	}
	s.refreshCurrentTimeLocked()
	s.state = Paused
}

// SetPlaybackSpeed clamps s to [0.1, 10] and applies it without a time
// discontinuity (spec.md §4.6).
func (s *Scheduler) SetPlaybackSpeed(speed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clamped := clamp(speed, minSpeed, maxSpeed)
	old := s.speed
	wasPlaying := s.state == Playing
	s.pauseLocked()
	s.speed = clamped
	if wasPlaying {
		s.startLocked()
	}
	if s.obs.OnSpeed != nil && old != clamped {
		s.obs.OnSpeed(old, clamped)
	}
}

// SeekToTime clamps t to [0, timestamp of the last packet], rebuilds the
// projection from scratch up to t, resyncs every viewer, and resumes
// playback if it was previously running and the seek did not land past the
// last packet (spec.md §4.6). The metadata's endTime-startTime span is not
// consulted for the upper bound.
func (s *Scheduler) SeekToTime(t int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasPlaying := s.state == Playing
	s.refreshCurrentTimeLocked()
	fromMs := s.currentMs
	s.pauseLocked()

	clamped := clamp64(t, 0, s.endMs)

	s.proj.Reset()
	cursor := 0
	for cursor < len(s.packets) && s.packets[cursor].TimestampMs <= clamped {
		s.proj.Apply(s.packets[cursor])
		cursor++
	}
	s.cursor = cursor
	s.currentMs = clamped
	if cursor >= len(s.packets) {
		s.state = Ended
	} else {
		s.state = Paused
	}

	if s.viewers != nil {
		s.viewers.ResyncAll(true)
	}
	if s.obs.OnSeek != nil {
		s.obs.OnSeek(fromMs, clamped)
	}

	if wasPlaying && s.state != Ended {
		s.startLocked()
	}
}

// Run drives the tick loop until ctx is cancelled. It is meant to run in
// its own goroutine, mirroring the teacher's Cleaner.Run(ctx, interval)
// convention: a ticker-driven loop that exits cleanly on context
// cancellation.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick implements the cooperative step from spec.md §4.6: emit every
// packet whose timestamp has been reached, applying it to the projector
// before advancing, then yield.
func (s *Scheduler) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Playing {
		return
	}
	s.refreshCurrentTimeLocked()

	for s.cursor < len(s.packets) && s.packets[s.cursor].TimestampMs <= s.currentMs {
		r := s.packets[s.cursor]
		if s.viewers != nil {
			s.viewers.Broadcast(r)
		}
		s.proj.Apply(r)
		s.cursor++
		if s.cursor%progressInterval == 0 && s.obs.OnProgress != nil {
			s.obs.OnProgress(s.cursor, len(s.packets), s.currentMs)
		}
	}

	if s.cursor >= len(s.packets) {
		s.state = Ended
		s.log.Info("playback reached end of log", logging.Int("packets", len(s.packets)))
		if s.obs.OnEnd != nil {
			s.obs.OnEnd()
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
