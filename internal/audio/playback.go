package audio

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/windrose/skylane/server/internal/audio/pcm"
)

// Scheduler plays decoded model audio gaplessly. Each buffer starts at
// max(cursor, now) and the cursor advances by the buffer's duration, so
// bursty network chunks play back-to-back with no overlap.
type Scheduler struct {
	device Device
	sink   Sink
	format pcm.Format
	clock  clock.Clock
	logger *zap.Logger

	mu     sync.Mutex
	cursor time.Time
	timers map[*clock.Timer]struct{}
	closed bool
}

// NewScheduler builds a scheduler playing into the device's speaker. The
// clock is injected so scheduling is testable against a mock.
func NewScheduler(device Device, format pcm.Format, clk clock.Clock, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		device: device,
		sink:   device.Speaker(),
		format: format,
		clock:  clk,
		logger: logger,
		timers: make(map[*clock.Timer]struct{}),
	}
}

// Enqueue schedules samples for playback at the cursor. A suspended device
// is resumed first; a buffer that cannot be scheduled is dropped.
func (s *Scheduler) Enqueue(samples []float32) {
	if len(samples) == 0 {
		return
	}

	if s.device.State() == DeviceSuspended {
		if err := s.device.Resume(context.Background()); err != nil {
			s.logger.Warn("Failed to resume audio device", zap.Error(err))
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	now := s.clock.Now()
	start := s.cursor
	if start.Before(now) {
		start = now
	}
	duration := s.format.Duration(len(samples) * s.format.Depth())
	s.cursor = start.Add(duration)

	var timer *clock.Timer
	timer = s.clock.AfterFunc(start.Sub(now), func() {
		s.mu.Lock()
		delete(s.timers, timer)
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		s.sink.Play(samples)
	})
	s.timers[timer] = struct{}{}
}

// Reset discards all outstanding scheduled audio and rewinds the cursor,
// so the next buffer starts immediately. Used when the model's turn is
// interrupted mid-playback.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for timer := range s.timers {
		timer.Stop()
	}
	s.timers = make(map[*clock.Timer]struct{})
	s.cursor = time.Time{}
}

// Close discards all outstanding scheduled audio. The scheduler cannot be
// reused afterwards.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for timer := range s.timers {
		timer.Stop()
	}
	s.timers = nil
}
