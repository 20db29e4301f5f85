// Package scheduler advances an animation cursor from repaint-driven ticks.
//
// The scheduler never owns a timer. It asks a TickSource for "the next
// refresh" and, on each tick, compares the elapsed time since the last
// advance with the frame period. Slow or jittery ticks therefore never make
// the cursor skip frames; they only delay the next advance.
package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrInvalidRate       = errors.New("fps must be positive")
	ErrInvalidFrameCount = errors.New("frame count must be positive")
)

// TickFunc receives a monotonic timestamp measured from the tick source's
// own origin.
type TickFunc func(now time.Duration)

// TickSource schedules a single callback on the next refresh opportunity.
// The returned cancel function unregisters the request and must be safe to
// call after the callback ran. Implementations deliver callbacks on one
// goroutine and never synchronously from RequestTick.
type TickSource interface {
	RequestTick(fn TickFunc) (cancel func())
}

// State of the animation clock
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Scheduler drives a frame cursor 0..frameCount-1 with wraparound
type Scheduler struct {
	source TickSource

	mu         sync.Mutex
	state      State
	fps        float64
	frameCount int
	index      int
	last       time.Duration
	onAdvance  func(index int)
	cancel     func()
	gen        uint64 // Bumped on every Stop; stale ticks compare against it
}

// New creates an idle scheduler bound to source
func New(source TickSource) *Scheduler {
	return &Scheduler{source: source}
}

// Start begins ticking. Calling Start while running keeps the existing
// clock and returns nil.
func (s *Scheduler) Start(fps float64, frameCount int, onAdvance func(index int)) error {
	if fps <= 0 {
		return fmt.Errorf("%w: %g", ErrInvalidRate, fps)
	}
	if frameCount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFrameCount, frameCount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Running {
		return nil
	}

	if frameCount != s.frameCount {
		s.index = 0
		s.last = 0
	}
	s.fps = fps
	s.frameCount = frameCount
	s.onAdvance = onAdvance
	s.state = Running
	s.cancel = s.source.RequestTick(s.tick(s.gen))
	return nil
}

// Stop unregisters the pending tick. No onAdvance call starts after Stop
// returns, including one whose tick advanced the cursor just before. It may
// be called from inside onAdvance. Idempotent and safe in any state; the
// cursor is left untouched.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Idle {
		return
	}
	s.state = Idle
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.onAdvance = nil
}

// SetRate changes the frame rate for subsequent ticks without touching the
// cursor.
func (s *Scheduler) SetRate(fps float64) error {
	if fps <= 0 {
		return fmt.Errorf("%w: %g", ErrInvalidRate, fps)
	}
	s.mu.Lock()
	s.fps = fps
	s.mu.Unlock()
	return nil
}

// Reset rewinds the cursor to frame 0. Used when the sheet or frame count
// changes.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.index = 0
	s.last = 0
	s.mu.Unlock()
}

// Index returns the current frame
func (s *Scheduler) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// State returns Idle or Running
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FPS returns the current rate (0 before the first Start)
func (s *Scheduler) FPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fps
}

// Period converts a frame rate into the minimum time between advances
func Period(fps float64) time.Duration {
	return time.Duration(float64(time.Second) / fps)
}

func (s *Scheduler) tick(gen uint64) TickFunc {
	return func(now time.Duration) {
		s.mu.Lock()
		if s.state != Running || s.gen != gen {
			s.mu.Unlock()
			return
		}

		advanced := false
		if now-s.last >= Period(s.fps) {
			s.index = (s.index + 1) % s.frameCount
			s.last = now
			advanced = true
		}
		index := s.index
		s.cancel = s.source.RequestTick(s.tick(gen))
		s.mu.Unlock()

		if advanced {
			s.deliver(gen, index)
		}
	}
}

// deliver calls onAdvance unless Stop ran since the tick advanced. The
// callback runs without s.mu held so it may call back into the scheduler.
// A Stop from another goroutine while onAdvance is already running does
// not wait for it.
func (s *Scheduler) deliver(gen uint64, index int) {
	s.mu.Lock()
	fn := s.onAdvance
	live := s.state == Running && s.gen == gen
	s.mu.Unlock()

	if live && fn != nil {
		fn(index)
	}
}
