package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

// pending is the bookkeeping shared by the tick sources
type pending struct {
	mu    sync.Mutex
	next  uint64
	funcs map[uint64]TickFunc
}

func (p *pending) add(fn TickFunc) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.funcs == nil {
		p.funcs = make(map[uint64]TickFunc)
	}
	id := p.next
	p.next++
	p.funcs[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.funcs, id)
		p.mu.Unlock()
	}
}

// take removes and returns every pending callback in request order
func (p *pending) take() []TickFunc {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]uint64, 0, len(p.funcs))
	for id := range p.funcs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]TickFunc, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.funcs[id])
		delete(p.funcs, id)
	}
	return out
}

func (p *pending) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.funcs)
}

// ManualTicks is a simulated refresh source for tests and offline
// rendering: callbacks fire only when Advance is called.
type ManualTicks struct {
	p   pending
	now time.Duration
}

func (m *ManualTicks) RequestTick(fn TickFunc) func() {
	return m.p.add(fn)
}

// Advance moves the clock forward by d and fires every pending callback
// with the new time.
func (m *ManualTicks) Advance(d time.Duration) {
	m.now += d
	for _, fn := range m.p.take() {
		fn(m.now)
	}
}

// Now returns the simulated clock
func (m *ManualTicks) Now() time.Duration {
	return m.now
}

// Pending reports how many callbacks are waiting
func (m *ManualTicks) Pending() int {
	return m.p.len()
}

// Loop is a real-time refresh source. Callbacks run on the goroutine that
// calls Run, once per refresh interval.
type Loop struct {
	Interval time.Duration
	p        pending
}

// NewLoop creates a loop refreshing at hz times per second
func NewLoop(hz float64) *Loop {
	if hz <= 0 {
		hz = 60
	}
	return &Loop{Interval: Period(hz)}
}

func (l *Loop) RequestTick(fn TickFunc) func() {
	return l.p.add(fn)
}

// Run delivers ticks until ctx is done and returns ctx.Err()
func (l *Loop) Run(ctx context.Context) error {
	start := time.Now()
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			now := t.Sub(start)
			for _, fn := range l.p.take() {
				fn(now)
			}
		}
	}
}
