package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock is a monotonic millisecond source. The value wraps after ~49.7 days.
type Clock interface {
	Millis() uint32
}

// System is a Clock backed by the Go monotonic clock.
type System struct {
	start time.Time
}

// NewSystem returns a System clock starting at 0.
func NewSystem() *System {
	return &System{start: time.Now()}
}

func (c *System) Millis() uint32 {
	if c == nil || c.start.IsZero() {
		return 0
	}
	return uint32(time.Since(c.start).Milliseconds())
}

// Manual is a Clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	now atomic.Uint32
}

// NewManual returns a Manual clock set to start.
func NewManual(start uint32) *Manual {
	m := &Manual{}
	m.now.Store(start)
	return m
}

func (m *Manual) Millis() uint32 { return m.now.Load() }

// Set moves the clock to ms.
func (m *Manual) Set(ms uint32) { m.now.Store(ms) }

// Advance moves the clock forward by d, wrapping like the real counter.
func (m *Manual) Advance(d time.Duration) uint32 {
	return m.now.Add(uint32(d.Milliseconds()))
}

// Since returns the signed distance from then to now in milliseconds.
func Since(now, then uint32) int32 {
	return int32(now - then)
}

// Reached reports whether now is at or past deadline, tolerating one wrap of
// the counter.
func Reached(now, deadline uint32) bool {
	return int32(now-deadline) >= 0
}

// DayClock reports the wall-clock position within the current day.
type DayClock interface {
	SecondsOfDay() int
}

// WallClock is a DayClock for a given location (time.Local when nil).
type WallClock struct {
	mu  sync.Mutex
	loc *time.Location
	now func() time.Time
}

// NewWallClock returns a WallClock for loc.
func NewWallClock(loc *time.Location) *WallClock {
	return &WallClock{loc: loc, now: time.Now}
}

// SetLocation switches the time zone used for subsequent readings.
func (w *WallClock) SetLocation(loc *time.Location) {
	w.mu.Lock()
	w.loc = loc
	w.mu.Unlock()
}

func (w *WallClock) SecondsOfDay() int {
	w.mu.Lock()
	loc := w.loc
	nowFn := w.now
	w.mu.Unlock()
	if loc == nil {
		loc = time.Local
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	t := nowFn().In(loc)
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}
