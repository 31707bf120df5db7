// Package daily fires actions once per day at a wall-clock time.
//
// An Action is polled, typically from a repeating scheduler task. It fires on
// the first poll at or after its target time and stays quiet until the
// seconds-of-day value drops, which marks midnight.
package daily

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"microsched/pkg/clock"
	logx "microsched/pkg/logx"
)

const secondsPerDay = 24 * 60 * 60

// Action is one daily callback.
type Action struct {
	name   string
	target int
	fn     func()

	mu    sync.Mutex
	last  int
	fired bool
}

// New returns an action firing fn once per day after hour:minute:second.
func New(name string, hour, minute, second int, fn func()) (*Action, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return nil, fmt.Errorf("%w: %02d:%02d:%02d", ErrInvalidTime, hour, minute, second)
	}
	if fn == nil {
		return nil, ErrNilFunc
	}
	return &Action{name: name, target: hour*3600 + minute*60 + second, fn: fn}, nil
}

// ParseTime parses "HH:MM" or "HH:MM:SS".
func ParseTime(s string) (hour, minute, second int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: %q, expected HH:MM or HH:MM:SS", ErrInvalidTime, s)
	}
	vals := make([]int, 3)
	limits := []int{23, 59, 59}
	for i, p := range parts {
		v, convErr := strconv.Atoi(p)
		if convErr != nil || v < 0 || v > limits[i] {
			return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], nil
}

func (a *Action) Name() string { return a.name }

// At returns the target time as an offset from midnight.
func (a *Action) At() time.Duration { return time.Duration(a.target) * time.Second }

// Poll feeds the current seconds-of-day and runs the callback if it is due.
// It reports whether the callback ran.
func (a *Action) Poll(now int) bool {
	if !a.claim(now) {
		return false
	}
	a.fn()
	return true
}

func (a *Action) claim(now int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if now < a.last {
		a.fired = false
	}
	a.last = now
	if a.fired || now < a.target {
		return false
	}
	a.fired = true
	return true
}

// Reset re-arms the action for today.
func (a *Action) Reset() {
	a.mu.Lock()
	a.fired = false
	a.mu.Unlock()
}

// FiredToday reports whether the callback already ran since midnight.
func (a *Action) FiredToday() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fired
}

// Set polls a group of actions against one day clock.
type Set struct {
	clock clock.DayClock
	log   logx.Logger

	mu      sync.Mutex
	actions []*Action
}

func NewSet(clk clock.DayClock, log logx.Logger) *Set {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Set{clock: clk, log: log}
}

func (s *Set) Add(a *Action) {
	s.mu.Lock()
	s.actions = append(s.actions, a)
	s.mu.Unlock()
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

// Poll reads the clock once and polls every action. A panicking callback is
// logged and does not stop the others. It returns the number of callbacks run.
func (s *Set) Poll() int {
	now := s.clock.SecondsOfDay() % secondsPerDay
	s.mu.Lock()
	actions := append([]*Action(nil), s.actions...)
	s.mu.Unlock()

	n := 0
	for _, a := range actions {
		if s.poll(a, now) {
			n++
		}
	}
	return n
}

func (s *Set) poll(a *Action, now int) (ran bool) {
	defer func() {
		if r := recover(); r != nil {
			ran = true
			s.log.Error("daily action panicked", logx.String("action", a.name),
				logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	ran = a.Poll(now)
	if ran {
		s.log.Info("daily action fired", logx.String("action", a.name), logx.Duration("at", a.At()))
	}
	return ran
}

// Reset re-arms every action.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.actions {
		a.Reset()
	}
}
