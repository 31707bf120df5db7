// Package notify implements a hysteresis notifier: one notification when a
// trigger condition becomes true, one when a separate reset condition
// confirms recovery, then it re-arms.
package notify

import "sync"

// Transition is the result of one Check.
type Transition int

const (
	None Transition = iota
	Triggered
	Recovered
)

func (t Transition) String() string {
	switch t {
	case Triggered:
		return "triggered"
	case Recovered:
		return "recovered"
	default:
		return "none"
	}
}

// Notifier is polled periodically, usually from a repeating scheduler task.
// Concurrent Checks are serialized, so each transition fires exactly once.
// Triggered never waits for a running Check.
type Notifier struct {
	trigger   func() bool
	reset     func() bool
	onTrigger func()
	onReset   func()

	checking sync.Mutex // held for a whole Check

	mu        sync.Mutex
	triggered bool
}

// New builds a notifier. A nil reset condition means "trigger no longer true".
// Callbacks may be nil.
func New(trigger, reset func() bool, onTrigger, onReset func()) *Notifier {
	if reset == nil && trigger != nil {
		reset = func() bool { return !trigger() }
	}
	return &Notifier{trigger: trigger, reset: reset, onTrigger: onTrigger, onReset: onReset}
}

// Check evaluates the condition relevant to the current state and fires the
// matching callback on a transition. Callbacks must not call Check.
func (n *Notifier) Check() Transition {
	if n.trigger == nil {
		return None
	}
	n.checking.Lock()
	defer n.checking.Unlock()

	n.mu.Lock()
	waitingReset := n.triggered
	n.mu.Unlock()

	if !waitingReset {
		if !n.trigger() {
			return None
		}
		n.set(true)
		if n.onTrigger != nil {
			n.onTrigger()
		}
		return Triggered
	}
	if !n.reset() {
		return None
	}
	n.set(false)
	if n.onReset != nil {
		n.onReset()
	}
	return Recovered
}

func (n *Notifier) set(v bool) {
	n.mu.Lock()
	n.triggered = v
	n.mu.Unlock()
}

// Triggered reports whether the notifier is waiting for its reset condition.
func (n *Notifier) Triggered() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.triggered
}
