package scheduler

import "microsched/pkg/clock"

// entry is the per-task state record.
//
// executeAt carries one of two meanings depending on the phase: while the
// condition is pending it is the wait deadline, after the condition is met it
// is the time the action may run. 0 means unarmed, so a computed deadline of
// 0 is stored as 1.
type entry struct {
	id   ID
	name string

	action    Action
	onTimeout TimeoutFunc

	condition     Condition
	conditionMet  bool
	conditionWait int32 // ms, <= 0 is indefinite
	postDelay     uint32

	repeat   bool
	interval uint32

	executeAt uint32
}

func newEntry(t Task) entry {
	e := entry{
		name:          t.Name,
		action:        t.Action,
		onTimeout:     t.OnTimeout,
		condition:     t.Condition,
		conditionWait: waitMillis(t.ConditionWait),
		postDelay:     toMillis(t.PostDelay),
		repeat:        t.Repeat,
	}
	if e.repeat {
		e.interval = toMillis(t.Interval)
	}
	return e
}

func (e *entry) indefinite() bool { return e.conditionWait <= 0 }

func (e *entry) armed() bool { return e.executeAt != 0 }

func (e *entry) setExecutionTime(t uint32) {
	if t == 0 {
		t = 1
	}
	e.executeAt = t
}

// due reports whether the current deadline has been reached.
func (e *entry) due(now uint32) bool {
	return clock.Reached(now, e.executeAt)
}

// markConditionMet switches the entry to its post-delay phase.
func (e *entry) markConditionMet(now uint32) {
	e.conditionMet = true
	e.setExecutionTime(now + e.postDelay)
}

// rearm resets a repeating entry for its next interval.
func (e *entry) rearm() {
	e.conditionMet = false
	e.postDelay = e.interval
	e.executeAt = 0
}

func (e *entry) phase() Phase {
	switch {
	case e.conditionMet:
		return PhaseWaitingDelay
	case e.armed():
		return PhaseWaitingCondition
	default:
		return PhaseUnarmed
	}
}

// activation is the part of an entry the engines change while evaluating a
// copy outside the guard. It is written back by id.
type activation struct {
	condition    Condition
	conditionMet bool
	executeAt    uint32
}

func (e *entry) activation() activation {
	return activation{condition: e.condition, conditionMet: e.conditionMet, executeAt: e.executeAt}
}

func (e *entry) restore(a activation) {
	e.condition = a.condition
	e.conditionMet = a.conditionMet
	e.executeAt = a.executeAt
}

func alwaysTrue() bool { return true }
