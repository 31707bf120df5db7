package scheduler

import (
	"fmt"
	"runtime/debug"

	logx "microsched/pkg/logx"
)

// Tick runs one scheduling pass. It must be called periodically by a single
// owner and never from inside a task callback.
//
// A held scheduler ignores the call entirely. Otherwise pending removals are
// erased first; if a stop was requested since the last tick the pass ends
// there. Then the engine of the current mode runs.
func (s *Scheduler) Tick() {
	unlock := s.g.lock()
	if s.ticking {
		unlock()
		s.diag.Error("reentrant_tick", "tick called while a tick is running; ignored")
		return
	}
	if s.paused {
		unlock()
		return
	}
	if s.stopping {
		s.stopping = false
		gone := s.tasks.drain()
		unlock()
		s.log.Debug("scheduler stopped", logx.Int("removed", len(gone)))
		s.publishRemoved(gone, reasonIs(ReasonStopped))
		s.publish(EventSchedulerStopped, StopEvent{Removed: len(gone)})
		return
	}
	gone := s.tasks.drain()
	if s.tasks.len() == 0 {
		unlock()
		s.publishRemoved(gone, reasonIs(ReasonRemoved))
		return
	}
	s.ticking = true
	clear(s.tickIDs)
	for i := range s.tasks.entries {
		s.tickIDs[s.tasks.entries[i].id] = struct{}{}
	}
	now := s.clock.Millis()
	seq := s.sequential
	unlock()

	s.publishRemoved(gone, reasonIs(ReasonRemoved))

	defer s.g.with(func() {
		s.ticking = false
		clear(s.tickIDs)
	})
	if seq {
		s.tickSequential(now)
	} else {
		s.tickParallel(now)
	}
}

type verdict int

const (
	verdictWait verdict = iota
	verdictDue
	verdictTimedOut
)

// ensureCondition substitutes an always-true predicate for a missing one.
// The registration API never stores nil, so this only fires on a bug.
func (s *Scheduler) ensureCondition(e *entry) {
	if e.condition != nil {
		return
	}
	s.diag.Error("missing_condition", "task has no condition; treating it as always true",
		logx.Int("id", int(e.id)), logx.String("task", e.name))
	e.condition = alwaysTrue
}

// arm computes the first deadline of an unarmed entry. The wait deadline is
// relative to base, which is the tick time in parallel mode and the previous
// finish time in sequential mode.
func (s *Scheduler) arm(e *entry, now, base uint32) {
	if e.armed() {
		return
	}
	if e.indefinite() {
		// No deadline while the condition is false; it is re-checked every tick.
		if s.conditionTrue(e) {
			e.markConditionMet(now)
		}
		return
	}
	e.setExecutionTime(base + uint32(e.conditionWait))
}

// evaluate advances an armed (or indefinitely waiting) entry by one tick.
func (s *Scheduler) evaluate(e *entry, now uint32) verdict {
	if e.conditionMet {
		if e.due(now) {
			return verdictDue
		}
		return verdictWait
	}
	if s.conditionTrue(e) {
		// executeAt switches from wait deadline to run time.
		e.markConditionMet(now)
		return verdictWait
	}
	if !e.indefinite() && e.due(now) {
		return verdictTimedOut
	}
	return verdictWait
}

func (s *Scheduler) conditionTrue(e *entry) (ok bool) {
	if e.condition == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
			s.log.Error("task condition panicked",
				logx.Int("id", int(e.id)), logx.String("task", e.name),
				logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	return e.condition()
}

// runAction executes the action of e and reports a recovered panic, if any.
func (s *Scheduler) runAction(e *entry) (pan string) {
	if e.action == nil {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			pan = fmt.Sprint(r)
			s.log.Error("task action panicked",
				logx.Int("id", int(e.id)), logx.String("task", e.name),
				logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	e.action()
	return ""
}

func (s *Scheduler) runTimeout(e *entry) {
	s.log.Debug("task condition timed out", logx.Int("id", int(e.id)), logx.String("task", e.name))
	if e.onTimeout != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("task timeout callback panicked",
						logx.Int("id", int(e.id)), logx.String("task", e.name),
						logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				}
			}()
			e.onTimeout(e.id)
		}()
	}
	s.publish(EventTaskTimedOut, TaskEvent{ID: e.id, Name: e.name})
}

// reasonsFor resolves removal reasons, defaulting to ReasonRemoved.
func reasonsFor(reasons map[ID]string) func(ID) string {
	return func(id ID) string {
		if r := reasons[id]; r != "" {
			return r
		}
		return ReasonRemoved
	}
}
