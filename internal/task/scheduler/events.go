package scheduler

import "microsched/internal/eventbus"

// Event types published on the bus.
const (
	EventTaskRegistered   = "task.registered"
	EventTaskRan          = "task.ran"
	EventTaskTimedOut     = "task.timed_out"
	EventTaskRemoved      = "task.removed"
	EventSchedulerStopped = "scheduler.stopped"
)

// Removal reasons carried by EventTaskRemoved.
const (
	ReasonCompleted = "completed"
	ReasonTimedOut  = "timed_out"
	ReasonRemoved   = "removed"
	ReasonStopped   = "stopped"
)

// TaskEvent is the payload of the task.* events.
type TaskEvent struct {
	ID     ID     `json:"id"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason,omitempty"`
	// Panic is set on task.ran when the action panicked.
	Panic string `json:"panic,omitempty"`
}

// StopEvent is the payload of scheduler.stopped.
type StopEvent struct {
	Removed int  `json:"removed"`
	InTick  bool `json:"in_tick"`
}

func (s *Scheduler) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func (s *Scheduler) publishRemoved(list []removed, reason func(ID) string) {
	if s.bus == nil {
		return
	}
	for _, r := range list {
		s.publish(EventTaskRemoved, TaskEvent{ID: r.id, Name: r.name, Reason: reason(r.id)})
	}
}

func reasonIs(reason string) func(ID) string {
	return func(ID) string { return reason }
}
