package scheduler

import logx "microsched/pkg/logx"

// Hold freezes the schedule. While held, Tick does nothing at all: no
// arming, no due detection, no removal draining.
func (s *Scheduler) Hold() {
	s.g.with(func() { s.paused = true })
}

// Resume undoes Hold.
func (s *Scheduler) Resume() {
	s.g.with(func() { s.paused = false })
}

// IsHeld reports whether the scheduler is on hold.
func (s *Scheduler) IsHeld() bool {
	defer s.g.lock()()
	return s.paused
}

// Stop clears the table.
//
// Called while idle, every live task is queued for removal and the next Tick
// only drains the queue. Called from inside a task callback, it purges the
// tasks that existed when the running tick started; tasks registered by
// callbacks during this tick survive, and due tasks that have not started
// yet are not run.
func (s *Scheduler) Stop() {
	var (
		n      int
		inTick bool
	)
	s.g.with(func() {
		s.stopping = true
		inTick = s.ticking
		for i := range s.tasks.entries {
			id := s.tasks.entries[i].id
			if s.ticking {
				if _, ok := s.tickIDs[id]; !ok {
					continue
				}
			}
			s.tasks.markPending(id)
			n++
		}
	})
	s.log.Debug("stop requested", logx.Int("tasks", n), logx.Bool("in_tick", inTick))
}
