package scheduler

import logx "microsched/pkg/logx"

// tickParallel evaluates every entry independently and runs all due ones.
func (s *Scheduler) tickParallel(now uint32) {
	// Work on a copy; predicates and actions run outside the guard and may
	// add or remove entries. scratch is only touched by the ticking goroutine.
	var snap []entry
	s.g.with(func() {
		s.scratch = append(s.scratch[:0], s.tasks.entries...)
		snap = s.scratch
	})
	defer clear(snap)

	for i := range snap {
		s.ensureCondition(&snap[i])
		s.arm(&snap[i], now, now)
	}

	var due, timedOut []int
	for i := range snap {
		switch s.evaluate(&snap[i], now) {
		case verdictDue:
			due = append(due, i)
		case verdictTimedOut:
			timedOut = append(timedOut, i)
		}
	}

	s.g.with(func() {
		for i := range snap {
			s.tasks.restore(snap[i].id, snap[i].activation())
		}
	})

	reasons := make(map[ID]string, len(due)+len(timedOut))
	ran := make([]ID, 0, len(due))
	timedOutIDs := make([]ID, 0, len(timedOut))
	stopped := false

	for _, i := range timedOut {
		e := &snap[i]
		live := false
		s.g.with(func() { live = s.tasks.indexOf(e.id) >= 0 && !s.tasks.isPending(e.id) })
		if !live {
			// Removed by an earlier callback of this pass.
			continue
		}
		reasons[e.id] = ReasonTimedOut
		timedOutIDs = append(timedOutIDs, e.id)
		s.runTimeout(e)
		if s.takeStop(&ran, reasons) {
			stopped = true
			break
		}
	}

	if !stopped {
		for _, i := range due {
			id := snap[i].id
			var (
				e    entry
				live bool
			)
			s.g.with(func() {
				e, live = s.tasks.get(id)
				live = live && !s.tasks.isPending(id)
			})
			if !live {
				continue
			}
			pan := s.runAction(&e)
			ran = append(ran, id)
			reasons[id] = ReasonCompleted
			s.publish(EventTaskRan, TaskEvent{ID: id, Name: e.name, Panic: pan})
			// A stop from inside the action discards the rest of the due list.
			if s.takeStop(&ran, reasons) {
				stopped = true
				break
			}
		}
	}

	var gone []removed
	s.g.with(func() {
		remove := make([]ID, 0, len(timedOutIDs)+len(ran)+len(s.tasks.pending))
		remove = append(remove, timedOutIDs...)
		for _, id := range ran {
			i := s.tasks.indexOf(id)
			if i < 0 {
				continue
			}
			if e := &s.tasks.entries[i]; e.repeat {
				e.rearm()
				continue
			}
			remove = append(remove, id)
		}
		remove = append(remove, s.tasks.pending...)
		s.tasks.pending = s.tasks.pending[:0]
		gone = s.tasks.erase(remove)
	})

	s.publishRemoved(gone, reasonsFor(reasons))
	if stopped {
		n := 0
		for _, r := range reasons {
			if r == ReasonStopped {
				n++
			}
		}
		s.log.Debug("scheduler stopped from inside task", logx.Int("purged", n))
		s.publish(EventSchedulerStopped, StopEvent{Removed: n, InTick: true})
	}
}

// takeStop consumes a stop requested during this tick. Every entry the stop
// queued is booked as if it had just run, with repeat disabled, so the
// normal bookkeeping removes it.
func (s *Scheduler) takeStop(ran *[]ID, reasons map[ID]string) bool {
	taken := false
	s.g.with(func() {
		if !s.stopping {
			return
		}
		s.stopping = false
		taken = true
		for _, id := range s.tasks.pending {
			i := s.tasks.indexOf(id)
			if i < 0 {
				continue
			}
			s.tasks.entries[i].repeat = false
			*ran = append(*ran, id)
			if reasons[id] == "" {
				reasons[id] = ReasonStopped
			}
		}
		s.tasks.pending = s.tasks.pending[:0]
	})
	return taken
}
