package scheduler

import logx "microsched/pkg/logx"

// tickSequential evaluates only the head entry. Nothing behind it arms, waits
// or times out, and repeat is never honored.
//
// lastSeqFinish only moves when a head finishes or sequential mode is
// re-entered, so an idle table leaves it behind.
func (s *Scheduler) tickSequential(now uint32) {
	var (
		head entry
		base uint32
		ok   bool
	)
	s.g.with(func() {
		if s.tasks.len() == 0 {
			return
		}
		head = s.tasks.entries[0]
		base = s.lastSeqFinish
		ok = true
	})
	if !ok {
		return
	}

	s.ensureCondition(&head)
	// The wait deadline counts from the previous finish, not from this tick,
	// so back-to-back tasks do not drift by the tick granularity.
	s.arm(&head, now, base)
	v := s.evaluate(&head, now)

	s.g.with(func() {
		s.tasks.restore(head.id, head.activation())
		if v == verdictDue && s.tasks.isPending(head.id) {
			v = verdictWait
		}
	})

	reasons := make(map[ID]string, 1)
	switch v {
	case verdictTimedOut:
		reasons[head.id] = ReasonTimedOut
		s.runTimeout(&head)
	case verdictDue:
		reasons[head.id] = ReasonCompleted
		pan := s.runAction(&head)
		s.publish(EventTaskRan, TaskEvent{ID: head.id, Name: head.name, Panic: pan})
	}

	var (
		gone    []removed
		stopped bool
		purged  int
	)
	s.g.with(func() {
		remove := make([]ID, 0, len(s.tasks.pending)+1)
		if v != verdictWait {
			remove = append(remove, head.id)
			s.lastSeqFinish = now
			if s.stopping {
				// Purge everything that existed before this tick; the
				// entries the callback added survive.
				s.stopping = false
				stopped = true
				for _, id := range s.tasks.pending {
					if id != head.id && reasons[id] == "" {
						reasons[id] = ReasonStopped
						purged++
					}
				}
			}
		}
		remove = append(remove, s.tasks.pending...)
		s.tasks.pending = s.tasks.pending[:0]
		gone = s.tasks.erase(remove)
	})

	s.publishRemoved(gone, reasonsFor(reasons))
	if stopped {
		s.log.Debug("scheduler stopped from inside sequential task", logx.Int("purged", purged))
		s.publish(EventSchedulerStopped, StopEvent{Removed: purged, InTick: true})
	}
}
