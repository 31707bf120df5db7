package scheduler

import "time"

// Snapshot returns a point-in-time view of the table for diagnostics.
func (s *Scheduler) Snapshot() Snapshot {
	now := s.clock.Millis()
	defer s.g.lock()()

	tasks := make([]TaskInfo, 0, s.tasks.len())
	for i := range s.tasks.entries {
		e := &s.tasks.entries[i]
		it := TaskInfo{
			ID:       e.id,
			Name:     e.name,
			Phase:    e.phase(),
			Repeat:   e.repeat,
			Interval: millis(e.interval),
			Removing: s.tasks.isPending(e.id),
		}
		if e.armed() {
			it.DueIn = time.Duration(int32(e.executeAt-now)) * time.Millisecond
		}
		tasks = append(tasks, it)
	}
	return Snapshot{
		Sequential: s.sequential,
		Held:       s.paused,
		Stopping:   s.stopping,
		Ticking:    s.ticking,
		Capacity:   s.cfg.Capacity,
		Tasks:      tasks,
		Pending:    len(s.tasks.pending),
		NextWake:   s.nextWakeLocked(now),
	}
}
