package scheduler

import "time"

// TimeToNextTask returns how long the owner may wait before the next Tick.
//
// The result is never negative and never exceeds the configured MaxSleep.
// An empty table returns MaxSleep. Any unarmed or overdue task returns 0.
// In sequential mode only the head task is considered, since the tasks
// behind it are not armed until they reach the head.
func (s *Scheduler) TimeToNextTask() time.Duration {
	now := s.clock.Millis()
	defer s.g.lock()()
	return s.nextWakeLocked(now)
}

func (s *Scheduler) nextWakeLocked(now uint32) time.Duration {
	limit := toMillis(s.cfg.MaxSleep)
	entries := s.tasks.entries
	if len(entries) == 0 {
		return millis(limit)
	}
	if s.sequential {
		entries = entries[:1]
	}
	best := limit
	for i := range entries {
		e := &entries[i]
		if !e.armed() {
			return 0
		}
		left := int32(e.executeAt - now)
		if left <= 0 {
			return 0
		}
		if uint32(left) < best {
			best = uint32(left)
		}
	}
	return millis(best)
}
