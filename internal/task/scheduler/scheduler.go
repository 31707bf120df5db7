package scheduler

import (
	"time"

	"microsched/internal/eventbus"
	"microsched/pkg/clock"
	logx "microsched/pkg/logx"
)

// Scheduler is the task table plus its two execution engines.
//
// All exported methods are safe for concurrent use. Tick must be driven by a
// single owner; task callbacks may use every method except Tick.
type Scheduler struct {
	g guard

	cfg   Config
	clock clock.Clock
	log   logx.Logger
	diag  *logx.Throttle
	bus   eventbus.Bus

	// guarded by g
	tasks         table
	sequential    bool
	lastSeqFinish uint32
	stopping      bool
	paused        bool
	ticking       bool
	// ids present when the running tick started; a mid-tick Stop only
	// purges these.
	tickIDs map[ID]struct{}
	scratch []entry
}

// New creates a scheduler. A nil clk uses a fresh clock.System; bus may be nil.
func New(cfg Config, clk clock.Clock, log logx.Logger, bus eventbus.Bus) *Scheduler {
	cfg = cfg.withDefaults()
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		cfg:        cfg,
		clock:      clk,
		log:        log,
		diag:       logx.NewThrottle(log, cfg.DiagnosticEvery, 1),
		bus:        bus,
		tasks:      newTable(cfg.Capacity),
		sequential: cfg.Sequential,
		tickIDs:    make(map[ID]struct{}, cfg.Capacity),
	}
	if s.sequential {
		s.lastSeqFinish = clk.Millis()
	}
	return s
}

// Add registers t and returns its id.
//
// It fails with ErrNilAction or ErrCapacity (NoID, nothing added). In
// sequential mode a repeating task is downgraded to a one-shot with a
// diagnostic; the registration still succeeds.
func (s *Scheduler) Add(t Task) (ID, error) {
	if t.Action == nil {
		s.diag.Warn("nil_action", "task rejected: nil action", logx.String("task", t.Name))
		return NoID, ErrNilAction
	}
	if t.Condition == nil {
		t.Condition = alwaysTrue
	}

	var (
		id         ID
		downgraded bool
		full       bool
		count      int
	)
	s.g.with(func() {
		if s.sequential && t.Repeat {
			t.Repeat = false
			downgraded = true
		}
		if s.tasks.len() >= s.cfg.Capacity {
			full = true
			return
		}
		id = s.tasks.append(newEntry(t))
		count = s.tasks.len()
	})

	if downgraded {
		s.diag.Warn("repeat_sequential", "repeat is not supported in sequential mode; disabling repeat", logx.String("task", t.Name))
	}
	if full {
		s.diag.Warn("capacity", "too many tasks; registration rejected",
			logx.String("task", t.Name), logx.Int("capacity", s.cfg.Capacity))
		return NoID, ErrCapacity
	}

	if s.log.Enabled(logx.LevelTrace) {
		s.log.Trace("task added",
			logx.Int("id", int(id)),
			logx.String("task", t.Name),
			logx.Duration("wait", t.ConditionWait),
			logx.Duration("post_delay", t.PostDelay),
			logx.Bool("repeat", t.Repeat),
			logx.Int("tasks", count),
		)
	}
	s.publish(EventTaskRegistered, TaskEvent{ID: id, Name: t.Name})
	return id, nil
}

// AddTimed runs action once after delay.
func (s *Scheduler) AddTimed(action Action, delay time.Duration) ID {
	id, _ := s.Add(Task{Action: action, PostDelay: delay})
	return id
}

// AddRepeating runs action after delay and then every interval. In sequential
// mode it behaves like AddTimed.
func (s *Scheduler) AddRepeating(action Action, delay, interval time.Duration) ID {
	id, _ := s.Add(Task{Action: action, PostDelay: delay, Repeat: true, Interval: interval})
	return id
}

// AddConditional runs action as soon as cond is true. With wait > 0 the task
// gives up after wait, calling onTimeout (if not nil) with its id. In
// sequential mode wait is measured from the previous finish; see
// SetSequentialMode.
func (s *Scheduler) AddConditional(action Action, cond Condition, wait time.Duration, onTimeout TimeoutFunc) ID {
	id, _ := s.Add(Task{Action: action, Condition: cond, ConditionWait: wait, OnTimeout: onTimeout})
	return id
}

// AddConditionalTimed is AddConditional with postDelay counted from the moment
// cond became true.
func (s *Scheduler) AddConditionalTimed(action Action, cond Condition, postDelay, wait time.Duration, onTimeout TimeoutFunc) ID {
	id, _ := s.Add(Task{Action: action, Condition: cond, PostDelay: postDelay, ConditionWait: wait, OnTimeout: onTimeout})
	return id
}

// Remove queues the task for removal. It is erased at the next safe point
// and does not run again once queued. Returns false if id is not live.
func (s *Scheduler) Remove(id ID) bool {
	ok := false
	s.g.with(func() {
		if s.tasks.indexOf(id) < 0 {
			return
		}
		s.tasks.markPending(id)
		ok = true
	})
	return ok
}

// SetRepeatInterval is UpdateRepeatInterval reporting success as a bool.
func (s *Scheduler) SetRepeatInterval(id ID, interval time.Duration) bool {
	return s.UpdateRepeatInterval(id, interval) == nil
}

// UpdateRepeatInterval changes the interval of a repeating task and re-arms
// it, so the next run is one new interval from the next tick.
//
// It is rejected with ErrTickInProgress while a tick owns the table.
func (s *Scheduler) UpdateRepeatInterval(id ID, interval time.Duration) error {
	var err error
	s.g.with(func() {
		if s.ticking {
			err = ErrTickInProgress
			return
		}
		i := s.tasks.indexOf(id)
		if i < 0 {
			err = ErrNotFound
			return
		}
		e := &s.tasks.entries[i]
		if !e.repeat {
			err = ErrNotRepeating
			return
		}
		e.interval = toMillis(interval)
		e.rearm()
	})
	if err == ErrTickInProgress {
		s.diag.Error("mutate_in_tick", "cannot modify task from within tick", logx.Int("id", int(id)))
	}
	return err
}

// TaskCount returns the number of live tasks, including those queued for
// removal.
func (s *Scheduler) TaskCount() int {
	defer s.g.lock()()
	return s.tasks.len()
}

// IsSequentialMode reports the current execution mode.
func (s *Scheduler) IsSequentialMode() bool {
	defer s.g.lock()()
	return s.sequential
}

// SetSequentialMode switches execution modes. Entering sequential mode starts
// the relative wait of the head task now.
//
// In sequential mode a wait deadline counts from the previous head's finish
// (or the last call with seq true), not from registration. A conditional task
// added after an idle stretch longer than its wait times out on its first
// tick; after about 24.8 days idle the wrapped comparison pushes the deadline
// into the future instead. Calling SetSequentialMode(true) again restarts the
// base at now.
func (s *Scheduler) SetSequentialMode(seq bool) {
	now := s.clock.Millis()
	s.g.with(func() {
		s.sequential = seq
		if seq {
			s.lastSeqFinish = now
		}
	})
}

// Capacity returns the configured task bound.
func (s *Scheduler) Capacity() int { return s.cfg.Capacity }
