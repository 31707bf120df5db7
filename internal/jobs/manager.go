// Package jobs turns config entries into scheduler tasks.
//
// Interval jobs become repeating tasks. Cron jobs are bridged: each run
// registers a one-shot task for the next fire time computed by robfig/cron.
// Daily actions and file watches are polled from repeating tasks.
//
// A sequential scheduler never repeats, so there every repeating job is
// registered as a one-shot that re-registers itself after each run.
package jobs

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"microsched/internal/task/daily"
	"microsched/internal/task/notify"
	"microsched/internal/task/scheduler"
	"microsched/pkg/clock"
	logx "microsched/pkg/logx"
)

// maxHop bounds one cron wait. Longer waits are split so the delay always
// fits the scheduler's millisecond window.
const maxHop = 24 * time.Hour

const (
	defaultDailyPoll = time.Second
	defaultWatchPoll = time.Second
)

// Registrar is the part of the scheduler the manager needs.
type Registrar interface {
	Add(t scheduler.Task) (scheduler.ID, error)
	Remove(id scheduler.ID) bool
	IsSequentialMode() bool
}

type entry struct {
	name string
	kind string
	gen  uint64

	run   func() error
	sched cron.Schedule // cron jobs only
	task  scheduler.Task
	every time.Duration // repeating jobs only

	// guarded by Manager.mu
	id      scheduler.ID
	oneShot bool

	runs    atomic.Uint64
	lastErr atomic.Value // string
}

// Manager owns every task registered from config. Apply replaces the whole
// set; a failed Apply leaves the previous set in place.
type Manager struct {
	sched  Registrar
	log    logx.Logger
	parser cron.Parser
	now    func() time.Time

	mu      sync.Mutex
	gen     uint64
	loc     *time.Location
	entries map[string]*entry
}

func NewManager(sched Registrar, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		sched: sched,
		log:   log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		now:     time.Now,
		loc:     time.Local,
		entries: map[string]*entry{},
	}
}

// plan is a compiled registration waiting to be committed.
type plan struct {
	e    *entry
	task scheduler.Task
}

// Validate compiles set without registering anything.
func (m *Manager) Validate(set Set) error {
	_, err := m.compile(set)
	return err
}

// Apply removes the previously registered tasks and registers set.
func (m *Manager) Apply(set Set) error {
	plans, err := m.compile(set)
	if err != nil {
		return err
	}
	loc := set.Location
	if loc == nil {
		loc = time.Local
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, e := range m.entries {
		if e.id != scheduler.NoID && m.sched.Remove(e.id) {
			removed++
		}
	}
	m.gen++
	m.loc = loc
	m.entries = make(map[string]*entry, len(plans))

	var failed []string
	for _, p := range plans {
		p.e.gen = m.gen
		m.entries[p.e.name] = p.e
		var err error
		switch {
		case p.e.sched != nil:
			err = m.armCronLocked(p.e)
		case p.e.every > 0:
			err = m.armRepeatLocked(p.e, p.task.PostDelay)
		default:
			p.e.id, err = m.sched.Add(p.task)
		}
		if err != nil {
			failed = append(failed, p.e.name)
			m.log.Warn("job not registered", logx.String("job", p.e.name), logx.Err(err))
		}
	}
	m.log.Info("jobs applied",
		logx.Int("registered", len(plans)-len(failed)),
		logx.Int("failed", len(failed)),
		logx.Int("removed", removed),
	)
	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", ErrRegister, strings.Join(failed, ", "))
	}
	return nil
}

// Close removes every registered task.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.id != scheduler.NoID {
			m.sched.Remove(e.id)
		}
	}
	m.gen++
	m.entries = map[string]*entry{}
}

// Status lists the current registrations sorted by name.
func (m *Manager) Status() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.entries))
	for _, e := range m.entries {
		st := Status{Name: e.name, Kind: e.kind, TaskID: uint16(e.id), Runs: e.runs.Load()}
		if s, ok := e.lastErr.Load().(string); ok {
			st.LastError = s
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Manager) compile(set Set) ([]plan, error) {
	var plans []plan
	seen := map[string]bool{}
	claim := func(name string) error {
		if name == "" {
			return fmt.Errorf("%w: name required", ErrInvalidJob)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidJob, name)
		}
		seen[name] = true
		return nil
	}

	for _, d := range set.Jobs {
		name := strings.TrimSpace(d.Name)
		if err := claim(name); err != nil {
			return nil, err
		}
		p, err := m.compileJob(name, d)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}

	if len(set.Daily) > 0 {
		p, err := m.compileDaily(set, claim)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}

	for _, w := range set.Watches {
		name := strings.TrimSpace(w.Name)
		if err := claim(name); err != nil {
			return nil, err
		}
		p, err := m.compileWatch(name, w)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func (m *Manager) compileJob(name string, d Definition) (plan, error) {
	run, err := m.buildAction(name, d.Action)
	if err != nil {
		return plan{}, err
	}
	e := &entry{name: name, run: run}

	if file := strings.TrimSpace(d.WhenFile); file != "" {
		if strings.TrimSpace(d.Schedule) != "" {
			return plan{}, fmt.Errorf("%w: %s: schedule and when_file are mutually exclusive", ErrInvalidJob, name)
		}
		e.kind = "conditional"
		return plan{e: e, task: scheduler.Task{
			Name:          name,
			Action:        m.runner(e),
			Condition:     fileExists(file),
			ConditionWait: d.Wait,
			PostDelay:     d.PostDelay,
			OnTimeout: func(scheduler.ID) {
				m.log.Warn("job condition timed out", logx.String("job", name),
					logx.String("when_file", file), logx.Duration("wait", d.Wait))
			},
		}}, nil
	}

	s, err := ParseSchedule(d.Schedule)
	if err != nil {
		return plan{}, fmt.Errorf("%s: %w", name, err)
	}
	e.kind = s.Kind.String()
	switch s.Kind {
	case KindInterval:
		return m.repeating(e, s.Every, s.Every), nil
	case KindOnce:
		return plan{e: e, task: scheduler.Task{Name: name, Action: m.runner(e), PostDelay: s.Every}}, nil
	default:
		cs, err := m.parser.Parse(s.Cron)
		if err != nil {
			return plan{}, fmt.Errorf("%w: %s: %q: %v", ErrInvalidSchedule, name, s.Cron, err)
		}
		e.sched = cs
		return plan{e: e}, nil
	}
}

func (m *Manager) compileDaily(set Set, claim func(string) error) (plan, error) {
	loc := set.Location
	if loc == nil {
		loc = time.Local
	}
	ds := daily.NewSet(clock.NewWallClock(loc), m.log)
	for _, d := range set.Daily {
		name := strings.TrimSpace(d.Name)
		if err := claim(name); err != nil {
			return plan{}, err
		}
		h, mi, s, err := daily.ParseTime(d.At)
		if err != nil {
			return plan{}, fmt.Errorf("%w: %s: %v", ErrInvalidJob, name, err)
		}
		run, err := m.buildAction(name, d.Action)
		if err != nil {
			return plan{}, err
		}
		a, err := daily.New(name, h, mi, s, m.logErr(name, run))
		if err != nil {
			return plan{}, fmt.Errorf("%w: %s: %v", ErrInvalidJob, name, err)
		}
		ds.Add(a)
	}

	poll := set.DailyPoll
	if poll <= 0 {
		poll = defaultDailyPoll
	}
	// One poll task serves every daily action.
	e := &entry{name: "@daily", kind: "daily"}
	e.run = func() error {
		ds.Poll()
		return nil
	}
	return m.repeating(e, 0, poll), nil
}

func (m *Manager) compileWatch(name string, w WatchDefinition) (plan, error) {
	trigger := strings.TrimSpace(w.TriggerFile)
	if trigger == "" {
		return plan{}, fmt.Errorf("%w: %s: trigger_file required", ErrInvalidJob, name)
	}
	var reset func() bool
	if rf := strings.TrimSpace(w.ResetFile); rf != "" {
		reset = fileExists(rf)
	}
	n := notify.New(fileExists(trigger), reset,
		func() { m.log.Warn("watch triggered", logx.String("watch", name), logx.String("file", trigger)) },
		func() { m.log.Info("watch recovered", logx.String("watch", name)) },
	)
	poll := w.Poll
	if poll <= 0 {
		poll = defaultWatchPoll
	}
	e := &entry{name: name, kind: "watch"}
	e.run = func() error {
		n.Check()
		return nil
	}
	return m.repeating(e, 0, poll), nil
}

func (m *Manager) repeating(e *entry, delay, every time.Duration) plan {
	e.every = every
	e.task = scheduler.Task{
		Name:      e.name,
		Action:    m.runner(e),
		PostDelay: delay,
		Repeat:    true,
		Interval:  every,
	}
	return plan{e: e, task: e.task}
}

// armRepeatLocked registers e to run after delay. On a sequential scheduler
// the task is a one-shot and the runner registers the next run.
func (m *Manager) armRepeatLocked(e *entry, delay time.Duration) error {
	t := e.task
	t.PostDelay = delay
	e.oneShot = m.sched.IsSequentialMode()
	if e.oneShot {
		t.Repeat = false
	}
	id, err := m.sched.Add(t)
	if err != nil {
		return err
	}
	e.id = id
	return nil
}

// runner wraps e.run with bookkeeping. It does nothing once e has been
// replaced by a later Apply.
func (m *Manager) runner(e *entry) scheduler.Action {
	return func() {
		if !m.current(e) {
			return
		}
		m.invoke(e)
		if e.every > 0 {
			m.rearm(e)
		}
	}
}

// rearm registers the next run of a repeating job the scheduler will not
// repeat on its own.
func (m *Manager) rearm(e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[e.name] != e || e.gen != m.gen {
		return
	}
	// A repeating registration survives unless the scheduler has since
	// switched to sequential mode.
	if !e.oneShot && !m.sched.IsSequentialMode() {
		return
	}
	if err := m.armRepeatLocked(e, e.every); err != nil {
		e.id = scheduler.NoID
		m.log.Warn("job not re-armed", logx.String("job", e.name), logx.Err(err))
	}
}

func (m *Manager) invoke(e *entry) {
	e.runs.Add(1)
	if err := e.run(); err != nil {
		e.lastErr.Store(err.Error())
		m.log.Warn("job failed", logx.String("job", e.name), logx.Err(err))
		return
	}
	e.lastErr.Store("")
}

func (m *Manager) logErr(name string, fn func() error) func() {
	return func() {
		if err := fn(); err != nil {
			m.log.Warn("daily action failed", logx.String("action", name), logx.Err(err))
		}
	}
}

func (m *Manager) current(e *entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[e.name] == e && e.gen == m.gen
}

// armCronLocked registers the one-shot task for the next fire time of e.
// When the wait exceeds maxHop an intermediate task re-evaluates later.
func (m *Manager) armCronLocked(e *entry) error {
	now := m.now().In(m.loc)
	next := e.sched.Next(now)
	if next.IsZero() {
		return fmt.Errorf("%w: %s: cron schedule never fires", ErrRegister, e.name)
	}
	delay := next.Sub(now)
	hop := delay > maxHop
	if hop {
		delay = maxHop
	}
	id, err := m.sched.Add(scheduler.Task{
		Name:      e.name,
		Action:    func() { m.cronFired(e, hop) },
		PostDelay: delay,
	})
	if err != nil {
		return err
	}
	e.id = id
	return nil
}

func (m *Manager) cronFired(e *entry, hop bool) {
	if !m.current(e) {
		return
	}
	if !hop {
		m.invoke(e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Apply may have replaced e while it ran.
	if m.entries[e.name] != e || e.gen != m.gen {
		return
	}
	if err := m.armCronLocked(e); err != nil {
		e.id = scheduler.NoID
		m.log.Warn("cron job not re-armed", logx.String("job", e.name), logx.Err(err))
	}
}
