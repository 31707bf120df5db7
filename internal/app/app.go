package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"microsched/internal/config"
	"microsched/internal/eventbus"
	"microsched/internal/jobs"
	"microsched/internal/runtime/supervisor"
	"microsched/internal/storage"
	"microsched/internal/task/scheduler"
	"microsched/pkg/clock"
	logx "microsched/pkg/logx"
)

// journalBuffer is the bus buffer of the journal subscriber.
const journalBuffer = 256

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	sched *scheduler.Scheduler
	jobs  *jobs.Manager
	sd    *notifier

	loop atomic.Pointer[loopConfig]
	wake chan struct{}

	tickStop context.CancelFunc
	tickDone chan struct{}

	journal      <-chan eventbus.Event
	unsubJournal func()

	// beat is the UnixNano time of the last tick loop pass; heartbeat caps
	// the loop sleep while the systemd watchdog is armed.
	beat      atomic.Int64
	heartbeat atomic.Int64

	stopOnce sync.Once
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg))
	log = log.With(logx.String("comp", "app"))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	lc, err := mapLoopConfig(cfg)
	if err != nil {
		return nil, err
	}
	set, err := mapJobSet(cfg)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	// Subscribed before the first registration so the journal sees it.
	journal, unsubJournal := bus.Subscribe(journalBuffer, "task.", "scheduler.")

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	sched := scheduler.New(schedCfg, clock.NewSystem(), log.With(logx.String("comp", "scheduler")), bus)
	if cfg.Scheduler.Hold {
		sched.Hold()
	}

	jm := jobs.NewManager(sched, log.With(logx.String("comp", "jobs")))
	if err := jm.Apply(set); err != nil {
		jm.Close()
		unsubJournal()
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		sched:   sched,
		jobs:    jm,
		sd:      &notifier{log: log.With(logx.String("comp", "systemd"))},
		wake:    make(chan struct{}, 1),

		journal:      journal,
		unsubJournal: unsubJournal,
	}
	a.loop.Store(&lc)
	a.sd.enabled.Store(cfg.Systemd.Notify)
	return a, nil
}

func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

func (a *App) Jobs() *jobs.Manager { return a.jobs }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapLoopConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		set, err := mapJobSet(cfg)
		if err != nil {
			return err
		}
		return a.jobs.Validate(set)
	})

	a.beat.Store(time.Now().UnixNano())
	cfg := a.cfgm.Get()
	if cfg.Systemd.Watchdog {
		every, err := watchdogInterval()
		switch {
		case err != nil:
			a.log.Warn("systemd watchdog unavailable", logx.Err(err))
		case every <= 0:
			a.log.Info("systemd watchdog not armed for this unit")
		default:
			a.heartbeat.Store(int64(every))
			a.sup.Go("systemd.watchdog", func(c context.Context) error {
				return a.runWatchdog(c, every)
			})
		}
	}

	// The tick loop has its own context: Stop ends it first, runs the final
	// tick and only then cancels the journal.
	tickCtx, tickStop := context.WithCancel(a.sup.Context())
	a.tickStop = tickStop
	a.tickDone = make(chan struct{})
	a.sup.Go("tick.loop", func(context.Context) error {
		defer close(a.tickDone)
		return a.runTicks(tickCtx)
	})
	a.sup.Go("journal", a.runJournal)
	a.sup.Go("config.reload", a.runReload)
	a.sup.GoRestart("config.watch", time.Second, 30*time.Second, func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.sd.ready()
	a.sd.status(a.sched.TaskCount(), a.sched.IsHeld())
	a.log.Info("app started",
		logx.Int("tasks", a.sched.TaskCount()),
		logx.Bool("sequential", a.sched.IsSequentialMode()),
		logx.Bool("held", a.sched.IsHeld()),
	)
	return nil
}

// poke wakes the tick loop early, e.g. after a reload registered new tasks.
func (a *App) poke() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *App) runTicks(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-a.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		a.sched.Tick()
		a.beat.Store(time.Now().UnixNano())
		timer.Reset(a.nextSleep())
	}
}

// nextSleep is TimeToNextTask bounded by the loop config: never shorter than
// tick, at most condition_poll while a task waits on its condition, and at
// most the watchdog heartbeat.
func (a *App) nextSleep() time.Duration {
	lc := a.loop.Load()
	d := a.sched.TimeToNextTask()
	if a.sched.IsHeld() {
		d = lc.conditionPoll
	} else if d > lc.conditionPoll && a.waitingOnCondition() {
		d = lc.conditionPoll
	}
	if hb := time.Duration(a.heartbeat.Load()); hb > 0 && d > hb {
		d = hb
	}
	if d < lc.tick {
		d = lc.tick
	}
	return d
}

func (a *App) waitingOnCondition() bool {
	for _, t := range a.sched.Snapshot().Tasks {
		if t.Phase == scheduler.PhaseWaitingCondition {
			return true
		}
	}
	return false
}

// runJournal mirrors lifecycle events into the store. On shutdown it drains
// what is already buffered so the final stop is recorded.
func (a *App) runJournal(ctx context.Context) error {
	ch := a.journal
	defer a.unsubJournal()

	handle := func(c context.Context, ev eventbus.Event) {
		rec := recordOf(ev)
		switch ev.Type {
		case scheduler.EventTaskTimedOut:
			a.log.Info("task timed out", logx.Uint64("id", uint64(rec.TaskID)), logx.String("task", rec.Task))
		case scheduler.EventSchedulerStopped:
			a.log.Info("scheduler stopped", logx.String("detail", rec.Detail))
		default:
			a.log.Trace("event", logx.String("type", ev.Type), logx.Uint64("id", uint64(rec.TaskID)))
		}
		if a.store == nil {
			return
		}
		if err := a.store.Append(c, rec); err != nil {
			a.log.Warn("journal append failed", logx.String("event", ev.Type), logx.Err(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			for {
				select {
				case ev, ok := <-ch:
					if !ok {
						return nil
					}
					handle(drainCtx, ev)
				default:
					if n := a.bus.Dropped(); n > 0 {
						a.log.Warn("journal lost events", logx.Uint64("dropped", n))
					}
					return nil
				}
			}
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			// A record already taken off the bus is written even if shutdown races it.
			handle(context.WithoutCancel(ctx), ev)
		}
	}
}

func recordOf(ev eventbus.Event) storage.Record {
	rec := storage.Record{At: ev.Time, Event: ev.Type}
	switch d := ev.Data.(type) {
	case scheduler.TaskEvent:
		rec.TaskID = uint16(d.ID)
		rec.Task = d.Name
		rec.Reason = d.Reason
		if d.Panic != "" {
			rec.Detail = "panic: " + d.Panic
		}
	case scheduler.StopEvent:
		rec.Detail = fmt.Sprintf("removed=%d in_tick=%t", d.Removed, d.InTick)
	}
	return rec
}

func (a *App) runReload(ctx context.Context) error {
	ch := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(ch)

	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-ch:
			if !ok {
				return nil
			}
			// Coalesce bursts: only the newest config matters.
			for drained := false; !drained; {
				select {
				case next, ok := <-ch:
					if !ok {
						return nil
					}
					cfg = next
				default:
					drained = true
				}
			}
			a.applyConfig(last, cfg)
			last = cfg
		}
	}
}

// applyConfig applies what can change live. Capacity, diagnostic_every,
// max_sleep and storage are fixed at startup.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, names := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.log.Debug("config change summary", append(attrs, logx.String("names", strings.Join(names, ",")))...)

	if slices.Contains(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	o, n := oldCfg.Scheduler, newCfg.Scheduler
	if o.Capacity != n.Capacity || strings.TrimSpace(o.MaxSleep) != strings.TrimSpace(n.MaxSleep) ||
		strings.TrimSpace(o.DiagnosticEvery) != strings.TrimSpace(n.DiagnosticEvery) {
		a.log.Warn("scheduler capacity/max_sleep/diagnostic_every changed; restart required")
	}

	a.logs.Apply(mapLogging(newCfg))

	if lc, err := mapLoopConfig(newCfg); err != nil {
		a.log.Warn("invalid loop config; keeping previous", logx.Err(err))
	} else {
		a.loop.Store(&lc)
	}

	if n.Sequential != a.sched.IsSequentialMode() {
		a.sched.SetSequentialMode(n.Sequential)
		a.log.Info("scheduler mode changed", logx.Bool("sequential", n.Sequential))
	}

	tzChanged := strings.TrimSpace(o.Timezone) != strings.TrimSpace(n.Timezone)
	if tzChanged || slices.Contains(sections, "jobs") || slices.Contains(sections, "daily") || slices.Contains(sections, "watches") ||
		o.Sequential != n.Sequential {
		if set, err := mapJobSet(newCfg); err != nil {
			a.log.Warn("invalid jobs config; keeping previous", logx.Err(err))
		} else if err := a.jobs.Apply(set); err != nil {
			a.log.Warn("jobs apply failed", logx.Err(err))
		}
	}

	// Hold last so a reload that sets hold=false starts from the new job set.
	if n.Hold != a.sched.IsHeld() {
		if n.Hold {
			a.sched.Hold()
		} else {
			a.sched.Resume()
		}
		a.log.Info("scheduler hold changed", logx.Bool("held", n.Hold))
	}

	if oldCfg.Systemd.Notify != newCfg.Systemd.Notify {
		a.sd.enabled.Store(newCfg.Systemd.Notify)
	}
	if oldCfg.Systemd.Watchdog != newCfg.Systemd.Watchdog {
		a.log.Warn("systemd.watchdog changed; restart required")
	}
	a.sd.status(a.sched.TaskCount(), a.sched.IsHeld())
	a.poke()

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	var err error
	a.stopOnce.Do(func() { err = a.stop(ctx, reason) })
	return err
}

func (a *App) stop(ctx context.Context, reason StopReason) error {
	start := time.Now()
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.stopping()

	var errs []error
	if a.tickStop != nil {
		a.tickStop()
		select {
		case <-a.tickDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("tick loop still running: %w", ctx.Err()))
		}
	}

	a.jobs.Close()
	// A held scheduler ignores Tick; release it so the stop drains.
	a.sched.Resume()
	a.sched.Stop()
	a.sched.Tick()
	a.log.Info("scheduler drained", logx.Int("tasks", a.sched.TaskCount()))

	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("supervisor: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	a.log.Info("stopped", logx.Duration("took", time.Since(start)))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
