package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"microsched/internal/config"
	"microsched/internal/eventbus"
	"microsched/internal/storage"
	"microsched/internal/task/scheduler"
	"microsched/pkg/clock"
	logx "microsched/pkg/logx"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestNewRegistersConfiguredJobs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeConfig(t, dir, `
logging:
  level: error
scheduler:
  tick: 5ms
  hold: true
jobs:
  - name: beat
    schedule: every:1s
  - name: flag
    when_file: `+filepath.Join(dir, "flag")+`
daily:
  - name: morning
    at: "07:30"
`)
	a, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Stop(context.Background(), StopAppStop)

	// Two jobs plus the shared daily poll task.
	if got := a.Scheduler().TaskCount(); got != 3 {
		t.Fatalf("TaskCount=%d, want 3", got)
	}
	if !a.Scheduler().IsHeld() {
		t.Fatalf("scheduler.hold not applied")
	}
	names := map[string]bool{}
	for _, st := range a.Jobs().Status() {
		names[st.Name] = true
	}
	// Daily actions share one poll registration.
	for _, n := range []string{"beat", "flag", "@daily"} {
		if !names[n] {
			t.Fatalf("missing job status %q in %v", n, names)
		}
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	p := writeConfig(t, t.TempDir(), `
logging:
  level: error
jobs:
  - name: broken
    schedule: "not a schedule"
`)
	if _, err := New(p); err == nil {
		t.Fatalf("expected error for invalid schedule")
	}
}

func TestStartRunsJobsAndJournals(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	out := filepath.Join(dir, "touched")
	journal := filepath.Join(dir, "journal")
	p := writeConfig(t, dir, `
logging:
  level: error
scheduler:
  tick: 2ms
storage:
  driver: file
  path: `+journal+`
jobs:
  - name: once
    schedule: after:20ms
    action: touch
    path: `+out+`
`)
	a, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if !waitFor(t, 3*time.Second, func() bool {
		_, err := os.Stat(out)
		return err == nil
	}) {
		t.Fatalf("job did not run")
	}
	// The once job is gone after its run.
	if !waitFor(t, time.Second, func() bool { return a.Scheduler().TaskCount() == 0 }) {
		t.Fatalf("TaskCount=%d after one-shot run", a.Scheduler().TaskCount())
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := a.Err(); err != nil {
		t.Fatalf("supervisor error: %v", err)
	}

	st, err := storage.Open(storage.Config{Driver: "file", Path: journal}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer st.Close()
	recs, err := st.Recent(context.Background(), 50)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	seen := map[string]bool{}
	for _, r := range recs {
		seen[r.Event+"/"+r.Reason] = true
	}
	for _, want := range []string{
		scheduler.EventTaskRegistered + "/",
		scheduler.EventTaskRan + "/",
		scheduler.EventTaskRemoved + "/" + scheduler.ReasonCompleted,
		scheduler.EventSchedulerStopped + "/",
	} {
		if !seen[want] {
			t.Fatalf("journal missing %q; have %v", want, seen)
		}
	}
}

func TestApplyConfigLive(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeConfig(t, dir, `
logging:
  level: error
jobs:
  - name: a
    schedule: every:1m
`)
	a, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Stop(context.Background(), StopAppStop)

	oldCfg := a.cfgm.Get()
	newCfg, err := config.Decode("config.yaml", []byte(`
logging:
  level: error
scheduler:
  hold: true
  sequential: true
  tick: 20ms
jobs:
  - name: a
    schedule: every:1m
  - name: b
    schedule: after:1h
`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	a.applyConfig(oldCfg, newCfg)

	if !a.Scheduler().IsHeld() {
		t.Fatalf("hold not applied")
	}
	if !a.Scheduler().IsSequentialMode() {
		t.Fatalf("sequential not applied")
	}
	if got := a.loop.Load().tick; got != 20*time.Millisecond {
		t.Fatalf("tick=%v, want 20ms", got)
	}
	// The old registration is queued for removal; the held scheduler keeps
	// it until the next tick after resume.
	if got := len(a.Jobs().Status()); got != 2 {
		t.Fatalf("jobs=%d, want 2", got)
	}
	a.Scheduler().Resume()
	a.Scheduler().Tick()
	if got := a.Scheduler().TaskCount(); got != 2 {
		t.Fatalf("TaskCount=%d, want 2", got)
	}
}

func TestNextSleepBounds(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(1)
	sched := scheduler.New(scheduler.Config{MaxSleep: time.Minute}, clk, logx.Nop(), nil)
	a := &App{sched: sched}
	a.loop.Store(&loopConfig{tick: 10 * time.Millisecond, conditionPoll: 200 * time.Millisecond})

	if got := a.nextSleep(); got != time.Minute {
		t.Fatalf("empty: %v, want 1m", got)
	}

	sched.AddTimed(func() {}, 30*time.Second)
	if got := a.nextSleep(); got != 10*time.Millisecond {
		t.Fatalf("unarmed: %v, want tick floor", got)
	}
	sched.Tick()
	if got := a.nextSleep(); got != 30*time.Second {
		t.Fatalf("armed: %v, want 30s", got)
	}

	sched.AddConditional(func() {}, func() bool { return false }, 10*time.Second, nil)
	sched.Tick()
	if got := a.nextSleep(); got != 200*time.Millisecond {
		t.Fatalf("waiting on condition: %v, want condition_poll", got)
	}

	a.heartbeat.Store(int64(50 * time.Millisecond))
	if got := a.nextSleep(); got != 50*time.Millisecond {
		t.Fatalf("heartbeat: %v, want 50ms", got)
	}

	sched.Hold()
	a.heartbeat.Store(0)
	if got := a.nextSleep(); got != 200*time.Millisecond {
		t.Fatalf("held: %v, want condition_poll", got)
	}
}

func TestRecordOf(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		ev   eventbus.Event
		want storage.Record
	}{
		{
			name: "task",
			ev:   eventbus.Event{Type: scheduler.EventTaskRemoved, Time: at, Data: scheduler.TaskEvent{ID: 7, Name: "x", Reason: scheduler.ReasonTimedOut}},
			want: storage.Record{At: at, Event: scheduler.EventTaskRemoved, TaskID: 7, Task: "x", Reason: scheduler.ReasonTimedOut},
		},
		{
			name: "panic",
			ev:   eventbus.Event{Type: scheduler.EventTaskRan, Time: at, Data: scheduler.TaskEvent{ID: 3, Panic: "boom"}},
			want: storage.Record{At: at, Event: scheduler.EventTaskRan, TaskID: 3, Detail: "panic: boom"},
		},
		{
			name: "stop",
			ev:   eventbus.Event{Type: scheduler.EventSchedulerStopped, Time: at, Data: scheduler.StopEvent{Removed: 4}},
			want: storage.Record{At: at, Event: scheduler.EventSchedulerStopped, Detail: "removed=4 in_tick=false"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := recordOf(tt.ev); got != tt.want {
				t.Fatalf("recordOf=%+v, want %+v", got, tt.want)
			}
		})
	}
}

// Not parallel: replaces the sd_notify hooks.
func TestSystemdNotifier(t *testing.T) {
	var (
		mu     sync.Mutex
		states []string
	)
	origNotify, origWatchdog := sdNotify, sdWatchdogEnabled
	t.Cleanup(func() { sdNotify, sdWatchdogEnabled = origNotify, origWatchdog })
	sdNotify = func(_ bool, state string) (bool, error) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
		return true, nil
	}
	sdWatchdogEnabled = func(bool) (time.Duration, error) { return 40 * time.Millisecond, nil }

	n := &notifier{log: logx.Nop()}
	n.ready()
	if len(states) != 0 {
		t.Fatalf("disabled notifier sent %v", states)
	}
	n.enabled.Store(true)
	n.ready()
	n.status(3, true)
	n.stopping()

	every, err := watchdogInterval()
	if err != nil || every != 20*time.Millisecond {
		t.Fatalf("watchdogInterval=%v,%v want 20ms", every, err)
	}

	a := &App{sd: n, log: logx.Nop()}
	a.beat.Store(time.Now().UnixNano())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.runWatchdog(ctx, every)
	}()
	ok := waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range states {
			if s == "WATCHDOG=1" {
				return true
			}
		}
		return false
	})
	cancel()
	<-done
	if !ok {
		t.Fatalf("no watchdog ping in %v", states)
	}

	mu.Lock()
	defer mu.Unlock()
	if states[0] != "READY=1" || !strings.HasPrefix(states[1], "STATUS=3 tasks") || states[2] != "STOPPING=1" {
		t.Fatalf("states=%v", states)
	}
}
