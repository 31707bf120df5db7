package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalid = errors.New("invalid config")
)

// Validate checks what can be checked without building the runtime: duration
// syntax, names, drivers and ranges. Schedules are validated by the job
// manager.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}
	check := func(_ time.Duration, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
		}
	}
	dur := func(path, raw string) { check(ParseDuration(path, raw, 0)) }
	taskDur := func(path, raw string) { check(ParseTaskDuration(path, raw, 0)) }

	sc := cfg.Scheduler
	if sc.Capacity < 0 {
		add("scheduler.capacity must be >= 0")
	}
	taskDur("scheduler.max_sleep", sc.MaxSleep)
	taskDur("scheduler.tick", sc.Tick)
	taskDur("scheduler.condition_poll", sc.ConditionPoll)
	dur("scheduler.diagnostic_every", sc.DiagnosticEvery)
	if tz := strings.TrimSpace(sc.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("scheduler.timezone %q: %v", tz, err)
		}
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			add("storage.driver %q is not supported", st.Driver)
		}
		dur("storage.busy_timeout", st.BusyTimeout)
		if st.Keep < 0 {
			add("storage.keep must be >= 0")
		}
	}

	if cfg.Systemd.Watchdog && !cfg.Systemd.Notify {
		add("systemd.watchdog requires systemd.notify")
	}

	names := map[string]string{}
	unique := func(section, name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			add("%s: name required", section)
			return
		}
		if prev, ok := names[name]; ok {
			add("%s: duplicate name %q (also in %s)", section, name, prev)
			return
		}
		names[name] = section
	}
	action := func(path string, a ActionConfig) {
		switch strings.ToLower(strings.TrimSpace(a.Action)) {
		case "", "log":
		case "touch", "remove":
			if strings.TrimSpace(a.Path) == "" {
				add("%s: path required for action %q", path, a.Action)
			}
		default:
			add("%s: unknown action %q", path, a.Action)
		}
	}

	for i, j := range cfg.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		unique(path, j.Name)
		action(path, j.ActionConfig)
		hasSched := strings.TrimSpace(j.Schedule) != ""
		hasFile := strings.TrimSpace(j.WhenFile) != ""
		switch {
		case hasSched && hasFile:
			add("%s: schedule and when_file are mutually exclusive", path)
		case !hasSched && !hasFile:
			add("%s: schedule or when_file required", path)
		}
		taskDur(path+".wait", j.Wait)
		taskDur(path+".post_delay", j.PostDelay)
	}
	for i, d := range cfg.Daily {
		path := fmt.Sprintf("daily[%d]", i)
		unique(path, d.Name)
		action(path, d.ActionConfig)
		if strings.TrimSpace(d.At) == "" {
			add("%s: at required", path)
		}
	}
	for i, w := range cfg.Watches {
		path := fmt.Sprintf("watches[%d]", i)
		unique(path, w.Name)
		if strings.TrimSpace(w.TriggerFile) == "" {
			add("%s: trigger_file required", path)
		}
		taskDur(path+".poll", w.Poll)
	}
	return errors.Join(errs...)
}
