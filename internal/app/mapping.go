package app

import (
	"fmt"
	"strings"
	"time"

	"microsched/internal/config"
	"microsched/internal/jobs"
	"microsched/internal/storage"
	"microsched/internal/task/scheduler"
	logx "microsched/pkg/logx"
)

const (
	defaultTick          = 10 * time.Millisecond
	defaultConditionPoll = 250 * time.Millisecond
	defaultBusyTimeout   = time.Second
)

// loopConfig is the part of the config the tick loop reads on every pass.
type loopConfig struct {
	tick          time.Duration
	conditionPoll time.Duration
}

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	sc := cfg.Scheduler
	maxSleep, err := config.ParseTaskDuration("scheduler.max_sleep", sc.MaxSleep, scheduler.DefaultMaxSleep)
	if err != nil {
		return scheduler.Config{}, err
	}
	every, err := config.ParseDuration("scheduler.diagnostic_every", sc.DiagnosticEvery, scheduler.DefaultDiagnosticEvery)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Capacity:        sc.Capacity,
		MaxSleep:        maxSleep,
		Sequential:      sc.Sequential,
		DiagnosticEvery: every,
	}, nil
}

func mapLoopConfig(cfg *config.Config) (loopConfig, error) {
	tick, err := config.ParseTaskDuration("scheduler.tick", cfg.Scheduler.Tick, defaultTick)
	if err != nil {
		return loopConfig{}, err
	}
	poll, err := config.ParseTaskDuration("scheduler.condition_poll", cfg.Scheduler.ConditionPoll, defaultConditionPoll)
	if err != nil {
		return loopConfig{}, err
	}
	if tick <= 0 {
		tick = defaultTick
	}
	if poll < tick {
		poll = tick
	}
	return loopConfig{tick: tick, conditionPoll: poll}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path, Keep: sc.Keep}, true, nil
	case "sqlite":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDuration("storage.busy_timeout", sc.BusyTimeout, defaultBusyTimeout)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy, Keep: sc.Keep}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapLocation(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

func mapAction(a config.ActionConfig) jobs.ActionSpec {
	return jobs.ActionSpec{
		Kind:    strings.ToLower(strings.TrimSpace(a.Action)),
		Path:    strings.TrimSpace(a.Path),
		Message: a.Message,
	}
}

// mapJobSet converts the jobs, daily and watches sections. Schedules are
// checked later by jobs.Manager.
func mapJobSet(cfg *config.Config) (jobs.Set, error) {
	loc, err := mapLocation(cfg)
	if err != nil {
		return jobs.Set{}, err
	}
	set := jobs.Set{Location: loc}

	for i, j := range cfg.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		wait, err := config.ParseTaskDuration(path+".wait", j.Wait, 0)
		if err != nil {
			return jobs.Set{}, err
		}
		post, err := config.ParseTaskDuration(path+".post_delay", j.PostDelay, 0)
		if err != nil {
			return jobs.Set{}, err
		}
		set.Jobs = append(set.Jobs, jobs.Definition{
			Name:      strings.TrimSpace(j.Name),
			Schedule:  strings.TrimSpace(j.Schedule),
			WhenFile:  strings.TrimSpace(j.WhenFile),
			Wait:      wait,
			PostDelay: post,
			Action:    mapAction(j.ActionConfig),
		})
	}
	for _, d := range cfg.Daily {
		set.Daily = append(set.Daily, jobs.DailyDefinition{
			Name:   strings.TrimSpace(d.Name),
			At:     strings.TrimSpace(d.At),
			Action: mapAction(d.ActionConfig),
		})
	}
	for i, w := range cfg.Watches {
		poll, err := config.ParseTaskDuration(fmt.Sprintf("watches[%d].poll", i), w.Poll, 0)
		if err != nil {
			return jobs.Set{}, err
		}
		set.Watches = append(set.Watches, jobs.WatchDefinition{
			Name:        strings.TrimSpace(w.Name),
			TriggerFile: strings.TrimSpace(w.TriggerFile),
			ResetFile:   strings.TrimSpace(w.ResetFile),
			Poll:        poll,
		})
	}
	return set, nil
}
