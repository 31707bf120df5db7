package config

import (
	"reflect"
	"sort"
	"strings"

	logx "microsched/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) structured fields for logging, and (3) the names of jobs, daily
// entries and watches that were added, removed or changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	oSc, ns := oldCfg.Scheduler, newCfg.Scheduler
	if !reflect.DeepEqual(trimScheduler(oSc), trimScheduler(ns)) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Int("scheduler.capacity", ns.Capacity),
			logx.String("scheduler.max_sleep", strings.TrimSpace(ns.MaxSleep)),
			logx.String("scheduler.tick", strings.TrimSpace(ns.Tick)),
			logx.Bool("scheduler.sequential", ns.Sequential),
			logx.Bool("scheduler.hold", ns.Hold),
			logx.String("scheduler.timezone", strings.TrimSpace(ns.Timezone)),
		)
	}

	// Nil storage means disabled.
	var oSt, nSt StorageConfig
	if oldCfg.Storage != nil {
		oSt = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nSt = *newCfg.Storage
	}
	if strings.TrimSpace(oSt.Driver) != strings.TrimSpace(nSt.Driver) ||
		strings.TrimSpace(oSt.Path) != strings.TrimSpace(nSt.Path) ||
		strings.TrimSpace(oSt.BusyTimeout) != strings.TrimSpace(nSt.BusyTimeout) ||
		oSt.Keep != nSt.Keep {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nSt.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nSt.Path) != ""),
			logx.Int("storage.keep", nSt.Keep),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs,
			logx.Bool("systemd.notify", newCfg.Systemd.Notify),
			logx.Bool("systemd.watchdog", newCfg.Systemd.Watchdog),
		)
	}

	var names []string
	if n := diffNamed(indexJobs(oldCfg.Jobs), indexJobs(newCfg.Jobs)); len(n) > 0 {
		changed = append(changed, "jobs")
		attrs = append(attrs, logx.Int("jobs.count", len(newCfg.Jobs)), logx.Int("jobs.changed", len(n)))
		names = append(names, n...)
	}
	if n := diffNamed(indexDaily(oldCfg.Daily), indexDaily(newCfg.Daily)); len(n) > 0 {
		changed = append(changed, "daily")
		attrs = append(attrs, logx.Int("daily.count", len(newCfg.Daily)), logx.Int("daily.changed", len(n)))
		names = append(names, n...)
	}
	if n := diffNamed(indexWatches(oldCfg.Watches), indexWatches(newCfg.Watches)); len(n) > 0 {
		changed = append(changed, "watches")
		attrs = append(attrs, logx.Int("watches.count", len(newCfg.Watches)), logx.Int("watches.changed", len(n)))
		names = append(names, n...)
	}

	sort.Strings(changed)
	sort.Strings(names)
	return changed, attrs, names
}

func trimScheduler(s SchedulerConfig) SchedulerConfig {
	s.MaxSleep = strings.TrimSpace(s.MaxSleep)
	s.Tick = strings.TrimSpace(s.Tick)
	s.ConditionPoll = strings.TrimSpace(s.ConditionPoll)
	s.Timezone = strings.TrimSpace(s.Timezone)
	s.DiagnosticEvery = strings.TrimSpace(s.DiagnosticEvery)
	return s
}

func indexJobs(list []JobConfig) map[string]any {
	m := make(map[string]any, len(list))
	for _, v := range list {
		m[strings.TrimSpace(v.Name)] = v
	}
	return m
}

func indexDaily(list []DailyConfig) map[string]any {
	m := make(map[string]any, len(list))
	for _, v := range list {
		m[strings.TrimSpace(v.Name)] = v
	}
	return m
}

func indexWatches(list []WatchConfig) map[string]any {
	m := make(map[string]any, len(list))
	for _, v := range list {
		m[strings.TrimSpace(v.Name)] = v
	}
	return m
}

func diffNamed(oldM, newM map[string]any) []string {
	var out []string
	for name, o := range oldM {
		n, ok := newM[name]
		if !ok || !reflect.DeepEqual(o, n) {
			out = append(out, name)
		}
	}
	for name := range newM {
		if _, ok := oldM[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}
