package config

// Config is the daemon configuration. Files may be JSON or YAML; unknown keys
// are rejected in both.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Storage enables the run journal. Nil disables it.
	Storage *StorageConfig `json:"storage,omitempty"`
	Systemd SystemdConfig  `json:"systemd"`

	Jobs    []JobConfig   `json:"jobs,omitempty"`
	Daily   []DailyConfig `json:"daily,omitempty"`
	Watches []WatchConfig `json:"watches,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the task table and the tick loop.
//
// All durations are Go duration strings (e.g. "250ms", "1m").
//
// Defaults (when fields are omitted/zero):
//   - capacity: 124
//   - max_sleep: "1m"
//   - tick: "10ms"
//   - condition_poll: "250ms"
//   - diagnostic_every: "5s"
type SchedulerConfig struct {
	Capacity int `json:"capacity,omitempty"`
	// MaxSleep caps the time the loop sleeps between ticks.
	MaxSleep string `json:"max_sleep,omitempty"`
	// Tick is the shortest sleep between ticks.
	Tick string `json:"tick,omitempty"`
	// ConditionPoll caps the sleep while a task waits on its condition.
	ConditionPoll string `json:"condition_poll,omitempty"`
	Sequential    bool   `json:"sequential"`
	// Hold freezes the schedule until set back to false.
	Hold bool `json:"hold"`
	// Timezone for cron jobs and daily actions (IANA name, default local).
	Timezone        string `json:"timezone,omitempty"`
	DiagnosticEvery string `json:"diagnostic_every,omitempty"`
}

// StorageConfig controls the run journal.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./microsched_journal" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// Keep bounds the number of journal records retained (0 = unbounded).
	Keep int `json:"keep,omitempty"`
}

// SystemdConfig enables sd_notify integration when running as a unit.
type SystemdConfig struct {
	Notify   bool `json:"notify"`
	Watchdog bool `json:"watchdog"`
}

// ActionConfig is what a job or daily entry does when it fires.
//
// Kinds:
//   - "log" (default): log Message at info level
//   - "touch": write the current time to Path
//   - "remove": delete Path if it exists
type ActionConfig struct {
	Action  string `json:"action,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message,omitempty"`
}

// JobConfig registers one scheduler task.
//
// Schedule forms: cron ("*/5 * * * *", "@hourly"), interval ("55m", "00:50",
// "every:10s") or one-shot ("after:30s"). A job with WhenFile instead waits
// for that file to exist, at most Wait (0 = forever), then runs after
// PostDelay.
type JobConfig struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule,omitempty"`

	WhenFile  string `json:"when_file,omitempty"`
	Wait      string `json:"wait,omitempty"`
	PostDelay string `json:"post_delay,omitempty"`

	ActionConfig
}

// DailyConfig fires an action once per day at At ("HH:MM" or "HH:MM:SS").
type DailyConfig struct {
	Name string `json:"name"`
	At   string `json:"at"`

	ActionConfig
}

// WatchConfig raises a warning when TriggerFile appears and an info line once
// it is gone again (or, with ResetFile, once ResetFile appears).
type WatchConfig struct {
	Name        string `json:"name"`
	TriggerFile string `json:"trigger_file"`
	ResetFile   string `json:"reset_file,omitempty"`
	Poll        string `json:"poll,omitempty"` // default "1s"
}
