package jobs

import "time"

// ActionSpec is what fires.
//
// Kinds: "log" (default), "touch" (write the current time to Path) and
// "remove" (delete Path if present).
type ActionSpec struct {
	Kind    string
	Path    string
	Message string
}

// Definition is one config-driven job. Exactly one of Schedule and WhenFile
// is set.
type Definition struct {
	Name     string
	Schedule string

	// WhenFile gates the job on the existence of a file.
	WhenFile  string
	Wait      time.Duration // 0 waits forever
	PostDelay time.Duration

	Action ActionSpec
}

// DailyDefinition fires Action once per day at At ("HH:MM[:SS]").
type DailyDefinition struct {
	Name   string
	At     string
	Action ActionSpec
}

// WatchDefinition warns while TriggerFile exists. Without ResetFile the
// watch recovers when TriggerFile is gone.
type WatchDefinition struct {
	Name        string
	TriggerFile string
	ResetFile   string
	Poll        time.Duration
}

// Set is everything the manager registers.
type Set struct {
	Jobs    []Definition
	Daily   []DailyDefinition
	Watches []WatchDefinition

	// Location is used for cron jobs and daily actions (nil = time.Local).
	Location *time.Location
	// DailyPoll is how often daily actions are polled (default 1s).
	DailyPoll time.Duration
}

// Status is a diagnostic view of one registration.
type Status struct {
	Name      string
	Kind      string
	TaskID    uint16
	Runs      uint64
	LastError string
}
