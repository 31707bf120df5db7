package scheduler

import (
	"math"
	"time"
)

// ID identifies a live task. NoID is never issued.
type ID uint16

// NoID is the null task id returned when a registration fails.
const NoID ID = 0

const (
	// DefaultCapacity is the default upper bound of simultaneously live tasks.
	DefaultCapacity = 124
	// MaxCapacity keeps the id space at least 64 times larger than the table.
	MaxCapacity = 1024
	// DefaultMaxSleep caps TimeToNextTask.
	DefaultMaxSleep = time.Minute
	// DefaultDiagnosticEvery throttles repeated diagnostics per kind.
	DefaultDiagnosticEvery = 5 * time.Second
)

type (
	// Action is the work a task performs when due.
	Action func()
	// Condition gates a task. It must not call back into the scheduler.
	Condition func() bool
	// TimeoutFunc is called with the task id when the condition wait expires.
	TimeoutFunc func(id ID)
)

// Task describes a registration. Add uses it directly; the AddXxx helpers
// fill it in for the common shapes.
type Task struct {
	// Name is an optional label used in diagnostics and events.
	Name   string
	Action Action

	// Condition defaults to always true.
	Condition Condition
	// ConditionWait bounds the wait for Condition. <= 0 waits indefinitely.
	ConditionWait time.Duration
	// PostDelay is counted from the moment Condition became true.
	PostDelay time.Duration

	// Repeat re-arms the task every Interval after a run (parallel mode only).
	Repeat   bool
	Interval time.Duration

	OnTimeout TimeoutFunc
}

// Config controls the scheduler.
type Config struct {
	// Capacity bounds the number of live tasks (default DefaultCapacity,
	// at most MaxCapacity).
	Capacity int
	// MaxSleep caps TimeToNextTask (default DefaultMaxSleep).
	MaxSleep time.Duration
	// Sequential starts the scheduler in sequential mode.
	Sequential bool
	// DiagnosticEvery rate limits repeated diagnostics of the same kind.
	// 0 applies DefaultDiagnosticEvery, < 0 disables throttling.
	DiagnosticEvery time.Duration
}

func (c Config) withDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.Capacity > MaxCapacity {
		c.Capacity = MaxCapacity
	}
	if c.MaxSleep <= 0 {
		c.MaxSleep = DefaultMaxSleep
	}
	if c.MaxSleep > math.MaxInt32*time.Millisecond {
		c.MaxSleep = math.MaxInt32 * time.Millisecond
	}
	if c.DiagnosticEvery == 0 {
		c.DiagnosticEvery = DefaultDiagnosticEvery
	}
	return c
}

// Phase is the activation state of a task.
type Phase int

const (
	// PhaseUnarmed: no deadline computed yet this activation.
	PhaseUnarmed Phase = iota
	// PhaseWaitingCondition: waiting for the predicate (deadline = wait timeout).
	PhaseWaitingCondition
	// PhaseWaitingDelay: predicate met, waiting for the post-condition delay.
	PhaseWaitingDelay
)

func (p Phase) String() string {
	switch p {
	case PhaseUnarmed:
		return "unarmed"
	case PhaseWaitingCondition:
		return "waiting_condition"
	case PhaseWaitingDelay:
		return "waiting_delay"
	default:
		return "unknown"
	}
}

// TaskInfo is a diagnostic view of one task.
type TaskInfo struct {
	ID       ID
	Name     string
	Phase    Phase
	Repeat   bool
	Interval time.Duration
	// DueIn is the time left until the current deadline (negative when
	// overdue). Zero for unarmed tasks.
	DueIn time.Duration
	// Removing is set when the task is queued for deferred removal.
	Removing bool
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Sequential bool
	Held       bool
	Stopping   bool
	Ticking    bool
	Capacity   int
	Tasks      []TaskInfo
	Pending    int
	NextWake   time.Duration
}

// toMillis converts d to the scheduler's millisecond unit. Negative values
// become 0; values beyond the signed comparison window are clamped.
func toMillis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > math.MaxInt32 {
		ms = math.MaxInt32
	}
	return uint32(ms)
}

func waitMillis(d time.Duration) int32 {
	if d <= 0 {
		return 0
	}
	ms := toMillis(d)
	if ms == 0 {
		ms = 1
	}
	return int32(ms)
}

func millis(ms uint32) time.Duration { return time.Duration(ms) * time.Millisecond }
