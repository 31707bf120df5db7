// Package scheduler is a cooperative, tick-driven task scheduler.
//
// There is no goroutine per task and no timer heap. The owner calls Tick
// repeatedly (from a main loop, a device update function, ...) and the
// scheduler decides which tasks are due, runs them synchronously and books
// the results. Three kinds of tasks can be registered:
//   - timed: run once after a delay, or repeat every interval
//   - conditional: run as soon as a predicate is true, optionally giving up
//     after a wait timeout
//   - conditional-timed: like conditional, plus a delay counted from the
//     moment the predicate became true
//
// Two execution modes exist. In parallel mode every task is evaluated every
// tick, independently. In sequential mode only the head of the table is live:
// tasks run strictly one after another in registration order and repetition
// is disabled.
//
// Task callbacks may register, remove and stop tasks (themselves included)
// while the tick walks the table. Tasks are addressed by ID, never by
// position, and are only erased at safe points: the start of a tick or the
// end of an engine pass. Callbacks must not call Tick.
//
// TimeToNextTask tells the owner how long it may sleep before the next Tick
// is needed.
package scheduler
