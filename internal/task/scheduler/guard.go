package scheduler

import "sync"

// guard is the short critical section around the task table and the
// scheduler flags. It is never held while user code runs: actions,
// predicates, timeout callbacks and event publishing all happen after the
// matching unlock.
type guard struct {
	mu sync.Mutex
}

// lock acquires the guard and returns the release func, so every exit path
// can `defer g.lock()()`.
func (g *guard) lock() func() {
	g.mu.Lock()
	return g.mu.Unlock
}

// with runs fn under the guard.
func (g *guard) with(fn func()) {
	defer g.lock()()
	fn()
}
