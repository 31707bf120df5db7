package logx

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const throttleMaxKeys = 256

// Throttle rate limits repeated log lines per key.
//
// A registration loop hitting the task capacity, for example, would otherwise
// emit one warning per attempt. Suppressed lines are counted and reported on
// the next line that gets through.
type Throttle struct {
	log   Logger
	every time.Duration
	burst int

	mu   sync.Mutex
	keys map[string]*throttleKey
}

type throttleKey struct {
	lim        *rate.Limiter
	suppressed uint64
}

// NewThrottle allows burst lines per key, refilling one every `every`.
// every <= 0 disables throttling.
func NewThrottle(log Logger, every time.Duration, burst int) *Throttle {
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{log: log, every: every, burst: burst, keys: map[string]*throttleKey{}}
}

// Logger returns the underlying logger.
func (t *Throttle) Logger() Logger {
	if t == nil {
		return Nop()
	}
	return t.log
}

func (t *Throttle) Warn(key, msg string, fields ...Field) {
	t.emit(LevelWarn, key, msg, fields...)
}

func (t *Throttle) Error(key, msg string, fields ...Field) {
	t.emit(LevelError, key, msg, fields...)
}

func (t *Throttle) emit(level Level, key, msg string, fields ...Field) {
	if t == nil {
		return
	}
	suppressed, ok := t.allow(key)
	if !ok {
		return
	}
	if suppressed > 0 {
		fields = append(fields, Uint64("suppressed", suppressed))
	}
	switch level {
	case LevelError:
		t.log.Error(msg, fields...)
	default:
		t.log.Warn(msg, fields...)
	}
}

func (t *Throttle) allow(key string) (uint64, bool) {
	if t.every <= 0 {
		return 0, true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	k := t.keys[key]
	if k == nil {
		if len(t.keys) >= throttleMaxKeys {
			t.keys = map[string]*throttleKey{}
		}
		k = &throttleKey{lim: rate.NewLimiter(rate.Every(t.every), t.burst)}
		t.keys[key] = k
	}
	if !k.lim.Allow() {
		k.suppressed++
		return 0, false
	}
	n := k.suppressed
	k.suppressed = 0
	return n, true
}
