package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// MaxTaskDuration is the longest delay the scheduler's wrapping millisecond
// clock can order correctly, 2^31-1 ms (about 24.8 days).
const MaxTaskDuration = math.MaxInt32 * time.Millisecond

// ParseDuration reads a duration field; empty or zero yields def. Negative
// values are rejected. path names the field in errors.
func ParseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	return parseBounded(path, raw, def, 0)
}

// ParseTaskDuration is ParseDuration for values that become scheduler delays.
// They must fit MaxTaskDuration; anything longer would be clamped silently.
func ParseTaskDuration(path, raw string, def time.Duration) (time.Duration, error) {
	return parseBounded(path, raw, def, MaxTaskDuration)
}

func parseBounded(path, raw string, def, limit time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	case limit > 0 && d > limit:
		return 0, fmt.Errorf("%s: %s exceeds the %s scheduler limit", path, d, limit)
	case d == 0:
		return def, nil
	}
	return d, nil
}
