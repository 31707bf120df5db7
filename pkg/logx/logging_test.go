package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func decodeLines(t *testing.T, b *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestWriterLoggerFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "test"))
	log.Debug("hidden")
	log.Warn("visible", Int("n", 3))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0]["message"] != "visible" || lines[0]["comp"] != "test" || lines[0]["n"] != float64(3) {
		t.Fatalf("unexpected line: %v", lines[0])
	}
	if _, ok := lines[0]["caller"]; !ok {
		t.Fatalf("caller missing: %v", lines[0])
	}
}

func TestZeroLoggerIsNop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Error("does not panic")
}

func TestThrottleSuppressesAndReports(t *testing.T) {
	var buf bytes.Buffer
	th := NewThrottle(NewWriter(&buf, "debug"), time.Hour, 1)
	for i := 0; i < 5; i++ {
		th.Warn("cap", "capacity reached")
	}
	th.Warn("other", "different key")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[1]["message"] != "different key" {
		t.Fatalf("unexpected second line: %v", lines[1])
	}

	th.mu.Lock()
	suppressed := th.keys["cap"].suppressed
	th.mu.Unlock()
	if suppressed != 4 {
		t.Fatalf("suppressed = %d, want 4", suppressed)
	}
}

func TestThrottleDisabled(t *testing.T) {
	var buf bytes.Buffer
	th := NewThrottle(NewWriter(&buf, "debug"), 0, 1)
	for i := 0; i < 3; i++ {
		th.Warn("k", "line")
	}
	if n := len(decodeLines(t, &buf)); n != 3 {
		t.Fatalf("got %d lines, want 3", n)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	if ParseLevel("warning", LevelInfo) != LevelWarn {
		t.Fatal("warning should map to warn")
	}
	if ParseLevel("bogus", LevelDebug) != LevelDebug {
		t.Fatal("unknown level should fall back")
	}
}
