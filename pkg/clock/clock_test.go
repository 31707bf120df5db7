package clock

import (
	"testing"
	"time"
)

func TestReachedAcrossWrap(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		now      uint32
		deadline uint32
		want     bool
	}{
		{name: "before", now: 100, deadline: 200, want: false},
		{name: "equal", now: 200, deadline: 200, want: true},
		{name: "after", now: 201, deadline: 200, want: true},
		{name: "deadline wrapped, now not yet", now: 0xFFFFFFF0, deadline: 5, want: false},
		{name: "both wrapped", now: 6, deadline: 5, want: true},
		{name: "now wrapped past deadline", now: 3, deadline: 0xFFFFFFFE, want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Reached(tt.now, tt.deadline); got != tt.want {
				t.Fatalf("Reached(%d, %d) = %v, want %v", tt.now, tt.deadline, got, tt.want)
			}
		})
	}
}

func TestManualAdvanceWraps(t *testing.T) {
	t.Parallel()
	m := NewManual(0xFFFFFFFF - 9)
	got := m.Advance(20 * time.Millisecond)
	if got != 10 {
		t.Fatalf("Advance wrapped to %d, want 10", got)
	}
	if Since(m.Millis(), 0xFFFFFFFF-9) != 20 {
		t.Fatalf("Since across wrap = %d, want 20", Since(m.Millis(), 0xFFFFFFFF-9))
	}
}

func TestWallClockSecondsOfDay(t *testing.T) {
	t.Parallel()
	w := NewWallClock(time.UTC)
	w.now = func() time.Time { return time.Date(2024, 3, 1, 7, 30, 15, 0, time.UTC) }
	if got, want := w.SecondsOfDay(), 7*3600+30*60+15; got != want {
		t.Fatalf("SecondsOfDay = %d, want %d", got, want)
	}
}
