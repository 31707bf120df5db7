package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRecordsFirstErrorAndCancels(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))

	s.Go("bad", func(ctx context.Context) error { return errors.New("boom") })
	s.Go("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s.Wait()

	if err := s.Err(); err == nil || !strings.Contains(err.Error(), "bad: boom") {
		t.Fatalf("Err() = %v", err)
	}
	for _, st := range s.Snapshot() {
		if st.Active != 0 {
			t.Fatalf("%s still active", st.Name)
		}
		if st.Name == "waiter" && st.LastErr != "" {
			t.Fatalf("cancellation recorded as error: %q", st.LastErr)
		}
	}
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("p", func(ctx context.Context) error { panic("oops") })
	s.Wait()

	if err := s.Err(); err == nil || !strings.Contains(err.Error(), "panic: oops") {
		t.Fatalf("Err() = %v", err)
	}
	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Panics != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestGoRestartRetriesUntilClean(t *testing.T) {
	t.Parallel()
	s := New(context.Background())

	var calls atomic.Int32
	s.GoRestart("flaky", time.Millisecond, 2*time.Millisecond, func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	s.Wait()

	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	st := s.Snapshot()[0]
	if st.Restarts != 2 || st.Started != 3 {
		t.Fatalf("stats = %+v", st)
	}
	if s.Err() != nil {
		t.Fatalf("restarted errors leaked into Err(): %v", s.Err())
	}
}

func TestStopHonorsDeadline(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	release := make(chan struct{})
	s.Go("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop() = %v, want deadline exceeded", err)
	}
	close(release)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop() = %v", err)
	}
}
