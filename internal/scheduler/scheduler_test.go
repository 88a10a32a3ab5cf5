package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var shanghai = time.FixedZone("CST", 8*3600)

func TestDailyNext(t *testing.T) {
	noon := Daily{Hour: 12, Minute: 0}

	tests := []struct {
		name string
		at   Daily
		from time.Time
		want time.Time
	}{
		{
			name: "later today",
			at:   noon,
			from: time.Date(2025, 11, 5, 9, 30, 0, 0, shanghai),
			want: time.Date(2025, 11, 5, 12, 0, 0, 0, shanghai),
		},
		{
			name: "exactly at fire time moves to tomorrow",
			at:   noon,
			from: time.Date(2025, 11, 5, 12, 0, 0, 0, shanghai),
			want: time.Date(2025, 11, 6, 12, 0, 0, 0, shanghai),
		},
		{
			name: "after fire time",
			at:   Daily{Hour: 13, Minute: 0},
			from: time.Date(2025, 11, 5, 13, 0, 1, 0, shanghai),
			want: time.Date(2025, 11, 6, 13, 0, 0, 0, shanghai),
		},
		{
			name: "month rollover",
			at:   Daily{Hour: 12, Minute: 20},
			from: time.Date(2025, 11, 30, 23, 0, 0, 0, shanghai),
			want: time.Date(2025, 12, 1, 12, 20, 0, 0, shanghai),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.at.Next(tt.from)
			if !got.Equal(tt.want) {
				t.Errorf("Next(%v) = %v, want %v", tt.from, got, tt.want)
			}
		})
	}
}

func TestParseDaily(t *testing.T) {
	got, err := ParseDaily("12:40")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(Daily{Hour: 12, Minute: 40}, got); diff != "" {
		t.Errorf("ParseDaily mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("daily 12:40", got.String()); diff != "" {
		t.Errorf("String mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"", "25:00", "noon", "12:60"} {
		if _, err := ParseDaily(bad); err == nil {
			t.Errorf("ParseDaily(%q) should fail", bad)
		}
	}
}

// fakeTimer records requested waits and fires when the test says so.
type fakeTimer struct {
	mu    sync.Mutex
	waits []time.Duration
	fire  chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{fire: make(chan time.Time)}
}

func (f *fakeTimer) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	f.waits = append(f.waits, d)
	f.mu.Unlock()
	return f.fire
}

func (f *fakeTimer) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.waits...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerFiresDaily(t *testing.T) {
	now := time.Date(2025, 11, 5, 3, 0, 0, 0, time.UTC) // 11:00 in UTC+8
	timer := newFakeTimer()
	runs := make(chan struct{}, 4)

	s := New(shanghai, discardLogger(), WithClock(func() time.Time { return now }, timer.After))
	s.Add(Job{
		Name: "issues",
		At:   Daily{Hour: 12},
		Run: func(context.Context) error {
			runs <- struct{}{}
			return errors.New("failed runs are rescheduled too")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, func() bool { return len(timer.Waits()) == 1 })
	timer.fire <- now
	<-runs

	waitFor(t, func() bool { return len(timer.Waits()) == 2 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	// The clock is frozen, so the second wait spans to tomorrow's noon instead of refiring today.
	want := []time.Duration{time.Hour, 25 * time.Hour}
	if diff := cmp.Diff(want, timer.Waits()); diff != "" {
		t.Errorf("waits mismatch (-want +got):\n%s", diff)
	}
	if len(runs) != 0 {
		t.Errorf("job ran %d extra times", len(runs))
	}
}

func TestSchedulerRunOnStart(t *testing.T) {
	now := time.Date(2025, 11, 5, 3, 0, 0, 0, time.UTC)
	timer := newFakeTimer()

	var mu sync.Mutex
	ran := map[string]int{}
	job := func(name string) Job {
		return Job{Name: name, At: Daily{Hour: 12}, Run: func(context.Context) error {
			mu.Lock()
			ran[name]++
			mu.Unlock()
			return nil
		}}
	}

	s := New(shanghai, discardLogger(), WithClock(func() time.Time { return now }, timer.After), WithRunOnStart(true))
	s.Add(job("commits"))
	s.Add(job("pulls"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, func() bool { return len(timer.Waits()) == 2 })
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff(map[string]int{"commits": 1, "pulls": 1}, ran); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}
}

func TestSchedulerStopsWithoutJobs(t *testing.T) {
	s := New(nil, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
}
