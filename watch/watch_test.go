package watch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// counter is a Version the test moves by hand.
type counter struct{ v atomic.Int64 }

func (c *counter) read(context.Context) (int64, error) { return c.v.Load(), nil }

func start(t *testing.T, w *Watcher, action func(context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.OnChange(ctx, action)
	time.Sleep(50 * time.Millisecond)
}

func TestOnChange_FiresOnVersionChange(t *testing.T) {
	var c counter
	var runs atomic.Int32
	w := New(c.read, Options{Interval: 20 * time.Millisecond})
	start(t, w, func(context.Context) error { runs.Add(1); return nil })

	c.v.Store(1)
	time.Sleep(80 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Fatalf("expected 1 run, got %d", got)
	}

	c.v.Store(2)
	time.Sleep(80 * time.Millisecond)
	if got := runs.Load(); got != 2 {
		t.Fatalf("expected 2 runs, got %d", got)
	}

	time.Sleep(80 * time.Millisecond)
	if got := runs.Load(); got != 2 {
		t.Fatalf("no change should not run, got %d", got)
	}
}

func TestOnChange_FireOnStart(t *testing.T) {
	var c counter
	c.v.Store(7)
	var runs atomic.Int32
	w := New(c.read, Options{Interval: time.Hour, FireOnStart: true})
	start(t, w, func(context.Context) error { runs.Add(1); return nil })

	if got := runs.Load(); got != 1 {
		t.Fatalf("expected the start run, got %d", got)
	}
	if w.Seen() != 7 {
		t.Errorf("Seen: got %d", w.Seen())
	}
}

func TestOnChange_Debounce(t *testing.T) {
	// WHAT: A burst of sweeps produces one rebuild once things settle.
	var c counter
	var runs atomic.Int32
	w := New(c.read, Options{Interval: 20 * time.Millisecond, Debounce: 100 * time.Millisecond})
	start(t, w, func(context.Context) error { runs.Add(1); return nil })

	for i := int64(1); i <= 5; i++ {
		c.v.Store(i)
		time.Sleep(15 * time.Millisecond)
	}
	if got := runs.Load(); got != 0 {
		t.Fatalf("expected 0 runs during debounce, got %d", got)
	}

	time.Sleep(200 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Fatalf("expected exactly 1 debounced run, got %d", got)
	}
}

func TestOnChange_FailureRetried(t *testing.T) {
	var c counter
	var calls atomic.Int32
	w := New(c.read, Options{Interval: 20 * time.Millisecond})
	start(t, w, func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("disk full")
		}
		return nil
	})

	c.v.Store(1)
	time.Sleep(120 * time.Millisecond)

	if got := calls.Load(); got < 2 {
		t.Fatalf("expected a retry after the failure, got %d calls", got)
	}
	if w.Seen() != 1 {
		t.Fatalf("Seen: got %d", w.Seen())
	}
	if w.Stats().Errors == 0 {
		t.Error("the failure should be counted")
	}
}

func TestStats(t *testing.T) {
	var c counter
	w := New(c.read, Options{Interval: 20 * time.Millisecond})
	start(t, w, func(context.Context) error { return nil })

	c.v.Store(1)
	time.Sleep(80 * time.Millisecond)

	s := w.Stats()
	if s.Checks == 0 || s.ChangesDetected == 0 || s.Runs == 0 {
		t.Fatalf("stats: %+v", s)
	}
}
