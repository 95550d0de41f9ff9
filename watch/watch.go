// Package watch polls a version token and runs an action once it has moved
// and stayed put for a debounce window. The site server uses it to rebuild
// the static pages after each sweep, keyed on the newest fetch_log row.
//
//	w := watch.New(svc.LastRunAt, watch.Options{Interval: 5 * time.Second, Debounce: 2 * time.Second})
//	go w.OnChange(ctx, rebuild)
package watch

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Version reads a monotonic token. Two different values mean something
// changed in between.
type Version func(ctx context.Context) (int64, error)

// Options tunes the watcher.
type Options struct {
	// Interval is the polling period. Default: 5s.
	Interval time.Duration
	// Debounce is the quiet period required after a change before the
	// action runs. Further changes restart it. 0 runs immediately.
	Debounce time.Duration
	// FireOnStart runs the action once before the first poll.
	FireOnStart bool
	Logger      *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher runs an action whenever the version moves.
type Watcher struct {
	version Version
	opts    Options

	seen atomic.Int64

	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
	runs    atomic.Int64
	runNs   atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Checks          int64         `json:"checks"`
	ChangesDetected int64         `json:"changes_detected"`
	Errors          int64         `json:"errors"`
	Runs            int64         `json:"runs"`
	AvgRunTime      time.Duration `json:"avg_run_time"`
}

// New creates a Watcher over version.
func New(version Version, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{version: version, opts: opts}
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	s := Stats{
		Checks:          w.checks.Load(),
		ChangesDetected: w.changes.Load(),
		Errors:          w.errors.Load(),
		Runs:            w.runs.Load(),
	}
	if s.Runs > 0 {
		s.AvgRunTime = time.Duration(w.runNs.Load() / s.Runs)
	}
	return s
}

// Seen returns the last version the action completed for.
func (w *Watcher) Seen() int64 { return w.seen.Load() }

// OnChange blocks until ctx is done. A failed action leaves the version
// unacknowledged, so the next poll retries it.
func (w *Watcher) OnChange(ctx context.Context, action func(context.Context) error) {
	log := w.opts.Logger

	v, err := w.version(ctx)
	if err != nil {
		log.Warn("watch: initial version check failed", "error", err)
	} else {
		w.seen.Store(v)
	}
	if w.opts.FireOnStart {
		w.fire(ctx, log, action, w.seen.Load())
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	pending := int64(-1)

	log.Info("watch: started", "interval", w.opts.Interval, "debounce", w.opts.Debounce)
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			log.Info("watch: stopped")
			return

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.version(ctx)
			if err != nil {
				w.errors.Add(1)
				log.Warn("watch: version check failed", "error", err)
				continue
			}
			if cur == w.seen.Load() || cur == pending {
				continue
			}
			w.changes.Add(1)
			pending = cur
			if w.opts.Debounce <= 0 {
				w.fire(ctx, log, action, pending)
				pending = -1
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.opts.Debounce)
			debounceC = debounce.C
			log.Debug("watch: change detected, debouncing", "pending", cur)

		case <-debounceC:
			debounceC = nil
			if pending >= 0 {
				w.fire(ctx, log, action, pending)
				pending = -1
			}
		}
	}
}

func (w *Watcher) fire(ctx context.Context, log *slog.Logger, action func(context.Context) error, v int64) {
	start := time.Now()
	if err := action(ctx); err != nil {
		w.errors.Add(1)
		log.Error("watch: action failed", "error", err, "version", v)
		return
	}
	elapsed := time.Since(start)
	w.runs.Add(1)
	w.runNs.Add(int64(elapsed))
	w.seen.Store(v)
	log.Info("watch: action complete", "version", v, "duration", elapsed)
}
