package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/breakingchange/idgen"
)

// Entry is everything needed to record one change.
type Entry struct {
	Key       Key
	Vendor    string
	URL       string
	Before    string
	After     string
	Diff      string
	Magnitude int

	Category      string
	Severity      string
	Summary       string
	EffectiveDate string

	// Baseline marks a first observation.
	Baseline bool
	// HadSnapshot tells the rollback whether to restore Before or delete.
	HadSnapshot bool
}

// Recorder is the only writer of snapshots and the event log.
type Recorder struct {
	snaps  SnapshotStore
	blobs  BlobStore
	events EventLog
	logger *slog.Logger

	now      func() time.Time
	newID    idgen.Generator
	newToken idgen.Generator

	mu    sync.Mutex
	locks map[Key]*sync.Mutex
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(r *Recorder) { r.logger = l } }

// WithClock overrides time.Now for event timestamps.
func WithClock(now func() time.Time) Option { return func(r *Recorder) { r.now = now } }

// WithIDs overrides the event ID and diff token generators.
func WithIDs(eventID, diffToken idgen.Generator) Option {
	return func(r *Recorder) {
		r.newID = eventID
		r.newToken = diffToken
	}
}

// New returns a Recorder over the given stores.
func New(snaps SnapshotStore, blobs BlobStore, events EventLog, opts ...Option) *Recorder {
	r := &Recorder{
		snaps:    snaps,
		blobs:    blobs,
		events:   events,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    idgen.Default,
		newToken: idgen.Token,
		locks:    make(map[Key]*sync.Mutex),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Snapshots returns the snapshot store, for readers.
func (r *Recorder) Snapshots() SnapshotStore { return r.snaps }

// Blobs returns the diff artifact store, for readers.
func (r *Recorder) Blobs() BlobStore { return r.blobs }

// Events returns the event log, for readers.
func (r *Recorder) Events() EventLog { return r.events }

// Lock serializes work on one key. Callers that read a snapshot, evaluate
// it and then Record should hold it across the whole sequence.
func (r *Recorder) Lock(k Key) func() {
	r.mu.Lock()
	m, ok := r.locks[k]
	if !ok {
		m = &sync.Mutex{}
		r.locks[k] = m
	}
	r.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// DiffID builds a fresh artifact ID for k: <slug>-<type>-<token>.
func (r *Recorder) DiffID(k Key) string {
	return k.String() + "-" + r.newToken()
}

// Record writes the diff artifact, the new snapshot and the event line, in
// that order. On any failure the steps already done are undone and a
// *PersistenceError is returned. The caller must hold Lock(e.Key).
func (r *Recorder) Record(ctx context.Context, e Entry) (*ChangeEvent, error) {
	logger := r.logger.With("slug", e.Key.Slug, "type", e.Key.Type)

	diffID := r.DiffID(e.Key)
	if err := r.blobs.Put(ctx, diffID, []byte(e.Diff)); err != nil {
		return nil, &PersistenceError{Op: "diff", Key: e.Key, Err: err}
	}

	if err := r.snaps.Put(ctx, e.Key, e.After); err != nil {
		r.dropBlob(ctx, logger, diffID)
		return nil, &PersistenceError{Op: "snapshot", Key: e.Key, Err: err}
	}

	ev := &ChangeEvent{
		ID:            r.newID(),
		TS:            r.now().Unix(),
		Vendor:        e.Vendor,
		Slug:          e.Key.Slug,
		Type:          e.Key.Type,
		URL:           e.URL,
		DiffID:        diffID,
		Magnitude:     e.Magnitude,
		Category:      e.Category,
		Severity:      e.Severity,
		Summary:       e.Summary,
		EffectiveDate: e.EffectiveDate,
		Baseline:      e.Baseline,
	}
	if err := r.events.Append(ctx, ev); err != nil {
		var rbErr error
		if e.HadSnapshot {
			rbErr = r.snaps.Put(ctx, e.Key, e.Before)
		} else {
			rbErr = r.snaps.Delete(ctx, e.Key)
		}
		if rbErr != nil {
			logger.Error("recorder: snapshot rollback failed", "error", rbErr)
			err = errors.Join(err, rbErr)
		}
		r.dropBlob(ctx, logger, diffID)
		return nil, &PersistenceError{Op: "event", Key: e.Key, Err: err}
	}

	logger.Debug("recorder: change recorded", "event", ev.ID, "diff", diffID)
	return ev, nil
}

func (r *Recorder) dropBlob(ctx context.Context, logger *slog.Logger, id string) {
	if err := r.blobs.Delete(ctx, id); err != nil {
		logger.Error("recorder: diff rollback failed", "diff", id, "error", err)
	}
}
