// Package changefeed runs the change feed: for every registered source it
// fetches the page, normalizes it, compares it with the last snapshot,
// classifies meaningful changes, records them and notifies.
//
// Recording is the only step whose failure matters: fetch failures skip the
// source, notification failures are reported and ignored.
package changefeed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hazyhaar/breakingchange/changefeed/internal/buffer"
	"github.com/hazyhaar/breakingchange/changefeed/internal/fetch"
	"github.com/hazyhaar/breakingchange/changefeed/internal/runlog"
	"github.com/hazyhaar/breakingchange/classify"
	"github.com/hazyhaar/breakingchange/delta"
	"github.com/hazyhaar/breakingchange/idgen"
	"github.com/hazyhaar/breakingchange/normalize"
	"github.com/hazyhaar/breakingchange/notify"
	"github.com/hazyhaar/breakingchange/recorder"
	"github.com/hazyhaar/breakingchange/registry"

	_ "modernc.org/sqlite"
)

// Fetcher retrieves one page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// Service is the change feed orchestrator.
type Service struct {
	config     *Config
	logger     *slog.Logger
	fetcher    Fetcher
	evaluator  *delta.Evaluator
	classifier *classify.Classifier
	recorder   *recorder.Recorder
	dispatcher *notify.Dispatcher
	pages      *buffer.Writer
	runs       *runlog.Log
	runsDB     *sql.DB
	sources    []registry.Source
	newRunID   idgen.Generator
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f Fetcher) Option { return func(s *Service) { s.fetcher = f } }

// WithRecorder replaces the flat-file recorder built from DataDir.
func WithRecorder(r *recorder.Recorder) Option { return func(s *Service) { s.recorder = r } }

// WithNotifiers registers notifiers on the service's dispatcher.
func WithNotifiers(ns ...notify.Notifier) Option {
	return func(s *Service) {
		for _, n := range ns {
			s.dispatcher.Add(n)
		}
	}
}

// WithSources sets the registry used by the MCP tools and CheckSource.
func WithSources(src []registry.Source) Option { return func(s *Service) { s.sources = src } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New creates a Service. A nil cfg uses DefaultConfig().
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{
		config:     cfg,
		logger:     logger,
		fetcher:    fetch.New(cfg.Fetch),
		evaluator:  delta.New(*cfg.Thresholds, delta.WithLineWidth(cfg.LineWidth)),
		classifier: classify.New(cfg.Table, cfg.Buckets),
		dispatcher: notify.NewDispatcher(logger),
		newRunID:   idgen.Prefixed("run_", idgen.Default),
		now:        time.Now,
	}
	for _, o := range opts {
		o(svc)
	}

	if svc.recorder == nil {
		files := recorder.OpenFiles(cfg.DataDir, logger)
		svc.recorder = recorder.New(files.Snapshots, files.Blobs, files.Log,
			recorder.WithLogger(logger), recorder.WithClock(svc.now))
	}
	if cfg.WritePages {
		svc.pages = buffer.NewWriter(cfg.PagesDir)
	}
	if cfg.RunLogPath != "" {
		runs, db, err := runlog.Open(cfg.RunLogPath)
		if err != nil {
			return nil, err
		}
		svc.runs, svc.runsDB = runs, db
	}
	return svc, nil
}

// Close releases the run log database.
func (s *Service) Close() error {
	if s.runsDB != nil {
		return s.runsDB.Close()
	}
	return nil
}

// Recorder exposes the recorder's stores to readers (site, MCP).
func (s *Service) Recorder() *recorder.Recorder { return s.recorder }

// Sources returns the registry the service was built with.
func (s *Service) Sources() []registry.Source { return s.sources }

// Sweep processes sources in order, up to Config.Concurrency at a time.
// Per-source failures are reported in the outcomes; the returned error is
// only the context's, when it stopped the sweep early.
func (s *Service) Sweep(ctx context.Context, sources []registry.Source) (*Report, error) {
	report := &Report{RunID: s.newRunID(), Outcomes: make([]*Outcome, len(sources))}
	logger := s.logger.With("run", report.RunID)
	logger.Info("changefeed: sweep started", "sources", len(sources), "concurrency", s.config.Concurrency)

	sem := make(chan struct{}, s.config.Concurrency)
	var wg sync.WaitGroup
	var stopErr error
	for i, src := range sources {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			stopErr = ctx.Err()
		}
		if stopErr == nil {
			stopErr = ctx.Err()
		}
		if stopErr != nil {
			break
		}
		wg.Add(1)
		go func(i int, src registry.Source) {
			defer wg.Done()
			defer func() { <-sem }()
			report.Outcomes[i] = s.process(ctx, report.RunID, src)
		}(i, src)
	}
	wg.Wait()

	// Drop the slots of sources never started.
	done := report.Outcomes[:0]
	for _, o := range report.Outcomes {
		if o != nil {
			done = append(done, o)
		}
	}
	report.Outcomes = done

	logger.Info("changefeed: sweep finished",
		"changed", report.Count(StatusChanged),
		"baseline", report.Count(StatusBaseline),
		"unchanged", report.Count(StatusUnchanged),
		"fetch_errors", report.Count(StatusFetchError),
		"persist_errors", report.Count(StatusPersistError))
	return report, stopErr
}

// CheckSource processes one registered source immediately.
func (s *Service) CheckSource(ctx context.Context, slug, docType string) (*Outcome, error) {
	for _, src := range s.sources {
		if src.Slug == slug && src.Type == docType {
			return s.process(ctx, s.newRunID(), src), nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrUnknownSource, slug, docType)
}

// process runs the pipeline for one source and logs one line about it.
func (s *Service) process(ctx context.Context, runID string, src registry.Source) *Outcome {
	start := s.now()
	logger := s.logger.With("run", runID, "slug", src.Slug, "type", src.Type)
	out := &Outcome{Source: src}
	statusCode := 0

	defer func() {
		if out.Err != nil {
			out.Error = out.Err.Error()
		}
		s.logRun(ctx, logger, runID, src, out, statusCode, start)
	}()

	key := src.Key()
	unlock := s.recorder.Lock(key)
	defer unlock()

	before, hadSnapshot, err := s.recorder.Snapshots().Get(ctx, key)
	if err != nil {
		out.Status, out.Err = StatusPersistError, err
		logger.Error("changefeed: read snapshot failed", "error", err)
		return out
	}

	res, err := s.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		timeout := false
		var fe *FetchError
		if errors.As(err, &fe) {
			statusCode, timeout = fe.StatusCode, fe.Timeout()
		}
		out.Status, out.Err = StatusFetchError, err
		logger.Warn("changefeed: fetch failed, skipping", "url", src.URL, "timeout", timeout, "error", err)
		return out
	}
	statusCode = res.StatusCode

	page, err := normalize.Extract(res.Body, normalize.Options{
		Selectors:  src.Selectors,
		MinTextLen: s.config.MinTextLen,
	})
	if err != nil {
		logger.Warn("changefeed: treating page as empty", "error", fmt.Errorf("%w: %v", ErrExtraction, err))
		page = &normalize.Result{}
	}
	after := page.Text

	d := s.evaluator.Evaluate(before, after)
	out.Magnitude = d.Magnitude
	baseline := !hadSnapshot && after != ""
	if !d.Meaningful && !(baseline && s.config.RecordBaseline) {
		out.Status = StatusUnchanged
		logger.Info("changefeed: no meaningful change", "ratio", d.Ratio, "magnitude", d.Magnitude)
		return out
	}

	cls := s.classifier.Classify(before, after, d.Diff)
	ev, err := s.recorder.Record(ctx, recorder.Entry{
		Key:           key,
		Vendor:        src.Vendor,
		URL:           src.URL,
		Before:        before,
		After:         after,
		Diff:          d.Diff,
		Magnitude:     d.Magnitude,
		Category:      cls.Category,
		Severity:      cls.Severity,
		Summary:       cls.Summary,
		EffectiveDate: cls.EffectiveDate,
		Baseline:      baseline,
		HadSnapshot:   hadSnapshot,
	})
	if err != nil {
		out.Status, out.Err = StatusPersistError, err
		logger.Error("changefeed: recording failed", "error", err)
		return out
	}
	out.Event = ev

	if baseline {
		out.Status = StatusBaseline
		logger.Info("changefeed: baseline recorded", "event", ev.ID, "category", ev.Category,
			"hits", cls.Hits, "magnitude", ev.Magnitude)
	} else {
		out.Status = StatusChanged
		logger.Info("changefeed: change recorded", "event", ev.ID, "category", ev.Category,
			"severity", ev.Severity, "hits", cls.Hits, "magnitude", ev.Magnitude)
	}

	s.writePage(ctx, logger, ev, page)
	if d.Meaningful {
		out.Deliveries = s.notify(ctx, ev)
	}
	return out
}

func (s *Service) writePage(ctx context.Context, logger *slog.Logger, ev *recorder.ChangeEvent, page *normalize.Result) {
	if s.pages == nil {
		return
	}
	meta := buffer.Metadata{
		EventID:       ev.ID,
		Vendor:        ev.Vendor,
		Slug:          ev.Slug,
		Type:          ev.Type,
		SourceURL:     ev.URL,
		Title:         page.Title,
		Category:      ev.Category,
		Severity:      ev.Severity,
		EffectiveDate: ev.EffectiveDate,
		DiffID:        ev.DiffID,
		ContentHash:   page.Hash,
		RecordedAt:    time.Unix(ev.TS, 0).UTC(),
	}
	if _, err := s.pages.Write(ctx, meta, page.HTML, page.Text); err != nil {
		logger.Warn("changefeed: page copy failed", "event", ev.ID, "error", err)
	}
}

func (s *Service) notify(ctx context.Context, ev *recorder.ChangeEvent) []notify.Delivery {
	if s.dispatcher.Len() == 0 {
		return nil
	}
	return s.dispatcher.Dispatch(ctx, NotificationFor(ev, s.recorder.Blobs().Path(ev.DiffID)))
}

// NotificationFor builds the message announcing ev. diffPath is where the
// diff artifact can be read.
func NotificationFor(ev *recorder.ChangeEvent, diffPath string) notify.Notification {
	return notify.Notification{
		Title:    notify.Title(ev.Vendor, ev.Type, ev.Severity),
		Summary:  notify.Summary(ev.Summary, ev.EffectiveDate),
		URL:      ev.URL,
		Severity: ev.Severity,
		DiffPath: diffPath,
	}
}

func (s *Service) logRun(ctx context.Context, logger *slog.Logger, runID string, src registry.Source, out *Outcome, statusCode int, start time.Time) {
	if s.runs == nil {
		return
	}
	e := &runlog.Entry{
		ID:         idgen.New(),
		RunID:      runID,
		Slug:       src.Slug,
		Type:       src.Type,
		URL:        src.URL,
		Status:     string(out.Status),
		StatusCode: statusCode,
		Magnitude:  out.Magnitude,
		DurationMs: s.now().Sub(start).Milliseconds(),
		FetchedAt:  start.UnixMilli(),
	}
	if out.Event != nil {
		e.EventID = out.Event.ID
	}
	if out.Err != nil {
		e.ErrorMessage = out.Err.Error()
	}
	// The fetch log outlives a canceled sweep.
	if err := s.runs.Insert(context.WithoutCancel(ctx), e); err != nil {
		logger.Warn("changefeed: run log insert failed", "error", err)
	}
}

// ListEvents returns recorded events, newest first.
func (s *Service) ListEvents(ctx context.Context, f EventFilter) ([]*recorder.ChangeEvent, error) {
	all, err := s.recorder.Events().ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return FilterEvents(all, f), nil
}

// FilterEvents sorts events newest first (stable for equal timestamps, later
// appends first) and applies f.
func FilterEvents(events []*recorder.ChangeEvent, f EventFilter) []*recorder.ChangeEvent {
	out := make([]*recorder.ChangeEvent, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if (f.Vendor != "" && ev.Vendor != f.Vendor) ||
			(f.Slug != "" && ev.Slug != f.Slug) ||
			(f.Type != "" && ev.Type != f.Type) ||
			(f.Severity != "" && ev.Severity != f.Severity) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS > out[j].TS })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Diff returns the diff artifact text for id.
func (s *Service) Diff(ctx context.Context, id string) (string, error) {
	data, err := s.recorder.Blobs().Get(ctx, id)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// History returns the fetch log of one source, newest first.
func (s *Service) History(ctx context.Context, slug, docType string, limit int) ([]*RunEntry, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.History(ctx, slug, docType, limit)
}

// LastRunAt returns the unix-millisecond time of the newest fetch attempt,
// or 0 when the run log is disabled or empty.
func (s *Service) LastRunAt(ctx context.Context) (int64, error) {
	if s.runs == nil {
		return 0, nil
	}
	return s.runs.LastFetchedAt(ctx)
}
