// Package site renders the public change feed (a static index.html, the
// referenced diffs and events.json) and serves it over HTTP.
package site

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/breakingchange/changefeed"
	"github.com/hazyhaar/breakingchange/recorder"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// DefaultLimit is how many of the newest events the site shows.
const DefaultLimit = 200

// Options configures Build.
type Options struct {
	Events recorder.EventLog
	Blobs  recorder.BlobStore
	OutDir string // default "docs"
	Limit  int    // default DefaultLimit
	Logger *slog.Logger
	Now    func() time.Time
}

func (o *Options) defaults() {
	if o.OutDir == "" {
		o.OutDir = "docs"
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Report summarizes one build.
type Report struct {
	Events       int    `json:"events"`
	DiffsCopied  int    `json:"diffs_copied"`
	DiffsMissing int    `json:"diffs_missing"`
	IndexPath    string `json:"index_path"`
}

type row struct {
	When     string
	Vendor   string
	Type     string
	Severity string
	Summary  string
	URL      string
	DiffHref string
}

// Build reads every event, keeps the newest Limit (ties keep log order,
// later first), copies their diffs into <OutDir>/diffs and writes
// index.html and events.json. A diff that cannot be found is skipped and
// counted; its row has no diff link.
func Build(ctx context.Context, opts Options) (*Report, error) {
	opts.defaults()
	all, err := opts.Events.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("site: read events: %w", err)
	}
	events := changefeed.FilterEvents(all, changefeed.EventFilter{Limit: opts.Limit})

	diffDir := filepath.Join(opts.OutDir, "diffs")
	if err := os.MkdirAll(diffDir, 0o755); err != nil {
		return nil, fmt.Errorf("site: mkdir: %w", err)
	}

	rep := &Report{Events: len(events), IndexPath: filepath.Join(opts.OutDir, "index.html")}
	rows := make([]row, 0, len(events))
	for _, ev := range events {
		r := row{
			When:     time.Unix(ev.TS, 0).UTC().Format("2006-01-02 15:04"),
			Vendor:   ev.Vendor,
			Type:     ev.Type,
			Severity: ev.Severity,
			Summary:  ev.Summary,
			URL:      ev.URL,
		}
		data, err := opts.Blobs.Get(ctx, ev.DiffID)
		switch {
		case errors.Is(err, recorder.ErrBlobNotFound), errors.Is(err, recorder.ErrInvalidID):
			rep.DiffsMissing++
			opts.Logger.Warn("site: diff missing", "event", ev.ID, "diff", ev.DiffID)
		case err != nil:
			return nil, fmt.Errorf("site: read diff %s: %w", ev.DiffID, err)
		default:
			name := ev.DiffID + ".diff"
			if err := writeFile(filepath.Join(diffDir, name), data); err != nil {
				return nil, err
			}
			rep.DiffsCopied++
			r.DiffHref = "diffs/" + name
		}
		rows = append(rows, r)
	}

	var buf bytes.Buffer
	err = indexTmpl.Execute(&buf, map[string]any{
		"Built": opts.Now().UTC().Format("2006-01-02 15:04"),
		"Rows":  rows,
	})
	if err != nil {
		return nil, fmt.Errorf("site: render: %w", err)
	}
	if err := writeFile(rep.IndexPath, buf.Bytes()); err != nil {
		return nil, err
	}

	if events == nil {
		events = []*recorder.ChangeEvent{}
	}
	js, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("site: events.json: %w", err)
	}
	if err := writeFile(filepath.Join(opts.OutDir, "events.json"), js); err != nil {
		return nil, err
	}

	opts.Logger.Info("site: built", "dir", opts.OutDir, "events", rep.Events,
		"diffs", rep.DiffsCopied, "missing", rep.DiffsMissing)
	return rep, nil
}

// writeFile replaces path atomically; the server may be reading it.
func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("site: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("site: rename %s: %w", path, err)
	}
	return nil
}
