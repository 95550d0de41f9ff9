package recorder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/hazyhaar/breakingchange/horosafe"
)

// writeAtomic writes data to a sibling .tmp file then renames it over path,
// so readers never see a partial file.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// FileSnapshots stores snapshots as <Dir>/<slug>-<type>.txt.
type FileSnapshots struct {
	Dir string
}

func (s *FileSnapshots) path(k Key) (string, error) {
	if err := k.Validate(); err != nil {
		return "", err
	}
	return horosafe.SafePath(s.Dir, k.String()+".txt")
}

func (s *FileSnapshots) Get(_ context.Context, k Key) (string, bool, error) {
	p, err := s.path(k)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("recorder: read snapshot: %w", err)
	}
	return string(data), true, nil
}

func (s *FileSnapshots) Put(_ context.Context, k Key, text string) error {
	p, err := s.path(k)
	if err != nil {
		return err
	}
	return writeAtomic(p, []byte(text))
}

func (s *FileSnapshots) Delete(_ context.Context, k Key) error {
	p, err := s.path(k)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// FileBlobs stores diff artifacts as <Dir>/<id>.diff.
type FileBlobs struct {
	Dir string
}

func (b *FileBlobs) Path(id string) string {
	return filepath.Join(b.Dir, id+".diff")
}

func (b *FileBlobs) safePath(id string) (string, error) {
	if err := horosafe.ValidateIdentifier(id); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return horosafe.SafePath(b.Dir, id+".diff")
}

// Put writes the blob once. The temp file is hard-linked into place so an
// existing artifact is never replaced.
func (b *FileBlobs) Put(_ context.Context, id string, data []byte) error {
	p, err := b.safePath(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	defer os.Remove(tmp)
	if err := os.Link(tmp, p); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrBlobExists, id)
		}
		return fmt.Errorf("link: %w", err)
	}
	return nil
}

func (b *FileBlobs) Get(_ context.Context, id string) ([]byte, error) {
	p, err := b.safePath(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
	}
	return data, err
}

func (b *FileBlobs) Delete(_ context.Context, id string) error {
	p, err := b.safePath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// FileLog is a JSON-lines event log. Appends from one process are
// serialized; each event is written with a single Write on an O_APPEND
// descriptor.
type FileLog struct {
	Path   string
	Logger *slog.Logger

	mu sync.Mutex
}

func (l *FileLog) Append(_ context.Context, ev *ChangeEvent) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadAll returns every event in append order. Malformed lines are logged
// and skipped; a missing file is an empty log.
func (l *FileLog) ReadAll(_ context.Context) ([]*ChangeEvent, error) {
	data, err := os.ReadFile(l.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recorder: read events: %w", err)
	}

	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var events []*ChangeEvent
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev ChangeEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			logger.Warn("recorder: skipping malformed event line", "path", l.Path, "line", lineNo, "error", err)
			continue
		}
		events = append(events, &ev)
	}
	if err := sc.Err(); err != nil {
		return events, fmt.Errorf("recorder: scan events: %w", err)
	}
	return events, nil
}

// Files bundles the flat-file stores under one data directory:
// snapshots/, diffs/ and events.jsonl.
type Files struct {
	Snapshots *FileSnapshots
	Blobs     *FileBlobs
	Log       *FileLog
}

// OpenFiles returns the file stores rooted at dataDir.
func OpenFiles(dataDir string, logger *slog.Logger) *Files {
	return &Files{
		Snapshots: &FileSnapshots{Dir: filepath.Join(dataDir, "snapshots")},
		Blobs:     &FileBlobs{Dir: filepath.Join(dataDir, "diffs")},
		Log:       &FileLog{Path: filepath.Join(dataDir, "events.jsonl"), Logger: logger},
	}
}
