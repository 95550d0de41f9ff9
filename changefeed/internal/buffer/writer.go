// Package buffer keeps a Markdown copy of every page whose change was
// recorded, one .md file per event, for reading and for downstream
// indexing. Files carry YAML frontmatter describing the event.
package buffer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/breakingchange/horosafe"
)

// Metadata is the frontmatter of one page copy.
type Metadata struct {
	EventID       string    `yaml:"event_id"`
	Vendor        string    `yaml:"vendor"`
	Slug          string    `yaml:"slug"`
	Type          string    `yaml:"type"`
	SourceURL     string    `yaml:"source_url"`
	Title         string    `yaml:"title,omitempty"`
	Category      string    `yaml:"category"`
	Severity      string    `yaml:"severity"`
	EffectiveDate string    `yaml:"effective_date,omitempty"`
	DiffID        string    `yaml:"diff_id"`
	ContentHash   string    `yaml:"content_hash,omitempty"`
	RecordedAt    time.Time `yaml:"recorded_at"`
}

// Writer deposits .md files into dir.
type Writer struct {
	dir  string
	conv *converter.Converter
}

// NewWriter creates a Writer. The directory is created on first write.
func NewWriter(dir string) *Writer {
	return &Writer{
		dir: dir,
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Dir returns the target directory.
func (w *Writer) Dir() string { return w.dir }

// Write converts html to Markdown and writes <dir>/<event id>.md
// atomically. When html is empty, or conversion fails, fallbackText is
// used as the body. Returns the written path.
func (w *Writer) Write(_ context.Context, meta Metadata, html, fallbackText string) (string, error) {
	if err := horosafe.ValidateIdentifier(meta.EventID); err != nil {
		return "", fmt.Errorf("buffer: event id: %w", err)
	}
	target, err := horosafe.SafePath(w.dir, meta.EventID+".md")
	if err != nil {
		return "", fmt.Errorf("buffer: %w", err)
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("buffer: mkdir %s: %w", w.dir, err)
	}

	body := fallbackText
	if html != "" {
		if md, err := w.conv.ConvertString(html, converter.WithDomain(meta.SourceURL)); err == nil && md != "" {
			body = md
		}
	}

	fm, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("buffer: frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	buf.WriteString(body)
	buf.WriteByte('\n')

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("buffer: write tmp: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("buffer: rename: %w", err)
	}
	return target, nil
}

// ReadMetadata parses the frontmatter of a page copy.
func ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rest, ok := bytes.CutPrefix(data, []byte("---\n"))
	if !ok {
		return nil, fmt.Errorf("buffer: %s: no frontmatter", filepath.Base(path))
	}
	fm, _, ok := bytes.Cut(rest, []byte("\n---\n"))
	if !ok {
		return nil, fmt.Errorf("buffer: %s: unterminated frontmatter", filepath.Base(path))
	}
	var m Metadata
	if err := yaml.Unmarshal(fm, &m); err != nil {
		return nil, fmt.Errorf("buffer: %s: %w", filepath.Base(path), err)
	}
	return &m, nil
}
