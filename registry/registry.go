// Package registry loads the watched-source list (watchers.yml) and the
// optional threshold and keyword-table overrides that travel with it.
package registry

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/breakingchange/classify"
	"github.com/hazyhaar/breakingchange/delta"
	"github.com/hazyhaar/breakingchange/recorder"
)

var (
	// ErrInvalidSource is returned for a source entry that fails validation.
	ErrInvalidSource = errors.New("registry: invalid source")
	// ErrDuplicateSource is returned when two entries share (slug, type).
	ErrDuplicateSource = errors.New("registry: duplicate source")
)

// Source is one watched page.
type Source struct {
	Vendor    string   `yaml:"vendor" json:"vendor"`
	Slug      string   `yaml:"slug" json:"slug"`
	Type      string   `yaml:"type" json:"type"`
	URL       string   `yaml:"url" json:"url"`
	Selectors []string `yaml:"selectors,omitempty" json:"selectors,omitempty"`
}

// Key returns the source's snapshot key.
func (s Source) Key() recorder.Key { return recorder.Key{Slug: s.Slug, Type: s.Type} }

// File is a parsed watchers.yml. A thresholds or severity block may set
// only some fields; the others keep their defaults.
type File struct {
	Sources         []Source            `yaml:"sources"`
	Thresholds      *delta.Thresholds   `yaml:"thresholds,omitempty"`
	Severity        *classify.Buckets   `yaml:"severity,omitempty"`
	Categories      []classify.Category `yaml:"categories,omitempty"`
	DefaultCategory *classify.Category  `yaml:"default_category,omitempty"`
}

// LoadFile reads and validates a registry file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates registry YAML. Source order is preserved;
// URLs are replaced by their normalized form.
func Parse(data []byte) (*File, error) {
	th, sev := delta.DefaultThresholds(), classify.DefaultBuckets()
	f := File{Thresholds: &th, Severity: &sev}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("registry: parse: %w", err)
	}

	seen := make(map[recorder.Key]int, len(f.Sources))
	for i := range f.Sources {
		s := &f.Sources[i]
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("source #%d: %w", i+1, err)
		}
		if first, dup := seen[s.Key()]; dup {
			return nil, fmt.Errorf("%w: %s/%s (entries #%d and #%d)", ErrDuplicateSource, s.Slug, s.Type, first, i+1)
		}
		seen[s.Key()] = i + 1
	}

	for _, c := range f.Categories {
		if c.Name == "" || len(c.Keywords) == 0 {
			return nil, fmt.Errorf("registry: category %q needs a name and keywords", c.Name)
		}
	}
	if t := f.DeltaThresholds(); t.MaxSimilarity <= 0 || t.MaxSimilarity > 1 || t.MinDiffChars < 0 || t.MinMagnitude < 0 {
		return nil, fmt.Errorf("registry: thresholds out of range: %+v", t)
	}
	if b := f.Buckets(); !(b.Critical >= b.High && b.High >= b.Medium && b.Medium > 0) {
		return nil, fmt.Errorf("registry: severity buckets must satisfy critical >= high >= medium > 0: %+v", b)
	}
	return &f, nil
}

func (s *Source) validate() error {
	switch {
	case s.Vendor == "":
		return fmt.Errorf("%w: vendor is required", ErrInvalidSource)
	case s.Slug == "":
		return fmt.Errorf("%w: slug is required", ErrInvalidSource)
	case s.Type == "":
		return fmt.Errorf("%w: type is required", ErrInvalidSource)
	case s.URL == "":
		return fmt.Errorf("%w: url is required", ErrInvalidSource)
	}
	if !isName(s.Slug, true) {
		return fmt.Errorf("%w: slug %q must match [a-z0-9_-]+", ErrInvalidSource, s.Slug)
	}
	// The snapshot file is <slug>-<type>.txt; a hyphen in type would let
	// two sources share it.
	if !isName(s.Type, false) {
		return fmt.Errorf("%w: type %q must match [a-z0-9_]+", ErrInvalidSource, s.Type)
	}
	u, err := NormalizeURL(s.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	s.URL = u
	return nil
}

func isName(s string, hyphen bool) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '_' && (r != '-' || !hyphen) {
			return false
		}
	}
	return s != ""
}

// DeltaThresholds returns the file's delta thresholds or the defaults.
func (f *File) DeltaThresholds() delta.Thresholds {
	if f.Thresholds != nil {
		return *f.Thresholds
	}
	return delta.DefaultThresholds()
}

// Buckets returns the file's severity buckets or the defaults.
func (f *File) Buckets() classify.Buckets {
	if f.Severity != nil {
		return *f.Severity
	}
	return classify.DefaultBuckets()
}

// Table returns the keyword table: the file's categories when given, else
// the built-in table. default_category overrides the fallback either way.
func (f *File) Table() classify.Table {
	t := classify.DefaultTable()
	if len(f.Categories) > 0 {
		t.Categories = f.Categories
	}
	if f.DefaultCategory != nil && f.DefaultCategory.Name != "" {
		t.Default = *f.DefaultCategory
	}
	return t
}

// Find returns the source for (slug, type).
func (f *File) Find(slug, docType string) (Source, bool) {
	for _, s := range f.Sources {
		if s.Slug == slug && s.Type == docType {
			return s, true
		}
	}
	return Source{}, false
}
