package changefeed

import (
	"path/filepath"
	"time"

	fetchpkg "github.com/hazyhaar/breakingchange/changefeed/internal/fetch"
	"github.com/hazyhaar/breakingchange/classify"
	"github.com/hazyhaar/breakingchange/delta"
)

// Config configures the change feed service.
type Config struct {
	// DataDir holds snapshots/, diffs/, events.jsonl, pages/ and runs.db.
	DataDir string

	// Concurrency is the number of sources processed at once. Default 1:
	// strictly sequential, in registry order.
	Concurrency int

	// RecordBaseline records an event for the first observation of a
	// source even when the text does not cross the change thresholds.
	RecordBaseline bool

	// WritePages keeps a Markdown copy of each changed page in PagesDir.
	WritePages bool
	PagesDir   string // default: <DataDir>/pages

	// RunLogPath is the SQLite fetch log. Empty disables it.
	RunLogPath string

	Fetch fetchpkg.Config
	// Thresholds gate meaningful changes. Nil means delta.DefaultThresholds;
	// any non-nil value is used as is, so a zero Thresholds flags nothing.
	Thresholds *delta.Thresholds
	// LineWidth wraps diff lines; 0 puts one word per line.
	LineWidth int
	Table     classify.Table
	Buckets   classify.Buckets

	// Selector-free pages shorter than this are taken whole.
	MinTextLen int
}

func (c *Config) defaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.PagesDir == "" {
		c.PagesDir = filepath.Join(c.DataDir, "pages")
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 45 * time.Second
	}
	if c.Thresholds == nil {
		th := delta.DefaultThresholds()
		c.Thresholds = &th
	}
	if len(c.Table.Categories) == 0 {
		c.Table = classify.DefaultTable()
	}
	if c.Buckets == (classify.Buckets{}) {
		c.Buckets = classify.DefaultBuckets()
	}
}

// DefaultConfig returns the configuration `breakingchange run` starts from:
// baselines recorded, page copies and the run log enabled under data/.
func DefaultConfig() *Config {
	return &Config{
		DataDir:        "data",
		Concurrency:    1,
		RecordBaseline: true,
		WritePages:     true,
		RunLogPath:     filepath.Join("data", "runs.db"),
		Table:          classify.DefaultTable(),
		Buckets:        classify.DefaultBuckets(),
	}
}
