// Package delta decides whether the difference between two normalized texts
// is a meaningful change or noise, and renders it as a unified diff.
//
// Texts are compared word by word. Similarity is difflib's QuickRatio over
// word tokens; the diff is computed over diff lines produced by Lines.
package delta

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Thresholds gate the meaningful-change decision. A delta is meaningful
// only when all three are crossed.
type Thresholds struct {
	MaxSimilarity float64 `yaml:"max_similarity" json:"max_similarity"` // ratio must be strictly below
	MinDiffChars  int     `yaml:"min_diff_chars" json:"min_diff_chars"` // diff length must be strictly above
	MinMagnitude  int     `yaml:"min_magnitude" json:"min_magnitude"`   // changed lines must be strictly above
}

// DefaultThresholds returns 0.995 similarity, 120 diff characters and
// 8 changed lines.
func DefaultThresholds() Thresholds {
	return Thresholds{MaxSimilarity: 0.995, MinDiffChars: 120, MinMagnitude: 8}
}

// Result is the outcome of one evaluation.
type Result struct {
	Meaningful bool
	Diff       string
	Magnitude  int
	Ratio      float64
}

// Evaluator compares snapshots. The zero value is not usable; build one
// with New.
type Evaluator struct {
	th        Thresholds
	lineWidth int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLineWidth wraps diff lines at width columns instead of one word per
// line. Wider lines make magnitude count lines rather than words.
func WithLineWidth(width int) Option {
	return func(e *Evaluator) { e.lineWidth = width }
}

// New returns an Evaluator using th.
func New(th Thresholds, opts ...Option) *Evaluator {
	e := &Evaluator{th: th}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Thresholds returns the thresholds the evaluator was built with.
func (e *Evaluator) Thresholds() Thresholds { return e.th }

// Evaluate compares before and after. Pure; an empty before is evaluated
// under the same policy as any other.
func (e *Evaluator) Evaluate(before, after string) Result {
	ratio := Similarity(before, after)
	diff := Unified(Lines(before, e.lineWidth), Lines(after, e.lineWidth))
	mag := Magnitude(diff)
	return Result{
		Meaningful: ratio < e.th.MaxSimilarity && len(diff) > e.th.MinDiffChars && mag > e.th.MinMagnitude,
		Diff:       diff,
		Magnitude:  mag,
		Ratio:      ratio,
	}
}

// Similarity is an upper bound on the word-level similarity of a and b in
// [0,1]. Two empty texts are identical.
func Similarity(a, b string) float64 {
	return difflib.NewMatcher(strings.Fields(a), strings.Fields(b)).QuickRatio()
}

// Lines splits text into diff lines. width <= 0 gives one word per line;
// otherwise words are packed greedily into lines of at most width columns
// (a longer word gets a line of its own). Empty text has no lines.
func Lines(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if width <= 0 {
		lines := make([]string, len(words))
		for i, w := range words {
			lines[i] = w + "\n"
		}
		return lines
	}

	var lines []string
	var cur strings.Builder
	for _, w := range words {
		if cur.Len() > 0 && cur.Len()+1+len(w) > width {
			lines = append(lines, cur.String()+"\n")
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	return append(lines, cur.String()+"\n")
}

// Unified renders a unified diff with three lines of context between
// "before" and "after". Equal inputs give "".
func Unified(a, b []string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: "before",
		ToFile:   "after",
		Context:  3,
	})
	if err != nil {
		// Only returned by the underlying writer; a strings.Builder never fails.
		return ""
	}
	return diff
}

// Magnitude counts added and removed lines of a unified diff, excluding the
// "---" and "+++" file headers.
func Magnitude(diff string) int {
	return len(ChangedLines(diff))
}

// ChangedLines returns the added and removed lines of a unified diff with
// their +/- marker stripped. The two file headers and hunk markers are
// excluded; a removed line that itself begins with "--" still counts.
func ChangedLines(diff string) []string {
	lines := strings.Split(diff, "\n")
	if len(lines) >= 2 && strings.HasPrefix(lines[0], "--- ") && strings.HasPrefix(lines[1], "+++ ") {
		lines = lines[2:]
	}
	var out []string
	for _, line := range lines {
		if strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") {
			out = append(out, line[1:])
		}
	}
	return out
}
