// Package classify assigns a topic category, a severity, a summary and an
// optional effective date to a detected change. Classification is
// keyword-driven and pure: the same inputs always give the same output.
package classify

import (
	"regexp"
	"strings"

	"github.com/hazyhaar/breakingchange/delta"
)

// Severity levels, lowest to highest.
const (
	Low      = "low"
	Medium   = "medium"
	High     = "high"
	Critical = "critical"
)

// Category is one topic with the keywords that indicate it. Keywords match
// as lowercase substrings.
type Category struct {
	Name     string   `yaml:"name" json:"name"`
	Label    string   `yaml:"label,omitempty" json:"label,omitempty"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// DisplayLabel returns Label, or the name title-cased with underscores as
// spaces.
func (c Category) DisplayLabel() string {
	if c.Label != "" {
		return c.Label
	}
	return TitleCase(c.Name)
}

// Table is an ordered keyword table. Order matters: on equal hit counts the
// category declared first wins.
type Table struct {
	Categories []Category
	Default    Category
}

// Buckets map a hit count to a severity: hits >= Critical is critical, and
// so on down to low.
type Buckets struct {
	Critical int `yaml:"critical" json:"critical"`
	High     int `yaml:"high" json:"high"`
	Medium   int `yaml:"medium" json:"medium"`
}

// DefaultBuckets returns 5 / 3 / 2.
func DefaultBuckets() Buckets {
	return Buckets{Critical: 5, High: 3, Medium: 2}
}

// Severity buckets hits.
func (b Buckets) Severity(hits int) string {
	switch {
	case hits >= b.Critical:
		return Critical
	case hits >= b.High:
		return High
	case hits >= b.Medium:
		return Medium
	default:
		return Low
	}
}

// Classification is the result of Classify.
type Classification struct {
	Category      string
	Severity      string
	Summary       string
	EffectiveDate string
	// Hits is the number of the winning category's keywords found.
	Hits int
}

// Classifier holds an injected table and severity buckets.
type Classifier struct {
	table   Table
	buckets Buckets
}

// New returns a Classifier. Keywords are lowercased once here.
func New(table Table, buckets Buckets) *Classifier {
	t := Table{Default: table.Default, Categories: make([]Category, len(table.Categories))}
	for i, c := range table.Categories {
		kws := make([]string, 0, len(c.Keywords))
		for _, k := range c.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kws = append(kws, k)
			}
		}
		c.Keywords = kws
		t.Categories[i] = c
	}
	if t.Default.Name == "" {
		t.Default = DefaultTable().Default
	}
	return &Classifier{table: t, buckets: buckets}
}

// Table returns the classifier's keyword table.
func (c *Classifier) Table() Table { return c.table }

// Classify scores every category against the post-change text plus the
// changed lines of the diff. The pre-change text is not scored.
func (c *Classifier) Classify(_, after, diff string) Classification {
	text := searchText(after, diff)

	winner := c.table.Default
	best := 0
	for _, cat := range c.table.Categories {
		hits := 0
		for _, kw := range cat.Keywords {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		// Strictly greater: ties keep the earlier category.
		if hits > best {
			best = hits
			winner = cat
		}
	}

	return Classification{
		Category:      winner.Name,
		Severity:      c.buckets.Severity(best),
		Summary:       winner.DisplayLabel() + " change detected",
		EffectiveDate: EffectiveDate(after),
		Hits:          best,
	}
}

func searchText(after, diff string) string {
	var sb strings.Builder
	sb.WriteString(after)
	for _, line := range delta.ChangedLines(diff) {
		sb.WriteByte(' ')
		sb.WriteString(line)
	}
	return strings.ToLower(sb.String())
}

var effectiveRe = regexp.MustCompile(`(?i)(effective|starts|applies)\s+(on|from)?\s*([A-Z][a-z]+\s+\d{1,2},\s*\d{4}|\d{4}-\d{2}-\d{2})`)

// EffectiveDate returns the first date announced as "effective", "starts"
// or "applies" (optionally followed by "on"/"from") in text, or "".
// Dates are "Month D, YYYY" or ISO "YYYY-MM-DD" and are returned verbatim.
func EffectiveDate(text string) string {
	m := effectiveRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[3]
}

// TitleCase turns "acceptable_use" into "Acceptable Use".
func TitleCase(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
