package changefeed

import (
	"github.com/hazyhaar/breakingchange/changefeed/internal/runlog"
	"github.com/hazyhaar/breakingchange/notify"
	"github.com/hazyhaar/breakingchange/recorder"
	"github.com/hazyhaar/breakingchange/registry"
)

// Status is the outcome of processing one source.
type Status string

const (
	StatusUnchanged    Status = runlog.StatusUnchanged
	StatusChanged      Status = runlog.StatusChanged
	StatusBaseline     Status = runlog.StatusBaseline
	StatusFetchError   Status = runlog.StatusFetchError
	StatusPersistError Status = runlog.StatusPersistError
)

// Outcome reports what happened to one source in a sweep.
type Outcome struct {
	Source     registry.Source       `json:"source"`
	Status     Status                `json:"status"`
	Event      *recorder.ChangeEvent `json:"event,omitempty"`
	Magnitude  int                   `json:"magnitude"`
	Err        error                 `json:"-"`
	Error      string                `json:"error,omitempty"`
	Deliveries []notify.Delivery     `json:"-"`
}

// Report is the result of one sweep.
type Report struct {
	RunID    string     `json:"run_id"`
	Outcomes []*Outcome `json:"outcomes"`
}

// Count returns how many outcomes have status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o != nil && o.Status == s {
			n++
		}
	}
	return n
}

// RunEntry is one row of the fetch log.
type RunEntry = runlog.Entry

// EventFilter narrows ListEvents. Zero values match everything.
type EventFilter struct {
	Vendor   string
	Slug     string
	Type     string
	Severity string
	Limit    int // newest first; 0 = all
}
