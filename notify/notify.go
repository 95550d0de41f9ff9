// Package notify fans a recorded change out to external channels (a Slack
// incoming webhook, a GitHub issue). Delivery is best effort: failures are
// reported per notifier and never affect what was recorded.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/breakingchange/classify"
)

// Notification is the channel-neutral message for one change event.
type Notification struct {
	Title    string
	Summary  string
	URL      string
	Severity string
	DiffPath string
}

// Notifier delivers a Notification to one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// ErrNotConfigured is returned by a notifier missing its credentials.
// The dispatcher reports it as Skipped.
var ErrNotConfigured = errors.New("notify: notifier not configured")

// SendError is returned when a notification could not be delivered.
type SendError struct {
	Notifier   string
	StatusCode int // 0 when no response was received
	Cause      error
}

func (e *SendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("notify: send failed on %s (HTTP %d): %v", e.Notifier, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("notify: send failed on %s: %v", e.Notifier, e.Cause)
}

func (e *SendError) Unwrap() error { return e.Cause }

// Status is the outcome of one delivery attempt.
type Status int

const (
	Delivered Status = iota
	TransientFailure
	Skipped
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case TransientFailure:
		return "transient_failure"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Delivery reports what happened on one notifier.
type Delivery struct {
	Notifier string
	Status   Status
	Err      error
}

// Dispatcher sends a Notification to every registered notifier in order.
type Dispatcher struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewDispatcher returns a Dispatcher. A nil logger uses slog.Default().
func NewDispatcher(logger *slog.Logger, notifiers ...Notifier) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{notifiers: notifiers, logger: logger}
}

// Add registers another notifier.
func (d *Dispatcher) Add(n Notifier) { d.notifiers = append(d.notifiers, n) }

// Len returns the number of registered notifiers.
func (d *Dispatcher) Len() int { return len(d.notifiers) }

// Dispatch tries every notifier and reports each outcome. It never fails:
// errors are logged and carried in the returned deliveries.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) []Delivery {
	out := make([]Delivery, 0, len(d.notifiers))
	for _, nt := range d.notifiers {
		name := nt.Name()
		if err := ctx.Err(); err != nil {
			out = append(out, Delivery{Notifier: name, Status: Skipped, Err: err})
			continue
		}
		err := nt.Notify(ctx, n)
		switch {
		case err == nil:
			out = append(out, Delivery{Notifier: name, Status: Delivered})
		case errors.Is(err, ErrNotConfigured):
			out = append(out, Delivery{Notifier: name, Status: Skipped, Err: err})
		default:
			d.logger.Warn("notify: delivery failed", "notifier", name, "error", err)
			out = append(out, Delivery{Notifier: name, Status: TransientFailure, Err: err})
		}
	}
	return out
}

// Title formats "<Vendor> <Type> update — <SEVERITY>".
func Title(vendor, docType, severity string) string {
	return fmt.Sprintf("%s %s update — %s", vendor, classify.TitleCase(docType), strings.ToUpper(severity))
}

// Summary appends ". Effective <date>" when an effective date is known.
func Summary(summary, effectiveDate string) string {
	if effectiveDate == "" {
		return summary
	}
	return summary + ". Effective " + effectiveDate
}
