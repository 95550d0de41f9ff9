// Package recorder persists detected changes: the new snapshot, the diff
// artifact and the event line are committed as one unit per source, or not
// at all.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/breakingchange/horosafe"
)

// Key identifies a watched document: one vendor page of one type.
type Key struct {
	Slug string
	Type string
}

// String is the key's file-name stem, "<slug>-<type>". Valid keys keep
// hyphens out of Type, so the last hyphen always splits the two parts.
func (k Key) String() string { return k.Slug + "-" + k.Type }

// Validate checks that k maps to exactly one file name: Slug is a safe
// identifier and Type is one without hyphens.
func (k Key) Validate() error {
	if err := horosafe.ValidateIdentifier(k.Slug); err != nil {
		return fmt.Errorf("%w: slug: %v", ErrInvalidKey, err)
	}
	if err := horosafe.ValidateIdentifier(k.Type); err != nil {
		return fmt.Errorf("%w: type: %v", ErrInvalidKey, err)
	}
	if strings.Contains(k.Type, "-") {
		return fmt.Errorf("%w: type %q must not contain '-'", ErrInvalidKey, k.Type)
	}
	return nil
}

// ChangeEvent is one line of the event log.
type ChangeEvent struct {
	ID            string `json:"id"`
	TS            int64  `json:"ts"`
	Vendor        string `json:"vendor"`
	Slug          string `json:"slug"`
	Type          string `json:"type"`
	URL           string `json:"url"`
	DiffID        string `json:"diff_id"`
	Magnitude     int    `json:"magnitude"`
	Category      string `json:"category"`
	Severity      string `json:"severity"`
	Summary       string `json:"summary"`
	EffectiveDate string `json:"effective_date,omitempty"`
	Baseline      bool   `json:"baseline"`
}

// Key returns the event's document key.
func (e *ChangeEvent) Key() Key { return Key{Slug: e.Slug, Type: e.Type} }

// SnapshotStore holds the last recorded normalized text per key.
type SnapshotStore interface {
	// Get returns the snapshot and whether one exists.
	Get(ctx context.Context, k Key) (string, bool, error)
	Put(ctx context.Context, k Key, text string) error
	// Delete only exists to roll back a snapshot created by a failed unit.
	Delete(ctx context.Context, k Key) error
}

// BlobStore holds diff artifacts by logical ID. Put is write-once.
type BlobStore interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	// Path resolves an ID to its storage location.
	Path(id string) string
}

// EventLog is the append-only event store.
type EventLog interface {
	Append(ctx context.Context, ev *ChangeEvent) error
	ReadAll(ctx context.Context) ([]*ChangeEvent, error)
}

var (
	// ErrBlobExists is returned when a diff ID is written twice.
	ErrBlobExists = errors.New("recorder: diff artifact already exists")
	// ErrBlobNotFound is returned by BlobStore.Get for unknown IDs.
	ErrBlobNotFound = errors.New("recorder: diff artifact not found")
	// ErrInvalidID is returned for IDs that are not safe file names.
	ErrInvalidID = errors.New("recorder: invalid artifact id")
	// ErrInvalidKey is returned for keys that do not map to one file name.
	ErrInvalidKey = errors.New("recorder: invalid key")
)

// PersistenceError reports which step of a recording unit failed. When it
// is returned, nothing of the unit remains in storage.
type PersistenceError struct {
	Op  string // "diff", "snapshot" or "event"
	Key Key
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("recorder: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
