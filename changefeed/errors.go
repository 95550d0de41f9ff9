package changefeed

import (
	"errors"

	"github.com/hazyhaar/breakingchange/changefeed/internal/fetch"
)

// FetchError is returned for a source whose page could not be retrieved.
// The source is skipped for this sweep.
type FetchError = fetch.Error

// ErrExtraction is logged when a fetched page cannot be parsed. The page is
// then treated as empty text.
var ErrExtraction = errors.New("changefeed: extraction failed")

// ErrUnknownSource is returned when a (slug, type) is not in the registry.
var ErrUnknownSource = errors.New("changefeed: unknown source")
