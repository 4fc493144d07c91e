// Package rollout provides read and write access to persisted
// conversation rollouts: the reverse (newest-to-oldest) source contract
// used by the replay engine, file/SQLite/in-memory implementations, a
// JSONL recorder, and session directory listings.
package rollout

import (
	"context"

	"github.com/mfateev/agent-rollout/internal/models"
)

// Cursor is an opaque position marker into a rollout. Only the source
// that issued it may interpret it; the replay engine just hands it back
// to request strictly older records.
type Cursor int64

// StampedItem pairs a decoded rollout item with its cursor.
type StampedItem struct {
	Cursor Cursor
	Item   models.RolloutItem
}

// Chunk is one page of rollout items, newest-first. ReachedStart means
// no record exists before the oldest item returned (or before the
// requested position, when Items is empty).
type Chunk struct {
	Items        []StampedItem
	ReachedStart bool
}

// Source yields rollout items newest-to-oldest, paginated through
// cursors.
//
// LoadEarlier returns up to limit items strictly older than before; a
// nil before starts from the newest record in the log. Successive calls
// with the cursor of the oldest item from the previous chunk never
// re-yield or skip records. A limit <= 0 uses DefaultPageSize.
//
// Sources are not re-entrant: exactly one live consumer may drive a
// source. Implementations serialize access to the underlying handle.
type Source interface {
	LoadEarlier(ctx context.Context, before *Cursor, limit int) (*Chunk, error)
}

// DefaultPageSize is the page size used when a caller passes limit <= 0.
const DefaultPageSize = 64
