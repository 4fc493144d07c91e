package rollout

import (
	"context"
	"sync"

	"github.com/mfateev/agent-rollout/internal/models"
)

// MemorySource serves a rollout held in memory, oldest-first. Cursors
// are slice indices. Used by tests and as the reference implementation
// of the Source contract.
type MemorySource struct {
	items []models.RolloutItem
	mu    sync.Mutex
}

// NewMemorySource creates a source over items given oldest-first, the
// order they would appear on disk.
func NewMemorySource(items []models.RolloutItem) *MemorySource {
	copied := make([]models.RolloutItem, len(items))
	copy(copied, items)
	return &MemorySource{items: copied}
}

// LoadEarlier implements Source.
func (s *MemorySource) LoadEarlier(ctx context.Context, before *Cursor, limit int) (*Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.NewTransientError("memory source: load cancelled", err)
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := len(s.items) - 1
	if before != nil {
		start = int(*before) - 1
	}
	if start < 0 {
		return &Chunk{ReachedStart: true}, nil
	}

	chunk := &Chunk{}
	for i := start; i >= 0 && len(chunk.Items) < limit; i-- {
		chunk.Items = append(chunk.Items, StampedItem{Cursor: Cursor(i), Item: s.items[i]})
	}
	oldest := start - len(chunk.Items) + 1
	chunk.ReachedStart = oldest == 0
	return chunk, nil
}
