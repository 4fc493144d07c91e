package replay

import (
	"context"
	"log/slog"

	"github.com/mfateev/agent-rollout/internal/models"
	"github.com/mfateev/agent-rollout/internal/rollout"
)

// Reconstruction packages the result of resuming a session from its
// rollout: eager metadata plus the lazy history handle, which the owning
// session retains for the remainder of the process.
type Reconstruction struct {
	History *LazyHistory

	// PreviousModel is the model identifier in effect at the point of
	// resume; empty when the log carries no turn context.
	PreviousModel string

	// ReferenceContextItem is the turn context in effect at the most
	// recent point in the log; nil when none was recorded.
	ReferenceContextItem *models.TurnContextItem
}

// Option configures reconstruction.
type Option func(*options)

type options struct {
	pageSize int
	logger   *slog.Logger
}

// WithPageSize overrides the number of records requested per reverse
// read.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithLogger overrides the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Reconstruct resumes a session from its rollout. One reverse pass feeds
// the metadata scanner and the history collector together: reads stop as
// soon as the metadata is resolved (or the source reports its start), and
// the history stays lazy behind the returned handle.
//
// The caller must be the only live consumer of source for the life of the
// returned history.
func Reconstruct(ctx context.Context, source rollout.Source, opts ...Option) (*Reconstruction, error) {
	o := options{pageSize: rollout.DefaultPageSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	h := &LazyHistory{source: source, pageSize: o.pageSize, logger: o.logger}
	scanner := &metadataScanner{}

	for !scanner.done && !h.exhausted {
		if err := h.loadMore(ctx, func(item models.RolloutItem) {
			scanner.consume(item)
		}); err != nil {
			return nil, err
		}
	}

	return &Reconstruction{
		History:              h,
		PreviousModel:        scanner.previousModel,
		ReferenceContextItem: scanner.referenceContext,
	}, nil
}
