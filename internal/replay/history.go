package replay

import (
	"context"
	"log/slog"

	"github.com/mfateev/agent-rollout/internal/compact"
	"github.com/mfateev/agent-rollout/internal/models"
	"github.com/mfateev/agent-rollout/internal/rollout"
	"github.com/mfateev/agent-rollout/internal/truncate"
)

// LazyHistory is the long-lived handle to a reconstructed conversation.
// It owns the reverse source and the collector state, reads older records
// only when an explicit call requires them, and accepts additional
// backtracking requests without discarding prior work.
//
// A LazyHistory is owned exclusively by its session task and is not safe
// for concurrent mutation.
type LazyHistory struct {
	source   rollout.Source
	logger   *slog.Logger
	pageSize int

	col        historyCollector
	oldestSeen *rollout.Cursor // resumption point for further reverse reads
	exhausted  bool

	baseExpanded bool
	baseHistory  []models.ResponseItem
	cached       []models.ResponseItem
}

// MaterializeOptions carries the external collaborators of a materialize
// call: canonical initial context to prepend, the truncation policy that
// trims an oversized result, and the compaction merge policy. Zero values
// mean no initial context, no truncation, and the default merge policy.
//
// The merge policy is consulted only the first time a deferred compaction
// base is expanded; it is expected to stay stable across calls on the
// same history.
type MaterializeOptions struct {
	InitialContext []models.ResponseItem
	Truncation     truncate.Policy
	Merge          compact.MergePolicy
}

func (o MaterializeOptions) mergePolicy() compact.MergePolicy {
	if o.Merge.MaxUserMessageTokens == 0 {
		return compact.DefaultMergePolicy()
	}
	return o.Merge
}

// feedChunk commits one successfully loaded chunk. Called only after
// LoadEarlier succeeds, so a failed or cancelled load leaves the history
// in its pre-call state.
func (h *LazyHistory) feedChunk(chunk *rollout.Chunk, observe func(models.RolloutItem)) {
	for _, st := range chunk.Items {
		if observe != nil {
			observe(st.Item)
		}
		if h.col.base.kind == baseUnknown {
			h.col.consume(st.Cursor, st.Item)
		}
		cur := st.Cursor
		h.oldestSeen = &cur
	}
	if chunk.ReachedStart {
		h.exhausted = true
		h.col.markStartOfFile()
	}
}

// loadMore fetches and commits one more chunk of older records, handing
// each item to observe (when non-nil) before the collector sees it.
func (h *LazyHistory) loadMore(ctx context.Context, observe func(models.RolloutItem)) error {
	chunk, err := h.source.LoadEarlier(ctx, h.oldestSeen, h.pageSize)
	if err != nil {
		return err
	}
	if len(chunk.Items) == 0 && !chunk.ReachedStart {
		return models.NewNoValidBaseError("rollout source made no progress")
	}
	h.feedChunk(chunk, observe)
	return nil
}

// resolveBase drives the collector until the base is known, reading older
// chunks as needed. Idempotent once resolved.
func (h *LazyHistory) resolveBase(ctx context.Context) error {
	for h.col.base.kind == baseUnknown && !h.exhausted {
		if err := h.loadMore(ctx, nil); err != nil {
			return err
		}
	}
	if h.col.base.kind == baseUnknown {
		h.col.markStartOfFile()
	}
	return nil
}

// ApplyBacktracking schedules n additional user turns for discard. The
// cached materialization is invalidated; the collector resumes from the
// most recently loaded cursor on the next Materialize, reading only as
// far as the new debt requires. Purely in-memory, so a later transient
// read failure can be retried without double-applying the request.
func (h *LazyHistory) ApplyBacktracking(n int) {
	if n <= 0 {
		return
	}
	h.cached = nil
	h.col.extendDebt(n)
}

// Materialize produces the full, chronological conversation history:
// expanded base followed by the surviving suffix, with initial context
// prepended and the truncation policy applied. The result is cached; a
// second call with no intervening ApplyBacktracking touches the source
// zero times.
func (h *LazyHistory) Materialize(ctx context.Context, opts MaterializeOptions) ([]models.ResponseItem, error) {
	if h.cached == nil {
		if err := h.resolveBase(ctx); err != nil {
			return nil, err
		}
		if !h.baseExpanded {
			base, err := h.expandBase(ctx, opts.mergePolicy())
			if err != nil {
				return nil, err
			}
			h.baseHistory = base
			h.baseExpanded = true
		}
		suffix := h.col.chronologicalSuffix()
		full := make([]models.ResponseItem, 0, len(h.baseHistory)+len(suffix))
		full = append(full, h.baseHistory...)
		full = append(full, suffix...)
		h.cached = full
		h.logger.Debug("materialized history",
			"base_items", len(h.baseHistory), "suffix_items", len(suffix))
	}

	out := make([]models.ResponseItem, 0, len(opts.InitialContext)+len(h.cached))
	out = append(out, opts.InitialContext...)
	out = append(out, h.cached...)
	if !opts.Truncation.IsZero() {
		out = truncateHistory(out, opts.Truncation)
	}
	return out, nil
}

// expandBase turns the resolved base into literal history.
func (h *LazyHistory) expandBase(ctx context.Context, policy compact.MergePolicy) ([]models.ResponseItem, error) {
	switch h.col.base.kind {
	case baseStartOfFile:
		return nil, nil
	case baseReplacement:
		return cloneItems(h.col.base.replacement), nil
	case baseCompacted:
		return h.expandCompacted(ctx, h.col.base.summaryText, h.col.base.before, policy)
	default:
		return nil, models.NewNoValidBaseError("history base unresolved after full scan")
	}
}

// compactionFrame is one deferred compaction awaiting expansion: its
// summary and the chronological items recovered between it and the next
// older base.
type compactionFrame struct {
	summaryText string
	older       []models.ResponseItem
}

// expandCompacted materializes the prefix before a compaction marker.
// Deferred markers can nest, so this walks marker to marker iteratively;
// the walk is bounded by the number of compaction events in the log, and
// every step moves strictly toward the start.
func (h *LazyHistory) expandCompacted(ctx context.Context, summaryText string, before rollout.Cursor, policy compact.MergePolicy) ([]models.ResponseItem, error) {
	frames := []compactionFrame{{summaryText: summaryText}}
	cursor := before
	var baseHistory []models.ResponseItem

	for {
		col := &historyCollector{}
		cur := cursor
		oldest := &cur
		exhausted := false
		for col.base.kind == baseUnknown && !exhausted {
			chunk, err := h.source.LoadEarlier(ctx, oldest, h.pageSize)
			if err != nil {
				return nil, err
			}
			if len(chunk.Items) == 0 && !chunk.ReachedStart {
				return nil, models.NewNoValidBaseError("rollout source made no progress")
			}
			for _, st := range chunk.Items {
				if col.base.kind == baseUnknown {
					col.consume(st.Cursor, st.Item)
				}
				c := st.Cursor
				oldest = &c
			}
			exhausted = chunk.ReachedStart
		}
		if col.base.kind == baseUnknown {
			col.markStartOfFile()
		}
		frames[len(frames)-1].older = col.chronologicalSuffix()

		if col.base.kind == baseCompacted {
			frames = append(frames, compactionFrame{summaryText: col.base.summaryText})
			cursor = col.base.before
			continue
		}
		if col.base.kind == baseReplacement {
			baseHistory = cloneItems(col.base.replacement)
		}
		break
	}

	// Fold oldest-first: each marker compacted everything below it.
	history := baseHistory
	for i := len(frames) - 1; i >= 0; i-- {
		prefix := make([]models.ResponseItem, 0, len(history)+len(frames[i].older))
		prefix = append(prefix, history...)
		prefix = append(prefix, frames[i].older...)
		history = compact.BuildCompactedHistory(
			compact.CollectUserMessages(prefix), frames[i].summaryText, policy)
	}
	return history, nil
}

// truncateHistory drops oldest items until the remainder fits the
// policy's token budget. Trimming whole items keeps call/output pairs
// decodable by the model client.
func truncateHistory(items []models.ResponseItem, policy truncate.Policy) []models.ResponseItem {
	budget := policy.TokenBudget()
	total := 0
	cut := 0
	for i := len(items) - 1; i >= 0; i-- {
		total += itemTokenCount(items[i])
		if total > budget {
			cut = i + 1
			break
		}
	}
	return items[cut:]
}

func itemTokenCount(item models.ResponseItem) int {
	tokens := truncate.ApproxTokenCount(item.Content) +
		truncate.ApproxTokenCount(item.Name) +
		truncate.ApproxTokenCount(item.Arguments)
	if item.Output != nil {
		tokens += truncate.ApproxTokenCount(item.Output.Content)
	}
	return tokens
}

func cloneItems(items []models.ResponseItem) []models.ResponseItem {
	out := make([]models.ResponseItem, len(items))
	copy(out, items)
	return out
}
