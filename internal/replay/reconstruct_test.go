package replay

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfateev/agent-rollout/internal/compact"
	"github.com/mfateev/agent-rollout/internal/models"
	"github.com/mfateev/agent-rollout/internal/rollout"
)

// --- fixtures ---------------------------------------------------------

func user(s string) models.RolloutItem {
	return models.NewResponseRolloutItem(models.UserMessage(s))
}

func assistant(s string) models.RolloutItem {
	return models.NewResponseRolloutItem(models.AssistantMessage(s))
}

func rolledBack(n int) models.RolloutItem {
	return models.NewRolledBackRolloutItem(n)
}

func compacted(summary string, replacement []models.ResponseItem) models.RolloutItem {
	return models.NewCompactedRolloutItem(summary, replacement)
}

func turnContext(model string) models.RolloutItem {
	return models.NewTurnContextRolloutItem(models.TurnContextItem{Model: model, Cwd: "/work"})
}

func contents(items []models.ResponseItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Content
	}
	return out
}

// sourceBuilder materializes the same oldest-first log behind each
// Source implementation so every property runs against all of them.
type sourceBuilder struct {
	name  string
	build func(t *testing.T, log []models.RolloutItem) rollout.Source
}

func allSources() []sourceBuilder {
	return []sourceBuilder{
		{name: "memory", build: func(t *testing.T, log []models.RolloutItem) rollout.Source {
			return rollout.NewMemorySource(log)
		}},
		{name: "file", build: func(t *testing.T, log []models.RolloutItem) rollout.Source {
			rec, err := rollout.NewRecorder(t.TempDir(), models.SessionMetaItem{})
			require.NoError(t, err)
			require.NoError(t, rec.Record(log...))
			require.NoError(t, rec.Close())
			src, err := rollout.NewFileSource(rec.Path(), nil)
			require.NoError(t, err)
			t.Cleanup(func() { src.Close() })
			return src
		}},
		{name: "sqlite", build: func(t *testing.T, log []models.RolloutItem) rollout.Source {
			store, err := rollout.OpenSQLiteStore(filepath.Join(t.TempDir(), "r.db"), nil)
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			require.NoError(t, store.Append(context.Background(), "s", log...))
			return store.Source("s")
		}},
	}
}

// eagerScan is the reference semantics: a full forward pass applying
// every marker in log order. Rollbacks cut at the Nth-from-last user
// boundary and never cross the floor left by the last compaction.
func eagerScan(log []models.RolloutItem, policy compact.MergePolicy) []models.ResponseItem {
	var items []models.ResponseItem
	floor := 0
	for _, it := range log {
		switch it.Type {
		case models.RolloutItemResponse:
			items = append(items, *it.Response)
		case models.RolloutItemRolledBack:
			for n := it.RolledBack.Count; n > 0; n-- {
				idx := -1
				for i := len(items) - 1; i >= floor; i-- {
					if models.IsUserTurnBoundary(items[i]) {
						idx = i
						break
					}
				}
				if idx < 0 {
					items = items[:floor]
					break
				}
				items = items[:idx]
			}
		case models.RolloutItemCompacted:
			if it.Compacted.ReplacementHistory != nil {
				items = append([]models.ResponseItem(nil), it.Compacted.ReplacementHistory...)
			} else {
				items = compact.BuildCompactedHistory(
					compact.CollectUserMessages(items), it.Compacted.SummaryText, policy)
			}
			floor = len(items)
		}
	}
	return items
}

func materialized(t *testing.T, src rollout.Source, opts ...Option) []models.ResponseItem {
	t.Helper()
	rec, err := Reconstruct(context.Background(), src, opts...)
	require.NoError(t, err)
	items, err := rec.History.Materialize(context.Background(), MaterializeOptions{})
	require.NoError(t, err)
	return items
}

// --- properties -------------------------------------------------------

func TestReconstruct_RollbackScenario(t *testing.T) {
	// turnB is rewound by the marker between turnB and turnC.
	log := []models.RolloutItem{user("turnA"), user("turnB"), rolledBack(1), user("turnC")}
	for _, sb := range allSources() {
		t.Run(sb.name, func(t *testing.T) {
			got := materialized(t, sb.build(t, log))
			assert.Equal(t, []string{"turnA", "turnC"}, contents(got))
		})
	}
}

func TestReconstruct_RollbackDropsWholeTurns(t *testing.T) {
	log := []models.RolloutItem{
		user("q1"), assistant("a1"),
		user("q2"), assistant("a2"),
		rolledBack(1),
		user("q3"), assistant("a3"),
	}
	for _, sb := range allSources() {
		t.Run(sb.name, func(t *testing.T) {
			got := materialized(t, sb.build(t, log))
			assert.Equal(t, []string{"q1", "a1", "q3", "a3"}, contents(got))
		})
	}
}

func TestReconstruct_Metadata(t *testing.T) {
	log := []models.RolloutItem{
		turnContext("gpt-4o-mini"),
		user("q1"),
		turnContext("gpt-5"),
		user("q2"),
	}
	for _, sb := range allSources() {
		t.Run(sb.name, func(t *testing.T) {
			rec, err := Reconstruct(context.Background(), sb.build(t, log))
			require.NoError(t, err)
			assert.Equal(t, "gpt-5", rec.PreviousModel)
			require.NotNil(t, rec.ReferenceContextItem)
			assert.Equal(t, "/work", rec.ReferenceContextItem.Cwd)
		})
	}
}

func TestReconstruct_EmptyLog(t *testing.T) {
	rec, err := Reconstruct(context.Background(), rollout.NewMemorySource(nil))
	require.NoError(t, err)
	assert.Empty(t, rec.PreviousModel)
	assert.Nil(t, rec.ReferenceContextItem)

	items, err := rec.History.Materialize(context.Background(), MaterializeOptions{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestReconstruct_CompactedReplacement(t *testing.T) {
	replacement := []models.ResponseItem{
		models.UserMessage("kept q"),
		models.AssistantMessage("kept a"),
	}
	log := []models.RolloutItem{
		user("old q"), assistant("old a"),
		compacted("squashed", replacement),
		user("new q"), assistant("new a"),
	}
	for _, sb := range allSources() {
		t.Run(sb.name, func(t *testing.T) {
			got := materialized(t, sb.build(t, log))
			assert.Equal(t, []string{"kept q", "kept a", "new q", "new a"}, contents(got))
		})
	}
}

func TestReconstruct_CompactedEmptyReplacement(t *testing.T) {
	// An empty replacement list is a real literal base: the compaction
	// replaced everything older with nothing, so no prefix is re-derived.
	// All sources must agree, including the ones that round-trip through
	// a persisted encoding.
	log := []models.RolloutItem{
		user("old q"), assistant("old a"),
		compacted("sum", []models.ResponseItem{}),
		user("new q"),
	}
	for _, sb := range allSources() {
		t.Run(sb.name, func(t *testing.T) {
			got := materialized(t, sb.build(t, log))
			assert.Equal(t, []string{"new q"}, contents(got))
		})
	}
}

func TestReconstruct_CompactedDeferred(t *testing.T) {
	log := []models.RolloutItem{
		user("q1"), assistant("a1"),
		user("q2"), assistant("a2"),
		compacted("what happened so far", nil),
		user("q3"), assistant("a3"),
	}
	for _, sb := range allSources() {
		t.Run(sb.name, func(t *testing.T) {
			got := materialized(t, sb.build(t, log))
			// Prior user messages are recovered from below the marker,
			// the summary follows them, then the live suffix.
			assert.Equal(t,
				[]string{"q1", "q2", "what happened so far", "q3", "a3"},
				contents(got))
		})
	}
}

func TestReconstruct_NestedDeferredCompactions(t *testing.T) {
	// Writers persist summaries with the sentinel prefix, which keeps an
	// inner summary from being re-collected as user input when the outer
	// marker is expanded.
	first := compact.FormatSummaryText("first summary")
	second := compact.FormatSummaryText("second summary")
	log := []models.RolloutItem{
		user("q1"),
		compacted(first, nil),
		user("q2"),
		compacted(second, nil),
		user("q3"),
	}
	got := materialized(t, rollout.NewMemorySource(log))
	assert.Equal(t, []string{"q1", "q2", second, "q3"}, contents(got))
}

func TestEquivalenceToEagerScan(t *testing.T) {
	logs := map[string][]models.RolloutItem{
		"plain": {
			user("q1"), assistant("a1"), user("q2"), assistant("a2"),
		},
		"stacked rollbacks": {
			user("q1"), user("q2"), user("q3"),
			rolledBack(1), rolledBack(1),
			user("q4"),
		},
		"rollback then compaction": {
			user("q1"), assistant("a1"),
			rolledBack(1),
			user("q2"),
			compacted("sum", nil),
			user("q3"), assistant("a3"),
		},
		"rollback crossing replacement": {
			compacted("sum", []models.ResponseItem{
				models.UserMessage("kept"), models.AssistantMessage("kept a"),
			}),
			rolledBack(3),
			user("after"),
		},
		"interleaved": {
			turnContext("m1"),
			user("q1"), assistant("a1"),
			user("q2"), assistant("a2"),
			rolledBack(2),
			user("q3"),
			compacted("c1", nil),
			turnContext("m2"),
			user("q4"), assistant("a4"),
			rolledBack(1),
			user("q5"),
		},
	}
	for name, log := range logs {
		for _, sb := range allSources() {
			t.Run(name+"/"+sb.name, func(t *testing.T) {
				want := eagerScan(log, compact.DefaultMergePolicy())
				got := materialized(t, sb.build(t, log), WithPageSize(3))
				assert.Equal(t, contents(want), contents(got))
			})
		}
	}
}
