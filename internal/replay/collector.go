// Package replay reconstructs a resumable conversation from a rollout,
// reading it newest-to-oldest and stopping as soon as the current
// request can be answered.
package replay

import (
	"github.com/mfateev/agent-rollout/internal/models"
	"github.com/mfateev/agent-rollout/internal/rollout"
)

// baseKind classifies what governs history older than the collected
// suffix.
type baseKind int

const (
	baseUnknown baseKind = iota
	baseStartOfFile
	baseReplacement
	baseCompacted
)

// historyBase is the resolved boundary of a reverse collection pass.
type historyBase struct {
	kind        baseKind
	replacement []models.ResponseItem
	summaryText string
	before      rollout.Cursor
}

// historyCollector builds the surviving suffix of history, newest-first,
// honoring pending rollback debt. Debt counts user turns that must still
// be discarded: while debt > 0 every response item consumed belongs to a
// turn being rewound and is dropped, and passing a user-turn boundary
// pays off one unit.
type historyCollector struct {
	suffix []models.ResponseItem // newest-first
	debt   int
	base   historyBase
}

// consume processes one item from the reverse stream. Returns true once
// the base is resolved and no older items are needed.
func (c *historyCollector) consume(cur rollout.Cursor, item models.RolloutItem) bool {
	if c.base.kind != baseUnknown {
		return true
	}
	switch item.Type {
	case models.RolloutItemResponse:
		resp := *item.Response
		if c.debt > 0 {
			if models.IsUserTurnBoundary(resp) {
				c.debt--
			}
			return false
		}
		c.suffix = append(c.suffix, resp)
	case models.RolloutItemRolledBack:
		c.debt += item.RolledBack.Count
	case models.RolloutItemCompacted:
		if item.Compacted.ReplacementHistory != nil {
			replacement := make([]models.ResponseItem, len(item.Compacted.ReplacementHistory))
			copy(replacement, item.Compacted.ReplacementHistory)
			c.base = historyBase{kind: baseReplacement, replacement: replacement}
		} else {
			c.base = historyBase{
				kind:        baseCompacted,
				summaryText: item.Compacted.SummaryText,
				before:      cur,
			}
		}
		// Debt cannot reach past a base; rewinding past available
		// history degrades to the base itself.
		c.debt = 0
		return true
	case models.RolloutItemTurnContext:
		// Metadata only; the scanner handles it.
	}
	return false
}

// markStartOfFile resolves the base after the source reported it has no
// older records. Leftover debt is discarded: rewinding past the start of
// history yields an empty prefix, not an error.
func (c *historyCollector) markStartOfFile() {
	if c.base.kind == baseUnknown {
		c.base = historyBase{kind: baseStartOfFile}
	}
	c.debt = 0
}

// extendDebt adds n turns of rollback debt and immediately pays it down
// against the already-collected suffix. New debt is newer than anything
// collected, so it consumes the suffix from its newest end first.
func (c *historyCollector) extendDebt(n int) {
	c.debt += n
	i := 0
	for i < len(c.suffix) && c.debt > 0 {
		if models.IsUserTurnBoundary(c.suffix[i]) {
			c.debt--
		}
		i++
	}
	c.suffix = c.suffix[i:]
	if c.debt > 0 && c.base.kind != baseUnknown {
		// The base boundary was already reached; debt cannot cross it.
		c.debt = 0
	}
}

// chronologicalSuffix returns the suffix in oldest-first order.
func (c *historyCollector) chronologicalSuffix() []models.ResponseItem {
	out := make([]models.ResponseItem, len(c.suffix))
	for i, item := range c.suffix {
		out[len(out)-1-i] = item
	}
	return out
}
