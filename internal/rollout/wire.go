package rollout

import (
	"encoding/json"
	"fmt"

	"github.com/mfateev/agent-rollout/internal/models"
)

// Line is the wire form of one rollout record: a JSONL line written
// oldest-first by the session's recorder.
type Line struct {
	Timestamp string          `json:"timestamp,omitempty"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// EncodeItem converts a rollout item into its wire line. The timestamp
// is left for the writer to stamp.
func EncodeItem(item models.RolloutItem) (Line, error) {
	var payload any
	switch item.Type {
	case models.RolloutItemResponse:
		payload = item.Response
	case models.RolloutItemRolledBack:
		payload = item.RolledBack
	case models.RolloutItemCompacted:
		payload = item.Compacted
	case models.RolloutItemTurnContext:
		payload = item.TurnContext
	case models.RolloutItemSessionMeta:
		payload = item.SessionMeta
	default:
		return Line{}, fmt.Errorf("encode rollout item: unknown type %q", item.Type)
	}
	if payload == nil {
		return Line{}, fmt.Errorf("encode rollout item: missing %s payload", item.Type)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Line{}, fmt.Errorf("encode rollout item: %w", err)
	}
	return Line{Type: string(item.Type), Payload: raw}, nil
}

// DecodeLine converts a wire line back into a rollout item. ok is false
// for record kinds this reader does not know (newer writers may add
// kinds; skipping keeps old readers working) and for session metadata,
// which never enters history.
func DecodeLine(line Line) (item models.RolloutItem, ok bool, err error) {
	switch models.RolloutItemType(line.Type) {
	case models.RolloutItemResponse:
		var resp models.ResponseItem
		if err := json.Unmarshal(line.Payload, &resp); err != nil {
			return models.RolloutItem{}, false, models.NewCorruptionError("decode response record", err)
		}
		return models.NewResponseRolloutItem(resp), true, nil
	case models.RolloutItemRolledBack:
		var rb models.RolledBackItem
		if err := json.Unmarshal(line.Payload, &rb); err != nil {
			return models.RolloutItem{}, false, models.NewCorruptionError("decode rolled_back record", err)
		}
		if rb.Count < 0 {
			return models.RolloutItem{}, false, models.NewCorruptionError(
				fmt.Sprintf("rolled_back record has negative count %d", rb.Count), nil)
		}
		return models.RolloutItem{Type: models.RolloutItemRolledBack, RolledBack: &rb}, true, nil
	case models.RolloutItemCompacted:
		var c models.CompactedItem
		if err := json.Unmarshal(line.Payload, &c); err != nil {
			return models.RolloutItem{}, false, models.NewCorruptionError("decode compacted record", err)
		}
		return models.RolloutItem{Type: models.RolloutItemCompacted, Compacted: &c}, true, nil
	case models.RolloutItemTurnContext:
		var tc models.TurnContextItem
		if err := json.Unmarshal(line.Payload, &tc); err != nil {
			return models.RolloutItem{}, false, models.NewCorruptionError("decode turn_context record", err)
		}
		return models.RolloutItem{Type: models.RolloutItemTurnContext, TurnContext: &tc}, true, nil
	case models.RolloutItemSessionMeta:
		// Session metadata is surfaced through listings, not history.
		return models.RolloutItem{}, false, nil
	default:
		return models.RolloutItem{}, false, nil
	}
}

// DecodeLineBytes parses one raw JSONL line and decodes it.
func DecodeLineBytes(data []byte) (item models.RolloutItem, ok bool, err error) {
	var line Line
	if err := json.Unmarshal(data, &line); err != nil {
		return models.RolloutItem{}, false, models.NewCorruptionError("unparseable rollout line", err)
	}
	return DecodeLine(line)
}
