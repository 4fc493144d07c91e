package replay

import "github.com/mfateev/agent-rollout/internal/models"

// metadataScanner eagerly resolves the two values needed immediately at
// resume time: the model and turn context in effect at the most recent
// point in the log. Both come from the newest turn_context record.
type metadataScanner struct {
	previousModel    string
	referenceContext *models.TurnContextItem
	done             bool
}

// consume processes one item from the reverse stream. Returns true once
// no further records are needed.
func (s *metadataScanner) consume(item models.RolloutItem) bool {
	if s.done {
		return true
	}
	if item.Type == models.RolloutItemTurnContext && s.referenceContext == nil {
		tc := *item.TurnContext
		s.referenceContext = &tc
		if s.previousModel == "" {
			s.previousModel = tc.Model
		}
		s.done = true
	}
	return s.done
}
