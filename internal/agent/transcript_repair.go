package agent

import "github.com/agentcore/nexus/pkg/models"

// repairTranscript walks a conversation log and resolves orphaned
// ActionEvents: an Action with no matching Observation (e.g. the
// conversation was interrupted mid tool-call, or the log was truncated by
// a crash) gets a synthesized rejected Observation appended in its place,
// so the log always alternates cleanly between actions and their results
// without ever mutating or dropping an existing event.
func repairTranscript(history []models.Event) []models.Event {
	if len(history) == 0 {
		return history
	}

	pending := make(map[string]models.ActionEvent)
	pendingOrder := make([]string, 0)
	repaired := make([]models.Event, 0, len(history)+4)

	for _, ev := range history {
		switch ev.Type {
		case models.EventTypeAction:
			if ev.Action == nil || ev.Action.CallID == "" {
				repaired = append(repaired, ev)
				continue
			}
			pending[ev.Action.CallID] = *ev.Action
			pendingOrder = append(pendingOrder, ev.Action.CallID)
			repaired = append(repaired, ev)

		case models.EventTypeObservation:
			if ev.Observation == nil {
				continue
			}
			callID := ev.Observation.CallID
			if callID == "" && len(pendingOrder) > 0 {
				callID = pendingOrder[0]
			}
			if _, ok := pending[callID]; !ok {
				// Orphaned observation with no matching action: drop it,
				// there is nothing for it to resolve.
				continue
			}
			delete(pending, callID)
			pendingOrder = removeID(pendingOrder, callID)
			fixed := *ev.Observation
			fixed.CallID = callID
			repaired = append(repaired, models.Event{
				ID: ev.ID, Seq: ev.Seq, ConversationID: ev.ConversationID,
				Type: ev.Type, Time: ev.Time, Source: ev.Source,
				Observation: &fixed,
			})

		default:
			repaired = append(repaired, ev)
		}
	}

	// Any action still pending at the end of the log never got a result -
	// synthesize a rejected observation so every action resolves.
	for _, callID := range pendingOrder {
		action := pending[callID]
		repaired = append(repaired, models.Event{
			Type: models.EventTypeObservation,
			Source: models.EventSourceSystem,
			Observation: &models.ObservationEvent{
				CallID:   callID,
				Tool:     action.Tool,
				Output:   "action was never resolved and was rejected during transcript repair",
				IsError:  true,
				Rejected: true,
			},
		})
	}

	return repaired
}

func removeID(ids []string, target string) []string {
	for i, id := range ids {
		if id == target {
			copy(ids[i:], ids[i+1:])
			return ids[:len(ids)-1]
		}
	}
	return ids
}
