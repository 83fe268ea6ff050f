package models

// View is the condensation-transparent rendering of a conversation's
// event log: a flat, ordered slice of events with any condensed ranges
// collapsed into their CondensationEvent. Consumers (the LLM adapter,
// context packer, security analyzer) only ever see a View, never the
// raw log, so history condensed out by a Condenser never resurfaces.
type View struct {
	ConversationID string  `json:"conversation_id"`
	Events         []Event `json:"events"`
}

// ViewForLLM builds a View from a raw, append-only event log. Any Seq
// range covered by a CondensationEvent is replaced by that single
// event; events outside condensed ranges pass through unchanged. Log
// order is preserved. The input log itself is never mutated.
func ViewForLLM(log []Event) View {
	if len(log) == 0 {
		return View{}
	}

	type condensedRange struct {
		from, to int
		ev       Event
	}
	var ranges []condensedRange
	for _, e := range log {
		if e.Type == EventTypeCondensation && e.Condensation != nil {
			ranges = append(ranges, condensedRange{
				from: e.Condensation.CondensedFrom,
				to:   e.Condensation.CondensedTo,
				ev:   e,
			})
		}
	}

	covered := func(seq int) (Event, bool) {
		for _, r := range ranges {
			if seq >= r.from && seq <= r.to {
				return r.ev, true
			}
		}
		return Event{}, false
	}

	out := make([]Event, 0, len(log))
	emittedCondensation := map[int]bool{} // keyed by CondensedFrom to dedup per range
	for _, e := range log {
		if ce, ok := covered(e.Seq); ok {
			if !emittedCondensation[ce.Condensation.CondensedFrom] {
				out = append(out, ce)
				emittedCondensation[ce.Condensation.CondensedFrom] = true
			}
			continue
		}
		// The CondensationEvent itself sits at a Seq past its own
		// CondensedTo, so it is never "covered" by its own range - skip
		// it here if it was already spliced in above.
		if e.Type == EventTypeCondensation && e.Condensation != nil && emittedCondensation[e.Condensation.CondensedFrom] {
			continue
		}
		out = append(out, e)
	}

	conversationID := log[0].ConversationID
	return View{ConversationID: conversationID, Events: out}
}
