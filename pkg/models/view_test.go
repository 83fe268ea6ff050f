package models

import (
	"testing"
	"time"
)

func msgEvent(seq int, role MessageRole, content string) Event {
	return Event{
		ID:             "e" + string(rune('a'+seq)),
		Seq:            seq,
		ConversationID: "c1",
		Type:           EventTypeMessage,
		Time:           time.Unix(int64(seq), 0),
		Message:        &MessageEvent{Role: role, Content: content},
	}
}

func TestViewForLLM_NoCondensation(t *testing.T) {
	log := []Event{
		msgEvent(0, MessageRoleUser, "hi"),
		msgEvent(1, MessageRoleAssistant, "hello"),
	}
	v := ViewForLLM(log)
	if len(v.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(v.Events))
	}
	if v.ConversationID != "c1" {
		t.Fatalf("expected conversation id c1, got %q", v.ConversationID)
	}
}

func TestViewForLLM_CollapsesCondensedRange(t *testing.T) {
	log := []Event{
		msgEvent(0, MessageRoleUser, "a"),
		msgEvent(1, MessageRoleAssistant, "b"),
		msgEvent(2, MessageRoleUser, "c"),
		{
			ID: "cond", Seq: 3, ConversationID: "c1", Type: EventTypeCondensation,
			Condensation: &CondensationEvent{Summary: "a/b/c summarized", CondensedFrom: 0, CondensedTo: 2},
		},
		msgEvent(4, MessageRoleUser, "d"),
	}

	v := ViewForLLM(log)
	if len(v.Events) != 2 {
		t.Fatalf("expected condensed range collapsed to 1 event + 1 trailing, got %d", len(v.Events))
	}
	if v.Events[0].Type != EventTypeCondensation {
		t.Fatalf("expected first event to be the condensation marker, got %v", v.Events[0].Type)
	}
	if v.Events[1].Message.Content != "d" {
		t.Fatalf("expected trailing message to survive, got %q", v.Events[1].Message.Content)
	}
}

func TestViewForLLM_Empty(t *testing.T) {
	v := ViewForLLM(nil)
	if len(v.Events) != 0 {
		t.Fatalf("expected empty view for empty log")
	}
}
