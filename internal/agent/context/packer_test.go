package context

import (
	"strings"
	"testing"

	"github.com/agentcore/nexus/pkg/models"
)

func msgEvent(seq int, role models.MessageRole, content string) models.Event {
	return models.Event{
		Seq:    seq,
		Type:   models.EventTypeMessage,
		Source: models.EventSourceUser,
		Message: &models.MessageEvent{
			Role:    role,
			Content: content,
		},
	}
}

func actionEvent(seq int, tool, args string) models.Event {
	return models.Event{
		Seq:    seq,
		Type:   models.EventTypeAction,
		Source: models.EventSourceAgent,
		Action: &models.ActionEvent{
			CallID: "tc1",
			Tool:   tool,
			Args:   []byte(args),
		},
	}
}

func obsEvent(seq int, tool, output string) models.Event {
	return models.Event{
		Seq:    seq,
		Type:   models.EventTypeObservation,
		Source: models.EventSourceSystem,
		Observation: &models.ObservationEvent{
			CallID: "tc1",
			Tool:   tool,
			Output: output,
		},
	}
}

func condensationEvent(seq, from, to int, summary string) models.Event {
	return models.Event{
		Seq:    seq,
		Type:   models.EventTypeCondensation,
		Source: models.EventSourceSystem,
		Condensation: &models.CondensationEvent{
			Summary:       summary,
			CondensedFrom: from,
			CondensedTo:   to,
		},
	}
}

func TestPacker_IncludesAllEventsWithinBudget(t *testing.T) {
	packer := NewPacker(DefaultPackOptions())
	view := models.View{
		ConversationID: "c1",
		Events: []models.Event{
			msgEvent(0, models.MessageRoleUser, "Hello"),
			msgEvent(1, models.MessageRoleAssistant, "Hi there"),
			msgEvent(2, models.MessageRoleUser, "How are you?"),
		},
	}

	packed := packer.Pack(view)

	if len(packed.Events) != 3 {
		t.Errorf("expected 3 events, got %d", len(packed.Events))
	}
	last := packed.Events[len(packed.Events)-1]
	if last.Message == nil || last.Message.Content != "How are you?" {
		t.Errorf("last event should be the latest message")
	}
}

func TestPacker_RespectsMaxEvents(t *testing.T) {
	opts := DefaultPackOptions()
	opts.MaxEvents = 3
	packer := NewPacker(opts)

	events := make([]models.Event, 10)
	for i := 0; i < 10; i++ {
		events[i] = msgEvent(i, models.MessageRoleUser, strings.Repeat("x", 100))
	}
	view := models.View{Events: events}

	packed := packer.Pack(view)

	if len(packed.Events) > opts.MaxEvents {
		t.Errorf("packed %d events, exceeds MaxEvents %d", len(packed.Events), opts.MaxEvents)
	}

	last := packed.Events[len(packed.Events)-1]
	if last.Seq != 9 {
		t.Errorf("expected most recent event (seq 9) to be kept, got seq %d", last.Seq)
	}
}

func TestPacker_RespectsMaxChars(t *testing.T) {
	opts := DefaultPackOptions()
	opts.MaxChars = 500
	packer := NewPacker(opts)

	events := make([]models.Event, 5)
	for i := 0; i < 5; i++ {
		events[i] = msgEvent(i, models.MessageRoleUser, strings.Repeat("x", 200))
	}
	view := models.View{Events: events}

	packed := packer.Pack(view)

	total := 0
	for _, ev := range packed.Events {
		total += packer.eventChars(ev)
	}
	if total > opts.MaxChars {
		t.Errorf("total chars %d exceeds MaxChars %d", total, opts.MaxChars)
	}

	if len(packed.Events) > 0 {
		last := packed.Events[len(packed.Events)-1]
		if last.Seq != 4 {
			t.Errorf("most recent event should be kept first, got seq %d", last.Seq)
		}
	}
}

func TestPacker_TruncatesObservations(t *testing.T) {
	opts := DefaultPackOptions()
	opts.MaxToolResultChars = 100
	packer := NewPacker(opts)

	view := models.View{
		Events: []models.Event{
			actionEvent(0, "search", `{"q":"x"}`),
			obsEvent(1, "search", strings.Repeat("x", 500)),
		},
	}

	packed := packer.Pack(view)

	var obs *models.ObservationEvent
	for _, ev := range packed.Events {
		if ev.Observation != nil {
			obs = ev.Observation
			break
		}
	}
	if obs == nil {
		t.Fatal("observation event not found in packed result")
	}
	if len(obs.Output) > opts.MaxToolResultChars+20 {
		t.Errorf("observation not truncated: len=%d, expected ~%d", len(obs.Output), opts.MaxToolResultChars)
	}
	if !strings.Contains(obs.Output, "...[truncated]") {
		t.Error("truncated observation missing truncation marker")
	}
}

func TestPacker_IncludesLatestCondensation(t *testing.T) {
	packer := NewPacker(DefaultPackOptions())

	view := models.View{
		Events: []models.Event{
			condensationEvent(0, 0, 0, "earlier summary"),
			msgEvent(1, models.MessageRoleUser, "hi"),
		},
	}

	packed := packer.Pack(view)

	if len(packed.Events) < 1 {
		t.Fatal("packed result is empty")
	}
	if packed.Events[0].Condensation == nil {
		t.Error("latest condensation should be first")
	}
}

func TestPacker_OmitsCondensationWhenDisabled(t *testing.T) {
	opts := DefaultPackOptions()
	opts.IncludeSummary = false
	packer := NewPacker(opts)

	view := models.View{
		Events: []models.Event{
			condensationEvent(0, 0, 0, "earlier summary"),
			msgEvent(1, models.MessageRoleUser, "hi"),
		},
	}

	packed := packer.Pack(view)

	for _, ev := range packed.Events {
		if ev.Condensation != nil {
			t.Error("condensation should be omitted when IncludeSummary is false")
		}
	}
}

func TestFindLatestCondensation(t *testing.T) {
	log := []models.Event{
		msgEvent(0, models.MessageRoleUser, "Hello"),
		condensationEvent(1, 0, 0, "first summary"),
		msgEvent(2, models.MessageRoleAssistant, "Hi"),
		condensationEvent(3, 1, 2, "second summary"),
		msgEvent(4, models.MessageRoleUser, "Thanks"),
	}

	latest := FindLatestCondensation(log)
	if latest == nil {
		t.Fatal("expected to find a condensation event")
	}
	if latest.Condensation.Summary != "second summary" {
		t.Errorf("expected latest condensation (second summary), got %q", latest.Condensation.Summary)
	}
}

func TestFindLatestCondensation_NoneFound(t *testing.T) {
	log := []models.Event{
		msgEvent(0, models.MessageRoleUser, "Hello"),
		msgEvent(1, models.MessageRoleAssistant, "Hi"),
	}

	if FindLatestCondensation(log) != nil {
		t.Error("expected nil when no condensation exists")
	}
}

func TestEventsSinceCondensation(t *testing.T) {
	latest := condensationEvent(1, 0, 0, "summary")
	log := []models.Event{
		msgEvent(0, models.MessageRoleUser, "Hello"),
		latest,
		msgEvent(2, models.MessageRoleAssistant, "Hi"),
		msgEvent(3, models.MessageRoleUser, "Thanks"),
	}

	since := EventsSinceCondensation(log, &latest)
	if len(since) != 2 {
		t.Errorf("expected 2 events after condensation, got %d", len(since))
	}
	if since[0].Seq != 2 || since[1].Seq != 3 {
		t.Error("events after condensation are incorrect")
	}
}

func TestEventsToCondense(t *testing.T) {
	log := []models.Event{
		msgEvent(0, models.MessageRoleUser, "Hello"),
		msgEvent(1, models.MessageRoleAssistant, "Hi"),
		msgEvent(2, models.MessageRoleUser, "How are you?"),
		msgEvent(3, models.MessageRoleAssistant, "Good!"),
		msgEvent(4, models.MessageRoleUser, "Great"),
	}

	toCondense := EventsToCondense(log, nil, 2)
	if len(toCondense) != 3 {
		t.Errorf("expected 3 events to condense, got %d", len(toCondense))
	}
	for _, ev := range toCondense {
		if ev.Seq == 3 || ev.Seq == 4 {
			t.Errorf("recent event seq=%d should not be in condense list", ev.Seq)
		}
	}
}
