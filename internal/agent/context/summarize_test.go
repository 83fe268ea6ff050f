package context

import (
	"context"
	"errors"
	"testing"

	"github.com/agentcore/nexus/pkg/models"
)

type stubSummaryProvider struct {
	summary string
	err     error
	calls   int
}

func (s *stubSummaryProvider) Summarize(ctx context.Context, events []models.Event, maxLength int) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.summary, nil
}

func TestLLMSummarizing_CondensesWhenThresholdExceeded(t *testing.T) {
	provider := &stubSummaryProvider{summary: "the user asked several questions"}
	condenser := NewLLMSummarizing(provider, CondensationConfig{
		MaxEventsBeforeCondensation: 3,
		KeepRecentEvents:            1,
		MaxSummaryLength:            500,
	})

	log := []models.Event{
		msgEvent(0, models.MessageRoleUser, "one"),
		msgEvent(1, models.MessageRoleAssistant, "two"),
		msgEvent(2, models.MessageRoleUser, "three"),
		msgEvent(3, models.MessageRoleAssistant, "four"),
	}

	ev, ok, err := condenser.Condense(context.Background(), log)
	if err != nil {
		t.Fatalf("Condense failed: %v", err)
	}
	if !ok {
		t.Fatal("expected condensation to trigger")
	}
	if provider.calls != 1 {
		t.Errorf("expected provider to be called once, got %d", provider.calls)
	}
	if ev.Type != models.EventTypeCondensation {
		t.Fatalf("expected a condensation event, got %s", ev.Type)
	}
	if ev.Condensation.CondensedFrom != 0 || ev.Condensation.CondensedTo != 2 {
		t.Errorf("expected range [0,2], got [%d,%d]", ev.Condensation.CondensedFrom, ev.Condensation.CondensedTo)
	}
	if ev.Condensation.Summary != "the user asked several questions" {
		t.Errorf("unexpected summary: %q", ev.Condensation.Summary)
	}
}

func TestLLMSummarizing_NoOpBelowThreshold(t *testing.T) {
	provider := &stubSummaryProvider{summary: "summary"}
	condenser := NewLLMSummarizing(provider, DefaultCondensationConfig())

	log := []models.Event{
		msgEvent(0, models.MessageRoleUser, "hi"),
		msgEvent(1, models.MessageRoleAssistant, "hello"),
	}

	_, ok, err := condenser.Condense(context.Background(), log)
	if err != nil {
		t.Fatalf("Condense failed: %v", err)
	}
	if ok {
		t.Error("expected no condensation below threshold")
	}
	if provider.calls != 0 {
		t.Error("provider should not be called when below threshold")
	}
}

func TestLLMSummarizing_PropagatesProviderError(t *testing.T) {
	provider := &stubSummaryProvider{err: errors.New("llm unavailable")}
	condenser := NewLLMSummarizing(provider, CondensationConfig{
		MaxEventsBeforeCondensation: 1,
		KeepRecentEvents:            0,
		MaxSummaryLength:            500,
	})

	log := []models.Event{
		msgEvent(0, models.MessageRoleUser, "one"),
		msgEvent(1, models.MessageRoleAssistant, "two"),
	}

	_, ok, err := condenser.Condense(context.Background(), log)
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if ok {
		t.Error("ok should be false on error")
	}
}

func TestLLMSummarizing_SkipsAlreadyCondensedRange(t *testing.T) {
	provider := &stubSummaryProvider{summary: "more summary"}
	condenser := NewLLMSummarizing(provider, CondensationConfig{
		MaxEventsBeforeCondensation: 5,
		KeepRecentEvents:            1,
		MaxSummaryLength:            500,
	})

	log := []models.Event{
		condensationEvent(2, 0, 1, "already summarized"),
		msgEvent(3, models.MessageRoleUser, "new question"),
	}

	_, ok, err := condenser.Condense(context.Background(), log)
	if err != nil {
		t.Fatalf("Condense failed: %v", err)
	}
	if ok {
		t.Error("expected no new condensation since only the recent event is left")
	}
}

func TestNoOp_NeverCondenses(t *testing.T) {
	var condenser Condenser = NoOp{}

	log := make([]models.Event, 100)
	for i := range log {
		log[i] = msgEvent(i, models.MessageRoleUser, "x")
	}

	_, ok, err := condenser.Condense(context.Background(), log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("NoOp should never condense")
	}
}

func TestBuildSummarizationPrompt_IncludesEventKinds(t *testing.T) {
	events := []models.Event{
		msgEvent(0, models.MessageRoleUser, "find the bug"),
		actionEvent(1, "grep", `{"pattern":"panic"}`),
		obsEvent(2, "grep", "no matches found"),
	}

	prompt := BuildSummarizationPrompt(events, 1000)

	if prompt == "" {
		t.Fatal("expected non-empty prompt")
	}
	for _, want := range []string{"find the bug", "called tool: grep", "no matches found"} {
		if !containsSubstring(prompt, want) {
			t.Errorf("expected prompt to contain %q", want)
		}
	}
}

func containsSubstring(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
