package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	agentctx "github.com/agentcore/nexus/internal/agent/context"
	"github.com/agentcore/nexus/pkg/models"
)

type fakeActor struct {
	resp *LLMResponse
	err  error
	reqs []*Request
}

func (f *fakeActor) Act(_ context.Context, req *Request) (*LLMResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeRiskClassifier struct {
	levels []models.RiskLevel
	err    error
}

func (f *fakeRiskClassifier) Classify(_ context.Context, batch []models.ActionEvent, _ models.View) ([]models.RiskLevel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.levels, nil
}

func newTestAgent(t *testing.T, actor Actor) *Agent {
	t.Helper()
	reg := NewToolRegistry()
	reg.Register(&fakeTool{name: "read_file"})
	cfg := DefaultAgentConfig()
	cfg.Model = "test-model"
	return NewAgent(actor, reg, cfg)
}

func TestAgent_InitState_IsIdempotentPerConversation(t *testing.T) {
	a := newTestAgent(t, &fakeActor{})

	sp1, err := a.InitState("conv-1", agentctx.SystemPromptOptions{CLIMode: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sp1 == nil || sp1.Content == "" {
		t.Fatalf("expected a rendered system prompt, got %+v", sp1)
	}

	sp2, err := a.InitState("conv-1", agentctx.SystemPromptOptions{CLIMode: true})
	if err != nil {
		t.Fatalf("unexpected error on repeat: %v", err)
	}
	if sp2 != nil {
		t.Fatalf("expected nil on repeat InitState for the same conversation, got %+v", sp2)
	}

	sp3, err := a.InitState("conv-2", agentctx.SystemPromptOptions{CLIMode: true})
	if err != nil {
		t.Fatalf("unexpected error for a new conversation: %v", err)
	}
	if sp3 == nil {
		t.Fatalf("expected a rendered prompt for a distinct conversation id")
	}
}

func TestAgent_InitState_IncludesRepoMicroagents(t *testing.T) {
	ms := agentctx.NewMicroagentSet([]agentctx.Microagent{
		{Name: "house-style", Kind: agentctx.MicroagentRepo, Content: "Prefer table-driven tests."},
	})
	reg := NewToolRegistry()
	cfg := DefaultAgentConfig()
	cfg.Microagents = ms
	a := NewAgent(&fakeActor{}, reg, cfg)

	sp, err := a.InitState("conv-1", agentctx.SystemPromptOptions{CLIMode: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sp.MicroagentsIncluded) != 1 || sp.MicroagentsIncluded[0] != "house-style" {
		t.Fatalf("expected house-style microagent included, got %v", sp.MicroagentsIncluded)
	}
}

func TestAgent_ActivateMicroagents_IsIdempotent(t *testing.T) {
	ms := agentctx.NewMicroagentSet([]agentctx.Microagent{
		{Name: "docker-tips", Kind: agentctx.MicroagentKnowledge, Triggers: []string{"docker"}, Content: "Use multi-stage builds."},
	})
	reg := NewToolRegistry()
	cfg := DefaultAgentConfig()
	cfg.Microagents = ms
	a := NewAgent(&fakeActor{}, reg, cfg)

	first := a.ActivateMicroagents("how do I containerize this with docker")
	if len(first) != 1 {
		t.Fatalf("expected one activation, got %d", len(first))
	}

	second := a.ActivateMicroagents("more docker questions")
	if len(second) != 0 {
		t.Fatalf("expected no re-activation, got %d", len(second))
	}
}

func TestAgent_Step_AppliesPruneSettingsBeforePacking(t *testing.T) {
	actor := &fakeActor{resp: &LLMResponse{Text: "ok"}}
	reg := NewToolRegistry()
	reg.Register(&fakeTool{name: "read_file"})

	cfg := DefaultAgentConfig()
	cfg.Model = "test-model"
	settings := agentctx.DefaultContextPruningSettings()
	settings.Mode = agentctx.ContextPruningCacheTTL
	settings.KeepLastTurns = 0
	settings.SoftTrimRatio = 0
	settings.HardClearRatio = 0
	settings.MinPrunableToolChars = 1
	settings.HardClear.Enabled = true
	cfg.PruneSettings = &settings
	a := NewAgent(actor, reg, cfg)

	longOutput := strings.Repeat("x", 5000)
	view := models.View{
		ConversationID: "conv-1",
		Events: []models.Event{
			{Seq: 0, Type: models.EventTypeMessage, Message: &models.MessageEvent{Role: models.MessageRoleUser, Content: "read the file"}},
			{Seq: 1, Type: models.EventTypeAction, Action: &models.ActionEvent{CallID: "c1", Tool: "read_file"}},
			{Seq: 2, Type: models.EventTypeObservation, Observation: &models.ObservationEvent{CallID: "c1", Tool: "read_file", Output: longOutput}},
		},
	}

	if _, err := a.Step(context.Background(), view, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(actor.reqs) != 1 {
		t.Fatalf("expected exactly one Act call, got %d", len(actor.reqs))
	}
	sent := actor.reqs[0].View
	if len(sent.Events) == 0 {
		t.Fatalf("expected events to reach the request")
	}
	for _, ev := range sent.Events {
		if ev.Observation != nil && ev.Observation.Output == longOutput {
			t.Fatalf("expected the observation to be pruned before packing")
		}
	}
}

func TestAgent_Step_ReturnsActionsWhenModelCallsTools(t *testing.T) {
	actor := &fakeActor{resp: &LLMResponse{
		Actions: []models.ActionEvent{{CallID: "c1", Tool: "read_file", Args: json.RawMessage(`{"path":"a.go"}`)}},
	}}
	a := newTestAgent(t, actor)

	view := models.View{ConversationID: "conv-1"}
	result, err := a.Step(context.Background(), view, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Actions) != 1 || result.Actions[0].Tool != "read_file" {
		t.Fatalf("expected one read_file action, got %+v", result.Actions)
	}
	if result.Message != nil {
		t.Fatalf("expected no terminal message alongside actions, got %+v", result.Message)
	}

	if len(actor.reqs) != 1 {
		t.Fatalf("expected exactly one Act call, got %d", len(actor.reqs))
	}
	if actor.reqs[0].Model != "test-model" {
		t.Fatalf("expected model to be threaded through, got %q", actor.reqs[0].Model)
	}
	if len(actor.reqs[0].Tools) != 1 {
		t.Fatalf("expected registry tools on the request, got %d", len(actor.reqs[0].Tools))
	}
}

func TestAgent_Step_ReturnsTerminalMessageWhenNoToolsCalled(t *testing.T) {
	actor := &fakeActor{resp: &LLMResponse{Text: "All done."}}
	a := newTestAgent(t, actor)

	result, err := a.Step(context.Background(), models.View{}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Actions != nil {
		t.Fatalf("expected no actions, got %+v", result.Actions)
	}
	if result.Message == nil || result.Message.Content != "All done." {
		t.Fatalf("expected terminal message with model text, got %+v", result.Message)
	}
	if result.Message.Role != models.MessageRoleAssistant {
		t.Fatalf("expected assistant role, got %q", result.Message.Role)
	}
}

func TestAgent_Step_PropagatesActorError(t *testing.T) {
	wantErr := errors.New("provider unavailable")
	a := newTestAgent(t, &fakeActor{err: wantErr})

	_, err := a.Step(context.Background(), models.View{}, "")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected actor error to propagate, got %v", err)
	}
}

type fakeFeatureDetector struct {
	*fakeActor
	supports map[Feature]bool
}

func (f *fakeFeatureDetector) Supports(_ string, feature Feature) bool {
	return f.supports[feature]
}

func TestAgent_Step_ThreadsContinuationFromResponse(t *testing.T) {
	actor := &fakeActor{resp: &LLMResponse{Text: "ok", Continuation: "resp-123"}}
	a := newTestAgent(t, actor)

	result, err := a.Step(context.Background(), models.View{}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Continuation != "resp-123" {
		t.Fatalf("expected continuation to thread through, got %q", result.Continuation)
	}
	if actor.reqs[0].Continuation != "" {
		t.Fatalf("expected empty continuation on the first call, got %q", actor.reqs[0].Continuation)
	}

	result2, err := a.Step(context.Background(), models.View{}, result.Continuation)
	if err != nil {
		t.Fatalf("unexpected error on second step: %v", err)
	}
	if actor.reqs[1].Continuation != "resp-123" {
		t.Fatalf("expected the stored continuation to be resent, got %q", actor.reqs[1].Continuation)
	}
	_ = result2
}

func TestAgent_Step_AllowsContinuationWhenActorIsNotAFeatureDetector(t *testing.T) {
	actor := &fakeActor{resp: &LLMResponse{Text: "ok"}}
	a := newTestAgent(t, actor)

	if _, err := a.Step(context.Background(), models.View{}, "some-handle"); err != nil {
		t.Fatalf("expected a plain Actor to be trusted with a continuation, got %v", err)
	}
}

func TestAgent_Step_BlocksContinuationWhenModelDroppedResponsesSupport(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(&fakeTool{name: "read_file"})
	cfg := DefaultAgentConfig()
	cfg.Model = "test-model"
	detector := &fakeFeatureDetector{fakeActor: &fakeActor{resp: &LLMResponse{Text: "ok"}}, supports: map[Feature]bool{}}
	a := NewAgent(detector, reg, cfg)

	_, err := a.Step(context.Background(), models.View{}, "some-handle")
	if !IsModelSwitchNotAllowed(err) {
		t.Fatalf("expected ModelSwitchNotAllowedError, got %v", err)
	}
	if len(detector.reqs) != 0 {
		t.Fatalf("expected the provider to never be called once routing rejects the continuation")
	}
}

func TestAgent_Step_PermitsContinuationWhenModelStillSupportsResponses(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(&fakeTool{name: "read_file"})
	cfg := DefaultAgentConfig()
	cfg.Model = "test-model"
	detector := &fakeFeatureDetector{
		fakeActor: &fakeActor{resp: &LLMResponse{Text: "ok"}},
		supports:  map[Feature]bool{FeatureResponsesAPI: true},
	}
	a := NewAgent(detector, reg, cfg)

	if _, err := a.Step(context.Background(), models.View{}, "some-handle"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(detector.reqs) != 1 {
		t.Fatalf("expected the provider to be called once routing allows the continuation")
	}
}

func TestAgent_ClassifyRisk_FailsOpenToLowOnError(t *testing.T) {
	reg := NewToolRegistry()
	cfg := DefaultAgentConfig()
	cfg.RiskClassifier = &fakeRiskClassifier{err: errors.New("classifier down")}
	a := NewAgent(&fakeActor{}, reg, cfg)

	batch := []models.ActionEvent{{CallID: "c1", Tool: "rm"}, {CallID: "c2", Tool: "ls"}}
	levels := a.ClassifyRisk(context.Background(), batch, models.View{})
	if len(levels) != 2 {
		t.Fatalf("expected one level per action, got %d", len(levels))
	}
	for _, lv := range levels {
		if lv != models.RiskLevelLow {
			t.Fatalf("expected fail-open to low risk, got %q", lv)
		}
	}
}

func TestAgent_ClassifyRisk_FailsOpenOnLengthMismatch(t *testing.T) {
	reg := NewToolRegistry()
	cfg := DefaultAgentConfig()
	cfg.RiskClassifier = &fakeRiskClassifier{levels: []models.RiskLevel{models.RiskLevelHigh}}
	a := NewAgent(&fakeActor{}, reg, cfg)

	batch := []models.ActionEvent{{CallID: "c1"}, {CallID: "c2"}}
	levels := a.ClassifyRisk(context.Background(), batch, models.View{})
	if len(levels) != 2 || levels[0] != models.RiskLevelLow || levels[1] != models.RiskLevelLow {
		t.Fatalf("expected fail-open on mismatched result length, got %v", levels)
	}
}

func TestAgent_ClassifyRisk_UsesClassifierResultWhenValid(t *testing.T) {
	reg := NewToolRegistry()
	cfg := DefaultAgentConfig()
	cfg.RiskClassifier = &fakeRiskClassifier{levels: []models.RiskLevel{models.RiskLevelHigh, models.RiskLevelMedium}}
	a := NewAgent(&fakeActor{}, reg, cfg)

	batch := []models.ActionEvent{{CallID: "c1"}, {CallID: "c2"}}
	levels := a.ClassifyRisk(context.Background(), batch, models.View{})
	if levels[0] != models.RiskLevelHigh || levels[1] != models.RiskLevelMedium {
		t.Fatalf("expected classifier levels to pass through, got %v", levels)
	}
}
