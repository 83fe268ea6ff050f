package agent

import (
	agentctx "github.com/agentcore/nexus/internal/agent/context"
	"github.com/agentcore/nexus/internal/security"
	"github.com/agentcore/nexus/internal/tools/policy"
	"github.com/agentcore/nexus/pkg/models"

	"context"
)

// Actor is the minimal capability an Agent needs from an LLM backend: a
// single concrete LLMProvider, a routing.Router fanning out across
// several, or a FailoverOrchestrator all satisfy it structurally, since
// none of them need their full interface to answer a single Act call.
type Actor interface {
	Act(ctx context.Context, req *Request) (*LLMResponse, error)
}

// StepResult is what Agent.Step hands back to the driver: exactly one of
// Actions or Message is populated. The driver is responsible for turning
// a successful finish-tool execution into an AgentFinishedEvent; Agent
// itself never observes tool results.
type StepResult struct {
	Actions []models.ActionEvent
	Message *models.MessageEvent

	// Continuation carries the stateful provider's handle for this
	// turn, if any, so the driver can resend only the delta next time
	// instead of the whole view (§4.3/§4.4). Empty for completions-path
	// providers and for a responses-path provider that answers
	// statelessly.
	Continuation string
}

// AgentConfig holds an Agent's model defaults and its context/security
// pipeline.
type AgentConfig struct {
	Model     string
	System    string
	MaxTokens int

	EnableThinking       bool
	ThinkingBudgetTokens int

	Packer    *agentctx.Packer
	Condenser agentctx.Condenser

	// PruneSettings, when set, trims or clears stale tool result content
	// from the log before it is packed for the next request.
	PruneSettings *agentctx.ContextPruningSettings

	Microagents *agentctx.MicroagentSet

	RiskClassifier security.RiskClassifier

	PolicyResolver *policy.Resolver
	ToolPolicy     *policy.Policy
}

// DefaultAgentConfig returns an AgentConfig with a no-op condenser and
// security classifier, suitable until a conversation wires in real ones.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxTokens:      4096,
		Packer:         agentctx.NewPacker(agentctx.DefaultPackOptions()),
		Condenser:      agentctx.NoOp{},
		RiskClassifier: security.NoOp{},
	}
}

// Agent assembles a model request from conversation state, dispatches it
// to an Actor, and parses the response into typed events. It holds no
// conversation log of its own — the driver owns that — only the
// system-prompt-emitted bookkeeping needed to make InitState idempotent
// per conversation.
type Agent struct {
	actor    Actor
	registry *ToolRegistry
	cfg      AgentConfig

	promptedAt map[string]bool
}

// NewAgent builds an Agent around actor and registry, filling any unset
// AgentConfig fields with safe defaults.
func NewAgent(actor Actor, registry *ToolRegistry, cfg AgentConfig) *Agent {
	if cfg.Packer == nil {
		cfg.Packer = agentctx.NewPacker(agentctx.DefaultPackOptions())
	}
	if cfg.Condenser == nil {
		cfg.Condenser = agentctx.NoOp{}
	}
	if cfg.RiskClassifier == nil {
		cfg.RiskClassifier = security.NoOp{}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &Agent{
		actor:      actor,
		registry:   registry,
		cfg:        cfg,
		promptedAt: make(map[string]bool),
	}
}

// InitState renders the system prompt and every active repo microagent
// into a SystemPromptEvent, once per conversation. A second call for the
// same conversationID returns (nil, nil) so the driver can call it
// unconditionally at the top of a run.
func (a *Agent) InitState(conversationID string, opts agentctx.SystemPromptOptions) (*models.SystemPromptEvent, error) {
	if a.promptedAt[conversationID] {
		return nil, nil
	}

	content, err := agentctx.RenderSystemPrompt(opts)
	if err != nil {
		return nil, err
	}

	var included []string
	if a.cfg.Microagents != nil {
		for _, m := range a.cfg.Microagents.Repo() {
			content = content + "\n\n" + m.Content
			included = append(included, m.Name)
		}
	}

	a.promptedAt[conversationID] = true
	return &models.SystemPromptEvent{Content: content, MicroagentsIncluded: included}, nil
}

// ActivateMicroagents scans a user message for knowledge microagent
// triggers and returns an activation event for each microagent that
// transitions to active as a result. Already-active microagents are
// never re-reported.
func (a *Agent) ActivateMicroagents(message string) []models.MicroagentActivationEvent {
	if a.cfg.Microagents == nil {
		return nil
	}
	activations := a.cfg.Microagents.CheckActivations(message)
	out := make([]models.MicroagentActivationEvent, 0, len(activations))
	for _, r := range activations {
		out = append(out, models.MicroagentActivationEvent{
			Name:    r.Agent.Name,
			Trigger: r.Trigger,
			Content: r.Agent.Content,
		})
	}
	return out
}

// Condense delegates to the configured Condenser, letting it decide
// whether log has crossed its condensation trigger.
func (a *Agent) Condense(ctx context.Context, log []models.Event) (models.Event, bool, error) {
	return a.cfg.Condenser.Condense(ctx, log)
}

// ClassifyRisk runs the configured security analyzer over a pending
// batch of actions. A classifier error, or a classifier that returns the
// wrong number of levels, fails open to low risk for the whole batch
// rather than blocking the driver.
func (a *Agent) ClassifyRisk(ctx context.Context, batch []models.ActionEvent, view models.View) []models.RiskLevel {
	if a.cfg.RiskClassifier == nil {
		return fillLowRisk(len(batch))
	}
	levels, err := a.cfg.RiskClassifier.Classify(ctx, batch, view)
	if err != nil || len(levels) != len(batch) {
		return fillLowRisk(len(batch))
	}
	return levels
}

func fillLowRisk(n int) []models.RiskLevel {
	out := make([]models.RiskLevel, n)
	for i := range out {
		out[i] = models.RiskLevelLow
	}
	return out
}

// Step packs view down to the configured context budget, builds a
// Request from it plus the registry's policy-filtered tool specs, and
// dispatches to the Actor. The response is parsed into either a batch of
// ActionEvents sharing this step, or a terminal assistant message — an
// LLMResponse never has to carry both, since a finished turn with tool
// calls pending is not actually finished.
func (a *Agent) Step(ctx context.Context, view models.View, continuation string) (*StepResult, error) {
	if err := a.checkPathRouting(continuation); err != nil {
		return nil, err
	}

	if a.cfg.PruneSettings != nil {
		view.Events = agentctx.PruneContextEvents(view.Events, *a.cfg.PruneSettings, a.cfg.Packer.MaxChars())
	}
	packed := a.cfg.Packer.Pack(view)
	tools := a.registry.Specs(a.cfg.PolicyResolver, a.cfg.ToolPolicy)

	req := &Request{
		Model:                a.cfg.Model,
		System:               a.cfg.System,
		View:                 packed,
		Tools:                tools,
		MaxTokens:            a.cfg.MaxTokens,
		EnableThinking:       a.cfg.EnableThinking,
		ThinkingBudgetTokens: a.cfg.ThinkingBudgetTokens,
		Continuation:         continuation,
	}

	resp, err := a.actor.Act(ctx, req)
	if err != nil {
		return nil, err
	}
	return parseResponse(resp), nil
}

// checkPathRouting implements §4.3's path-routing table's hard-fail row:
// a continuation handle is only ever valid to resend if the actor can
// confirm the current model still speaks the responses path. An actor
// that doesn't implement FeatureDetector (a router fanning out across
// several providers, say) can't be asked, so the handle is trusted as-is
// rather than blocked — the detector is an optional, not a mandatory,
// capability.
func (a *Agent) checkPathRouting(continuation string) error {
	if continuation == "" {
		return nil
	}
	detector, ok := a.actor.(FeatureDetector)
	if !ok {
		return nil
	}
	if !detector.Supports(a.cfg.Model, FeatureResponsesAPI) {
		return &ModelSwitchNotAllowedError{Model: a.cfg.Model, Continuation: continuation}
	}
	return nil
}

func parseResponse(resp *LLMResponse) *StepResult {
	if len(resp.Actions) > 0 {
		return &StepResult{Actions: resp.Actions, Continuation: resp.Continuation}
	}
	return &StepResult{
		Continuation: resp.Continuation,
		Message: &models.MessageEvent{
			Role:    models.MessageRoleAssistant,
			Content: resp.Text,
		},
	}
}
