package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agentcore/nexus/pkg/models"
)

// Path distinguishes the two families of LLM wire protocols this module
// supports. Completions providers (OpenAI's chat/completions shape) are
// stateless: every call resends the full message history. Responses
// providers (Anthropic/Gemini/Bedrock's responses shape) are stateful:
// a call can continue a prior turn via a continuation handle instead of
// resending everything.
type Path string

const (
	PathCompletions Path = "completions"
	PathResponses   Path = "responses"
)

// LLMProvider is the interface every model backend implements. Exactly
// one LLMResponse shape is returned regardless of the provider's native
// path, so the driver never branches on provider identity.
type LLMProvider interface {
	// Name returns the provider's identifier (e.g. "anthropic", "openai").
	Name() string

	// Path reports which wire-protocol family this provider speaks.
	Path() Path

	// Act sends the given view (already packed/condensed) to the model
	// and returns its response. Implementations own translating the
	// view into their native request shape and parsing the native
	// response back into an LLMResponse.
	Act(ctx context.Context, req *Request) (*LLMResponse, error)

	// Models returns the catalog of models this provider exposes.
	Models() []Model

	// SupportsTools reports whether this provider can be given tool
	// schemas at all.
	SupportsTools() bool
}

// Request is the provider-agnostic input to an LLMProvider.Act call.
type Request struct {
	Model  string
	System string

	// View is the condensation-transparent conversation view to send.
	View models.View

	// Tools lists the tool schemas available this turn.
	Tools []ToolSpec

	MaxTokens            int
	EnableThinking       bool
	ThinkingBudgetTokens int

	// Temperature is the sampling temperature to request, if any. Zero
	// is both Go's zero value and a commonly-requested deterministic
	// setting, so a retry triggered by a rate limit nudges it upward
	// rather than distinguishing "unset" from "explicitly zero".
	Temperature float64

	// Continuation carries a stateful provider's prior-turn handle, if
	// any. Completions providers always leave this empty and resend the
	// whole View instead.
	Continuation string
}

// Feature names an LLM adapter capability a model may or may not
// support, per the feature-detection table every provider is expected
// to answer queries against.
type Feature string

const (
	FeatureVision          Feature = "vision"
	FeatureFunctionCalling Feature = "function-calling"
	FeaturePromptCache     Feature = "prompt-cache"
	FeatureReasoningEffort Feature = "reasoning-effort"
	FeatureResponsesAPI    Feature = "responses-api"
	FeatureStopWords       Feature = "stop-words"
)

// FeatureDetector is an optional capability an LLMProvider may
// implement to answer whether a specific model supports feature. It is
// a separate interface, rather than part of LLMProvider itself, so
// wrapping Actors (a routing.Router fanning out across several
// providers, a FailoverOrchestrator) aren't forced to answer a
// per-model question that only a concrete provider can. The Agent
// checks for it via a type assertion before trusting a continuation
// handle to a model (§4.3 path routing).
type FeatureDetector interface {
	Supports(model string, feature Feature) bool
}

// ToolSpec is the provider-agnostic schema for a single tool, generated
// once per Action type and translated per-provider by the toolconv
// package.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// LLMResponse is the single unified shape every provider returns,
// regardless of whether it spoke the completions or responses wire
// protocol.
type LLMResponse struct {
	// Text is the assistant's natural-language reply, if any.
	Text string

	// Thinking is any extended-reasoning text the model produced. For
	// responses-path providers this may be opaque/encrypted; Encrypted
	// is then true and Thinking holds the provider's encrypted blob
	// rather than plaintext, to be passed back verbatim on the next
	// turn rather than re-derived.
	Thinking  string
	Encrypted bool

	// Actions lists tool calls the model wants executed.
	Actions []models.ActionEvent

	// Continuation is the stateful provider's handle for continuing
	// this turn on the next Act call. Empty for completions providers.
	Continuation string

	// Finished is true when the model ended its turn without emitting
	// further actions (equivalent to calling the built-in finish tool).
	Finished bool

	Usage   Usage
	Elapsed time.Duration
}

// Usage aggregates token accounting for a single Act call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	// CachedInputTokens counts input tokens served from a provider-side
	// prompt cache, where supported.
	CachedInputTokens int
}

// Model describes an available model and its capabilities.
type Model struct {
	ID             string
	Name           string
	ContextSize    int
	SupportsVision bool
	SupportsTools  bool
}
