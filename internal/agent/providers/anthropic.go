package providers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentcore/nexus/internal/agent"
	"github.com/agentcore/nexus/pkg/models"
)

// AnthropicProvider implements agent.LLMProvider against Anthropic's
// Messages API. It speaks the "responses" path, but the Messages API
// itself has no previous_response_id equivalent: every Act call must
// resend the full view regardless of Continuation. To still satisfy
// the generic continuation plumbing (§4.3/§4.4/§6), Act synthesizes a
// Continuation handle from the response id it returns; the handle
// round-trips through Request.Continuation on the next turn purely so
// the Agent's path-routing check (checkPathRouting) and a persisted
// ConversationState's continuation_handle have something meaningful to
// carry, not to skip resending history.
type AnthropicProvider struct {
	client        anthropic.Client
	maxRetries    int
	retryDelay    time.Duration
	defaultModel  string
	cachingPrompt bool
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string

	// CachingPrompt enables prompt-cache markers on the system prompt
	// and the latest user message (§4.4), corresponding to the
	// `caching_prompt` LLM configuration option (§6).
	CachingPrompt bool
}

// NewAnthropicProvider creates a provider bound to the Anthropic Messages API.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client:        anthropic.NewClient(opts...),
		maxRetries:    config.MaxRetries,
		retryDelay:    config.RetryDelay,
		defaultModel:  config.DefaultModel,
		cachingPrompt: config.CachingPrompt,
	}, nil
}

func (p *AnthropicProvider) Name() string     { return "anthropic" }
func (p *AnthropicProvider) Path() agent.Path { return agent.PathResponses }

// Supports answers the adapter's feature-detection table (§4.4) for
// Claude models. Every model in this family speaks the responses path
// and supports prompt caching and stop sequences; only the newer
// generations (sonnet-4/opus-4 and later) report reasoning-effort, and
// none speak OpenAI-style named-function completions tool schemas
// differently from the responses shape, so function-calling and vision
// are uniformly true across the catalog this provider serves.
func (p *AnthropicProvider) Supports(model string, feature agent.Feature) bool {
	name := normalizeModelName(model)
	switch feature {
	case agent.FeatureResponsesAPI, agent.FeaturePromptCache, agent.FeatureStopWords,
		agent.FeatureVision, agent.FeatureFunctionCalling:
		return true
	case agent.FeatureReasoningEffort:
		return matchesAny(name, "claude-sonnet-4*", "claude-opus-4*", "claude-3-7-sonnet*")
	default:
		return false
	}
}

func (p *AnthropicProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000, SupportsVision: true, SupportsTools: true},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextSize: 200000, SupportsVision: true, SupportsTools: true},
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextSize: 200000, SupportsVision: true, SupportsTools: true},
		{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", ContextSize: 200000, SupportsVision: true, SupportsTools: true},
	}
}

func (p *AnthropicProvider) SupportsTools() bool { return true }

func (p *AnthropicProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

// Act sends req's view to Claude and translates the response into an LLMResponse.
func (p *AnthropicProvider) Act(ctx context.Context, req *agent.Request) (*agent.LLMResponse, error) {
	start := time.Now()

	messages, err := convertTurnsToAnthropic(viewToTurns(req.View))
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.getModel(req.Model)),
		Messages:  messages,
		MaxTokens: int64(maxTokensOrDefault(req.MaxTokens)),
	}
	if req.System != "" {
		sysBlock := anthropic.TextBlockParam{Text: req.System}
		if p.cachingPrompt {
			sysBlock.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		params.System = []anthropic.TextBlockParam{sysBlock}
	}
	if len(req.Tools) > 0 {
		tools, err := convertToolsToAnthropic(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	if req.EnableThinking && req.ThinkingBudgetTokens > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(req.ThinkingBudgetTokens))
	}
	if p.cachingPrompt {
		markLatestUserMessageCacheable(params.Messages)
	}

	var message *anthropic.Message
	retryErr := backoffRetry(ctx, p.maxRetries, p.retryDelay, func(attempt int, lastErr error) error {
		params.Temperature = anthropic.Float(nudgeTemperatureOnRateLimit(req.Temperature, lastErr))
		m, err := p.client.Messages.New(ctx, params)
		if err != nil {
			return err
		}
		message = m
		return nil
	})
	if retryErr != nil {
		if ClassifyError(retryErr) == FailoverContextOverflow {
			return nil, &agent.ContextWindowExceededError{Provider: "anthropic", Model: p.getModel(req.Model), Cause: retryErr}
		}
		return nil, NewProviderError("anthropic", p.getModel(req.Model), retryErr)
	}

	return anthropicMessageToResponse(message, start), nil
}

// markLatestUserMessageCacheable sets a cache-control breakpoint on the
// last content block of the most recent user message, per §4.4's
// system/latest-user-boundary cache hint placement.
func markLatestUserMessageCacheable(messages []anthropic.MessageParam) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != anthropic.MessageParamRoleUser {
			continue
		}
		blocks := messages[i].Content
		if len(blocks) == 0 {
			return
		}
		last := blocks[len(blocks)-1]
		if last.OfText != nil {
			last.OfText.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		return
	}
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return 4096
	}
	return n
}

func convertTurnsToAnthropic(turns []turn) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		var blocks []anthropic.ContentBlockParamUnion
		if t.text != "" {
			blocks = append(blocks, anthropic.NewTextBlock(t.text))
		}
		for _, call := range t.toolUses {
			var input any
			if len(call.Args) > 0 {
				if err := json.Unmarshal(call.Args, &input); err != nil {
					input = string(call.Args)
				}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(call.CallID, input, call.Tool))
		}
		for _, obs := range t.toolResults {
			blocks = append(blocks, anthropic.NewToolResultBlock(obs.CallID, obs.Output, obs.IsError))
		}
		if len(blocks) == 0 {
			continue
		}
		if t.role == turnAssistant {
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		} else {
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
	}
	return result, nil
}

func convertToolsToAnthropic(specs []agent.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(spec.Schema, &schema); err != nil {
			return nil, err
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, spec.Name)
		toolParam.OfTool.Description = anthropic.String(spec.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

func anthropicMessageToResponse(message *anthropic.Message, start time.Time) *agent.LLMResponse {
	resp := &agent.LLMResponse{
		Elapsed: time.Since(start),
		Usage: agent.Usage{
			InputTokens:       int(message.Usage.InputTokens),
			OutputTokens:      int(message.Usage.OutputTokens),
			CachedInputTokens: int(message.Usage.CacheReadInputTokens),
		},
		// Continuation carries the message id back to the caller so a
		// persisted ConversationState has a non-empty continuation_handle
		// to store and resend, even though Act itself always resends the
		// full view rather than relying on it (see the provider doc
		// comment's note on the Messages API having no previous_response_id
		// equivalent).
		Continuation: message.ID,
	}

	var textParts []string
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			textParts = append(textParts, variant.Text)
		case anthropic.ToolUseBlock:
			argsJSON, _ := json.Marshal(variant.Input)
			resp.Actions = append(resp.Actions, models.ActionEvent{
				CallID: variant.ID,
				Tool:   variant.Name,
				Args:   argsJSON,
			})
		case anthropic.ThinkingBlock:
			resp.Thinking = variant.Thinking
		case anthropic.RedactedThinkingBlock:
			resp.Thinking = variant.Data
			resp.Encrypted = true
		}
	}
	resp.Text = strings.Join(textParts, "\n")
	resp.Finished = len(resp.Actions) == 0 && string(message.StopReason) != "max_tokens"

	return resp
}
