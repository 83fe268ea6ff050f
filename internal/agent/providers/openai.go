package providers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentcore/nexus/internal/agent"
	"github.com/agentcore/nexus/pkg/models"
)

// OpenAIProvider implements agent.LLMProvider against OpenAI's Chat
// Completions API. It speaks the "completions" path: every Act call
// resends the full view, and Continuation is always left empty.
type OpenAIProvider struct {
	client       *openai.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewOpenAIProvider creates a provider bound to the Chat Completions API.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-4o"
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,
		defaultModel: config.DefaultModel,
	}, nil
}

func (p *OpenAIProvider) Name() string     { return "openai" }
func (p *OpenAIProvider) Path() agent.Path { return agent.PathCompletions }

// Supports answers the adapter's feature-detection table (§4.4). This
// provider only ever speaks the completions path; o1 drops vision and
// stop-word support in exchange for reasoning effort, while the gpt-4o
// family is the reverse.
func (p *OpenAIProvider) Supports(model string, feature agent.Feature) bool {
	name := normalizeModelName(model)
	isReasoningModel := matchesAny(name, "o1*", "o3*")
	switch feature {
	case agent.FeatureResponsesAPI:
		return false
	case agent.FeatureFunctionCalling, agent.FeaturePromptCache:
		return true
	case agent.FeatureVision, agent.FeatureStopWords:
		return !isReasoningModel
	case agent.FeatureReasoningEffort:
		return isReasoningModel
	default:
		return false
	}
}

func (p *OpenAIProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000, SupportsVision: true, SupportsTools: true},
		{ID: "gpt-4o-mini", Name: "GPT-4o mini", ContextSize: 128000, SupportsVision: true, SupportsTools: true},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextSize: 128000, SupportsVision: true, SupportsTools: true},
		{ID: "o1", Name: "o1", ContextSize: 200000, SupportsVision: false, SupportsTools: true},
	}
}

func (p *OpenAIProvider) SupportsTools() bool { return true }

func (p *OpenAIProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

// Act sends req's view to the Chat Completions API and translates the
// response into an LLMResponse. Because this path is stateless, the
// entire view is resent on every call.
func (p *OpenAIProvider) Act(ctx context.Context, req *agent.Request) (*agent.LLMResponse, error) {
	start := time.Now()

	messages := convertTurnsToOpenAI(req.System, viewToTurns(req.View))

	chatReq := openai.ChatCompletionRequest{
		Model:    p.getModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToolsToOpenAI(req.Tools)
	}

	var resp openai.ChatCompletionResponse
	retryErr := backoffRetry(ctx, p.maxRetries, p.retryDelay, func(attempt int, lastErr error) error {
		chatReq.Temperature = float32(nudgeTemperatureOnRateLimit(req.Temperature, lastErr))
		r, err := p.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return err
		}
		if len(r.Choices) == 0 {
			return &agent.NoResponseError{Provider: "openai", Model: p.getModel(req.Model)}
		}
		resp = r
		return nil
	})
	if retryErr != nil {
		if ClassifyError(retryErr) == FailoverContextOverflow {
			return nil, &agent.ContextWindowExceededError{Provider: "openai", Model: p.getModel(req.Model), Cause: retryErr}
		}
		if agent.IsNoResponse(retryErr) {
			return openaiResponseToResponse(resp, start), nil
		}
		return nil, NewProviderError("openai", p.getModel(req.Model), retryErr)
	}

	return openaiResponseToResponse(resp, start), nil
}

func convertTurnsToOpenAI(system string, turns []turn) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, t := range turns {
		switch {
		case len(t.toolUses) > 0:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: t.text}
			for _, call := range t.toolUses {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   call.CallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Tool,
						Arguments: string(call.Args),
					},
				})
			}
			messages = append(messages, msg)

		case len(t.toolResults) > 0:
			for _, obs := range t.toolResults {
				messages = append(messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    obs.Output,
					ToolCallID: obs.CallID,
				})
			}

		case t.role == turnAssistant:
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: t.text})

		default:
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: t.text})
		}
	}

	return messages
}

func convertToolsToOpenAI(specs []agent.ToolSpec) []openai.Tool {
	tools := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		var params any
		if len(spec.Schema) > 0 {
			_ = json.Unmarshal(spec.Schema, &params)
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

func openaiResponseToResponse(resp openai.ChatCompletionResponse, start time.Time) *agent.LLMResponse {
	out := &agent.LLMResponse{
		Elapsed: time.Since(start),
		Usage: agent.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		Finished: true,
	}
	if len(resp.Choices) == 0 {
		return out
	}

	choice := resp.Choices[0]
	out.Text = choice.Message.Content
	for _, call := range choice.Message.ToolCalls {
		out.Actions = append(out.Actions, models.ActionEvent{
			CallID: call.ID,
			Tool:   call.Function.Name,
			Args:   json.RawMessage(call.Function.Arguments),
		})
	}
	out.Finished = len(out.Actions) == 0 && string(choice.FinishReason) != "length"

	return out
}
