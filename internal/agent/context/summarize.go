package context

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentcore/nexus/pkg/models"
)

// CondensationConfig configures when and how condensation runs.
type CondensationConfig struct {
	// MaxEventsBeforeCondensation is the threshold for triggering
	// condensation. Default: 30 events since the last condensation.
	MaxEventsBeforeCondensation int

	// KeepRecentEvents is how many recent events to keep un-condensed.
	// Default: 10.
	KeepRecentEvents int

	// MaxSummaryLength is the target length for summaries in characters.
	// Default: 2000.
	MaxSummaryLength int
}

// DefaultCondensationConfig returns sensible defaults.
func DefaultCondensationConfig() CondensationConfig {
	return CondensationConfig{
		MaxEventsBeforeCondensation: 30,
		KeepRecentEvents:            10,
		MaxSummaryLength:            2000,
	}
}

// SummaryProvider generates a natural-language summary of a run of
// events. Implementations typically call an LLM; NewLLMSummarizing
// wraps one into a Condenser.
type SummaryProvider interface {
	Summarize(ctx context.Context, events []models.Event, maxLength int) (string, error)
}

// Condenser decides whether a view needs condensing and, if so,
// produces the CondensationEvent to append to the log.
type Condenser interface {
	// Condense inspects log and returns a CondensationEvent to append,
	// or ok=false if no condensation is needed right now.
	Condense(ctx context.Context, log []models.Event) (ev models.Event, ok bool, err error)
}

// LLMSummarizing is a Condenser backed by a SummaryProvider.
type LLMSummarizing struct {
	provider SummaryProvider
	config   CondensationConfig
}

// NewLLMSummarizing creates a Condenser that triggers on event-count
// thresholds and delegates summary generation to provider.
func NewLLMSummarizing(provider SummaryProvider, config CondensationConfig) *LLMSummarizing {
	if config.MaxEventsBeforeCondensation <= 0 {
		config.MaxEventsBeforeCondensation = 30
	}
	if config.KeepRecentEvents <= 0 {
		config.KeepRecentEvents = 10
	}
	if config.MaxSummaryLength <= 0 {
		config.MaxSummaryLength = 2000
	}
	return &LLMSummarizing{provider: provider, config: config}
}

// Condense generates a new CondensationEvent if the log needs one.
func (s *LLMSummarizing) Condense(ctx context.Context, log []models.Event) (models.Event, bool, error) {
	latest := FindLatestCondensation(log)
	if !NeedsCondensation(log, latest, s.config.MaxEventsBeforeCondensation) {
		return models.Event{}, false, nil
	}

	toCondense := EventsToCondense(log, latest, s.config.KeepRecentEvents)
	if len(toCondense) == 0 {
		return models.Event{}, false, nil
	}

	summary, err := s.provider.Summarize(ctx, toCondense, s.config.MaxSummaryLength)
	if err != nil {
		return models.Event{}, false, fmt.Errorf("condense: %w", err)
	}

	condensedFrom := toCondense[0].Seq
	condensedTo := toCondense[len(toCondense)-1].Seq

	ev := models.Event{
		Type:   models.EventTypeCondensation,
		Source: models.EventSourceSystem,
		Condensation: &models.CondensationEvent{
			Summary:       summary,
			CondensedFrom: condensedFrom,
			CondensedTo:   condensedTo,
		},
	}
	return ev, true, nil
}

// NoOp is a Condenser that never condenses, for tests and for runs
// that disable condensation entirely.
type NoOp struct{}

// Condense always reports that no condensation is needed.
func (NoOp) Condense(ctx context.Context, log []models.Event) (models.Event, bool, error) {
	return models.Event{}, false, nil
}

// BuildSummarizationPrompt creates the prompt for summarizing events.
// This is used by LLM-based SummaryProvider implementations.
func BuildSummarizationPrompt(events []models.Event, maxLength int) string {
	var sb strings.Builder

	sb.WriteString("Please summarize the following conversation concisely. ")
	sb.WriteString(fmt.Sprintf("Keep the summary under %d characters. ", maxLength))
	sb.WriteString("Focus on:\n")
	sb.WriteString("- Key topics discussed\n")
	sb.WriteString("- Important decisions or conclusions\n")
	sb.WriteString("- Any pending tasks or questions\n")
	sb.WriteString("- Tool executions and their outcomes\n\n")
	sb.WriteString("Conversation:\n\n")

	for _, ev := range events {
		switch ev.Type {
		case models.EventTypeMessage:
			if ev.Message == nil {
				continue
			}
			sb.WriteString(fmt.Sprintf("[%s]: %s\n\n", ev.Message.Role, ev.Message.Content))

		case models.EventTypeAction:
			if ev.Action == nil {
				continue
			}
			sb.WriteString(fmt.Sprintf("[assistant]: [called tool: %s]\n\n", ev.Action.Tool))

		case models.EventTypeObservation:
			if ev.Observation == nil {
				continue
			}
			content := ev.Observation.Output
			if len(content) > 200 {
				content = content[:200] + "..."
			}
			status := "success"
			if ev.Observation.IsError {
				status = "error"
			}
			sb.WriteString(fmt.Sprintf("[tool result (%s)]: %s\n\n", status, content))
		}
	}

	sb.WriteString("---\nProvide a concise summary:")
	return sb.String()
}
