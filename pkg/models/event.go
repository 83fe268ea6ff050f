// Package models provides the domain types shared across the agent
// execution core: the append-only conversation event log, messages, and
// tool-call payloads.
package models

import "time"

// Event is the single discriminated union that makes up a conversation's
// append-only log. Exactly one payload field is populated for a given
// Type; the rest stay nil. Producers must only ever append - the log is
// replayed in order to reconstruct agent state, so events are never
// mutated or removed once written.
type Event struct {
	// ID is a unique, monotonically-sortable identifier (ULID/UUIDv7 style).
	ID string `json:"id"`

	// Seq is the event's 0-based position in its conversation's log.
	Seq int `json:"seq"`

	// ConversationID groups events belonging to one conversation.
	ConversationID string `json:"conversation_id"`

	Type EventType `json:"type"`
	Time time.Time `json:"time"`

	// Source attributes the event to "user", "agent", or "system".
	Source EventSource `json:"source,omitempty"`

	Message             *MessageEvent             `json:"message,omitempty"`
	Action              *ActionEvent              `json:"action,omitempty"`
	Observation         *ObservationEvent         `json:"observation,omitempty"`
	SystemPrompt        *SystemPromptEvent        `json:"system_prompt,omitempty"`
	MicroagentActivation *MicroagentActivationEvent `json:"microagent_activation,omitempty"`
	Condensation        *CondensationEvent        `json:"condensation,omitempty"`
	Pause               *PauseEvent               `json:"pause,omitempty"`
	Rejection           *RejectionEvent           `json:"rejection,omitempty"`
	AgentError          *AgentErrorEvent          `json:"agent_error,omitempty"`
	AgentFinished       *AgentFinishedEvent       `json:"agent_finished,omitempty"`
}

// EventType identifies the kind of conversation event.
type EventType string

const (
	EventTypeMessage              EventType = "message"
	EventTypeAction                EventType = "action"
	EventTypeObservation           EventType = "observation"
	EventTypeSystemPrompt          EventType = "system_prompt"
	EventTypeMicroagentActivation  EventType = "microagent_activation"
	EventTypeCondensation          EventType = "condensation"
	EventTypePause                 EventType = "pause"
	EventTypeRejection             EventType = "rejection"
	EventTypeAgentError            EventType = "agent_error"
	EventTypeAgentFinished         EventType = "agent_finished"
)

// EventSource attributes an event to its originator.
type EventSource string

const (
	EventSourceUser  EventSource = "user"
	EventSourceAgent EventSource = "agent"
	EventSourceSystem EventSource = "system"
)

// MessageEvent is a user or agent chat message.
type MessageEvent struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
	// Images holds any attached image references (data URLs or URIs).
	Images []string `json:"images,omitempty"`
}

// ActionEvent is a tool call the agent has decided to make. Args is the
// raw JSON arguments as produced by the model; each Tool is responsible
// for unmarshaling it into its own typed parameters.
type ActionEvent struct {
	CallID string `json:"call_id"`
	Tool   string `json:"tool"`
	Args   []byte `json:"args"`

	// Thought is the model's accompanying reasoning text, if any.
	Thought string `json:"thought,omitempty"`

	// RiskLevel is attached by the security analyzer before execution.
	RiskLevel RiskLevel `json:"risk_level,omitempty"`

	// Confirmed is true once a confirmation-mode action has been
	// explicitly approved (via Resume) and is eligible for execution.
	Confirmed bool `json:"confirmed,omitempty"`
}

// RiskLevel is the security analyzer's classification of an action.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// ObservationEvent is the result of executing an ActionEvent.
type ObservationEvent struct {
	CallID  string `json:"call_id"`
	Tool    string `json:"tool"`
	Output  string `json:"output"`
	IsError bool   `json:"is_error,omitempty"`

	// Rejected is true when this observation was synthesized because the
	// corresponding action was rejected (confirmation denied) or dropped
	// by transcript repair rather than actually executed.
	Rejected bool `json:"rejected,omitempty"`

	Elapsed time.Duration `json:"elapsed,omitempty"`
}

// SystemPromptEvent carries the rendered system prompt used for a turn.
// Recorded so replays can reconstruct exactly what the model saw.
type SystemPromptEvent struct {
	Content string `json:"content"`
	// MicroagentsIncluded lists the names of microagents folded into
	// this prompt render.
	MicroagentsIncluded []string `json:"microagents_included,omitempty"`
}

// MicroagentActivationEvent records a microagent being triggered into
// the active context. Activation is idempotent: re-triggering an
// already-active microagent in the same conversation does not emit a
// second activation event.
type MicroagentActivationEvent struct {
	Name    string   `json:"name"`
	Trigger string   `json:"trigger,omitempty"` // matched keyword, empty for always-active
	Always  bool     `json:"always,omitempty"`
	Content string   `json:"content"`
}

// CondensationEvent replaces a run of prior events with a summary,
// keeping the log append-only: the original events remain in the log,
// but view_for_llm() renders this event in their place.
type CondensationEvent struct {
	Summary        string `json:"summary"`
	CondensedFrom  int    `json:"condensed_from"` // inclusive Seq
	CondensedTo    int    `json:"condensed_to"`   // inclusive Seq
}

// PauseEvent marks the conversation as paused, awaiting confirmation of
// one or more pending ActionEvents.
type PauseEvent struct {
	Reason        string   `json:"reason"`
	PendingCallIDs []string `json:"pending_call_ids"`
}

// RejectionEvent records a user rejecting pending actions. The driver
// responds by synthesizing rejected ObservationEvents for each call ID.
type RejectionEvent struct {
	CallIDs []string `json:"call_ids"`
	Reason  string   `json:"reason,omitempty"`
}

// AgentErrorEvent records a terminal or recoverable error surfaced
// during a step.
type AgentErrorEvent struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Retriable bool   `json:"retriable,omitempty"`
}

// AgentFinishedEvent marks the agent voluntarily ending its turn via the
// built-in finish tool.
type AgentFinishedEvent struct {
	FinalMessage string `json:"final_message"`
}

// MessageRole is the chat role of a MessageEvent.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)
