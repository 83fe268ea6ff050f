package agent

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors for agent operations.
var (
	ErrMaxIterations    = errors.New("max iterations exceeded")
	ErrContextCancelled = errors.New("context cancelled")
	ErrNoProvider       = errors.New("no provider configured")
	ErrToolNotFound     = errors.New("tool not found")
	ErrToolTimeout      = errors.New("tool execution timed out")
	ErrToolPanic        = errors.New("tool panicked")
	ErrBackpressure     = errors.New("backpressure: system overloaded")
	ErrPaused           = errors.New("conversation is paused pending confirmation")
	ErrStuck            = errors.New("stuck detected: repeated identical tool calls")
)

// ToolErrorType categorizes tool execution errors for retry logic.
type ToolErrorType string

const (
	ToolErrorNotFound     ToolErrorType = "not_found"
	ToolErrorInvalidInput ToolErrorType = "invalid_input"
	ToolErrorTimeout      ToolErrorType = "timeout"
	ToolErrorNetwork      ToolErrorType = "network"
	ToolErrorPermission   ToolErrorType = "permission"
	ToolErrorRateLimit    ToolErrorType = "rate_limit"
	ToolErrorExecution    ToolErrorType = "execution"
	ToolErrorPanic        ToolErrorType = "panic"
	ToolErrorUnknown      ToolErrorType = "unknown"
)

// IsRetryable returns true if this error type suggests retrying may succeed.
func (t ToolErrorType) IsRetryable() bool {
	switch t {
	case ToolErrorTimeout, ToolErrorNetwork, ToolErrorRateLimit:
		return true
	default:
		return false
	}
}

// ToolError is a structured error from tool execution with categorization
// for retry logic and context about the failure.
type ToolError struct {
	Type       ToolErrorType
	ToolName   string
	ToolCallID string
	Message    string
	Cause      error
	Retryable  bool
	Attempts   int
}

func (e *ToolError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[tool:%s]", e.Type))
	if e.ToolName != "" {
		parts = append(parts, e.ToolName)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	if e.Attempts > 1 {
		parts = append(parts, fmt.Sprintf("(attempts=%d)", e.Attempts))
	}
	return strings.Join(parts, " ")
}

func (e *ToolError) Unwrap() error { return e.Cause }

// NewToolError creates a ToolError with automatic error classification.
func NewToolError(toolName string, cause error) *ToolError {
	err := &ToolError{ToolName: toolName, Cause: cause, Type: ToolErrorUnknown, Attempts: 1}
	if cause != nil {
		err.Message = cause.Error()
		err.Type = classifyToolError(cause)
		err.Retryable = err.Type.IsRetryable()
	}
	return err
}

func (e *ToolError) WithType(t ToolErrorType) *ToolError {
	e.Type = t
	e.Retryable = t.IsRetryable()
	return e
}

func (e *ToolError) WithToolCallID(id string) *ToolError {
	e.ToolCallID = id
	return e
}

func (e *ToolError) WithMessage(msg string) *ToolError {
	e.Message = msg
	return e
}

func (e *ToolError) WithAttempts(n int) *ToolError {
	e.Attempts = n
	return e
}

func classifyToolError(err error) ToolErrorType {
	if err == nil {
		return ToolErrorUnknown
	}
	if errors.Is(err, ErrToolNotFound) {
		return ToolErrorNotFound
	}
	if errors.Is(err, ErrToolTimeout) {
		return ToolErrorTimeout
	}
	if errors.Is(err, ErrToolPanic) {
		return ToolErrorPanic
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"), strings.Contains(errStr, "context deadline"):
		return ToolErrorTimeout
	case strings.Contains(errStr, "connection"), strings.Contains(errStr, "network"), strings.Contains(errStr, "dns"), strings.Contains(errStr, "refused"), strings.Contains(errStr, "unreachable"):
		return ToolErrorNetwork
	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "rate_limit"), strings.Contains(errStr, "too many requests"), strings.Contains(errStr, "429"):
		return ToolErrorRateLimit
	case strings.Contains(errStr, "permission"), strings.Contains(errStr, "forbidden"), strings.Contains(errStr, "unauthorized"), strings.Contains(errStr, "access denied"):
		return ToolErrorPermission
	case strings.Contains(errStr, "invalid"), strings.Contains(errStr, "validation"), strings.Contains(errStr, "required"), strings.Contains(errStr, "missing"):
		return ToolErrorInvalidInput
	default:
		return ToolErrorExecution
	}
}

// IsToolError checks if an error is or wraps a ToolError.
func IsToolError(err error) bool {
	var toolErr *ToolError
	return errors.As(err, &toolErr)
}

// GetToolError extracts a ToolError from an error chain.
func GetToolError(err error) (*ToolError, bool) {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}

// IsToolRetryable checks if a tool error should be retried based on its type.
func IsToolRetryable(err error) bool {
	if toolErr, ok := GetToolError(err); ok {
		return toolErr.Retryable
	}
	return classifyToolError(err).IsRetryable()
}

// ModelSwitchNotAllowedError is raised before any provider call when a
// continuation handle is active but the model now in play no longer
// advertises responses-path support (§4.3 path routing, §7). Unlike
// ToolError/ProviderError this is never retried — the caller must start
// a fresh turn (drop the continuation) or switch back to a model that
// still supports it.
type ModelSwitchNotAllowedError struct {
	Model        string
	Continuation string
}

func (e *ModelSwitchNotAllowedError) Error() string {
	return fmt.Sprintf("model switch not allowed: %q no longer supports the responses path needed to continue handle %q", e.Model, e.Continuation)
}

// IsModelSwitchNotAllowed reports whether err is a ModelSwitchNotAllowedError.
func IsModelSwitchNotAllowed(err error) bool {
	var e *ModelSwitchNotAllowedError
	return errors.As(err, &e)
}

// ContextWindowExceededError signals that a provider rejected a request
// for exceeding its context window. The adapter never retries this
// directly (§4.4); it propagates to the Agent, which asks the
// Condenser to shrink the view and retries the step once.
type ContextWindowExceededError struct {
	Provider string
	Model    string
	Cause    error
}

func (e *ContextWindowExceededError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: context window exceeded for model %q: %v", e.Provider, e.Model, e.Cause)
	}
	return fmt.Sprintf("%s: context window exceeded for model %q", e.Provider, e.Model)
}

func (e *ContextWindowExceededError) Unwrap() error { return e.Cause }

// IsContextWindowExceeded reports whether err is a ContextWindowExceededError.
func IsContextWindowExceeded(err error) bool {
	var e *ContextWindowExceededError
	return errors.As(err, &e)
}

// NoResponseError signals a provider returned a well-formed but empty
// completion (no text, no tool calls) - some models deterministically
// re-emit these, so the adapter retries it like any transient error
// rather than treating it as a terminal turn.
type NoResponseError struct {
	Provider string
	Model    string
}

func (e *NoResponseError) Error() string {
	return fmt.Sprintf("%s: model %q returned an empty completion", e.Provider, e.Model)
}

// IsNoResponse reports whether err is a NoResponseError.
func IsNoResponse(err error) bool {
	var e *NoResponseError
	return errors.As(err, &e)
}

// DriverError is an error from the conversation driver's step loop, with
// context about which phase and step it occurred in.
type DriverError struct {
	Phase DriverPhase
	Step  int
	Message string
	Cause error
}

func (e *DriverError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("driver error at %s (step %d): %s", e.Phase, e.Step, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("driver error at %s (step %d): %v", e.Phase, e.Step, e.Cause)
	}
	return fmt.Sprintf("driver error at %s (step %d)", e.Phase, e.Step)
}

func (e *DriverError) Unwrap() error { return e.Cause }

// DriverPhase identifies a phase in the conversation driver's step loop.
type DriverPhase string

const (
	PhaseInit         DriverPhase = "init"
	PhaseAct          DriverPhase = "act"
	PhaseClassify     DriverPhase = "classify"
	PhaseExecuteTools DriverPhase = "execute_tools"
	PhaseCondense     DriverPhase = "condense"
	PhaseComplete     DriverPhase = "complete"
)
