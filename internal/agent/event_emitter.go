package agent

import (
	"context"
	"sync/atomic"
	"time"
)

// EventEmitter generates and dispatches DriverEvents with monotonic
// sequencing, bridging the conversation driver's step loop to telemetry
// consumers (metrics, tracing, UI streaming) via an EventSink.
type EventEmitter struct {
	conversationID string
	sequence       uint64

	step int

	sink EventSink
}

// NewEventEmitter creates an event emitter for a conversation with the
// given sink. If sink is nil, a NopSink is used.
func NewEventEmitter(conversationID string, sink EventSink) *EventEmitter {
	if sink == nil {
		sink = NopSink{}
	}
	return &EventEmitter{conversationID: conversationID, sink: sink}
}

// SetStep updates the current step index for subsequent events.
func (e *EventEmitter) SetStep(step int) {
	e.step = step
}

func (e *EventEmitter) nextSeq() uint64 {
	return atomic.AddUint64(&e.sequence, 1)
}

func (e *EventEmitter) base(t DriverEventType) DriverEvent {
	return DriverEvent{
		Type:           t,
		Time:           time.Now(),
		Sequence:       e.nextSeq(),
		ConversationID: e.conversationID,
		Step:           e.step,
	}
}

func (e *EventEmitter) emit(ctx context.Context, ev DriverEvent) {
	if e.sink != nil {
		e.sink.Emit(ctx, ev)
	}
}

// StepStarted emits a step.started event at the beginning of a driver step.
func (e *EventEmitter) StepStarted(ctx context.Context) DriverEvent {
	ev := e.base(DriverEventStepStarted)
	e.emit(ctx, ev)
	return ev
}

// StepFinished emits a step.finished event at the end of a driver step.
func (e *EventEmitter) StepFinished(ctx context.Context) DriverEvent {
	ev := e.base(DriverEventStepFinished)
	e.emit(ctx, ev)
	return ev
}

// ActFinished emits an act.finished event with token usage from the LLM call.
func (e *EventEmitter) ActFinished(ctx context.Context, inputTokens, outputTokens int) DriverEvent {
	ev := e.base(DriverEventActFinished)
	ev.InputTokens = inputTokens
	ev.OutputTokens = outputTokens
	e.emit(ctx, ev)
	return ev
}

// ToolStarted emits a tool.started event when a tool execution begins.
func (e *EventEmitter) ToolStarted(ctx context.Context, callID, name string) DriverEvent {
	ev := e.base(DriverEventToolStarted)
	ev.Tool = &ToolTelemetry{CallID: callID, Name: name}
	e.emit(ctx, ev)
	return ev
}

// ToolFinished emits a tool.finished event when a tool execution completes.
func (e *EventEmitter) ToolFinished(ctx context.Context, callID, name string, success bool, elapsed time.Duration) DriverEvent {
	ev := e.base(DriverEventToolFinished)
	ev.Tool = &ToolTelemetry{CallID: callID, Name: name, Success: success, Elapsed: elapsed}
	e.emit(ctx, ev)
	return ev
}

// ToolTimedOut emits a tool.timed_out event when a tool exceeds its timeout.
func (e *EventEmitter) ToolTimedOut(ctx context.Context, callID, name string, timeout time.Duration) DriverEvent {
	ev := e.base(DriverEventToolTimedOut)
	ev.Tool = &ToolTelemetry{CallID: callID, Name: name, Elapsed: timeout}
	ev.Error = &ErrorTelemetry{Message: "tool timed out", Retriable: true}
	e.emit(ctx, ev)
	return ev
}

// RiskFlagged emits a tool.risk_flagged event for a medium-risk action the
// security analyzer let through without pausing, so it is still visible
// to telemetry.
func (e *EventEmitter) RiskFlagged(ctx context.Context, callID, name, reason string) DriverEvent {
	ev := e.base(DriverEventRiskFlagged)
	ev.Tool = &ToolTelemetry{CallID: callID, Name: name}
	ev.Reason = reason
	e.emit(ctx, ev)
	return ev
}

// Paused emits a driver.paused event when the driver halts pending confirmation.
func (e *EventEmitter) Paused(ctx context.Context, reason string) DriverEvent {
	ev := e.base(DriverEventPaused)
	ev.Reason = reason
	e.emit(ctx, ev)
	return ev
}

// Resumed emits a driver.resumed event when Resume() is called.
func (e *EventEmitter) Resumed(ctx context.Context) DriverEvent {
	ev := e.base(DriverEventResumed)
	e.emit(ctx, ev)
	return ev
}

// Stuck emits a driver.stuck event when stuck detection trips.
func (e *EventEmitter) Stuck(ctx context.Context, reason string) DriverEvent {
	ev := e.base(DriverEventStuck)
	ev.Reason = reason
	e.emit(ctx, ev)
	return ev
}

// Condensed emits a context.condensed event when the condenser runs.
func (e *EventEmitter) Condensed(ctx context.Context) DriverEvent {
	ev := e.base(DriverEventCondensed)
	e.emit(ctx, ev)
	return ev
}

// Finished emits a driver.finished event when the conversation completes.
func (e *EventEmitter) Finished(ctx context.Context) DriverEvent {
	ev := e.base(DriverEventFinished)
	e.emit(ctx, ev)
	return ev
}

// Error emits a driver.error event.
func (e *EventEmitter) Error(ctx context.Context, err error, retriable bool) DriverEvent {
	ev := e.base(DriverEventError)
	ev.Error = &ErrorTelemetry{Message: err.Error(), Retriable: retriable, Err: err}
	e.emit(ctx, ev)
	return ev
}

// Cancelled emits a driver.cancelled event when the context is cancelled mid-step.
func (e *EventEmitter) Cancelled(ctx context.Context) DriverEvent {
	ev := e.base(DriverEventCancelled)
	ev.Error = &ErrorTelemetry{Message: "conversation cancelled", Retriable: true, Err: ErrContextCancelled}
	e.emit(ctx, ev)
	return ev
}
