package agent

import "time"

// DriverEventType identifies the kind of telemetry event emitted by the
// conversation driver's step loop. These are distinct from the
// conversation log's models.Event: telemetry is never replayed into the
// LLM view, it only observes the driver from outside.
type DriverEventType string

const (
	DriverEventStepStarted    DriverEventType = "step.started"
	DriverEventStepFinished   DriverEventType = "step.finished"
	DriverEventActFinished    DriverEventType = "act.finished"
	DriverEventToolStarted    DriverEventType = "tool.started"
	DriverEventToolFinished   DriverEventType = "tool.finished"
	DriverEventToolTimedOut   DriverEventType = "tool.timed_out"
	DriverEventRiskFlagged    DriverEventType = "tool.risk_flagged"
	DriverEventPaused         DriverEventType = "driver.paused"
	DriverEventResumed        DriverEventType = "driver.resumed"
	DriverEventStuck          DriverEventType = "driver.stuck"
	DriverEventCondensed      DriverEventType = "context.condensed"
	DriverEventFinished       DriverEventType = "driver.finished"
	DriverEventError          DriverEventType = "driver.error"
	DriverEventCancelled      DriverEventType = "driver.cancelled"
)

// ToolTelemetry carries per-tool-call details for tool.* events.
type ToolTelemetry struct {
	CallID  string
	Name    string
	Success bool
	Elapsed time.Duration
}

// ErrorTelemetry carries error details for error/cancelled events.
type ErrorTelemetry struct {
	Message   string
	Retriable bool
	Err       error
}

// DriverEvent is one point-in-time telemetry observation of the
// conversation driver's step loop. A DriverEvent never appears in the
// conversation log; it exists only for metrics, tracing, and UI streaming.
type DriverEvent struct {
	Type           DriverEventType
	Time           time.Time
	Sequence       uint64
	ConversationID string
	Step           int

	Tool  *ToolTelemetry
	Error *ErrorTelemetry

	// InputTokens/OutputTokens are populated on ActFinished.
	InputTokens  int
	OutputTokens int

	// Reason carries a human-readable explanation for pause/stuck/risk
	// events (e.g. the matched stuck-detection signature).
	Reason string
}

// DriverStats accumulates run-level counters from a stream of DriverEvents,
// grounded on the teacher's StatsCollector pattern.
type DriverStats struct {
	ConversationID string
	StartedAt      time.Time
	FinishedAt     time.Time
	WallTime       time.Duration

	Steps        int
	ToolCalls    int
	ToolTimeouts int
	ToolWallTime time.Duration
	InputTokens  int
	OutputTokens int
	Condensations int
	Errors       int
	Cancelled    bool
	Paused       int
}

// StatsCollector consumes DriverEvents and maintains a running DriverStats.
type StatsCollector struct {
	stats      DriverStats
	toolStarts map[string]time.Time
}

// NewStatsCollector creates a stats collector for a conversation.
func NewStatsCollector(conversationID string) *StatsCollector {
	return &StatsCollector{
		stats:      DriverStats{ConversationID: conversationID, StartedAt: time.Now()},
		toolStarts: make(map[string]time.Time),
	}
}

// OnEvent folds one DriverEvent into the accumulated stats.
func (c *StatsCollector) OnEvent(e DriverEvent) {
	switch e.Type {
	case DriverEventStepStarted:
		c.stats.Steps++
	case DriverEventActFinished:
		c.stats.InputTokens += e.InputTokens
		c.stats.OutputTokens += e.OutputTokens
	case DriverEventToolStarted:
		if e.Tool != nil {
			c.toolStarts[e.Tool.CallID] = e.Time
		}
	case DriverEventToolFinished:
		c.stats.ToolCalls++
		if e.Tool != nil {
			if start, ok := c.toolStarts[e.Tool.CallID]; ok {
				c.stats.ToolWallTime += e.Time.Sub(start)
				delete(c.toolStarts, e.Tool.CallID)
			}
			if !e.Tool.Success {
				c.stats.Errors++
			}
		}
	case DriverEventToolTimedOut:
		c.stats.ToolTimeouts++
		c.stats.Errors++
	case DriverEventCondensed:
		c.stats.Condensations++
	case DriverEventPaused:
		c.stats.Paused++
	case DriverEventError:
		c.stats.Errors++
	case DriverEventCancelled:
		c.stats.Cancelled = true
		c.stats.Errors++
	case DriverEventFinished:
		c.stats.FinishedAt = e.Time
		c.stats.WallTime = e.Time.Sub(c.stats.StartedAt)
	}
}

// Stats returns a copy of the accumulated statistics.
func (c *StatsCollector) Stats() DriverStats {
	stats := c.stats
	if stats.FinishedAt.IsZero() {
		stats.FinishedAt = time.Now()
		stats.WallTime = stats.FinishedAt.Sub(stats.StartedAt)
	}
	return stats
}
