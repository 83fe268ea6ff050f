// Package context provides context management for agent conversations.
//
// This package handles:
//   - Context packing: selecting which events of a View to include in
//     LLM requests
//   - Condensation: compressing old history into CondensationEvents
//   - Pruning: trimming or clearing stale tool result content in place
//   - Budget management: staying within token/char limits
package context

import (
	"github.com/agentcore/nexus/pkg/models"
)

// PackOptions configures how a View's events are packed into context.
type PackOptions struct {
	// MaxEvents is the hard cap on number of events to include (e.g. 60).
	MaxEvents int

	// MaxChars is the context budget, measured in tiktoken-estimated
	// tokens despite the name (kept for compatibility with callers that
	// size it against raw text length). Default: 30000.
	MaxChars int

	// MaxToolResultChars is the max chars per Observation's Output.
	// Longer results are truncated. Default: 6000.
	MaxToolResultChars int

	// IncludeSummary controls whether to include the most recent
	// CondensationEvent ahead of the selected window.
	IncludeSummary bool
}

// DefaultPackOptions returns sensible defaults for context packing.
func DefaultPackOptions() PackOptions {
	return PackOptions{
		MaxEvents:          60,
		MaxChars:           30000,
		MaxToolResultChars: 6000,
		IncludeSummary:     true,
	}
}

// Packer selects and prepares a View's events for LLM context.
type Packer struct {
	opts    PackOptions
	counter *TokenCounter
}

// NewPacker creates a new context packer with the given options.
func NewPacker(opts PackOptions) *Packer {
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = 60
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = 30000
	}
	if opts.MaxToolResultChars <= 0 {
		opts.MaxToolResultChars = 6000
	}
	return &Packer{opts: opts, counter: GetTokenCounter()}
}

// MaxChars returns the configured character budget, for callers that need
// to size a pruning pass to match the packer it feeds.
func (p *Packer) MaxChars() int {
	return p.opts.MaxChars
}

// Pack selects events from view to fit within budget.
//
// The packed result includes (in order):
//  1. The most recent CondensationEvent, if IncludeSummary and one
//     exists (condensed history it stands in for is never resent).
//  2. Recent events from the view, selected from the end backwards
//     until either MaxEvents or MaxChars is reached.
//
// Observation content is truncated to MaxToolResultChars.
func (p *Packer) Pack(view models.View) models.View {
	events := view.Events

	var latestCondensation *models.Event
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == models.EventTypeCondensation {
			ev := events[i]
			latestCondensation = &ev
			break
		}
	}

	totalChars := 0
	totalEvents := 0
	if p.opts.IncludeSummary && latestCondensation != nil {
		totalChars += p.eventChars(*latestCondensation)
		totalEvents++
	}

	// Select events from the end (most recent) backwards, skipping
	// condensation markers (already represented by latestCondensation).
	selectedReverse := make([]models.Event, 0)
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.Type == models.EventTypeCondensation {
			continue
		}
		evChars := p.eventChars(ev)

		if totalEvents+1 > p.opts.MaxEvents {
			break
		}
		if totalChars+evChars > p.opts.MaxChars {
			break
		}

		selectedReverse = append(selectedReverse, ev)
		totalEvents++
		totalChars += evChars
	}

	selected := make([]models.Event, len(selectedReverse))
	for i, ev := range selectedReverse {
		selected[len(selectedReverse)-1-i] = ev
	}

	result := make([]models.Event, 0, len(selected)+1)
	if p.opts.IncludeSummary && latestCondensation != nil {
		result = append(result, *latestCondensation)
	}
	for _, ev := range selected {
		result = append(result, p.truncateObservation(ev))
	}

	return models.View{ConversationID: view.ConversationID, Events: result}
}

// eventChars estimates the token cost of an event via the packer's
// TokenCounter (the name is kept for continuity with MaxChars/MaxEvents).
func (p *Packer) eventChars(ev models.Event) int {
	switch ev.Type {
	case models.EventTypeMessage:
		if ev.Message == nil {
			return 0
		}
		return p.counter.Count(ev.Message.Content)
	case models.EventTypeAction:
		if ev.Action == nil {
			return 0
		}
		return p.counter.Count(ev.Action.Tool) + p.counter.Count(string(ev.Action.Args))
	case models.EventTypeObservation:
		if ev.Observation == nil {
			return 0
		}
		return p.counter.Count(ev.Observation.Output)
	case models.EventTypeCondensation:
		if ev.Condensation == nil {
			return 0
		}
		return p.counter.Count(ev.Condensation.Summary)
	default:
		return 0
	}
}

// truncateObservation returns a copy of ev with Output capped at
// MaxToolResultChars, if ev is an Observation that exceeds it.
func (p *Packer) truncateObservation(ev models.Event) models.Event {
	if ev.Type != models.EventTypeObservation || ev.Observation == nil {
		return ev
	}
	if len(ev.Observation.Output) <= p.opts.MaxToolResultChars {
		return ev
	}
	clone := ev
	obs := *ev.Observation
	obs.Output = obs.Output[:p.opts.MaxToolResultChars] + "\n...[truncated]"
	clone.Observation = &obs
	return clone
}
