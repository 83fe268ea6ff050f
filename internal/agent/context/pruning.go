package context

import (
	"strconv"
	"strings"
	"time"

	"github.com/agentcore/nexus/pkg/models"
)

// ContextPruningMode controls when pruning runs.
type ContextPruningMode string

const (
	// ContextPruningOff disables pruning.
	ContextPruningOff ContextPruningMode = "off"
	// ContextPruningCacheTTL prunes when cached tool results are stale.
	ContextPruningCacheTTL ContextPruningMode = "cache-ttl"
)

// ContextPruningToolMatch controls which tool results are prunable.
type ContextPruningToolMatch struct {
	Allow []string
	Deny  []string
}

// ContextPruningSoftTrim configures soft trimming.
type ContextPruningSoftTrim struct {
	MaxChars  int
	HeadChars int
	TailChars int
}

// ContextPruningHardClear configures hard clearing.
type ContextPruningHardClear struct {
	Enabled     bool
	Placeholder string
}

// ContextPruningSettings controls in-memory tool result pruning.
type ContextPruningSettings struct {
	Mode                 ContextPruningMode
	TTL                  time.Duration
	KeepLastTurns        int
	SoftTrimRatio        float64
	HardClearRatio       float64
	MinPrunableToolChars int
	Tools                ContextPruningToolMatch
	SoftTrim             ContextPruningSoftTrim
	HardClear            ContextPruningHardClear
}

// DefaultContextPruningSettings returns defaults.
func DefaultContextPruningSettings() ContextPruningSettings {
	return ContextPruningSettings{
		Mode:                 ContextPruningCacheTTL,
		TTL:                  5 * time.Minute,
		KeepLastTurns:        3,
		SoftTrimRatio:        0.3,
		HardClearRatio:       0.5,
		MinPrunableToolChars: 50000,
		Tools:                ContextPruningToolMatch{},
		SoftTrim: ContextPruningSoftTrim{
			MaxChars:  4000,
			HeadChars: 1500,
			TailChars: 1500,
		},
		HardClear: ContextPruningHardClear{
			Enabled:     true,
			Placeholder: "[Old tool result content cleared]",
		},
	}
}

// PruneContextEvents trims or clears old Observation content from the log.
// Returns the original slice if no changes are required. Only events
// strictly between the first user Message and the cutoff marking the
// last KeepLastTurns assistant turns are eligible for pruning - recent
// exchanges are always kept verbatim.
func PruneContextEvents(events []models.Event, settings ContextPruningSettings, charWindow int) []models.Event {
	if len(events) == 0 || charWindow <= 0 {
		return events
	}

	cutoffIndex, ok := findTurnCutoffIndex(events, settings.KeepLastTurns)
	if !ok {
		return events
	}

	firstUser := findFirstUserIndex(events)
	pruneStart := len(events)
	if firstUser >= 0 {
		pruneStart = firstUser
	}
	if pruneStart >= cutoffIndex {
		return events
	}

	totalChars := estimateContextChars(events)
	if float64(totalChars)/float64(charWindow) < settings.SoftTrimRatio {
		return events
	}

	isToolPrunable := makeToolPrunablePredicate(settings.Tools)

	var prunable []int
	var next []models.Event

	for i := pruneStart; i < cutoffIndex; i++ {
		ev := currentEvent(events, next, i)
		if ev.Type != models.EventTypeObservation || ev.Observation == nil {
			continue
		}
		if !isToolPrunable(ev.Observation.Tool) {
			continue
		}
		prunable = append(prunable, i)

		trimmed, changed := softTrimToolResult(ev.Observation.Output, settings)
		if !changed {
			continue
		}

		before := estimateEventChars(ev)
		updated := copyEventWithOutput(ev, trimmed)
		after := estimateEventChars(updated)
		totalChars += after - before
		next = ensureEvent(next, events, i, updated)
	}

	output := events
	if next != nil {
		output = next
	}

	if float64(totalChars)/float64(charWindow) < settings.HardClearRatio || !settings.HardClear.Enabled {
		return output
	}

	prunableChars := 0
	for _, idx := range prunable {
		ev := currentEvent(events, next, idx)
		if ev.Observation == nil {
			continue
		}
		prunableChars += len(ev.Observation.Output)
	}
	if prunableChars < settings.MinPrunableToolChars {
		return output
	}

	ratio := float64(totalChars) / float64(charWindow)
	for _, idx := range prunable {
		if ratio < settings.HardClearRatio {
			break
		}
		ev := currentEvent(events, next, idx)
		if ev.Observation == nil {
			continue
		}

		before := estimateEventChars(ev)
		updated := copyEventWithOutput(ev, settings.HardClear.Placeholder)
		after := estimateEventChars(updated)
		totalChars += after - before
		ratio = float64(totalChars) / float64(charWindow)
		next = ensureEvent(next, events, idx, updated)
	}

	if next != nil {
		return next
	}
	return events
}

// findTurnCutoffIndex scans from the end, counting assistant-originated
// turns (an assistant Message, or an Action - tool calls only ever come
// from the assistant), and returns the index of the keepLastTurns-th
// one from the end.
func findTurnCutoffIndex(events []models.Event, keepLastTurns int) (int, bool) {
	if keepLastTurns <= 0 {
		return len(events), true
	}
	remaining := keepLastTurns
	for i := len(events) - 1; i >= 0; i-- {
		if isAssistantTurnMarker(events[i]) {
			remaining--
			if remaining == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func isAssistantTurnMarker(ev models.Event) bool {
	switch ev.Type {
	case models.EventTypeAction:
		return true
	case models.EventTypeMessage:
		return ev.Message != nil && ev.Message.Role == models.MessageRoleAssistant
	default:
		return false
	}
}

func findFirstUserIndex(events []models.Event) int {
	for i, ev := range events {
		if ev.Type == models.EventTypeMessage && ev.Message != nil && ev.Message.Role == models.MessageRoleUser {
			return i
		}
	}
	return -1
}

func softTrimToolResult(content string, settings ContextPruningSettings) (string, bool) {
	rawLen := len(content)
	if rawLen <= settings.SoftTrim.MaxChars {
		return content, false
	}
	headChars := maxInt(settings.SoftTrim.HeadChars, 0)
	tailChars := maxInt(settings.SoftTrim.TailChars, 0)
	if headChars+tailChars >= rawLen {
		return content, false
	}
	head := content
	if headChars < len(head) {
		head = head[:headChars]
	}
	tail := content
	if tailChars < len(tail) {
		tail = tail[len(tail)-tailChars:]
	}

	trimmed := head + "\n...\n" + tail
	note := "\n\n[Tool result trimmed: kept first " + strconv.Itoa(headChars) + " chars and last " + strconv.Itoa(tailChars) + " chars of " + strconv.Itoa(rawLen) + " chars.]"
	return trimmed + note, true
}

func makeToolPrunablePredicate(match ContextPruningToolMatch) func(string) bool {
	deny := normalizePatterns(match.Deny)
	allow := normalizePatterns(match.Allow)
	return func(toolName string) bool {
		normalized := strings.ToLower(strings.TrimSpace(toolName))
		if normalized == "" {
			return false
		}
		if matchesAny(normalized, deny) {
			return false
		}
		if len(allow) == 0 {
			return true
		}
		return matchesAny(normalized, allow)
	}
}

func normalizePatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		value := strings.ToLower(strings.TrimSpace(p))
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	return out
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if wildcardMatch(p, name) {
			return true
		}
	}
	return false
}

func wildcardMatch(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return pattern == value
	}
	parts := strings.Split(pattern, "*")
	idx := 0
	if len(parts) == 0 {
		return false
	}
	if parts[0] != "" {
		if !strings.HasPrefix(value, parts[0]) {
			return false
		}
		idx = len(parts[0])
	}
	for i := 1; i < len(parts)-1; i++ {
		part := parts[i]
		if part == "" {
			continue
		}
		pos := strings.Index(value[idx:], part)
		if pos < 0 {
			return false
		}
		idx += pos + len(part)
	}
	last := parts[len(parts)-1]
	if last != "" && !strings.HasSuffix(value, last) {
		return false
	}
	return true
}

func estimateContextChars(events []models.Event) int {
	total := 0
	for i := range events {
		total += estimateEventChars(events[i])
	}
	return total
}

func estimateEventChars(ev models.Event) int {
	switch ev.Type {
	case models.EventTypeMessage:
		if ev.Message == nil {
			return 0
		}
		return len(ev.Message.Content)
	case models.EventTypeAction:
		if ev.Action == nil {
			return 0
		}
		return len(ev.Action.Tool) + len(ev.Action.Args)
	case models.EventTypeObservation:
		if ev.Observation == nil {
			return 0
		}
		return len(ev.Observation.Output)
	default:
		return 0
	}
}

func currentEvent(events []models.Event, next []models.Event, index int) models.Event {
	if next != nil {
		return next[index]
	}
	return events[index]
}

func ensureEvent(next []models.Event, events []models.Event, index int, updated models.Event) []models.Event {
	if next == nil {
		next = make([]models.Event, len(events))
		copy(next, events)
	}
	next[index] = updated
	return next
}

func copyEventWithOutput(ev models.Event, output string) models.Event {
	if ev.Observation == nil {
		return ev
	}
	clone := ev
	obs := *ev.Observation
	obs.Output = output
	clone.Observation = &obs
	return clone
}

func maxInt(value, min int) int {
	if value < min {
		return min
	}
	return value
}
