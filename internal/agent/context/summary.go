package context

import (
	"github.com/agentcore/nexus/pkg/models"
)

// FindLatestCondensation finds the most recent CondensationEvent in the
// log. Returns nil if the log has never been condensed.
func FindLatestCondensation(log []models.Event) *models.Event {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Type == models.EventTypeCondensation && log[i].Condensation != nil {
			ev := log[i]
			return &ev
		}
	}
	return nil
}

// EventsSinceCondensation returns the events that came after the given
// condensation's covered range. If latest is nil, returns the whole log.
func EventsSinceCondensation(log []models.Event, latest *models.Event) []models.Event {
	if latest == nil || latest.Condensation == nil {
		return log
	}
	cutoff := latest.Condensation.CondensedTo
	for i, ev := range log {
		if ev.Seq > cutoff {
			return log[i:]
		}
	}
	return nil
}

// NeedsCondensation checks whether the log has accumulated enough
// events since the last condensation to trigger another pass.
func NeedsCondensation(log []models.Event, latest *models.Event, maxEventsBeforeCondensation int) bool {
	return len(EventsSinceCondensation(log, latest)) > maxEventsBeforeCondensation
}

// EventsToCondense returns the older events eligible for condensation,
// keeping the most recent keepRecent events untouched.
func EventsToCondense(log []models.Event, latest *models.Event, keepRecent int) []models.Event {
	events := EventsSinceCondensation(log, latest)
	if len(events) <= keepRecent {
		return nil
	}
	return events[:len(events)-keepRecent]
}
