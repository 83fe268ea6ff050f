package context

import (
	"strings"
	"testing"

	"github.com/agentcore/nexus/pkg/models"
)

func TestPruneContextEvents_SoftTrimOnly(t *testing.T) {
	settings := DefaultContextPruningSettings()
	settings.KeepLastTurns = 1
	settings.SoftTrimRatio = 0.01
	settings.HardClearRatio = 0.9
	settings.MinPrunableToolChars = 1
	settings.SoftTrim.MaxChars = 50
	settings.SoftTrim.HeadChars = 10
	settings.SoftTrim.TailChars = 10
	settings.HardClear.Enabled = true

	events := []models.Event{
		msgEvent(0, models.MessageRoleUser, "hello"),
		actionEvent(1, "fetch", `{}`),
		obsEvent(2, "fetch", strings.Repeat("a", 200)),
		msgEvent(3, models.MessageRoleAssistant, "done"),
	}

	out := PruneContextEvents(events, settings, 1000)
	got := out[2].Observation.Output
	if got == strings.Repeat("a", 200) {
		t.Fatalf("expected observation to be trimmed")
	}
	if !strings.Contains(got, "Tool result trimmed") {
		t.Fatalf("expected trim note, got %q", got)
	}
	if got == settings.HardClear.Placeholder {
		t.Fatalf("unexpected hard clear placeholder")
	}
}

func TestPruneContextEvents_HardClear(t *testing.T) {
	settings := DefaultContextPruningSettings()
	settings.KeepLastTurns = 1
	settings.SoftTrimRatio = 0.01
	settings.HardClearRatio = 0.2
	settings.MinPrunableToolChars = 1
	settings.SoftTrim.MaxChars = 50
	settings.SoftTrim.HeadChars = 10
	settings.SoftTrim.TailChars = 10
	settings.HardClear.Enabled = true

	events := []models.Event{
		msgEvent(0, models.MessageRoleUser, "hello"),
		actionEvent(1, "fetch", `{}`),
		obsEvent(2, "fetch", strings.Repeat("b", 200)),
		msgEvent(3, models.MessageRoleAssistant, "done"),
	}

	out := PruneContextEvents(events, settings, 100)
	got := out[2].Observation.Output
	if got != settings.HardClear.Placeholder {
		t.Fatalf("expected hard clear placeholder, got %q", got)
	}
}

func TestPruneContextEvents_AllowDeny(t *testing.T) {
	settings := DefaultContextPruningSettings()
	settings.KeepLastTurns = 1
	settings.SoftTrimRatio = 0.01
	settings.HardClear.Enabled = false
	settings.SoftTrim.MaxChars = 10
	settings.SoftTrim.HeadChars = 4
	settings.SoftTrim.TailChars = 4
	settings.Tools.Allow = []string{"fetch*"}
	settings.Tools.Deny = []string{"fetch_secret"}

	events := []models.Event{
		msgEvent(0, models.MessageRoleUser, "hello"),
		actionEvent(1, "fetch_public", `{}`),
		obsEvent(2, "fetch_public", strings.Repeat("p", 40)),
		actionEvent(3, "fetch_secret", `{}`),
		obsEvent(4, "fetch_secret", strings.Repeat("s", 40)),
		msgEvent(5, models.MessageRoleAssistant, "done"),
	}

	out := PruneContextEvents(events, settings, 1000)
	publicResult := out[2].Observation.Output
	secretResult := out[4].Observation.Output

	if publicResult == strings.Repeat("p", 40) {
		t.Fatalf("expected public tool result to be trimmed")
	}
	if !strings.Contains(publicResult, "Tool result trimmed") {
		t.Fatalf("expected trim note for public tool result")
	}
	if secretResult != strings.Repeat("s", 40) {
		t.Fatalf("expected secret tool result to remain unchanged")
	}
}

func TestPruneContextEvents_UnknownToolNameDefaultAllowed(t *testing.T) {
	settings := DefaultContextPruningSettings()
	settings.KeepLastTurns = 1
	settings.SoftTrimRatio = 0.01
	settings.HardClear.Enabled = false
	settings.SoftTrim.MaxChars = 10
	settings.SoftTrim.HeadChars = 4
	settings.SoftTrim.TailChars = 4

	events := []models.Event{
		msgEvent(0, models.MessageRoleUser, "hello"),
		obsEvent(1, "", strings.Repeat("x", 40)),
		msgEvent(2, models.MessageRoleAssistant, "done"),
	}

	out := PruneContextEvents(events, settings, 1000)
	got := out[1].Observation.Output
	if got == strings.Repeat("x", 40) {
		t.Fatalf("expected tool result to be trimmed even without tool name")
	}
}

func TestPruneContextEvents_KeepsRecentTurnsVerbatim(t *testing.T) {
	settings := DefaultContextPruningSettings()
	settings.KeepLastTurns = 1
	settings.SoftTrimRatio = 0.01
	settings.HardClearRatio = 0.9
	settings.MinPrunableToolChars = 1
	settings.SoftTrim.MaxChars = 10
	settings.SoftTrim.HeadChars = 4
	settings.SoftTrim.TailChars = 4

	events := []models.Event{
		msgEvent(0, models.MessageRoleUser, "hello"),
		actionEvent(1, "fetch", `{}`),
		obsEvent(2, "fetch", strings.Repeat("a", 200)),
		msgEvent(3, models.MessageRoleUser, "and now?"),
		actionEvent(4, "fetch", `{}`),
		obsEvent(5, "fetch", strings.Repeat("z", 200)),
	}

	out := PruneContextEvents(events, settings, 1000)
	if out[5].Observation.Output != strings.Repeat("z", 200) {
		t.Fatalf("expected most recent turn's observation to remain untouched")
	}
	if out[2].Observation.Output == strings.Repeat("a", 200) {
		t.Fatalf("expected older observation to be pruned")
	}
}
