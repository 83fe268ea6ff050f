// Package providers implements LLMProvider adapters for concrete model
// backends (Anthropic's responses-style Messages API, OpenAI's
// completions-style Chat Completions API).
package providers

import "github.com/agentcore/nexus/pkg/models"

// turnRole is the coarse role a provider-native turn is rendered under.
// ActionEvents render under the assistant role (the model is the one
// calling tools); ObservationEvents render under the user role (tool
// results are fed back to the model as if the user supplied them).
type turnRole string

const (
	turnUser      turnRole = "user"
	turnAssistant turnRole = "assistant"
)

// turn is one provider-native message: either free text, one or more
// tool calls (assistant), or one or more tool results (user).
type turn struct {
	role        turnRole
	text        string
	toolUses    []models.ActionEvent
	toolResults []models.ObservationEvent
}

// viewToTurns collapses a condensation-transparent view into a sequence
// of alternating user/assistant turns, merging consecutive events that
// belong to the same logical turn (e.g. several tool calls the model
// made in one step, or several tool results fed back at once). Provider
// adapters translate turns into their own wire format.
func viewToTurns(view models.View) []turn {
	var turns []turn

	flushText := func(role turnRole, content string) {
		if len(turns) > 0 && turns[len(turns)-1].role == role && turns[len(turns)-1].text == "" &&
			len(turns[len(turns)-1].toolUses) == 0 && len(turns[len(turns)-1].toolResults) == 0 {
			turns[len(turns)-1].text = content
			return
		}
		turns = append(turns, turn{role: role, text: content})
	}

	for _, ev := range view.Events {
		switch ev.Type {
		case models.EventTypeMessage:
			if ev.Message == nil {
				continue
			}
			role := turnUser
			if ev.Message.Role == models.MessageRoleAssistant {
				role = turnAssistant
			}
			flushText(role, ev.Message.Content)

		case models.EventTypeAction:
			if ev.Action == nil {
				continue
			}
			if len(turns) > 0 && turns[len(turns)-1].role == turnAssistant && len(turns[len(turns)-1].toolResults) == 0 {
				turns[len(turns)-1].toolUses = append(turns[len(turns)-1].toolUses, *ev.Action)
				continue
			}
			turns = append(turns, turn{role: turnAssistant, toolUses: []models.ActionEvent{*ev.Action}})

		case models.EventTypeObservation:
			if ev.Observation == nil {
				continue
			}
			if len(turns) > 0 && turns[len(turns)-1].role == turnUser && len(turns[len(turns)-1].toolUses) == 0 {
				turns[len(turns)-1].toolResults = append(turns[len(turns)-1].toolResults, *ev.Observation)
				continue
			}
			turns = append(turns, turn{role: turnUser, toolResults: []models.ObservationEvent{*ev.Observation}})

		case models.EventTypeCondensation:
			if ev.Condensation == nil {
				continue
			}
			flushText(turnUser, "[earlier conversation summarized]: "+ev.Condensation.Summary)

		default:
			// SystemPrompt/MicroagentActivation/Pause/Rejection/AgentError/
			// AgentFinished are driver-internal bookkeeping events with no
			// direct representation in a provider's chat turn; the driver
			// folds the information that matters (e.g. a Rejection's
			// resulting Observation) back into the log as its own event.
		}
	}

	return turns
}
