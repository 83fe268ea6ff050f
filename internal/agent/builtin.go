package agent

import (
	"context"
	"encoding/json"
)

// FinishTool is the built-in no-arg tool whose successful execution the
// driver recognizes as a signal that the conversation is complete (see
// FinishToolName in driver.go). Its Execute never errors; it has no side
// effects of its own and exists only so the model has a concrete tool
// call to make when a turn concludes.
type FinishTool struct{}

func (FinishTool) Name() string { return FinishToolName }

func (FinishTool) Description() string {
	return "Signal that the task is complete. Call this once no further actions are needed, " +
		"with a final summary of what was done as the message content."
}

func (FinishTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"message": {
				"type": "string",
				"description": "Final summary presented to the user."
			}
		}
	}`)
}

func (FinishTool) Execute(_ context.Context, params json.RawMessage) (*ToolResult, error) {
	var args struct {
		Message string `json:"message"`
	}
	if len(params) > 0 {
		_ = json.Unmarshal(params, &args)
	}
	return &ToolResult{Content: args.Message}, nil
}
