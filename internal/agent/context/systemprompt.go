package context

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SystemPromptOptions configures the rendered system prompt template: a
// working directory variable, a CLI-mode switch that drops
// browser-oriented instructions, an optional security policy file whose
// contents are inlined, and a verbatim suffix.
type SystemPromptOptions struct {
	WorkingDirectory string

	// CLIMode disables browser/VS Code-oriented instructions from the
	// base template.
	CLIMode bool

	// SecurityPolicyFile is a path to a policy document injected at a
	// placeholder in the rendered prompt. Relative paths resolve
	// against PromptDir; absolute paths are used directly. A configured
	// but unreadable file fails rendering rather than silently omitting
	// the policy.
	SecurityPolicyFile string
	PromptDir          string

	// Suffix is appended verbatim to the rendered prompt.
	Suffix string
}

const baseSystemPrompt = `You are a software-development agent operating in an event-sourced conversation. You have access to a set of tools; call them to inspect and modify the workspace rather than guessing at file contents. When you have fully addressed the user's request, stop making tool calls and reply with a final message, or call the finish tool if one is registered.

Be direct and concise. Ask a clarifying question when the request is ambiguous rather than taking a risky guess.`

const browserInstructions = `You may be given browser-automation tools. Prefer the most direct tool for a task over browser automation when both are available.`

// RenderSystemPrompt renders the system prompt template. A non-empty
// SecurityPolicyFile that can't be read returns an error rather than
// silently dropping the policy.
func RenderSystemPrompt(opts SystemPromptOptions) (string, error) {
	var sections []string
	sections = append(sections, baseSystemPrompt)

	if !opts.CLIMode {
		sections = append(sections, browserInstructions)
	}

	if wd := strings.TrimSpace(opts.WorkingDirectory); wd != "" {
		sections = append(sections, fmt.Sprintf("Working directory: %s", wd))
	}

	if policyFile := strings.TrimSpace(opts.SecurityPolicyFile); policyFile != "" {
		path := policyFile
		if !filepath.IsAbs(path) && opts.PromptDir != "" {
			path = filepath.Join(opts.PromptDir, path)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("system prompt: read security policy file %q: %w", path, err)
		}
		sections = append(sections, fmt.Sprintf("Security policy:\n%s", strings.TrimSpace(string(content))))
	}

	if suffix := strings.TrimSpace(opts.Suffix); suffix != "" {
		sections = append(sections, suffix)
	}

	return strings.Join(sections, "\n\n"), nil
}
