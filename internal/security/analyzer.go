package security

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/agentcore/nexus/pkg/models"
)

// RiskClassifier evaluates a batch of pending actions and returns one
// risk level per action, in the same order. Implementations must never
// raise for a malformed or unrecognized action - an analyzer failure is
// handled by the caller falling back to RiskLevelLow (fail-open by
// design: confirmation mode remains the last line of defense).
type RiskClassifier interface {
	Classify(ctx context.Context, batch []models.ActionEvent, view models.View) ([]models.RiskLevel, error)
}

// RiskProvider sends a fixed-rubric classification prompt to an LLM and
// returns its raw completion text. Implementations typically wrap an
// agent.LLMProvider; kept as a narrow interface here so this package
// never imports agent (which itself depends on security for the
// classify hook - see driver.go's analyzer wiring).
type RiskProvider interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

// LLMClassifying is a RiskClassifier backed by a RiskProvider. It
// consults the model with a fixed rubric and parses one risk level per
// line of the response, defaulting any line it can't parse to low.
type LLMClassifying struct {
	provider RiskProvider
}

// NewLLMClassifying creates a RiskClassifier that delegates to provider.
func NewLLMClassifying(provider RiskProvider) *LLMClassifying {
	return &LLMClassifying{provider: provider}
}

// Classify asks the model to rate each action in batch and parses the
// response. On any provider error the whole batch classifies as low.
func (c *LLMClassifying) Classify(ctx context.Context, batch []models.ActionEvent, view models.View) ([]models.RiskLevel, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	prompt := BuildClassificationPrompt(batch, view)
	text, err := c.provider.Classify(ctx, prompt)
	if err != nil {
		return fillRisk(len(batch), models.RiskLevelLow), nil
	}

	levels := parseClassificationResponse(text, len(batch))
	return levels, nil
}

// BuildClassificationPrompt renders the fixed rubric prompt for a batch
// of pending actions, with enough of the view for context.
func BuildClassificationPrompt(batch []models.ActionEvent, view models.View) string {
	var sb strings.Builder

	sb.WriteString("You are a security rubric classifier. Rate each pending tool call below as exactly one of: low, medium, high.\n\n")
	sb.WriteString("Rubric:\n")
	sb.WriteString("- low: read-only or reversible actions with no destructive potential.\n")
	sb.WriteString("- medium: actions that modify state but are scoped and recoverable (writing a file, a scoped API call).\n")
	sb.WriteString("- high: actions that are destructive, irreversible, touch credentials/secrets, affect systems outside the sandbox, or execute arbitrary shell/code with unconstrained input.\n\n")
	sb.WriteString("Respond with exactly one risk level per line, in the same order as the calls, nothing else.\n\n")
	sb.WriteString("Pending calls:\n")
	for i, action := range batch {
		sb.WriteString(fmt.Sprintf("%d. tool=%s args=%s\n", i+1, action.Tool, truncateArgs(action.Args, 500)))
	}

	return sb.String()
}

func truncateArgs(args []byte, max int) string {
	s := string(args)
	if len(s) <= max {
		return s
	}
	return s[:max] + "...[truncated]"
}

// parseClassificationResponse extracts one RiskLevel per expected call
// from free-form model text, defaulting any unparseable or missing line
// to low.
func parseClassificationResponse(text string, want int) []models.RiskLevel {
	levels := fillRisk(want, models.RiskLevelLow)

	lines := strings.Split(strings.TrimSpace(text), "\n")
	idx := 0
	for _, line := range lines {
		if idx >= want {
			break
		}
		level, ok := parseRiskWord(line)
		if !ok {
			continue
		}
		levels[idx] = level
		idx++
	}
	return levels
}

func parseRiskWord(line string) (models.RiskLevel, bool) {
	lower := strings.ToLower(strings.TrimFunc(line, func(r rune) bool {
		return !unicode.IsLetter(r)
	}))
	switch {
	case strings.Contains(lower, "high"):
		return models.RiskLevelHigh, true
	case strings.Contains(lower, "medium"):
		return models.RiskLevelMedium, true
	case strings.Contains(lower, "low"):
		return models.RiskLevelLow, true
	default:
		return "", false
	}
}

func fillRisk(n int, level models.RiskLevel) []models.RiskLevel {
	levels := make([]models.RiskLevel, n)
	for i := range levels {
		levels[i] = level
	}
	return levels
}

// HeuristicClassifier is a deterministic, LLM-free RiskClassifier.
// Useful for tests, for deployments without a dedicated security model
// configured, and as a pre-filter ahead of LLMClassifying: it flags
// shell-shaped tool calls using the same dangerous-token heuristic the
// teacher's command-line tools use, and treats everything else as low.
type HeuristicClassifier struct {
	// ShellTools lists tool names whose Args are treated as a shell
	// command string (looked up under the "command" JSON key, falling
	// back to the raw Args bytes).
	ShellTools map[string]struct{}
}

// NewHeuristicClassifier creates a classifier that treats the given
// tool names as shell-command tools.
func NewHeuristicClassifier(shellTools ...string) *HeuristicClassifier {
	set := make(map[string]struct{}, len(shellTools))
	for _, t := range shellTools {
		set[t] = struct{}{}
	}
	return &HeuristicClassifier{ShellTools: set}
}

// Classify rates shell-shaped calls by dangerous-token analysis and
// everything else low.
func (c *HeuristicClassifier) Classify(ctx context.Context, batch []models.ActionEvent, view models.View) ([]models.RiskLevel, error) {
	levels := make([]models.RiskLevel, len(batch))
	for i, action := range batch {
		levels[i] = c.classifyOne(action)
	}
	return levels, nil
}

func (c *HeuristicClassifier) classifyOne(action models.ActionEvent) models.RiskLevel {
	if _, ok := c.ShellTools[action.Tool]; !ok {
		return models.RiskLevelLow
	}

	cmd := extractCommand(action.Args)
	if cmd == "" {
		return models.RiskLevelLow
	}

	analysis := AnalyzeCommand(cmd)
	if analysis.IsSafe {
		return models.RiskLevelLow
	}
	if containsDestructive(cmd) {
		return models.RiskLevelHigh
	}
	return models.RiskLevelMedium
}

func extractCommand(args []byte) string {
	var payload struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &payload); err == nil && payload.Command != "" {
		return payload.Command
	}
	return string(args)
}

var destructivePatterns = []string{"rm -rf", "mkfs", "dd if=", ":(){", "chmod -r 777", "> /dev/sd"}

func containsDestructive(cmd string) bool {
	lower := strings.ToLower(cmd)
	for _, p := range destructivePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// NoOp is a RiskClassifier that rates every action low, for tests and
// deployments that disable the security hook entirely.
type NoOp struct{}

// Classify always returns RiskLevelLow for every action.
func (NoOp) Classify(ctx context.Context, batch []models.ActionEvent, view models.View) ([]models.RiskLevel, error) {
	return fillRisk(len(batch), models.RiskLevelLow), nil
}
