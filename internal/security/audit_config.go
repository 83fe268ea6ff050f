package security

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agentcore/nexus/internal/config"
)

// auditConfigContent checks configuration content for security issues: secrets
// that look hardcoded rather than sourced from the environment, and overly
// permissive tool execution policies.
func auditConfigContent(cfg *config.Config) []AuditFinding {
	var findings []AuditFinding

	if cfg == nil {
		return findings
	}

	findings = append(findings, auditSecretsInConfig(cfg)...)
	findings = append(findings, auditToolPolicies(cfg)...)

	return findings
}

// hardcodedKeyPatterns matches API key formats that are distinctive enough to
// flag as "probably pasted straight into the config file".
var hardcodedKeyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^sk-[a-zA-Z0-9]{20,}`),      // OpenAI-style key
	regexp.MustCompile(`^sk-ant-[a-zA-Z0-9-]{20,}`), // Anthropic key
	regexp.MustCompile(`^AKIA[0-9A-Z]{16}`),         // AWS access key
	regexp.MustCompile(`^AIza[0-9A-Za-z_-]{35}`),    // Google API key
}

// auditSecretsInConfig checks for LLM provider API keys that look hardcoded
// rather than injected via environment variable expansion.
func auditSecretsInConfig(cfg *config.Config) []AuditFinding {
	var findings []AuditFinding

	for name, provider := range cfg.LLM.Providers {
		if provider.APIKey == "" {
			continue
		}
		for _, pattern := range hardcodedKeyPatterns {
			if pattern.MatchString(provider.APIKey) {
				findings = append(findings, AuditFinding{
					CheckID:     fmt.Sprintf("config.hardcoded_api_key.%s", name),
					Severity:    SeverityWarn,
					Title:       fmt.Sprintf("Potential hardcoded API key in %s provider", name),
					Detail:      fmt.Sprintf("The API key for llm.providers.%s looks like a literal secret rather than an environment reference.", name),
					Remediation: "Reference an environment variable (e.g. ${ANTHROPIC_API_KEY}) instead of a literal key.",
				})
				break
			}
		}
	}

	return findings
}

// auditToolPolicies checks for overly permissive tool execution and approval
// settings.
func auditToolPolicies(cfg *config.Config) []AuditFinding {
	var findings []AuditFinding

	execution := cfg.Tools.Execution
	approval := execution.Approval

	for _, pattern := range approval.Allowlist {
		if pattern == "*" {
			findings = append(findings, AuditFinding{
				CheckID:     "tools.allowlist.wildcard",
				Severity:    SeverityCritical,
				Title:       "Tool allowlist allows everything",
				Detail:      "tools.execution.approval.allowlist contains '*' - every tool is auto-approved.",
				Remediation: "Remove '*' from the allowlist and list allowed tools explicitly.",
			})
			break
		}
	}

	if len(approval.Allowlist) > 50 {
		findings = append(findings, AuditFinding{
			CheckID:     "tools.allowlist.large",
			Severity:    SeverityWarn,
			Title:       "Tool allowlist is very large",
			Detail:      fmt.Sprintf("tools.execution.approval.allowlist has %d entries; consider a denylist instead.", len(approval.Allowlist)),
			Remediation: "Use tools.execution.approval.denylist to block specific dangerous tools instead.",
		})
	}

	dangerousPatterns := []string{"bash", "exec", "shell", "run_command", "execute_code"}
	for _, dangerous := range dangerousPatterns {
		for _, allowed := range approval.Allowlist {
			if !strings.Contains(strings.ToLower(allowed), dangerous) {
				continue
			}
			requiresApproval := false
			for _, req := range execution.RequireApproval {
				if req == allowed || req == "*" {
					requiresApproval = true
					break
				}
			}
			if !requiresApproval {
				findings = append(findings, AuditFinding{
					CheckID:     fmt.Sprintf("tools.dangerous.%s", dangerous),
					Severity:    SeverityWarn,
					Title:       fmt.Sprintf("Dangerous tool pattern %q in allowlist", allowed),
					Detail:      fmt.Sprintf("Tool %q can execute arbitrary code but does not require approval.", allowed),
					Remediation: fmt.Sprintf("Add %q to tools.execution.require_approval.", allowed),
				})
			}
		}
	}

	if approval.DefaultDecision == "allowed" {
		findings = append(findings, AuditFinding{
			CheckID:     "tools.default_allowed",
			Severity:    SeverityWarn,
			Title:       "Default tool decision is 'allowed'",
			Detail:      "Unrecognized tools are auto-approved by default.",
			Remediation: "Set tools.execution.approval.default_decision to \"pending\" or \"denied\".",
		})
	}

	if elevated := cfg.Tools.Elevated; elevated.Enabled != nil && *elevated.Enabled && len(elevated.Tools) == 0 {
		findings = append(findings, AuditFinding{
			CheckID:  "tools.elevated.unscoped",
			Severity: SeverityWarn,
			Title:    "Elevated execution enabled without a tool scope",
			Detail:   "tools.elevated.enabled is true but tools.elevated.tools lists no patterns, so nothing can bypass approval via this path yet but the gate is armed.",
		})
	}

	return findings
}
