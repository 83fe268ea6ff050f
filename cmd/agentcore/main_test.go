package main

import (
	"testing"

	"github.com/agentcore/nexus/internal/agent"
	"github.com/agentcore/nexus/internal/config"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"run", "chat", "version"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestDefaultConfigFromEnv_NoKeys(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg := defaultConfigFromEnv()
	if len(cfg.LLM.Providers) != 0 {
		t.Fatalf("expected no providers without API keys, got %v", cfg.LLM.Providers)
	}
}

func TestDefaultConfigFromEnv_AnthropicOnly(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("OPENAI_API_KEY", "")

	cfg := defaultConfigFromEnv()
	if cfg.LLM.DefaultProvider != "anthropic" {
		t.Fatalf("expected anthropic as default provider, got %q", cfg.LLM.DefaultProvider)
	}
	if _, ok := cfg.LLM.Providers["anthropic"]; !ok {
		t.Fatalf("expected anthropic provider config to be populated")
	}
	if len(cfg.LLM.FallbackChain) != 0 {
		t.Fatalf("expected no fallback chain with a single provider, got %v", cfg.LLM.FallbackChain)
	}
}

func TestDefaultConfigFromEnv_BothProviders_SetsFallbackChain(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := defaultConfigFromEnv()
	if cfg.LLM.DefaultProvider != "anthropic" {
		t.Fatalf("expected anthropic as default provider, got %q", cfg.LLM.DefaultProvider)
	}
	if len(cfg.LLM.FallbackChain) != 1 || cfg.LLM.FallbackChain[0] != "openai" {
		t.Fatalf("expected openai in the fallback chain, got %v", cfg.LLM.FallbackChain)
	}
}

func TestBuildProviders_ErrorsWithNoneConfigured(t *testing.T) {
	cfg := defaultConfigFromEnv()
	if _, err := buildProviders(cfg); err == nil {
		t.Fatalf("expected an error when no providers are configured")
	}
}

func TestBuildProviders_UnknownProviderErrors(t *testing.T) {
	cfg := defaultConfigFromEnv()
	cfg.LLM.Providers["made-up"] = cfg.LLM.Providers["anthropic"]
	if _, err := buildProviders(cfg); err == nil {
		t.Fatalf("expected an error for an unrecognized provider name")
	}
}

func TestToolExecutionRuntimeOptions(t *testing.T) {
	runtime := toolExecutionRuntimeOptions(config.ToolExecutionConfig{
		MaxIterations: 3,
		Parallelism:   2,
		Async:         []string{"long_running_tool"},
	})
	if runtime.MaxIterations != 3 {
		t.Fatalf("expected MaxIterations 3, got %d", runtime.MaxIterations)
	}
	if runtime.ToolParallelism != 2 {
		t.Fatalf("expected ToolParallelism 2, got %d", runtime.ToolParallelism)
	}
	if len(runtime.AsyncTools) != 1 || runtime.AsyncTools[0] != "long_running_tool" {
		t.Fatalf("expected AsyncTools to carry over, got %v", runtime.AsyncTools)
	}
}

func TestApprovalPolicyFromConfig_Defaults(t *testing.T) {
	policy := approvalPolicyFromConfig(config.ApprovalConfig{}, config.ElevatedConfig{})
	defaults := agent.DefaultApprovalPolicy()
	if policy.DefaultDecision != defaults.DefaultDecision {
		t.Fatalf("expected default decision %q, got %q", defaults.DefaultDecision, policy.DefaultDecision)
	}
	if policy.AskFallback != defaults.AskFallback {
		t.Fatalf("expected AskFallback %v, got %v", defaults.AskFallback, policy.AskFallback)
	}
}

func TestApprovalPolicyFromConfig_OverridesAndElevated(t *testing.T) {
	falseVal := false
	enabled := true
	policy := approvalPolicyFromConfig(config.ApprovalConfig{
		Allowlist:       []string{"read_file"},
		DefaultDecision: "denied",
		AskFallback:     &falseVal,
	}, config.ElevatedConfig{
		Enabled: &enabled,
		Tools:   []string{"bash"},
	})
	if policy.DefaultDecision != agent.ApprovalDenied {
		t.Fatalf("expected denied default decision, got %q", policy.DefaultDecision)
	}
	if policy.AskFallback {
		t.Fatalf("expected AskFallback override to false")
	}
	want := map[string]bool{"read_file": true, "bash": true}
	for _, name := range policy.Allowlist {
		delete(want, name)
	}
	if len(want) != 0 {
		t.Fatalf("expected allowlist to include elevated tools, got %v", policy.Allowlist)
	}
}
